package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"guardian-api/internal/models"
	"guardian-api/pkg/logging"

	"gorm.io/gorm"
)

const maxTicketAttempts = 20

// TicketService manages support tickets
type TicketService struct {
	db    *gorm.DB
	now   func() time.Time
	newID func() string
}

// NewTicketService creates a new ticket service
func NewTicketService(db *gorm.DB) *TicketService {
	return &TicketService{
		db:    db,
		now:   time.Now,
		newID: randomTicketID,
	}
}

func randomTicketID() string {
	return fmt.Sprintf("TICKET-%d", 1000+rand.Intn(9000))
}

// NewTicket is the input for opening a ticket
type NewTicket struct {
	UserID      int64
	GuildID     *int64
	Subject     string
	Description string
	Priority    string // defaults to MEDIUM
	Category    string // defaults to GENERAL
}

func (n *NewTicket) normalize() error {
	n.Subject = strings.TrimSpace(n.Subject)
	n.Description = strings.TrimSpace(n.Description)
	if n.UserID == 0 || n.Subject == "" || n.Description == "" {
		return fmt.Errorf("%w: user, subject and description are required", ErrInvalidInput)
	}
	if len(n.Subject) > 200 {
		return fmt.Errorf("%w: subject is longer than 200 characters", ErrInvalidInput)
	}

	n.Priority = strings.ToUpper(n.Priority)
	switch n.Priority {
	case "":
		n.Priority = models.PriorityMedium
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent:
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, n.Priority)
	}

	n.Category = strings.ToUpper(n.Category)
	switch n.Category {
	case "":
		n.Category = models.CategoryGeneral
	case models.CategoryGeneral, models.CategoryTechnical, models.CategoryBilling,
		models.CategoryRefund, models.CategoryCustomBot:
	default:
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, n.Category)
	}
	return nil
}

// Create opens a ticket. The description is also stored as the first message.
func (s *TicketService) Create(ctx context.Context, in NewTicket) (*models.SupportTicket, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxTicketAttempts; attempt++ {
		ticket := &models.SupportTicket{
			TicketID:    s.newID(),
			UserID:      in.UserID,
			GuildID:     in.GuildID,
			Subject:     in.Subject,
			Description: in.Description,
			Status:      models.TicketOpen,
			Priority:    in.Priority,
			Category:    in.Category,
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(ticket).Error; err != nil {
				return err
			}
			return tx.Create(&models.TicketMessage{
				TicketID: ticket.TicketID,
				UserID:   in.UserID,
				Message:  in.Description,
			}).Error
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logging.Warnf("Ticket id collision on %s - attempt: %d/%d", ticket.TicketID, attempt, maxTicketAttempts)
			continue
		}
		if err != nil {
			return nil, storeError("create ticket", err)
		}

		logging.Infof("Ticket opened - id: %s, user: %d, category: %s", ticket.TicketID, ticket.UserID, ticket.Category)
		return ticket, nil
	}

	return nil, fmt.Errorf("create ticket: no free ticket id after %d attempts: %w", maxTicketAttempts, ErrConflict)
}

// TicketWithMessages is a ticket and its conversation, oldest message first
type TicketWithMessages struct {
	models.SupportTicket
	Messages []models.TicketMessage `json:"messages"`
}

// Get returns a ticket and its messages
func (s *TicketService) Get(ctx context.Context, ticketID string) (*TicketWithMessages, error) {
	db := s.db.WithContext(ctx)
	ticket, err := s.find(db, ticketID)
	if err != nil {
		return nil, err
	}

	out := &TicketWithMessages{SupportTicket: *ticket}
	if err := db.Where("ticket_id = ?", ticket.TicketID).Order("created_at ASC, id ASC").Find(&out.Messages).Error; err != nil {
		return nil, storeError("list ticket messages", err)
	}
	return out, nil
}

func (s *TicketService) find(db *gorm.DB, ticketID string) (*models.SupportTicket, error) {
	var ticket models.SupportTicket
	err := db.Where("ticket_id = ?", strings.ToUpper(strings.TrimSpace(ticketID))).First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, ErrNotFound)
	}
	if err != nil {
		return nil, storeError("get ticket", err)
	}
	return &ticket, nil
}

// ListForUser returns a user's tickets, newest first
func (s *TicketService) ListForUser(ctx context.Context, userID int64) ([]models.SupportTicket, error) {
	var tickets []models.SupportTicket
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&tickets).Error
	if err != nil {
		return nil, storeError("list tickets", err)
	}
	return tickets, nil
}

// ListOpen returns tickets that are not closed, oldest first
func (s *TicketService) ListOpen(ctx context.Context) ([]models.SupportTicket, error) {
	var tickets []models.SupportTicket
	err := s.db.WithContext(ctx).
		Where("status <> ?", models.TicketClosed).
		Order("created_at ASC, id ASC").
		Find(&tickets).Error
	if err != nil {
		return nil, storeError("list open tickets", err)
	}
	return tickets, nil
}

// AddMessage appends a reply. Closed tickets do not accept messages.
func (s *TicketService) AddMessage(ctx context.Context, ticketID string, userID int64, message string, staff bool) (*models.TicketMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}

	var msg *models.TicketMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ticket, err := s.find(tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == models.TicketClosed {
			return fmt.Errorf("ticket %s is closed: %w", ticket.TicketID, ErrInvalidState)
		}

		msg = &models.TicketMessage{
			TicketID:     ticket.TicketID,
			UserID:       userID,
			Message:      message,
			IsStaffReply: staff,
		}
		if err := tx.Create(msg).Error; err != nil {
			return storeError("add ticket message", err)
		}
		// Touch the ticket so recently active tickets sort first
		return tx.Model(ticket).Update("updated_at", s.now()).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Assign hands a ticket to a staff member and moves it to IN_PROGRESS
func (s *TicketService) Assign(ctx context.Context, ticketID string, staffID int64) (*models.SupportTicket, error) {
	now := s.now()
	return s.transition(ctx, ticketID, map[string]interface{}{
		"assigned_to": staffID,
		"assigned_at": now,
		"status":      models.TicketInProgress,
	})
}

// Close marks a ticket CLOSED
func (s *TicketService) Close(ctx context.Context, ticketID string) (*models.SupportTicket, error) {
	return s.transition(ctx, ticketID, map[string]interface{}{
		"status":    models.TicketClosed,
		"closed_at": s.now(),
	})
}

func (s *TicketService) transition(ctx context.Context, ticketID string, updates map[string]interface{}) (*models.SupportTicket, error) {
	var ticket *models.SupportTicket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ticket, err = s.find(tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == models.TicketClosed {
			return fmt.Errorf("ticket %s is closed: %w", ticket.TicketID, ErrInvalidState)
		}
		if err := tx.Model(ticket).Updates(updates).Error; err != nil {
			return storeError("update ticket", err)
		}
		ticket, err = s.find(tx, ticket.TicketID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}
