package models

import "time"

// Ticket status values
const (
	TicketOpen       = "OPEN"
	TicketInProgress = "IN_PROGRESS"
	TicketClosed     = "CLOSED"
)

// Ticket priorities
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// Ticket categories
const (
	CategoryGeneral   = "GENERAL"
	CategoryTechnical = "TECHNICAL"
	CategoryBilling   = "BILLING"
	CategoryRefund    = "REFUND"
	CategoryCustomBot = "CUSTOM_BOT"
)

// SupportTicket is a customer support request
type SupportTicket struct {
	BaseModel
	TicketID    string     `json:"ticket_id" gorm:"not null;size:20;uniqueIndex"` // TICKET-NNNN
	UserID      int64      `json:"user_id" gorm:"not null;index"`
	GuildID     *int64     `json:"guild_id,omitempty"`
	Subject     string     `json:"subject" gorm:"not null;size:200"`
	Description string     `json:"description" gorm:"type:text;not null"`
	Status      string     `json:"status" gorm:"not null;size:20;default:OPEN;index"`
	Priority    string     `json:"priority" gorm:"not null;size:20;default:MEDIUM"`
	Category    string     `json:"category" gorm:"not null;size:50;default:GENERAL"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`

	// Support staff assignment
	AssignedTo *int64     `json:"assigned_to,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
}

// TicketMessage is a reply on a support ticket
type TicketMessage struct {
	BaseModel
	TicketID     string `json:"ticket_id" gorm:"not null;size:20;index"`
	UserID       int64  `json:"user_id" gorm:"not null"`
	Message      string `json:"message" gorm:"type:text;not null"`
	IsStaffReply bool   `json:"is_staff_reply"`
}
