package api

import (
	"net/http"

	"guardian-api/internal/response"
	"guardian-api/internal/services"

	"github.com/gin-gonic/gin"
)

// CreateTicketRequest opens a support ticket
type CreateTicketRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	GuildID     string `json:"guild_id"`
	Subject     string `json:"subject" binding:"required"`
	Description string `json:"description" binding:"required"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
}

// CreateTicket opens a ticket
func (h *Handler) CreateTicket(c *gin.Context) {
	var req CreateTicketRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := bodyID(c, "user_id", req.UserID)
	if !ok {
		return
	}
	guildID, ok := optionalBodyID(c, "guild_id", req.GuildID)
	if !ok {
		return
	}

	in := services.NewTicket{
		UserID:      userID,
		Subject:     req.Subject,
		Description: req.Description,
		Priority:    req.Priority,
		Category:    req.Category,
	}
	if guildID != 0 {
		in.GuildID = &guildID
	}

	ticket, err := h.Tickets.Create(c.Request.Context(), in)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.CreatedJSON(c, ticket)
}

// ListUserTickets lists a user's tickets (?user_id=)
func (h *Handler) ListUserTickets(c *gin.Context) {
	userID, ok := parseSnowflake(c.Query("user_id"))
	if !ok {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid user_id")
		return
	}
	tickets, err := h.Tickets.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, tickets)
}

// ListOpenTickets lists tickets awaiting staff, oldest first
func (h *Handler) ListOpenTickets(c *gin.Context) {
	tickets, err := h.Tickets.ListOpen(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, tickets)
}

// GetTicket returns a ticket with its messages
func (h *Handler) GetTicket(c *gin.Context) {
	ticket, err := h.Tickets.Get(c.Request.Context(), c.Param("ticket_id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, ticket)
}

// TicketMessageRequest is a reply on a ticket
type TicketMessageRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Message string `json:"message" binding:"required"`
	Staff   bool   `json:"is_staff_reply"`
}

// AddTicketMessage appends a reply
func (h *Handler) AddTicketMessage(c *gin.Context) {
	var req TicketMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := bodyID(c, "user_id", req.UserID)
	if !ok {
		return
	}

	msg, err := h.Tickets.AddMessage(c.Request.Context(), c.Param("ticket_id"), userID, req.Message, req.Staff)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.CreatedJSON(c, msg)
}

// AssignTicketRequest names the staff member taking a ticket
type AssignTicketRequest struct {
	StaffID string `json:"staff_id" binding:"required"`
}

// AssignTicket assigns a ticket to staff
func (h *Handler) AssignTicket(c *gin.Context) {
	var req AssignTicketRequest
	if !bindJSON(c, &req) {
		return
	}
	staffID, ok := bodyID(c, "staff_id", req.StaffID)
	if !ok {
		return
	}

	ticket, err := h.Tickets.Assign(c.Request.Context(), c.Param("ticket_id"), staffID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, ticket)
}

// CloseTicket closes a ticket
func (h *Handler) CloseTicket(c *gin.Context) {
	ticket, err := h.Tickets.Close(c.Request.Context(), c.Param("ticket_id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, ticket)
}
