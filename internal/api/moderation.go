package api

import (
	"net/http"
	"time"

	"guardian-api/internal/models"
	"guardian-api/internal/response"

	"github.com/gin-gonic/gin"
)

// WarningRequest represents a warning issued by a moderator
type WarningRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	ModeratorID string `json:"moderator_id" binding:"required"`
	Reason      string `json:"reason"`
}

// AddWarning warns a member and returns their warning count
func (h *Handler) AddWarning(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	var req WarningRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := bodyID(c, "user_id", req.UserID)
	if !ok {
		return
	}
	modID, ok := bodyID(c, "moderator_id", req.ModeratorID)
	if !ok {
		return
	}

	total, err := h.Moderation.AddWarning(c.Request.Context(), guildID, userID, modID, req.Reason)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.CreatedJSON(c, gin.H{"total_warnings": total})
}

// GetWarnings lists a member's warnings, newest first
func (h *Handler) GetWarnings(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	warnings, err := h.Moderation.GetWarnings(c.Request.Context(), guildID, userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, warnings)
}

// ClearWarnings removes all of a member's warnings
func (h *Handler) ClearWarnings(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	removed, err := h.Moderation.ClearWarnings(c.Request.Context(), guildID, userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, gin.H{"removed": removed})
}

// MuteRequest mutes a member. Duration is a Go duration string such as
// "10m" or "2h"; empty mutes permanently.
type MuteRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	ModeratorID string `json:"moderator_id" binding:"required"`
	Reason      string `json:"reason"`
	Duration    string `json:"duration"`
}

// AddMute mutes a member, replacing any existing mute
func (h *Handler) AddMute(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	var req MuteRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := bodyID(c, "user_id", req.UserID)
	if !ok {
		return
	}
	modID, ok := bodyID(c, "moderator_id", req.ModeratorID)
	if !ok {
		return
	}

	var duration *time.Duration
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			response.ErrorJSON(c, http.StatusBadRequest, "duration must look like 10m or 2h")
			return
		}
		duration = &d
	}

	mute, err := h.Moderation.AddMute(c.Request.Context(), guildID, userID, modID, req.Reason, duration)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.CreatedJSON(c, mute)
}

// GetMuteStatus reports whether a member is muted
func (h *Handler) GetMuteStatus(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	muted, err := h.Moderation.IsMuted(c.Request.Context(), guildID, userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, gin.H{"muted": muted})
}

// RemoveMute unmutes a member
func (h *Handler) RemoveMute(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	removed, err := h.Moderation.RemoveMute(c.Request.Context(), guildID, userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	if !removed {
		response.ErrorJSON(c, http.StatusNotFound, "Member is not muted")
		return
	}
	response.SuccessJSON(c, nil)
}

// SweepMutes removes the guild's expired mutes and returns the user ids
// whose mute role should be lifted
func (h *Handler) SweepMutes(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}

	userIDs, err := h.Moderation.GetExpiredMutes(c.Request.Context(), guildID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, gin.H{"user_ids": snowflakeStrings(userIDs)})
}

// ActionRequest is one moderation action for the audit log
type ActionRequest struct {
	ModeratorID string `json:"moderator_id" binding:"required"`
	TargetID    string `json:"target_id" binding:"required"`
	ActionType  string `json:"action_type" binding:"required"`
	Reason      string `json:"reason"`
	Duration    string `json:"duration"`
}

// LogAction appends to the guild's audit log
func (h *Handler) LogAction(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	var req ActionRequest
	if !bindJSON(c, &req) {
		return
	}
	modID, ok := bodyID(c, "moderator_id", req.ModeratorID)
	if !ok {
		return
	}
	targetID, ok := bodyID(c, "target_id", req.TargetID)
	if !ok {
		return
	}

	action := &models.ModerationAction{
		GuildID:     guildID,
		ModeratorID: modID,
		TargetID:    targetID,
		ActionType:  req.ActionType,
		Reason:      req.Reason,
		Duration:    req.Duration,
	}
	if err := h.Moderation.LogAction(c.Request.Context(), action); err != nil {
		response.Fail(c, err)
		return
	}
	response.CreatedJSON(c, action)
}

// ListActions returns the audit log, optionally for one ?target_id=
func (h *Handler) ListActions(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	targetID, ok := optionalBodyID(c, "target_id", c.Query("target_id"))
	if !ok {
		return
	}

	actions, err := h.Moderation.ListActions(c.Request.Context(), guildID, targetID, queryLimit(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, actions)
}

// AntiRaidRequest records an anti-raid detection
type AntiRaidRequest struct {
	EventType     string                 `json:"event_type" binding:"required"`
	AffectedUsers []string               `json:"affected_users"`
	ActionTaken   string                 `json:"action_taken"`
	Details       map[string]interface{} `json:"details"`
}

// LogAntiRaidEvent records an anti-raid event
func (h *Handler) LogAntiRaidEvent(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	var req AntiRaidRequest
	if !bindJSON(c, &req) {
		return
	}

	affected := make([]int64, 0, len(req.AffectedUsers))
	for _, s := range req.AffectedUsers {
		id, ok := bodyID(c, "affected_users", s)
		if !ok {
			return
		}
		affected = append(affected, id)
	}

	event, err := h.Moderation.LogAntiRaidEvent(c.Request.Context(), guildID, req.EventType, affected, req.ActionTaken, req.Details)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.CreatedJSON(c, event)
}

// ListAntiRaidEvents returns recent anti-raid events
func (h *Handler) ListAntiRaidEvents(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}

	events, err := h.Moderation.ListAntiRaidEvents(c.Request.Context(), guildID, queryLimit(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, events)
}
