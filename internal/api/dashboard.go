package api

import (
	"encoding/json"
	"net/http"

	"guardian-api/internal/licensing"
	"guardian-api/internal/middleware"
	"guardian-api/internal/models"
	"guardian-api/internal/response"
	"guardian-api/internal/services"

	"github.com/gin-gonic/gin"
)

// ServerConfigResponse is a guild's settings with the caller's entitlement
type ServerConfigResponse struct {
	Guild             *models.Guild       `json:"config"`
	UserLicense       string              `json:"user_license"`
	AvailableFeatures []licensing.Feature `json:"available_features"`
}

// GetGuild returns a guild's settings for the bot
func (h *Handler) GetGuild(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	guild, err := h.Guilds.GetOrCreate(c.Request.Context(), guildID, c.Query("name"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, guild)
}

// GetServerConfig returns a guild's settings and the features the
// dashboard user may configure
func (h *Handler) GetServerConfig(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	guild, err := h.Guilds.GetOrCreate(c.Request.Context(), guildID, "")
	if err != nil {
		response.Fail(c, err)
		return
	}

	tier := middleware.Tier(c)
	response.SuccessJSON(c, ServerConfigResponse{
		Guild:             guild,
		UserLicense:       licensing.TierLabel(tier),
		AvailableFeatures: licensing.Features(tier),
	})
}

// UpdateServerConfig applies a partial settings change. Unknown fields are
// rejected rather than ignored.
func (h *Handler) UpdateServerConfig(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}

	var update services.GuildUpdate
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	guild, err := h.Guilds.Update(c.Request.Context(), guildID, update)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, guild)
}

// ListAutoResponses lists a guild's auto responses
func (h *Handler) ListAutoResponses(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	responses, err := h.AutoResponses.List(c.Request.Context(), guildID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, responses)
}

// AutoResponseRequest sets a trigger's response
type AutoResponseRequest struct {
	Trigger  string `json:"trigger" binding:"required"`
	Response string `json:"response" binding:"required"`
}

// AddAutoResponse creates or replaces an auto response. The dashboard
// user is recorded as its author.
func (h *Handler) AddAutoResponse(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	var req AutoResponseRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, _ := middleware.UserID(c)

	ar, err := h.AutoResponses.Set(c.Request.Context(), guildID, req.Trigger, req.Response, userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.CreatedJSON(c, ar)
}

// RemoveAutoResponse deletes a trigger
func (h *Handler) RemoveAutoResponse(c *gin.Context) {
	guildID, ok := pathID(c, "guild_id")
	if !ok {
		return
	}
	if err := h.AutoResponses.Remove(c.Request.Context(), guildID, c.Param("trigger")); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, nil)
}
