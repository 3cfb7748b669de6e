package api

import (
	"net/http"

	"guardian-api/internal/middleware"
	"guardian-api/internal/response"
	"guardian-api/internal/services"

	"github.com/gin-gonic/gin"
)

// ListCustomBots lists a customer's deployments (?user_id=)
func (h *Handler) ListCustomBots(c *gin.Context) {
	userID, ok := parseSnowflake(c.Query("user_id"))
	if !ok {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid user_id")
		return
	}
	bots, err := h.CustomBots.ListForCustomer(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, bots)
}

// GetCustomBot returns any deployment for staff
func (h *Handler) GetCustomBot(c *gin.Context) {
	bot, err := h.CustomBots.Get(c.Request.Context(), c.Param("deployment_id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, bot)
}

// UpdateCustomBot records setup progress or changes a deployment's status
func (h *Handler) UpdateCustomBot(c *gin.Context) {
	var req services.CustomBotUpdate
	if !bindJSON(c, &req) {
		return
	}
	bot, err := h.CustomBots.Update(c.Request.Context(), c.Param("deployment_id"), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, bot)
}

// CustomBotHeartbeat is called by a running deployment
func (h *Handler) CustomBotHeartbeat(c *gin.Context) {
	if err := h.CustomBots.Heartbeat(c.Request.Context(), c.Param("deployment_id")); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, nil)
}

// ListMyCustomBots lists the dashboard user's deployments
func (h *Handler) ListMyCustomBots(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	bots, err := h.CustomBots.ListForCustomer(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, bots)
}

// GetMyCustomBot returns one of the dashboard user's deployments. Another
// customer's deployment is indistinguishable from a missing one.
func (h *Handler) GetMyCustomBot(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	bot, err := h.CustomBots.GetForCustomer(c.Request.Context(), c.Param("deployment_id"), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, bot)
}
