package api

import (
	"net/http"
	"strconv"
	"strings"

	"guardian-api/internal/licensing"
	"guardian-api/internal/models"
	"guardian-api/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// LicenseResponse is a stored license plus what it grants right now
type LicenseResponse struct {
	License       *models.License     `json:"license"`
	EffectiveTier string              `json:"effective_tier"`
	Features      []licensing.Feature `json:"features"`
}

// GetLicense returns a user's license
func (h *Handler) GetLicense(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	license, err := h.Licenses.GetUserLicense(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	tier, err := h.Licenses.EffectiveTier(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, LicenseResponse{
		License:       license,
		EffectiveTier: licensing.TierLabel(tier),
		Features:      licensing.Features(tier),
	})
}

// CheckAccess answers whether a user holds at least ?tier=
func (h *Handler) CheckAccess(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	tier, ok := models.ParseTier(c.Query("tier"))
	if !ok {
		response.ErrorJSON(c, http.StatusBadRequest, "tier must be BASIC, PREMIUM or EXCLUSIVE")
		return
	}

	decision, err := h.Licenses.CheckAccess(c.Request.Context(), userID, tier)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, decision)
}

// RecordUsage counts one command against a user's license
func (h *Handler) RecordUsage(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if err := h.Licenses.RecordUsage(c.Request.Context(), userID); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, nil)
}

// SuspendLicense suspends an active license
func (h *Handler) SuspendLicense(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if err := h.Licenses.Suspend(c.Request.Context(), userID); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, nil)
}

// ReactivateLicense lifts a suspension
func (h *Handler) ReactivateLicense(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if err := h.Licenses.Reactivate(c.Request.Context(), userID); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, nil)
}

// RedeemKeyRequest represents a key redemption request
type RedeemKeyRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Key    string `json:"key" binding:"required"`
}

// RedeemKey binds a license key to a user
func (h *Handler) RedeemKey(c *gin.Context) {
	var req RedeemKeyRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := bodyID(c, "user_id", req.UserID)
	if !ok {
		return
	}

	license, err := h.Keys.RedeemKey(c.Request.Context(), userID, req.Key)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, license)
}

// GenerateKeyRequest represents a key generation request. Either Plan or
// Tier with Period and PriceUSD must be given.
type GenerateKeyRequest struct {
	Plan         string `json:"plan"`
	Tier         string `json:"tier"`
	Period       string `json:"period"`
	PriceUSD     string `json:"price_usd"`
	DurationDays *int   `json:"duration_days"`
}

// GenerateKey issues a new AVAILABLE key
func (h *Handler) GenerateKey(c *gin.Context) {
	var req GenerateKeyRequest
	if !bindJSON(c, &req) {
		return
	}

	var (
		tier     models.Tier
		period   models.BillingPeriod
		price    decimal.Decimal
		duration *int
	)
	if req.Plan != "" {
		plan, ok := licensing.LookupPlan(req.Plan)
		if !ok {
			response.ErrorJSON(c, http.StatusBadRequest, "Unknown plan "+strconv.Quote(req.Plan))
			return
		}
		tier, period, price, duration = plan.Tier, plan.Period, plan.Price, plan.DurationDays
	} else {
		var ok bool
		if tier, ok = models.ParseTier(req.Tier); !ok {
			response.ErrorJSON(c, http.StatusBadRequest, "tier must be BASIC, PREMIUM or EXCLUSIVE")
			return
		}
		p, err := decimal.NewFromString(req.PriceUSD)
		if err != nil {
			response.ErrorJSON(c, http.StatusBadRequest, "price_usd must be a decimal amount")
			return
		}
		period, price, duration = models.BillingPeriod(strings.ToUpper(req.Period)), p, req.DurationDays
	}

	key, err := h.Keys.GenerateKey(c.Request.Context(), tier, period, price, duration)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.CreatedJSON(c, key)
}

// ListKeys lists keys, optionally filtered by ?status=
func (h *Handler) ListKeys(c *gin.Context) {
	keys, err := h.Keys.ListKeys(c.Request.Context(), c.Query("status"), queryLimit(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, keys)
}

// SalesStats returns the sales summary
func (h *Handler) SalesStats(c *gin.Context) {
	stats, err := h.Stats.Sales(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, stats)
}
