package api

import (
	"net/http"
	"strings"

	"guardian-api/internal/licensing"
	"guardian-api/internal/models"
	"guardian-api/internal/response"
	"guardian-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// SubmitPaymentRequest records a payment for manual confirmation
type SubmitPaymentRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	TransactionID string `json:"transaction_id" binding:"required"`
	Method        string `json:"method" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	Tier          string `json:"tier" binding:"required"`
	Period        string `json:"period"`
	Product       string `json:"product"`
}

// SubmitPayment records a PENDING payment
func (h *Handler) SubmitPayment(c *gin.Context) {
	var req SubmitPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := bodyID(c, "user_id", req.UserID)
	if !ok {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "amount must be a decimal amount")
		return
	}
	period := models.BillingPeriod(strings.ToUpper(req.Period))
	if period == "" {
		// Bare tier names resolve to the tier's default plan
		if plan, ok := licensing.LookupPlan(req.Tier); ok {
			period = plan.Period
		}
	}

	payment, err := h.Payments.SubmitTransaction(c.Request.Context(), services.Submission{
		UserID:        userID,
		TransactionID: req.TransactionID,
		Method:        req.Method,
		Amount:        amount,
		Tier:          models.Tier(strings.ToUpper(req.Tier)),
		Period:        period,
		Product:       strings.ToUpper(req.Product),
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.CreatedJSON(c, payment)
}

// ListPayments lists a user's payments (?user_id=)
func (h *Handler) ListPayments(c *gin.Context) {
	userID, ok := parseSnowflake(c.Query("user_id"))
	if !ok {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid user_id")
		return
	}
	payments, err := h.Payments.ListUserTransactions(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, payments)
}

// GetPayment returns one payment
func (h *Handler) GetPayment(c *gin.Context) {
	payment, err := h.Payments.GetTransaction(c.Request.Context(), c.Param("tx_id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, payment)
}

// ConfirmPayment confirms a PENDING payment and issues its license
func (h *Handler) ConfirmPayment(c *gin.Context) {
	payment, err := h.Payments.ConfirmTransaction(c.Request.Context(), c.Param("tx_id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, payment)
}

// FailPaymentRequest carries the rejection reason
type FailPaymentRequest struct {
	Reason string `json:"reason"`
}

// FailPayment rejects a PENDING payment
func (h *Handler) FailPayment(c *gin.Context) {
	var req FailPaymentRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	payment, err := h.Payments.FailTransaction(c.Request.Context(), c.Param("tx_id"), req.Reason)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, payment)
}

// VerifyBitcoinRequest asks for an on-chain payment to be verified
type VerifyBitcoinRequest struct {
	UserID string `json:"user_id" binding:"required"`
	TxID   string `json:"tx_id" binding:"required"`
}

// VerifyBitcoinPayment verifies a Bitcoin transaction and, if it pays for
// a tier, issues the license in the same request
func (h *Handler) VerifyBitcoinPayment(c *gin.Context) {
	var req VerifyBitcoinRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := bodyID(c, "user_id", req.UserID)
	if !ok {
		return
	}

	payment, err := h.Payments.VerifyBitcoinPayment(c.Request.Context(), userID, req.TxID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, payment)
}

// PayPalClaimRequest records a PayPal payment against a catalog plan
type PayPalClaimRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	TransactionID string `json:"transaction_id" binding:"required"`
	Plan          string `json:"plan" binding:"required"`
}

// SubmitPayPalClaim records a PayPal payment for manual review
func (h *Handler) SubmitPayPalClaim(c *gin.Context) {
	var req PayPalClaimRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := bodyID(c, "user_id", req.UserID)
	if !ok {
		return
	}

	payment, err := h.Payments.SubmitPayPalClaim(c.Request.Context(), userID, req.TransactionID, req.Plan)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.CreatedJSON(c, payment)
}
