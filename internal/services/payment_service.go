package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"guardian-api/internal/database"
	"guardian-api/internal/licensing"
	"guardian-api/internal/metrics"
	"guardian-api/internal/models"
	"guardian-api/pkg/logging"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentService drives payments from PENDING to CONFIRMED or FAILED
type PaymentService struct {
	db         *gorm.DB
	keys       *KeyService
	tickets    *TicketService
	customBots *CustomBotService
	oracle     BitcoinOracle
	prices     PriceSource
	limiter    Limiter
	notifier   Notifier

	verifyWindow time.Duration
	now          func() time.Time
}

// PaymentDeps are the collaborators of a PaymentService. Oracle and Prices
// may be nil when Bitcoin verification is not configured; Notifier may be nil.
type PaymentDeps struct {
	Keys         *KeyService
	Tickets      *TicketService
	CustomBots   *CustomBotService
	Oracle       BitcoinOracle
	Prices       PriceSource
	Limiter      Limiter
	Notifier     Notifier
	VerifyWindow time.Duration
}

// NewPaymentService creates a new payment service
func NewPaymentService(db *gorm.DB, deps PaymentDeps) *PaymentService {
	return &PaymentService{
		db:           db,
		keys:         deps.Keys,
		tickets:      deps.Tickets,
		customBots:   deps.CustomBots,
		oracle:       deps.Oracle,
		prices:       deps.Prices,
		limiter:      deps.Limiter,
		notifier:     deps.Notifier,
		verifyWindow: deps.VerifyWindow,
		now:          time.Now,
	}
}

// Submission is a payment attempt to record as PENDING
type Submission struct {
	UserID        int64
	TransactionID string
	Method        string
	Amount        decimal.Decimal
	Tier          models.Tier
	Period        models.BillingPeriod
	Product       string
}

func (s *Submission) validate() error {
	s.TransactionID = strings.TrimSpace(s.TransactionID)
	s.Method = strings.ToUpper(s.Method)
	if s.Product == "" {
		s.Product = models.ProductLicense
	}

	switch {
	case s.UserID == 0:
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	case s.TransactionID == "" || len(s.TransactionID) > 255:
		return fmt.Errorf("%w: transaction id must be 1-255 characters", ErrInvalidInput)
	case s.Method != models.PaymentBTC && s.Method != models.PaymentPayPal:
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, s.Method)
	case !s.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	case !s.Tier.Valid():
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, s.Tier)
	case !s.Period.Valid():
		return fmt.Errorf("%w: unknown billing period %q", ErrInvalidInput, s.Period)
	case s.Product != models.ProductLicense && s.Product != models.ProductCustomBot:
		return fmt.Errorf("%w: unknown product %q", ErrInvalidInput, s.Product)
	}
	return nil
}

// SubmitTransaction records a PENDING payment. A transaction id that was
// already recorded yields ErrConflict.
func (s *PaymentService) SubmitTransaction(ctx context.Context, sub Submission) (*models.PaymentTransaction, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}

	payment := &models.PaymentTransaction{
		UserID:        sub.UserID,
		TransactionID: sub.TransactionID,
		PaymentMethod: sub.Method,
		Amount:        sub.Amount,
		Currency:      "USD",
		Tier:          sub.Tier,
		Period:        sub.Period,
		Product:       sub.Product,
		Status:        models.TxPending,
	}
	if err := database.CreateTransaction(s.db.WithContext(ctx), payment); err != nil {
		return nil, storeError("submit transaction", err)
	}

	logging.Ctx(ctx).Info().
		Str("transaction_id", payment.TransactionID).
		Str("method", payment.PaymentMethod).
		Int64("user_id", payment.UserID).
		Msg("Payment submitted")
	return payment, nil
}

// confirmationDuration is the license length granted on confirmation:
// a year for BASIC and PREMIUM, permanent for anything else
func confirmationDuration(tier models.Tier) *int {
	switch tier {
	case models.TierBasic, models.TierPremium:
		d := 365
		return &d
	default:
		return nil
	}
}

// ConfirmTransaction issues a key for a PENDING payment, redeems it for the
// payer and marks the payment CONFIRMED, all in one database transaction.
// A CUSTOM_BOT payment also records its deployment in that transaction.
// Any failure leaves the payment PENDING. Confirming a payment that is
// missing or no longer PENDING fails and issues nothing.
func (s *PaymentService) ConfirmTransaction(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	var (
		payment *models.PaymentTransaction
		license *models.License
		bot     *models.CustomBot
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = database.GetTransaction(tx, transactionID)
		if err != nil {
			return storeError("get transaction", err)
		}
		if payment.Status != models.TxPending {
			return fmt.Errorf("transaction already %s: %w", strings.ToLower(payment.Status), ErrInvalidState)
		}

		key, err := s.keys.issue(tx, payment.Tier, payment.Period, payment.Amount, confirmationDuration(payment.Tier))
		if err != nil {
			return err
		}

		license, err = s.keys.redeem(tx, payment.UserID, key.Code, &PaymentSource{
			Method:    payment.PaymentMethod,
			Reference: payment.TransactionID,
			Amount:    payment.Amount,
		})
		if err != nil {
			return err
		}

		if err := database.MarkTransactionConfirmed(tx, payment.TransactionID, key.Code, s.now()); err != nil {
			return storeError("mark transaction confirmed", err)
		}

		if payment.Product == models.ProductCustomBot && s.customBots != nil {
			if bot, err = s.customBots.provision(tx, payment); err != nil {
				return err
			}
		}

		payment, err = database.GetTransaction(tx, payment.TransactionID)
		return storeError("reload transaction", err)
	})
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNotFound) {
			outcome = metrics.OutcomeRejected
		}
		method := "unknown"
		if payment != nil {
			method = payment.PaymentMethod
		}
		metrics.PaymentConfirmations.WithLabelValues(method, outcome).Inc()
		return nil, err
	}

	metrics.PaymentConfirmations.WithLabelValues(payment.PaymentMethod, metrics.OutcomeSuccess).Inc()
	logging.Ctx(ctx).Info().
		Str("transaction_id", payment.TransactionID).
		Int64("user_id", payment.UserID).
		Str("tier", string(license.Tier)).
		Msg("Payment confirmed")

	if payment.Product == models.ProductCustomBot {
		s.openCustomBotTicket(ctx, payment, bot)
	}
	if s.notifier != nil {
		s.notifier.LicenseIssued(payment, license)
	}
	return payment, nil
}

// openCustomBotTicket starts the setup conversation for a custom bot order.
// The payment is already confirmed, so a failure here is only logged.
func (s *PaymentService) openCustomBotTicket(ctx context.Context, payment *models.PaymentTransaction, bot *models.CustomBot) {
	if s.tickets == nil {
		return
	}
	description := fmt.Sprintf("Custom bot order paid via %s, transaction %s.", payment.PaymentMethod, payment.TransactionID)
	if bot != nil {
		description += fmt.Sprintf(" Deployment %s.", bot.DeploymentID)
	}
	description += " Please share the bot name, avatar and features you need."

	_, err := s.tickets.Create(ctx, NewTicket{
		UserID:      payment.UserID,
		Subject:     "Custom bot setup",
		Description: description,
		Priority:    models.PriorityHigh,
		Category:    models.CategoryCustomBot,
	})
	if err != nil {
		logging.Errorf("Failed to open custom bot ticket - transaction: %s, error: %v", payment.TransactionID, err)
	}
}

// FailTransaction rejects a PENDING payment
func (s *PaymentService) FailTransaction(ctx context.Context, transactionID, reason string) (*models.PaymentTransaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "rejected"
	}

	db := s.db.WithContext(ctx)
	if err := database.MarkTransactionFailed(db, transactionID, reason); err != nil {
		return nil, storeError("fail transaction", err)
	}
	metrics.PaymentConfirmations.WithLabelValues("any", metrics.OutcomeRejected).Inc()
	logging.Infof("Payment failed - transaction: %s, reason: %s", transactionID, reason)

	payment, err := database.GetTransaction(db, transactionID)
	if err != nil {
		return nil, storeError("get transaction", err)
	}
	return payment, nil
}

// GetTransaction returns a payment by its external id
func (s *PaymentService) GetTransaction(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	payment, err := database.GetTransaction(s.db.WithContext(ctx), transactionID)
	if err != nil {
		return nil, storeError("get transaction", err)
	}
	return payment, nil
}

// ListUserTransactions returns a user's payments, newest first
func (s *PaymentService) ListUserTransactions(ctx context.Context, userID int64) ([]models.PaymentTransaction, error) {
	payments, err := database.ListUserTransactions(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, storeError("list transactions", err)
	}
	return payments, nil
}

// VerifyBitcoinPayment checks txID against the block explorer, prices it,
// infers the plan it pays for and confirms it. The oracles are consulted
// before any row is written; an amount below every plan records nothing.
// A retry by the same user after a failed confirmation confirms the
// PENDING row at the plan recorded when it was first verified.
func (s *PaymentService) VerifyBitcoinPayment(ctx context.Context, userID int64, txID string) (*models.PaymentTransaction, error) {
	txID = strings.ToLower(strings.TrimSpace(txID))
	if !ValidBitcoinTxID(txID) {
		return nil, fmt.Errorf("%w: not a bitcoin transaction id", ErrInvalidInput)
	}
	if s.oracle == nil || s.prices == nil {
		return nil, fmt.Errorf("bitcoin payments are not configured: %w", ErrExternalDependency)
	}

	if s.limiter != nil && s.verifyWindow > 0 {
		allowed, err := s.limiter.Allow(ctx, "btc_verify:"+strconv.FormatInt(userID, 10), s.verifyWindow)
		if err != nil {
			logging.Errorf("Rate limiter failed: %v", err)
			return nil, fmt.Errorf("rate limiter: %w", ErrExternalDependency)
		}
		if !allowed {
			metrics.RateLimitHits.WithLabelValues("btc_verify").Inc()
			return nil, ErrRateLimited
		}
	}

	// A BTC payment this user already recorded but never confirmed is
	// resumed; anything else recorded under the id is a conflict
	resume := false
	if existing, err := database.GetTransaction(s.db.WithContext(ctx), txID); err == nil {
		if existing.Status != models.TxPending || existing.UserID != userID || existing.PaymentMethod != models.PaymentBTC {
			return nil, fmt.Errorf("transaction %s already %s: %w", txID, strings.ToLower(existing.Status), ErrConflict)
		}
		resume = true
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, storeError("get transaction", err)
	}

	payment, err := s.oracle.LookupPayment(ctx, txID)
	if err != nil {
		return nil, err
	}
	if payment.Received <= 0 {
		return nil, fmt.Errorf("transaction does not pay the configured address: %w", ErrNotFound)
	}
	if !payment.Confirmed {
		return nil, fmt.Errorf("transaction has no confirmations yet: %w", ErrInvalidState)
	}

	if resume {
		logging.Infof("Resuming pending BTC payment - transaction: %s, user: %d", txID, userID)
		return s.ConfirmTransaction(ctx, txID)
	}

	price, err := s.prices.BTCUSD(ctx)
	if err != nil {
		return nil, err
	}
	amountUSD := SatoshisToUSD(payment.Received, price)

	plan, ok := licensing.InferPlan(amountUSD)
	if !ok {
		logging.Infof("BTC payment below lowest plan - transaction: %s, usd: %s", txID, amountUSD.StringFixed(2))
		return nil, fmt.Errorf("$%s: %w", amountUSD.StringFixed(2), ErrNoMatchingTier)
	}

	if _, err := s.SubmitTransaction(ctx, Submission{
		UserID:        userID,
		TransactionID: txID,
		Method:        models.PaymentBTC,
		Amount:        amountUSD,
		Tier:          plan.Tier,
		Period:        plan.Period,
		Product:       plan.Product,
	}); err != nil {
		return nil, err
	}
	return s.ConfirmTransaction(ctx, txID)
}

// SubmitPayPalClaim records a PayPal payment for manual review at the
// catalog price of planCode
func (s *PaymentService) SubmitPayPalClaim(ctx context.Context, userID int64, transactionID, planCode string) (*models.PaymentTransaction, error) {
	plan, ok := licensing.LookupPlan(planCode)
	if !ok {
		return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, planCode)
	}
	return s.SubmitTransaction(ctx, Submission{
		UserID:        userID,
		TransactionID: transactionID,
		Method:        models.PaymentPayPal,
		Amount:        plan.Price,
		Tier:          plan.Tier,
		Period:        plan.Period,
		Product:       plan.Product,
	})
}
