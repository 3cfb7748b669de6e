package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"guardian-api/internal/database"
	"guardian-api/internal/metrics"
	"guardian-api/internal/models"
	"guardian-api/pkg/logging"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	keyPrefix      = "GUARD"
	keyAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyGroupLen    = 4
	keyGroups      = 3
	maxKeyAttempts = 32
)

// PaymentSource describes what paid for a license
type PaymentSource struct {
	Method    string
	Reference string
	Amount    decimal.Decimal
}

// KeyService issues and redeems license keys
type KeyService struct {
	db      *gorm.DB
	now     func() time.Time
	newCode func() (string, error)
}

// NewKeyService creates a new key service
func NewKeyService(db *gorm.DB) *KeyService {
	return &KeyService{
		db:      db,
		now:     time.Now,
		newCode: randomKeyCode,
	}
}

// randomKeyCode returns GUARD-XXXX-XXXX-XXXX drawn from crypto/rand
func randomKeyCode() (string, error) {
	alphabetSize := big.NewInt(int64(len(keyAlphabet)))
	var b strings.Builder
	b.WriteString(keyPrefix)
	for g := 0; g < keyGroups; g++ {
		b.WriteByte('-')
		for i := 0; i < keyGroupLen; i++ {
			n, err := rand.Int(rand.Reader, alphabetSize)
			if err != nil {
				return "", err
			}
			b.WriteByte(keyAlphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

// NormalizeKeyCode upper-cases and trims user input
func NormalizeKeyCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateKey creates a new AVAILABLE key. durationDays nil means permanent.
func (s *KeyService) GenerateKey(ctx context.Context, tier models.Tier, period models.BillingPeriod, priceUSD decimal.Decimal, durationDays *int) (*models.LicenseKey, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, tier)
	}
	if !period.Valid() {
		return nil, fmt.Errorf("%w: unknown billing period %q", ErrInvalidInput, period)
	}
	if priceUSD.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if durationDays != nil && *durationDays <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	return s.issue(s.db.WithContext(ctx), tier, period, priceUSD, durationDays)
}

// issue inserts a key with a fresh code using db, which may be a transaction
func (s *KeyService) issue(db *gorm.DB, tier models.Tier, period models.BillingPeriod, priceUSD decimal.Decimal, durationDays *int) (*models.LicenseKey, error) {
	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate key code: %w", err)
		}

		taken, err := database.KeyCodeExists(db, code)
		if err != nil {
			return nil, storeError("check key code", err)
		}
		if taken {
			metrics.KeyCollisions.Inc()
			logging.Warnf("License key collision - attempt: %d/%d", attempt, maxKeyAttempts)
			continue
		}

		key := &models.LicenseKey{
			Code:         code,
			Tier:         tier,
			Period:       period,
			PriceUSD:     priceUSD,
			DurationDays: durationDays,
			Status:       models.KeyAvailable,
		}
		// A savepoint when db is a transaction; a failed insert must
		// leave the outer transaction usable on PostgreSQL
		err = db.Transaction(func(sp *gorm.DB) error {
			return database.CreateLicenseKey(sp, key)
		})
		if errors.Is(err, database.ErrDuplicate) {
			// Lost a race with a concurrent insert of the same code
			metrics.KeyCollisions.Inc()
			logging.Warnf("License key collision on insert - attempt: %d/%d", attempt, maxKeyAttempts)
			continue
		}
		if err != nil {
			return nil, storeError("create license key", err)
		}

		metrics.KeysIssued.WithLabelValues(string(tier)).Inc()
		return key, nil
	}

	logging.Errorf("License key generation gave up after %d collisions", maxKeyAttempts)
	return nil, ErrKeySpaceExhausted
}

// RedeemKey sells an AVAILABLE key to userID and grants the matching license.
// Both writes commit together or not at all.
func (s *KeyService) RedeemKey(ctx context.Context, userID int64, code string) (*models.License, error) {
	code = NormalizeKeyCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: key code is required", ErrInvalidInput)
	}

	var license *models.License
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		license, err = s.redeem(tx, userID, code, nil)
		return err
	})
	if err != nil {
		metrics.KeyRedemptions.WithLabelValues(redeemOutcome(err)).Inc()
		return nil, err
	}

	metrics.KeyRedemptions.WithLabelValues(metrics.OutcomeSuccess).Inc()
	logging.Ctx(ctx).Info().
		Int64("user_id", userID).
		Str("tier", string(license.Tier)).
		Msg("License key redeemed")
	return license, nil
}

func redeemOutcome(err error) string {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}

// redeem runs inside tx. source overrides the payment details recorded on
// the license; nil records the key itself as the payment.
func (s *KeyService) redeem(tx *gorm.DB, userID int64, code string, source *PaymentSource) (*models.License, error) {
	key, err := database.GetLicenseKey(tx, code)
	if err != nil {
		return nil, storeError("get license key", err)
	}
	if key.Status != models.KeyAvailable {
		return nil, fmt.Errorf("key is %s: %w", strings.ToLower(key.Status), ErrInvalidState)
	}

	now := s.now()
	if err := database.MarkKeySold(tx, code, userID, now); err != nil {
		return nil, storeError("mark key sold", err)
	}

	if source == nil {
		source = &PaymentSource{Method: "KEY", Reference: code, Amount: key.PriceUSD}
	}

	license := &models.License{
		UserID:           userID,
		LicenseKey:       code,
		Tier:             key.Tier,
		Period:           key.Period,
		Status:           models.LicenseActive,
		ExpiresAt:        expiryFrom(now, key.DurationDays),
		PaymentMethod:    source.Method,
		PaymentReference: source.Reference,
		AmountPaid:       source.Amount,
	}
	if err := database.UpsertLicense(tx, license); err != nil {
		return nil, storeError("upsert license", err)
	}

	stored, err := database.GetLicenseByUser(tx, userID)
	if err != nil {
		return nil, storeError("reload license", err)
	}
	return stored, nil
}

func expiryFrom(now time.Time, durationDays *int) *time.Time {
	if durationDays == nil {
		return nil
	}
	t := now.AddDate(0, 0, *durationDays)
	return &t
}

// ListKeys returns keys newest first, optionally filtered by status
func (s *KeyService) ListKeys(ctx context.Context, status string, limit int) ([]models.LicenseKey, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	switch status {
	case "", models.KeyAvailable, models.KeySold, models.KeyReserved:
	default:
		return nil, fmt.Errorf("%w: unknown key status %q", ErrInvalidInput, status)
	}
	keys, err := database.ListLicenseKeys(s.db.WithContext(ctx), status, limit)
	if err != nil {
		return nil, storeError("list license keys", err)
	}
	return keys, nil
}
