package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// License status values
const (
	LicenseActive    = "ACTIVE"
	LicenseExpired   = "EXPIRED"
	LicenseSuspended = "SUSPENDED"
)

// LicenseKey status values
const (
	KeyAvailable = "AVAILABLE"
	KeySold      = "SOLD"
	KeyReserved  = "RESERVED"
)

// Payment methods
const (
	PaymentBTC    = "BTC"
	PaymentPayPal = "PAYPAL"
)

// PaymentTransaction status values
const (
	TxPending   = "PENDING"
	TxConfirmed = "CONFIRMED"
	TxFailed    = "FAILED"
)

// Products a transaction can pay for
const (
	ProductLicense   = "LICENSE"
	ProductCustomBot = "CUSTOM_BOT"
)

// License is a user's entitlement. There is at most one row per user;
// a new purchase replaces the existing record.
type License struct {
	BaseModel

	UserID     int64         `json:"user_id" gorm:"not null;uniqueIndex"`
	LicenseKey string        `json:"license_key" gorm:"not null;size:50;uniqueIndex"`
	Tier       Tier          `json:"tier" gorm:"not null;size:20"`
	Period     BillingPeriod `json:"period" gorm:"not null;size:20"`
	Status     string        `json:"status" gorm:"not null;size:20;default:ACTIVE;index"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty" gorm:"index"` // nil means permanent

	// Payment tracking
	PaymentMethod    string          `json:"payment_method,omitempty" gorm:"size:20"`
	PaymentReference string          `json:"payment_reference,omitempty" gorm:"size:255"`
	AmountPaid       decimal.Decimal `json:"amount_paid" gorm:"type:varchar(20);not null"`

	// Usage tracking
	CommandsUsed int        `json:"commands_used" gorm:"not null;default:0"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// LicenseKey is a redeemable code for one unit of a tier
type LicenseKey struct {
	BaseModel

	Code         string          `json:"code" gorm:"not null;size:50;uniqueIndex"`
	Tier         Tier            `json:"tier" gorm:"not null;size:20"`
	Period       BillingPeriod   `json:"period" gorm:"not null;size:20"`
	PriceUSD     decimal.Decimal `json:"price_usd" gorm:"type:varchar(20);not null"`
	DurationDays *int            `json:"duration_days,omitempty"` // nil means permanent
	Status       string          `json:"status" gorm:"not null;size:20;default:AVAILABLE;index"`
	SoldTo       *int64          `json:"sold_to,omitempty"`
	SoldAt       *time.Time      `json:"sold_at,omitempty"`
}

// PaymentTransaction records one payment attempt.
// PENDING moves to CONFIRMED or FAILED, both terminal.
type PaymentTransaction struct {
	BaseModel

	UserID        int64           `json:"user_id" gorm:"not null;index"`
	TransactionID string          `json:"transaction_id" gorm:"not null;size:255;uniqueIndex"`
	PaymentMethod string          `json:"payment_method" gorm:"not null;size:20"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:varchar(20);not null"`
	Currency      string          `json:"currency" gorm:"size:10;default:USD"`
	Tier          Tier            `json:"tier" gorm:"not null;size:20;index"`
	Period        BillingPeriod   `json:"period" gorm:"not null;size:20"`
	Product       string          `json:"product" gorm:"not null;size:20;default:LICENSE"`
	Status        string          `json:"status" gorm:"not null;size:20;default:PENDING;index"`
	LicenseKey    *string         `json:"license_key,omitempty" gorm:"size:50"` // set on confirmation
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty" gorm:"index"`
	FailureReason string          `json:"failure_reason,omitempty" gorm:"size:255"`
}
