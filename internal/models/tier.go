package models

import "strings"

// Tier is a license level. Ordering is BASIC < PREMIUM < EXCLUSIVE.
type Tier string

const (
	TierNone      Tier = ""
	TierBasic     Tier = "BASIC"
	TierPremium   Tier = "PREMIUM"
	TierExclusive Tier = "EXCLUSIVE"
)

// Rank returns the position of the tier in the total order, 0 for unknown tiers
func (t Tier) Rank() int {
	switch t {
	case TierBasic:
		return 1
	case TierPremium:
		return 2
	case TierExclusive:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t is one of the sellable tiers
func (t Tier) Valid() bool {
	return t.Rank() > 0
}

// ParseTier parses a tier name, case-insensitively
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return TierNone, false
	}
	return t, true
}

// BillingPeriod only affects price and duration, never rank
type BillingPeriod string

const (
	PeriodMonthly  BillingPeriod = "MONTHLY"
	PeriodYearly   BillingPeriod = "YEARLY"
	PeriodLifetime BillingPeriod = "LIFETIME"
)

// Valid reports whether p is a known billing period
func (p BillingPeriod) Valid() bool {
	switch p {
	case PeriodMonthly, PeriodYearly, PeriodLifetime:
		return true
	}
	return false
}
