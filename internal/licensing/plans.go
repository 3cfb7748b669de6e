package licensing

import (
	"strings"

	"guardian-api/internal/models"

	"github.com/shopspring/decimal"
)

// Plan is a sellable product: a tier sold for a billing period at a price
type Plan struct {
	Code         string
	Tier         models.Tier
	Period       models.BillingPeriod
	Product      string
	Price        decimal.Decimal
	DurationDays *int // nil means permanent
}

// Permanent reports whether the plan never expires
func (p Plan) Permanent() bool {
	return p.DurationDays == nil
}

func days(n int) *int { return &n }

// Catalog codes
const (
	PlanBasicMonthly     = "BASIC_MONTHLY"
	PlanBasicYearly      = "BASIC_YEARLY"
	PlanPremiumMonthly   = "PREMIUM_MONTHLY"
	PlanPremiumYearly    = "PREMIUM_YEARLY"
	PlanExclusiveMonthly = "EXCLUSIVE_MONTHLY"
	PlanExclusive        = "EXCLUSIVE"
	PlanCustomBot        = "CUSTOM_BOT"
)

var catalog = map[string]Plan{
	PlanBasicMonthly:     {PlanBasicMonthly, models.TierBasic, models.PeriodMonthly, models.ProductLicense, decimal.RequireFromString("4.99"), days(30)},
	PlanBasicYearly:      {PlanBasicYearly, models.TierBasic, models.PeriodYearly, models.ProductLicense, decimal.RequireFromString("29.99"), days(365)},
	PlanPremiumMonthly:   {PlanPremiumMonthly, models.TierPremium, models.PeriodMonthly, models.ProductLicense, decimal.RequireFromString("9.99"), days(30)},
	PlanPremiumYearly:    {PlanPremiumYearly, models.TierPremium, models.PeriodYearly, models.ProductLicense, decimal.RequireFromString("59.99"), days(365)},
	PlanExclusiveMonthly: {PlanExclusiveMonthly, models.TierExclusive, models.PeriodMonthly, models.ProductLicense, decimal.RequireFromString("19.99"), days(30)},
	PlanExclusive:        {PlanExclusive, models.TierExclusive, models.PeriodLifetime, models.ProductLicense, decimal.RequireFromString("99.99"), nil},
	// A custom bot deployment carries full lifetime entitlement
	PlanCustomBot: {PlanCustomBot, models.TierExclusive, models.PeriodLifetime, models.ProductCustomBot, decimal.RequireFromString("50.00"), nil},
}

// LookupPlan returns the catalog entry for a plan code such as PREMIUM_YEARLY.
// Bare tier names resolve to the tier's yearly plan, or lifetime for EXCLUSIVE.
func LookupPlan(code string) (Plan, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch code {
	case string(models.TierBasic):
		code = PlanBasicYearly
	case string(models.TierPremium):
		code = PlanPremiumYearly
	}
	p, ok := catalog[code]
	return p, ok
}

// Plans returns the catalog ordered by tier rank then price
func Plans() []Plan {
	return []Plan{
		catalog[PlanBasicMonthly],
		catalog[PlanBasicYearly],
		catalog[PlanPremiumMonthly],
		catalog[PlanPremiumYearly],
		catalog[PlanExclusiveMonthly],
		catalog[PlanExclusive],
		catalog[PlanCustomBot],
	}
}

type band struct {
	floor decimal.Decimal
	plan  string
}

// bands are checked from the highest floor down; the first match wins
var bands = []band{
	{decimal.NewFromInt(90), PlanExclusive},
	{decimal.NewFromInt(55), PlanPremiumYearly},
	{decimal.NewFromInt(45), PlanCustomBot},
	{decimal.NewFromInt(25), PlanBasicYearly},
	{decimal.NewFromInt(15), PlanExclusiveMonthly},
	{decimal.NewFromInt(7), PlanPremiumMonthly},
	{decimal.NewFromInt(3), PlanBasicMonthly},
}

// InferPlan maps a verified USD amount to the plan it pays for.
// It returns false when the amount is below the lowest band.
func InferPlan(amountUSD decimal.Decimal) (Plan, bool) {
	for _, b := range bands {
		if amountUSD.GreaterThanOrEqual(b.floor) {
			return catalog[b.plan], true
		}
	}
	return Plan{}, false
}
