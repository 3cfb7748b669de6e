package services

import (
	"context"
	"time"

	"guardian-api/internal/database"
	"guardian-api/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SalesStats summarises confirmed payments
type SalesStats struct {
	TotalSales     int64                 `json:"total_sales"`
	TotalRevenue   string                `json:"total_revenue"` // "$123.45"
	ActiveLicenses int64                 `json:"active_licenses"`
	SalesByTier    map[models.Tier]int64 `json:"sales_by_tier"`
	RecentSales    int64                 `json:"recent_sales"` // last 30 days
}

// StatsService reports on sales
type StatsService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStatsService creates a new stats service
func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{db: db, now: time.Now}
}

// Sales computes the sales summary. Revenue is summed as decimals in Go
// rather than in SQL, since amounts are stored as strings.
func (s *StatsService) Sales(ctx context.Context) (*SalesStats, error) {
	db := s.db.WithContext(ctx)
	now := s.now()

	var confirmed []models.PaymentTransaction
	if err := db.Select("amount", "tier", "confirmed_at").
		Where("status = ?", models.TxConfirmed).
		Find(&confirmed).Error; err != nil {
		return nil, storeError("load confirmed payments", err)
	}

	stats := &SalesStats{
		SalesByTier: map[models.Tier]int64{
			models.TierBasic:     0,
			models.TierPremium:   0,
			models.TierExclusive: 0,
		},
	}
	revenue := decimal.Zero
	since := now.AddDate(0, 0, -30)
	for _, p := range confirmed {
		stats.TotalSales++
		revenue = revenue.Add(p.Amount)
		stats.SalesByTier[p.Tier]++
		if p.ConfirmedAt != nil && !p.ConfirmedAt.Before(since) {
			stats.RecentSales++
		}
	}
	stats.TotalRevenue = "$" + revenue.StringFixed(2)

	active, err := database.CountActiveLicenses(db, now)
	if err != nil {
		return nil, storeError("count active licenses", err)
	}
	stats.ActiveLicenses = active
	return stats, nil
}
