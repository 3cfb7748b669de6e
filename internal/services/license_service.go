package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guardian-api/internal/database"
	"guardian-api/internal/licensing"
	"guardian-api/internal/models"
	"guardian-api/pkg/logging"

	"gorm.io/gorm"
)

// LicenseService answers entitlement questions and manages license status
type LicenseService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLicenseService creates a new license service
func NewLicenseService(db *gorm.DB) *LicenseService {
	return &LicenseService{db: db, now: time.Now}
}

// AccessDecision is the answer to "may this user use this tier"
type AccessDecision struct {
	UserID        int64               `json:"user_id"`
	RequiredTier  models.Tier         `json:"required_tier"`
	EffectiveTier string              `json:"effective_tier"`
	Allowed       bool                `json:"allowed"`
	Features      []licensing.Feature `json:"features"`
}

// GetUserLicense returns the stored license, expired or not.
// A user without a license gets ErrNotFound.
func (s *LicenseService) GetUserLicense(ctx context.Context, userID int64) (*models.License, error) {
	license, err := database.GetLicenseByUser(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, storeError("get license", err)
	}
	return license, nil
}

// EffectiveTier returns the tier the user can use right now.
// Missing, suspended and expired licenses all yield TierNone.
func (s *LicenseService) EffectiveTier(ctx context.Context, userID int64) (models.Tier, error) {
	license, err := s.GetUserLicense(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return models.TierNone, nil
	}
	if err != nil {
		return models.TierNone, err
	}
	return licensing.EffectiveTier(license, s.now()), nil
}

// CheckAccess decides whether userID holds at least the required tier
func (s *LicenseService) CheckAccess(ctx context.Context, userID int64, required models.Tier) (*AccessDecision, error) {
	if !required.Valid() {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, required)
	}

	license, err := s.GetUserLicense(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now()
	tier := licensing.EffectiveTier(license, now)
	return &AccessDecision{
		UserID:        userID,
		RequiredTier:  required,
		EffectiveTier: licensing.TierLabel(tier),
		Allowed:       licensing.HasAccess(license, required, now),
		Features:      licensing.Features(tier),
	}, nil
}

// RecordUsage counts one command against the user's license
func (s *LicenseService) RecordUsage(ctx context.Context, userID int64) error {
	if err := database.IncrementLicenseUsage(s.db.WithContext(ctx), userID, s.now()); err != nil {
		return storeError("record license usage", err)
	}
	return nil
}

// Suspend moves an ACTIVE license to SUSPENDED
func (s *LicenseService) Suspend(ctx context.Context, userID int64) error {
	if err := database.SetLicenseStatus(s.db.WithContext(ctx), userID, models.LicenseActive, models.LicenseSuspended); err != nil {
		return storeError("suspend license", err)
	}
	logging.Infof("License suspended - user: %d", userID)
	return nil
}

// Reactivate moves a SUSPENDED license back to ACTIVE
func (s *LicenseService) Reactivate(ctx context.Context, userID int64) error {
	if err := database.SetLicenseStatus(s.db.WithContext(ctx), userID, models.LicenseSuspended, models.LicenseActive); err != nil {
		return storeError("reactivate license", err)
	}
	logging.Infof("License reactivated - user: %d", userID)
	return nil
}

// ExpireStale marks every ACTIVE license past its expiry as EXPIRED.
// Reads already treat such licenses as absent; this keeps the status
// column honest for reporting.
func (s *LicenseService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := database.ExpireLicenses(s.db.WithContext(ctx), s.now())
	if err != nil {
		return 0, storeError("expire licenses", err)
	}
	if n > 0 {
		logging.Infof("Expired %d licenses", n)
	}
	return n, nil
}
