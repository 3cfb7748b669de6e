// Package licensing decides feature access from a user's license.
// Everything here is side-effect free and safe for concurrent use.
package licensing

import (
	"time"

	"guardian-api/internal/models"
)

// Usable reports whether the license currently grants anything:
// it exists, is ACTIVE and has not passed its expiry.
func Usable(l *models.License, now time.Time) bool {
	if l == nil {
		return false
	}
	if l.Status != models.LicenseActive {
		return false
	}
	if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
		return false
	}
	return true
}

// HasAccess reports whether the license grants at least the required tier
func HasAccess(l *models.License, required models.Tier, now time.Time) bool {
	if !Usable(l, now) {
		return false
	}
	return l.Tier.Rank() >= required.Rank() && l.Tier.Rank() > 0
}

// EffectiveTier returns the tier a license grants right now, or TierNone
func EffectiveTier(l *models.License, now time.Time) models.Tier {
	if !Usable(l, now) {
		return models.TierNone
	}
	return l.Tier
}
