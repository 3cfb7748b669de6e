package services

import (
	"context"
	"time"

	"guardian-api/pkg/logging"
)

// Maintenance periodically marks lapsed licenses EXPIRED. Reads already
// treat them as absent, so a missed run only delays the status change.
//
// Expired mutes are left alone: the bot sweeps them per guild and needs
// the returned user ids to lift the mute role.
type Maintenance struct {
	licenses *LicenseService
	interval time.Duration
}

// NewMaintenance creates the background job; interval <= 0 defaults to a minute
func NewMaintenance(licenses *LicenseService, interval time.Duration) *Maintenance {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Maintenance{licenses: licenses, interval: interval}
}

// Run blocks, sweeping every interval until ctx is cancelled
func (m *Maintenance) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	logging.Infof("Maintenance started - interval: %s", m.interval)
	for {
		select {
		case <-ctx.Done():
			logging.Infof("Maintenance stopped")
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns how many licenses expired
func (m *Maintenance) RunOnce(ctx context.Context) int64 {
	expired, err := m.licenses.ExpireStale(ctx)
	if err != nil {
		logging.Errorf("License expiry sweep failed: %v", err)
		return 0
	}
	return expired
}
