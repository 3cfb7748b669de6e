package database

import (
	"time"

	"guardian-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetLicenseByUser returns the user's license, ErrNotFound if there is none
func GetLicenseByUser(db *gorm.DB, userID int64) (*models.License, error) {
	var license models.License
	if err := db.Where("user_id = ?", userID).First(&license).Error; err != nil {
		return nil, translate(err)
	}
	return &license, nil
}

// UpsertLicense inserts the license or replaces the user's existing one.
// The row id and creation time of an existing license are kept.
func UpsertLicense(db *gorm.DB, license *models.License) error {
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"license_key", "tier", "period", "status", "expires_at",
			"payment_method", "payment_reference", "amount_paid",
			"commands_used", "last_used_at", "updated_at",
		}),
	}).Create(license).Error
	return translate(err)
}

// IncrementLicenseUsage bumps the command counter and stamps last use
func IncrementLicenseUsage(db *gorm.DB, userID int64, at time.Time) error {
	result := db.Model(&models.License{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"commands_used": gorm.Expr("commands_used + 1"),
			"last_used_at":  at,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLicenseStatus moves the user's license from one status to another.
// It fails with ErrStaleState if the license is not currently in from.
func SetLicenseStatus(db *gorm.DB, userID int64, from, to string) error {
	result := db.Model(&models.License{}).
		Where("user_id = ? AND status = ?", userID, from).
		Update("status", to)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	if _, err := GetLicenseByUser(db, userID); err != nil {
		return err
	}
	return ErrStaleState
}

// ExpireLicenses marks every ACTIVE license past its expiry as EXPIRED
func ExpireLicenses(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Model(&models.License{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.LicenseActive, now).
		Update("status", models.LicenseExpired)
	return result.RowsAffected, translate(result.Error)
}

// CountActiveLicenses counts licenses that are ACTIVE and not past expiry
func CountActiveLicenses(db *gorm.DB, now time.Time) (int64, error) {
	var count int64
	err := db.Model(&models.License{}).
		Where("status = ? AND (expires_at IS NULL OR expires_at > ?)", models.LicenseActive, now).
		Count(&count).Error
	return count, translate(err)
}
