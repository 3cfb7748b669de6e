package database

import (
	"time"

	"guardian-api/internal/models"

	"gorm.io/gorm"
)

// KeyCodeExists reports whether code is already taken by a key or a license
func KeyCodeExists(db *gorm.DB, code string) (bool, error) {
	var count int64
	if err := db.Model(&models.LicenseKey{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return false, translate(err)
	}
	if count > 0 {
		return true, nil
	}
	if err := db.Model(&models.License{}).Where("license_key = ?", code).Count(&count).Error; err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

// CreateLicenseKey inserts a new key; a taken code yields ErrDuplicate
func CreateLicenseKey(db *gorm.DB, key *models.LicenseKey) error {
	return translate(db.Create(key).Error)
}

// GetLicenseKey looks a key up by code
func GetLicenseKey(db *gorm.DB, code string) (*models.LicenseKey, error) {
	var key models.LicenseKey
	if err := db.Where("code = ?", code).First(&key).Error; err != nil {
		return nil, translate(err)
	}
	return &key, nil
}

// MarkKeySold flips an AVAILABLE key to SOLD. Exactly one caller can win:
// the update is conditional on the current status, and a loser gets
// ErrStaleState (or ErrNotFound when the code does not exist).
func MarkKeySold(db *gorm.DB, code string, userID int64, at time.Time) error {
	result := db.Model(&models.LicenseKey{}).
		Where("code = ? AND status = ?", code, models.KeyAvailable).
		Updates(map[string]interface{}{
			"status":  models.KeySold,
			"sold_to": userID,
			"sold_at": at,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	if _, err := GetLicenseKey(db, code); err != nil {
		return err
	}
	return ErrStaleState
}

// ListLicenseKeys returns keys newest first, filtered by status when given
func ListLicenseKeys(db *gorm.DB, status string, limit int) ([]models.LicenseKey, error) {
	var keys []models.LicenseKey
	query := db.Order("created_at DESC, id DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&keys).Error
	return keys, translate(err)
}
