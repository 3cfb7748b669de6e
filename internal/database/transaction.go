package database

import (
	"time"

	"guardian-api/internal/models"

	"gorm.io/gorm"
)

// CreateTransaction records a payment attempt; a reused transaction id
// yields ErrDuplicate
func CreateTransaction(db *gorm.DB, tx *models.PaymentTransaction) error {
	return translate(db.Create(tx).Error)
}

// GetTransaction looks a payment up by its external transaction id
func GetTransaction(db *gorm.DB, transactionID string) (*models.PaymentTransaction, error) {
	var payment models.PaymentTransaction
	if err := db.Where("transaction_id = ?", transactionID).First(&payment).Error; err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

// MarkTransactionConfirmed moves a PENDING payment to CONFIRMED and records
// the issued key. Anything not PENDING is left alone and yields ErrStaleState.
func MarkTransactionConfirmed(db *gorm.DB, transactionID, licenseKey string, at time.Time) error {
	return settle(db, transactionID, map[string]interface{}{
		"status":       models.TxConfirmed,
		"license_key":  licenseKey,
		"confirmed_at": at,
	})
}

// MarkTransactionFailed moves a PENDING payment to FAILED
func MarkTransactionFailed(db *gorm.DB, transactionID, reason string) error {
	return settle(db, transactionID, map[string]interface{}{
		"status":         models.TxFailed,
		"failure_reason": reason,
	})
}

func settle(db *gorm.DB, transactionID string, updates map[string]interface{}) error {
	result := db.Model(&models.PaymentTransaction{}).
		Where("transaction_id = ? AND status = ?", transactionID, models.TxPending).
		Updates(updates)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	if _, err := GetTransaction(db, transactionID); err != nil {
		return err
	}
	return ErrStaleState
}

// ListUserTransactions returns a user's payments, newest first
func ListUserTransactions(db *gorm.DB, userID int64) ([]models.PaymentTransaction, error) {
	var payments []models.PaymentTransaction
	err := db.Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&payments).Error
	return payments, translate(err)
}
