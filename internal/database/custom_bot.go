package database

import (
	"guardian-api/internal/models"

	"gorm.io/gorm"
)

// CreateCustomBot inserts a deployment; a second one for the same payment
// yields ErrDuplicate
func CreateCustomBot(db *gorm.DB, bot *models.CustomBot) error {
	return translate(db.Create(bot).Error)
}

// GetCustomBot looks a deployment up by id
func GetCustomBot(db *gorm.DB, deploymentID string) (*models.CustomBot, error) {
	var bot models.CustomBot
	if err := db.Where("deployment_id = ?", deploymentID).First(&bot).Error; err != nil {
		return nil, translate(err)
	}
	return &bot, nil
}

// GetCustomerCustomBot returns the deployment only if it belongs to customerID
func GetCustomerCustomBot(db *gorm.DB, deploymentID string, customerID int64) (*models.CustomBot, error) {
	var bot models.CustomBot
	err := db.Where("deployment_id = ? AND customer_id = ?", deploymentID, customerID).First(&bot).Error
	if err != nil {
		return nil, translate(err)
	}
	return &bot, nil
}

// ListCustomBots returns a customer's deployments, newest first
func ListCustomBots(db *gorm.DB, customerID int64) ([]models.CustomBot, error) {
	var bots []models.CustomBot
	err := db.Where("customer_id = ?", customerID).Order("created_at DESC, id DESC").Find(&bots).Error
	return bots, translate(err)
}

// UpdateCustomBot applies updates unless the deployment is TERMINATED.
// A terminated deployment yields ErrStaleState.
func UpdateCustomBot(db *gorm.DB, deploymentID string, updates map[string]interface{}) error {
	result := db.Model(&models.CustomBot{}).
		Where("deployment_id = ? AND status <> ?", deploymentID, models.CustomBotTerminated).
		Updates(updates)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	if _, err := GetCustomBot(db, deploymentID); err != nil {
		return err
	}
	return ErrStaleState
}
