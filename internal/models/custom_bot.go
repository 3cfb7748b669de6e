package models

import (
	"time"

	"gorm.io/datatypes"
)

// CustomBot status values
const (
	CustomBotActive     = "ACTIVE"
	CustomBotSuspended  = "SUSPENDED"
	CustomBotTerminated = "TERMINATED"
)

// CustomBot is a private bot deployment bought with a CUSTOM_BOT payment.
// The customer's bot token never reaches this service; it is configured on
// the deployment host during setup.
type CustomBot struct {
	BaseModel
	DeploymentID     string                      `json:"deployment_id" gorm:"not null;size:50;uniqueIndex"`
	CustomerID       int64                       `json:"customer_id,string" gorm:"not null;index"`
	TransactionID    string                      `json:"transaction_id" gorm:"not null;size:255;uniqueIndex"`
	BotName          string                      `json:"bot_name" gorm:"not null;size:100"`
	Status           string                      `json:"status" gorm:"not null;size:20;default:ACTIVE"`
	FeaturesEnabled  datatypes.JSONSlice[string] `json:"features_enabled"`
	DeploymentNotes  string                      `json:"deployment_notes,omitempty" gorm:"type:text"`
	SetupCompleted   bool                        `json:"setup_completed" gorm:"not null;default:false"`
	CustomerNotified bool                        `json:"customer_notified" gorm:"not null;default:false"`
	LastOnline       *time.Time                  `json:"last_online,omitempty"`
}
