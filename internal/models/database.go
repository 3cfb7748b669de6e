package models

import (
	"time"
)

// BaseModel provides common fields for all database models
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// All returns every model that is persisted, in migration order
func All() []interface{} {
	return []interface{}{
		&Guild{},
		&Warning{},
		&MutedUser{},
		&ModerationAction{},
		&AntiRaidLog{},
		&AutoResponse{},
		&License{},
		&LicenseKey{},
		&PaymentTransaction{},
		&SupportTicket{},
		&TicketMessage{},
		&CustomBot{},
	}
}
