package models

import "time"

// Anti-raid sensitivity levels
const (
	SensitivityLow    = "low"
	SensitivityMedium = "medium"
	SensitivityHigh   = "high"
)

// Guild holds per-server settings. Rows are created lazily on first reference.
// Snowflakes are encoded as JSON strings for the browser dashboard.
type Guild struct {
	ID        int64     `json:"guild_id,string" gorm:"primaryKey;autoIncrement:false"` // Discord guild ID
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Name         string `json:"guild_name" gorm:"size:100"`
	Prefix       string `json:"prefix" gorm:"size:10;not null"`
	LogChannelID *int64 `json:"log_channel_id,string,omitempty"`
	ModRole      string `json:"mod_role" gorm:"size:100"`
	AdminRole    string `json:"admin_role" gorm:"size:100"`
	MuteRole     string `json:"mute_role" gorm:"size:100"`

	AutomodEnabled  bool `json:"automod_enabled"`
	AntiRaidEnabled bool `json:"anti_raid_enabled"`

	// Anti-raid thresholds
	JoinThreshold    int    `json:"join_threshold"`
	MessageThreshold int    `json:"message_threshold"`
	AutoLockdown     bool   `json:"auto_lockdown"`
	AutoBanRaiders   bool   `json:"auto_ban_raiders"`
	Sensitivity      string `json:"sensitivity" gorm:"size:10"`
}

// NewGuild returns a guild with the documented defaults
func NewGuild(id int64, name string) *Guild {
	return &Guild{
		ID:               id,
		Name:             name,
		Prefix:           ".",
		ModRole:          "Moderator",
		AdminRole:        "Administrator",
		MuteRole:         "Muted",
		AutomodEnabled:   true,
		AntiRaidEnabled:  false,
		JoinThreshold:    5,
		MessageThreshold: 15,
		Sensitivity:      SensitivityMedium,
	}
}
