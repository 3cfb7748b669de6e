package models

import (
	"time"

	"gorm.io/datatypes"
)

// Warning is a single warning issued to a member
type Warning struct {
	BaseModel
	GuildID     int64  `json:"guild_id" gorm:"not null;index:idx_warning_member"`
	UserID      int64  `json:"user_id" gorm:"not null;index:idx_warning_member"`
	ModeratorID int64  `json:"moderator_id" gorm:"not null"`
	Reason      string `json:"reason" gorm:"type:text"`
}

// MutedUser is the active mute for a member; one row per (guild, user)
type MutedUser struct {
	BaseModel
	GuildID     int64      `json:"guild_id" gorm:"not null;uniqueIndex:idx_mute_member"`
	UserID      int64      `json:"user_id" gorm:"not null;uniqueIndex:idx_mute_member"`
	ModeratorID int64      `json:"moderator_id" gorm:"not null"`
	Reason      string     `json:"reason" gorm:"type:text"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" gorm:"index"` // nil for permanent mute
}

// Moderation action types
const (
	ActionWarn    = "warn"
	ActionMute    = "mute"
	ActionUnmute  = "unmute"
	ActionKick    = "kick"
	ActionBan     = "ban"
	ActionUnban   = "unban"
	ActionTimeout = "timeout"
)

// ModerationAction is an append-only log entry of a moderation command
type ModerationAction struct {
	BaseModel
	GuildID     int64  `json:"guild_id" gorm:"not null;index"`
	ModeratorID int64  `json:"moderator_id" gorm:"not null"`
	TargetID    int64  `json:"target_id" gorm:"not null;index"`
	ActionType  string `json:"action_type" gorm:"not null;size:50"`
	Reason      string `json:"reason,omitempty" gorm:"type:text"`
	Duration    string `json:"duration,omitempty" gorm:"size:50"` // for timed actions
}

// AntiRaidLog records an anti-raid detection and the response taken
type AntiRaidLog struct {
	BaseModel
	GuildID       int64                      `json:"guild_id" gorm:"not null;index"`
	EventType     string                     `json:"event_type" gorm:"not null;size:50"` // join_spike, message_spam, ...
	AffectedUsers datatypes.JSONSlice[int64] `json:"affected_users"`
	ActionTaken   string                     `json:"action_taken" gorm:"size:100"` // lockdown, ban, ...
	Details       datatypes.JSONMap          `json:"details"`
}

// AutoResponse is a trigger/response pair; triggers are unique per guild
type AutoResponse struct {
	BaseModel
	GuildID   int64  `json:"guild_id,string" gorm:"not null;uniqueIndex:idx_auto_response_trigger"`
	Trigger   string `json:"trigger" gorm:"not null;size:255;uniqueIndex:idx_auto_response_trigger"`
	Response  string `json:"response" gorm:"type:text;not null"`
	CreatedBy int64  `json:"created_by,string"`
}
