package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"guardian-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GuildService reads and writes per-server settings
type GuildService struct {
	db *gorm.DB
}

// NewGuildService creates a new guild service
func NewGuildService(db *gorm.DB) *GuildService {
	return &GuildService{db: db}
}

// GuildUpdate lists every setting that can be changed. Nil fields are left
// as they are.
type GuildUpdate struct {
	Name             *string `json:"guild_name"`
	Prefix           *string `json:"prefix"`
	LogChannelID     *string `json:"log_channel_id"` // snowflake; "" clears it
	ModRole          *string `json:"mod_role"`
	AdminRole        *string `json:"admin_role"`
	MuteRole         *string `json:"mute_role"`
	AutomodEnabled   *bool   `json:"automod_enabled"`
	AntiRaidEnabled  *bool   `json:"anti_raid_enabled"`
	JoinThreshold    *int    `json:"join_threshold"`
	MessageThreshold *int    `json:"message_threshold"`
	AutoLockdown     *bool   `json:"auto_lockdown"`
	AutoBanRaiders   *bool   `json:"auto_ban_raiders"`
	Sensitivity      *string `json:"sensitivity"`
}

// columns validates the update and returns the column assignments
func (u GuildUpdate) columns() (map[string]interface{}, error) {
	updates := make(map[string]interface{})

	if u.Name != nil {
		if len(*u.Name) > 100 {
			return nil, fmt.Errorf("%w: guild name is longer than 100 characters", ErrInvalidInput)
		}
		updates["name"] = *u.Name
	}
	if u.Prefix != nil {
		prefix := strings.TrimSpace(*u.Prefix)
		if prefix == "" || len(prefix) > 10 {
			return nil, fmt.Errorf("%w: prefix must be 1-10 characters", ErrInvalidInput)
		}
		updates["prefix"] = prefix
	}
	if u.LogChannelID != nil {
		if *u.LogChannelID == "" {
			updates["log_channel_id"] = nil
		} else {
			id, err := strconv.ParseInt(*u.LogChannelID, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("%w: log_channel_id must be a channel id", ErrInvalidInput)
			}
			updates["log_channel_id"] = id
		}
	}
	for column, role := range map[string]*string{"mod_role": u.ModRole, "admin_role": u.AdminRole, "mute_role": u.MuteRole} {
		if role == nil {
			continue
		}
		if name := strings.TrimSpace(*role); name == "" || len(name) > 100 {
			return nil, fmt.Errorf("%w: %s must be 1-100 characters", ErrInvalidInput, column)
		}
		updates[column] = strings.TrimSpace(*role)
	}
	if u.AutomodEnabled != nil {
		updates["automod_enabled"] = *u.AutomodEnabled
	}
	if u.AntiRaidEnabled != nil {
		updates["anti_raid_enabled"] = *u.AntiRaidEnabled
	}
	if u.JoinThreshold != nil {
		if *u.JoinThreshold < 1 || *u.JoinThreshold > 100 {
			return nil, fmt.Errorf("%w: join_threshold must be between 1 and 100", ErrInvalidInput)
		}
		updates["join_threshold"] = *u.JoinThreshold
	}
	if u.MessageThreshold != nil {
		if *u.MessageThreshold < 1 || *u.MessageThreshold > 500 {
			return nil, fmt.Errorf("%w: message_threshold must be between 1 and 500", ErrInvalidInput)
		}
		updates["message_threshold"] = *u.MessageThreshold
	}
	if u.AutoLockdown != nil {
		updates["auto_lockdown"] = *u.AutoLockdown
	}
	if u.AutoBanRaiders != nil {
		updates["auto_ban_raiders"] = *u.AutoBanRaiders
	}
	if u.Sensitivity != nil {
		level := strings.ToLower(*u.Sensitivity)
		switch level {
		case models.SensitivityLow, models.SensitivityMedium, models.SensitivityHigh:
			updates["sensitivity"] = level
		default:
			return nil, fmt.Errorf("%w: sensitivity must be low, medium or high", ErrInvalidInput)
		}
	}
	return updates, nil
}

// GetOrCreate returns the guild's settings, creating them with defaults on
// first reference
func (s *GuildService) GetOrCreate(ctx context.Context, guildID int64, name string) (*models.Guild, error) {
	if guildID <= 0 {
		return nil, fmt.Errorf("%w: guild id must be positive", ErrInvalidInput)
	}
	db := s.db.WithContext(ctx)

	var guild models.Guild
	err := db.First(&guild, "id = ?", guildID).Error
	if err == nil {
		return &guild, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeError("get guild", err)
	}

	// Two first references may race; the loser's insert is a no-op
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(models.NewGuild(guildID, name)).Error; err != nil {
		return nil, storeError("create guild", err)
	}
	if err := db.First(&guild, "id = ?", guildID).Error; err != nil {
		return nil, storeError("get guild", err)
	}
	return &guild, nil
}

// Update applies a partial settings change and returns the new settings
func (s *GuildService) Update(ctx context.Context, guildID int64, update GuildUpdate) (*models.Guild, error) {
	updates, err := update.columns()
	if err != nil {
		return nil, err
	}

	guild, err := s.GetOrCreate(ctx, guildID, "")
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return guild, nil
	}

	db := s.db.WithContext(ctx)
	if err := db.Model(guild).Updates(updates).Error; err != nil {
		return nil, storeError("update guild", err)
	}
	if err := db.First(guild, "id = ?", guildID).Error; err != nil {
		return nil, storeError("get guild", err)
	}
	return guild, nil
}
