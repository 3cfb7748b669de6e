package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guardian-api/internal/metrics"
	"guardian-api/internal/models"
	"guardian-api/pkg/logging"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModerationService is the audit log for warnings, mutes, moderation
// actions and anti-raid events
type ModerationService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewModerationService creates a new moderation service
func NewModerationService(db *gorm.DB) *ModerationService {
	return &ModerationService{db: db, now: time.Now}
}

// AddWarning records a warning and returns the member's new warning count
func (s *ModerationService) AddWarning(ctx context.Context, guildID, userID, moderatorID int64, reason string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Warning{
			GuildID:     guildID,
			UserID:      userID,
			ModeratorID: moderatorID,
			Reason:      reason,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Warning{}).
			Where("guild_id = ? AND user_id = ?", guildID, userID).
			Count(&total).Error
	})
	if err != nil {
		return 0, storeError("add warning", err)
	}
	return total, nil
}

// GetWarnings returns a member's warnings, newest first
func (s *ModerationService) GetWarnings(ctx context.Context, guildID, userID int64) ([]models.Warning, error) {
	var warnings []models.Warning
	err := s.db.WithContext(ctx).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		Order("created_at DESC, id DESC").
		Find(&warnings).Error
	if err != nil {
		return nil, storeError("get warnings", err)
	}
	return warnings, nil
}

// ClearWarnings deletes all of a member's warnings and returns how many
// were removed
func (s *ModerationService) ClearWarnings(ctx context.Context, guildID, userID int64) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		Delete(&models.Warning{})
	if result.Error != nil {
		return 0, storeError("clear warnings", result.Error)
	}
	return result.RowsAffected, nil
}

// AddMute mutes a member, replacing any existing mute. A nil duration
// mutes permanently.
func (s *ModerationService) AddMute(ctx context.Context, guildID, userID, moderatorID int64, reason string, duration *time.Duration) (*models.MutedUser, error) {
	if duration != nil && *duration <= 0 {
		return nil, fmt.Errorf("%w: mute duration must be positive", ErrInvalidInput)
	}

	now := s.now()
	mute := &models.MutedUser{
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: moderatorID,
		Reason:      reason,
	}
	if duration != nil {
		expires := now.Add(*duration)
		mute.ExpiresAt = &expires
	}

	// One statement, so concurrent mutes of the same member never leave two rows
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"moderator_id", "reason", "expires_at", "created_at", "updated_at"}),
	}).Create(mute).Error
	if err != nil {
		return nil, storeError("add mute", err)
	}
	return mute, nil
}

// RemoveMute unmutes a member. It reports whether a mute existed.
func (s *ModerationService) RemoveMute(ctx context.Context, guildID, userID int64) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		Delete(&models.MutedUser{})
	if result.Error != nil {
		return false, storeError("remove mute", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// IsMuted reports whether a member is muted. An expired mute is deleted
// and reported as not muted; if a concurrent caller already deleted it the
// answer is the same.
func (s *ModerationService) IsMuted(ctx context.Context, guildID, userID int64) (bool, error) {
	db := s.db.WithContext(ctx)

	var mute models.MutedUser
	result := db.Where("guild_id = ? AND user_id = ?", guildID, userID).Limit(1).Find(&mute)
	if result.Error != nil {
		return false, storeError("get mute", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	now := s.now()
	if mute.ExpiresAt == nil || now.Before(*mute.ExpiresAt) {
		return true, nil
	}

	// Conditional on expiry so a fresh mute written meanwhile survives
	deleted := db.Where("id = ? AND expires_at IS NOT NULL AND expires_at <= ?", mute.ID, now).Delete(&models.MutedUser{})
	if deleted.Error != nil {
		return false, storeError("expire mute", deleted.Error)
	}
	if deleted.RowsAffected > 0 {
		metrics.MutesExpired.Inc()
	}
	return false, nil
}

// GetExpiredMutes deletes every expired mute in the guild and returns the
// affected user ids. Each row is deleted conditionally, so a user is
// reported by exactly one of several concurrent sweeps.
func (s *ModerationService) GetExpiredMutes(ctx context.Context, guildID int64) ([]int64, error) {
	db := s.db.WithContext(ctx)
	now := s.now()

	var expired []models.MutedUser
	err := db.Where("guild_id = ? AND expires_at IS NOT NULL AND expires_at <= ?", guildID, now).
		Find(&expired).Error
	if err != nil {
		return nil, storeError("find expired mutes", err)
	}

	userIDs := make([]int64, 0, len(expired))
	for _, m := range expired {
		result := db.Where("id = ? AND expires_at IS NOT NULL AND expires_at <= ?", m.ID, now).Delete(&models.MutedUser{})
		if result.Error != nil {
			return userIDs, storeError("delete expired mute", result.Error)
		}
		if result.RowsAffected == 1 {
			userIDs = append(userIDs, m.UserID)
		}
	}

	if n := len(userIDs); n > 0 {
		metrics.MutesExpired.Add(float64(n))
		logging.Infof("Unmute sweep - guild: %d, expired: %d", guildID, n)
	}
	return userIDs, nil
}

var actionTypes = map[string]bool{
	models.ActionWarn: true, models.ActionMute: true, models.ActionUnmute: true,
	models.ActionKick: true, models.ActionBan: true, models.ActionUnban: true,
	models.ActionTimeout: true,
}

// LogAction appends a moderation action to the audit log
func (s *ModerationService) LogAction(ctx context.Context, action *models.ModerationAction) error {
	action.ActionType = strings.ToLower(strings.TrimSpace(action.ActionType))
	if !actionTypes[action.ActionType] {
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidInput, action.ActionType)
	}
	action.ID = 0
	if err := s.db.WithContext(ctx).Create(action).Error; err != nil {
		return storeError("log moderation action", err)
	}
	return nil
}

// ListActions returns a guild's moderation actions, newest first.
// A non-zero targetID narrows the list to one member.
func (s *ModerationService) ListActions(ctx context.Context, guildID, targetID int64, limit int) ([]models.ModerationAction, error) {
	query := s.db.WithContext(ctx).Where("guild_id = ?", guildID)
	if targetID != 0 {
		query = query.Where("target_id = ?", targetID)
	}
	var actions []models.ModerationAction
	if err := query.Order("created_at DESC, id DESC").Limit(clampLimit(limit)).Find(&actions).Error; err != nil {
		return nil, storeError("list moderation actions", err)
	}
	return actions, nil
}

// LogAntiRaidEvent records an anti-raid detection
func (s *ModerationService) LogAntiRaidEvent(ctx context.Context, guildID int64, eventType string, affected []int64, actionTaken string, details map[string]interface{}) (*models.AntiRaidLog, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, fmt.Errorf("%w: event type is required", ErrInvalidInput)
	}
	if affected == nil {
		affected = []int64{}
	}
	if details == nil {
		details = map[string]interface{}{}
	}

	entry := &models.AntiRaidLog{
		GuildID:       guildID,
		EventType:     eventType,
		AffectedUsers: datatypes.JSONSlice[int64](affected),
		ActionTaken:   actionTaken,
		Details:       datatypes.JSONMap(details),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, storeError("log anti-raid event", err)
	}
	return entry, nil
}

// ListAntiRaidEvents returns a guild's anti-raid events, newest first
func (s *ModerationService) ListAntiRaidEvents(ctx context.Context, guildID int64, limit int) ([]models.AntiRaidLog, error) {
	var events []models.AntiRaidLog
	err := s.db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("created_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&events).Error
	if err != nil {
		return nil, storeError("list anti-raid events", err)
	}
	return events, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}
