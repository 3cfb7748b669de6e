package services

import (
	"context"
	"fmt"
	"strings"

	"guardian-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoResponseService stores per-guild trigger/response pairs
type AutoResponseService struct {
	db *gorm.DB
}

// NewAutoResponseService creates a new auto response service
func NewAutoResponseService(db *gorm.DB) *AutoResponseService {
	return &AutoResponseService{db: db}
}

// Triggers are matched case-insensitively, so they are stored lower-cased
func normalizeTrigger(trigger string) string {
	return strings.ToLower(strings.TrimSpace(trigger))
}

// Set creates or replaces the response for a trigger
func (s *AutoResponseService) Set(ctx context.Context, guildID int64, trigger, response string, createdBy int64) (*models.AutoResponse, error) {
	trigger = normalizeTrigger(trigger)
	response = strings.TrimSpace(response)
	if trigger == "" || response == "" {
		return nil, fmt.Errorf("%w: trigger and response are required", ErrInvalidInput)
	}
	if len(trigger) > 255 {
		return nil, fmt.Errorf("%w: trigger is longer than 255 characters", ErrInvalidInput)
	}

	ar := &models.AutoResponse{
		GuildID:   guildID,
		Trigger:   trigger,
		Response:  response,
		CreatedBy: createdBy,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "trigger"}},
		DoUpdates: clause.AssignmentColumns([]string{"response", "created_by", "updated_at"}),
	}).Create(ar).Error
	if err != nil {
		return nil, storeError("set auto response", err)
	}
	return ar, nil
}

// Remove deletes a trigger; a missing trigger yields ErrNotFound
func (s *AutoResponseService) Remove(ctx context.Context, guildID int64, trigger string) error {
	result := s.db.WithContext(ctx).
		Where(&models.AutoResponse{GuildID: guildID, Trigger: normalizeTrigger(trigger)}).
		Delete(&models.AutoResponse{})
	if result.Error != nil {
		return storeError("remove auto response", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("auto response %q: %w", trigger, ErrNotFound)
	}
	return nil
}

// List returns a guild's auto responses ordered by trigger
func (s *AutoResponseService) List(ctx context.Context, guildID int64) ([]models.AutoResponse, error) {
	var responses []models.AutoResponse
	err := s.db.WithContext(ctx).
		Where(&models.AutoResponse{GuildID: guildID}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "trigger"}}).
		Find(&responses).Error
	if err != nil {
		return nil, storeError("list auto responses", err)
	}
	return responses, nil
}
