package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"upgrade-tracker/internal/model"
)

// SettingsRepository stores one preferences row per user.
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetOrCreate returns the user's settings, creating defaults on first use.
func (r *SettingsRepository) GetOrCreate(ctx context.Context, userID uint) (model.Settings, error) {
	var settings model.Settings
	db := r.db.WithContext(ctx)
	err := db.Where("user_id = ?", userID).First(&settings).Error
	switch {
	case err == nil:
		return settings, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		settings = model.DefaultSettings(userID)
		if err := db.Create(&settings).Error; err != nil {
			return settings, fmt.Errorf("create settings: %w", err)
		}
		return settings, nil
	default:
		return settings, fmt.Errorf("find settings: %w", err)
	}
}

func (r *SettingsRepository) Save(ctx context.Context, settings *model.Settings) error {
	if err := r.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
