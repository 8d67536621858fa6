package repositories

import (
	"context"
	"fmt"

	"sayan/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingRepository interface {
	All(ctx context.Context) ([]models.PlatformSetting, error)
	// Upsert stores value under key, bumping the row version.
	Upsert(ctx context.Context, key, value string, updatedBy *uint) (*models.PlatformSetting, error)
}

type settingRepository struct {
	db *gorm.DB
}

func (r *settingRepository) All(ctx context.Context) ([]models.PlatformSetting, error) {
	var settings []models.PlatformSetting
	if err := r.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to load platform settings: %w", err)
	}
	return settings, nil
}

func (r *settingRepository) Upsert(ctx context.Context, key, value string, updatedBy *uint) (*models.PlatformSetting, error) {
	setting := &models.PlatformSetting{Key: key, Value: value, Version: 1, UpdatedBy: updatedBy}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"value":      value,
				"updated_by": updatedBy,
				"version":    gorm.Expr("platform_settings.version + 1"),
				"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
			}),
		}).
		Create(setting).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store setting %s: %w", key, err)
	}

	var stored models.PlatformSetting
	if err := r.db.WithContext(ctx).Where(&models.PlatformSetting{Key: key}).First(&stored).Error; err != nil {
		return nil, notFound(err)
	}
	return &stored, nil
}
