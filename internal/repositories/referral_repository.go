package repositories

import (
	"context"
	"fmt"

	"sayan/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferralRepository interface {
	// CreateIfAbsent inserts reward unless one already exists for the same
	// referred user and reward type. It reports whether a row was inserted.
	CreateIfAbsent(ctx context.Context, reward *models.ReferralReward) (bool, error)
	GetByID(ctx context.Context, id uint) (*models.ReferralReward, error)
	Transition(ctx context.Context, id uint, from, to models.RewardStatus, updates map[string]interface{}) error
	ListPending(ctx context.Context, limit int) ([]models.ReferralReward, error)
	ListByReferrer(ctx context.Context, referrerID uint) ([]models.ReferralReward, error)
}

type referralRepository struct {
	db *gorm.DB
}

func (r *referralRepository) CreateIfAbsent(ctx context.Context, reward *models.ReferralReward) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "referred_user_id"}, {Name: "reward_type"}},
			DoNothing: true,
		}).
		Create(reward)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create referral reward: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *referralRepository) GetByID(ctx context.Context, id uint) (*models.ReferralReward, error) {
	var reward models.ReferralReward
	if err := r.db.WithContext(ctx).First(&reward, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &reward, nil
}

func (r *referralRepository) Transition(ctx context.Context, id uint, from, to models.RewardStatus, updates map[string]interface{}) error {
	return transition(r.db.WithContext(ctx), &models.ReferralReward{}, id, string(from), string(to), updates)
}

func (r *referralRepository) ListPending(ctx context.Context, limit int) ([]models.ReferralReward, error) {
	var rewards []models.ReferralReward
	err := r.db.WithContext(ctx).
		Where("status = ?", models.RewardPending).
		Order("id").
		Limit(limit).
		Find(&rewards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rewards: %w", err)
	}
	return rewards, nil
}

func (r *referralRepository) ListByReferrer(ctx context.Context, referrerID uint) ([]models.ReferralReward, error) {
	var rewards []models.ReferralReward
	err := r.db.WithContext(ctx).Where("referrer_id = ?", referrerID).Order("id DESC").Find(&rewards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	return rewards, nil
}
