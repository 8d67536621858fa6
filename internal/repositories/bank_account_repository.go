package repositories

import (
	"context"
	"fmt"

	"sayan/internal/models"

	"gorm.io/gorm"
)

type BankAccountRepository interface {
	Create(ctx context.Context, account *models.BankAccount) error
	GetByID(ctx context.Context, id uint) (*models.BankAccount, error)
	ListByOwner(ctx context.Context, owner models.Owner) ([]models.BankAccount, error)
	ClearDefault(ctx context.Context, owner models.Owner) error
	SetActive(ctx context.Context, id uint, active bool) error
}

type bankAccountRepository struct {
	db *gorm.DB
}

func (r *bankAccountRepository) Create(ctx context.Context, account *models.BankAccount) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("failed to create bank account: %w", err)
	}
	return nil
}

func (r *bankAccountRepository) GetByID(ctx context.Context, id uint) (*models.BankAccount, error) {
	var account models.BankAccount
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (r *bankAccountRepository) ListByOwner(ctx context.Context, owner models.Owner) ([]models.BankAccount, error) {
	var accounts []models.BankAccount
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", owner.Type, owner.ID).
		Order("is_default DESC").Order("id").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bank accounts: %w", err)
	}
	return accounts, nil
}

func (r *bankAccountRepository) ClearDefault(ctx context.Context, owner models.Owner) error {
	err := r.db.WithContext(ctx).Model(&models.BankAccount{}).
		Where("owner_type = ? AND owner_id = ? AND is_default = ?", owner.Type, owner.ID, true).
		Update("is_default", false).Error
	if err != nil {
		return fmt.Errorf("failed to clear default bank account: %w", err)
	}
	return nil
}

func (r *bankAccountRepository) SetActive(ctx context.Context, id uint, active bool) error {
	updates := map[string]interface{}{"is_active": active}
	if !active {
		updates["is_default"] = false
	}
	res := r.db.WithContext(ctx).Model(&models.BankAccount{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update bank account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
