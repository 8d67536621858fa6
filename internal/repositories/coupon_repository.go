package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sayan/internal/models"

	"gorm.io/gorm"
)

type CouponRepository interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetByID(ctx context.Context, id uint) (*models.Coupon, error)
	// IncrementUsage bumps used_count only while it is below usage_limit.
	// It reports false when the limit was already reached.
	IncrementUsage(ctx context.Context, id uint) (bool, error)
	CreateUsage(ctx context.Context, usage *models.CouponUsage) error
	GetUsageByInvoice(ctx context.Context, invoiceID uint) (*models.CouponUsage, error)
	CountUsage(ctx context.Context, couponID uint) (int64, error)
}

type couponRepository struct {
	db *gorm.DB
}

func (r *couponRepository) Create(ctx context.Context, coupon *models.Coupon) error {
	if err := r.db.WithContext(ctx).Create(coupon).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	return nil
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error; err != nil {
		return nil, notFound(err)
	}
	return &coupon, nil
}

func (r *couponRepository) GetByID(ctx context.Context, id uint) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).First(&coupon, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &coupon, nil
}

func (r *couponRepository) IncrementUsage(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", id).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return false, fmt.Errorf("failed to increment coupon usage: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *couponRepository) CreateUsage(ctx context.Context, usage *models.CouponUsage) error {
	if err := r.db.WithContext(ctx).Create(usage).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to record coupon usage: %w", err)
	}
	return nil
}

func (r *couponRepository) GetUsageByInvoice(ctx context.Context, invoiceID uint) (*models.CouponUsage, error) {
	var usage models.CouponUsage
	if err := r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).First(&usage).Error; err != nil {
		return nil, notFound(err)
	}
	return &usage, nil
}

func (r *couponRepository) CountUsage(ctx context.Context, couponID uint) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.CouponUsage{}).Where("coupon_id = ?", couponID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count coupon usage: %w", err)
	}
	return n, nil
}

// isUniqueViolation relies on TranslateError being enabled and falls back to
// the driver message otherwise.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "sqlstate 23505")
}
