package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountFlat       DiscountType = "flat"
	DiscountPercentage DiscountType = "percentage"
)

type Coupon struct {
	ID           uint                `gorm:"primarykey" json:"id"`
	Code         string              `gorm:"type:varchar(32);not null;uniqueIndex" json:"code"`
	DiscountType DiscountType        `gorm:"type:varchar(16);not null;check:chk_coupons_discount_type,discount_type IN ('flat','percentage')" json:"discount_type"`
	Value        decimal.Decimal     `gorm:"type:numeric(20,2);not null" json:"value"`
	MinAmount    decimal.Decimal     `gorm:"type:numeric(20,2);not null;default:0" json:"min_amount"`
	MaxDiscount  decimal.NullDecimal `gorm:"type:numeric(20,2)" json:"max_discount"`
	UsageLimit   *int                `json:"usage_limit,omitempty"`
	UsedCount    int                 `gorm:"not null;default:0" json:"used_count"`
	StartsAt     *time.Time          `json:"starts_at,omitempty"`
	ExpiresAt    *time.Time          `json:"expires_at,omitempty"`
	IsActive     bool                `gorm:"not null" json:"is_active"`
	OwnerType    OwnerType           `gorm:"type:varchar(16);not null;default:'system'" json:"owner_type"`
	OwnerID      uint                `gorm:"not null;default:0" json:"owner_id"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func (c *Coupon) Owner() Owner {
	return Owner{Type: c.OwnerType, ID: c.OwnerID}
}

// IsReferral reports whether redemptions earn the owning student a reward.
func (c *Coupon) IsReferral() bool {
	return c.OwnerType == OwnerStudent
}

type CouponUsage struct {
	ID             uint            `gorm:"primarykey" json:"id"`
	CouponID       uint            `gorm:"not null;uniqueIndex:idx_coupon_usage_invoice" json:"coupon_id"`
	InvoiceID      uint            `gorm:"not null;uniqueIndex:idx_coupon_usage_invoice" json:"invoice_id"`
	PaymentID      uint            `gorm:"index" json:"payment_id"`
	StudentID      uint            `gorm:"not null;index" json:"student_id"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"discount_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}

type RewardType string

const (
	RewardSignup          RewardType = "signup"
	RewardFirstPurchase   RewardType = "first_purchase"
	RewardCourseCompleted RewardType = "course_completed"
)

type RewardStatus string

const (
	RewardPending RewardStatus = "pending"
	RewardPaid    RewardStatus = "paid"
	RewardExpired RewardStatus = "expired"
)

type ReferralReward struct {
	ID             uint            `gorm:"primarykey" json:"id"`
	ReferrerID     uint            `gorm:"not null;index" json:"referrer_id"`
	ReferredUserID uint            `gorm:"not null;uniqueIndex:idx_referral_once" json:"referred_user_id"`
	RewardType     RewardType      `gorm:"type:varchar(24);not null;uniqueIndex:idx_referral_once" json:"reward_type"`
	CouponID       *uint           `json:"coupon_id,omitempty"`
	PaymentID      *uint           `json:"payment_id,omitempty"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Status         RewardStatus    `gorm:"type:varchar(16);not null;default:'pending';index;check:chk_referral_rewards_status,status IN ('pending','paid','expired')" json:"status"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
