package coupon

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	apperrors "sayan/internal/errors"
	"sayan/internal/logger"
	"sayan/internal/models"
	"sayan/internal/repositories"

	"github.com/shopspring/decimal"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{2,31}$`)

var hundred = decimal.NewFromInt(100)

// Purchase is the context a coupon is checked against.
type Purchase struct {
	StudentID uint
	AcademyID uint
	Total     decimal.Decimal
}

type DiscountResult struct {
	Coupon     *models.Coupon  `json:"coupon"`
	Discount   decimal.Decimal `json:"discount"`
	FinalTotal decimal.Decimal `json:"final_total"`
}

// Redemption ties a coupon use to the invoice and payment it paid for.
type Redemption struct {
	Purchase
	InvoiceID uint
	PaymentID uint
}

type CreateInput struct {
	Code         string              `json:"code" validate:"required,min=3,max=32"`
	DiscountType models.DiscountType `json:"discount_type" validate:"required,oneof=flat percentage"`
	Value        decimal.Decimal     `json:"value"`
	MinAmount    decimal.Decimal     `json:"min_amount"`
	MaxDiscount  *decimal.Decimal    `json:"max_discount"`
	UsageLimit   *int                `json:"usage_limit" validate:"omitempty,min=1"`
	StartsAt     *time.Time          `json:"starts_at"`
	ExpiresAt    *time.Time          `json:"expires_at"`
	Inactive     bool                `json:"inactive"`
}

type Service interface {
	Create(ctx context.Context, owner models.Owner, in CreateInput) (*models.Coupon, error)
	Validate(ctx context.Context, code string, p Purchase) (*DiscountResult, error)
	// Redeem records one use of the coupon for an invoice. Calling it again
	// for the same invoice returns the existing usage.
	Redeem(ctx context.Context, code string, r Redemption) (*models.CouponUsage, error)
	RedeemTx(ctx context.Context, tx repositories.Store, code string, r Redemption) (*models.CouponUsage, error)
	GetByID(ctx context.Context, id uint) (*models.Coupon, error)
}

type service struct {
	store  repositories.Store
	logger logger.Logger
	now    func() time.Time
}

func NewService(store repositories.Store, log logger.Logger) Service {
	return &service{
		store:  store,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *service) Create(ctx context.Context, owner models.Owner, in CreateInput) (*models.Coupon, error) {
	if !owner.Valid() {
		return nil, apperrors.ErrInvalidOwner
	}
	code := NormalizeCode(in.Code)
	if !codePattern.MatchString(code) {
		return nil, apperrors.ErrValidation.WithMessage("coupon code must be 3-32 letters, digits, '-' or '_'")
	}
	if !in.Value.IsPositive() || !in.Value.Equal(in.Value.Round(2)) {
		return nil, apperrors.ErrValidation.WithMessage("coupon value must be positive with at most two decimals")
	}
	switch in.DiscountType {
	case models.DiscountFlat:
	case models.DiscountPercentage:
		if in.Value.GreaterThan(hundred) {
			return nil, apperrors.ErrValidation.WithMessage("percentage cannot exceed 100")
		}
	default:
		return nil, apperrors.ErrValidation.WithMessage("unknown discount type %q", in.DiscountType)
	}
	if in.MinAmount.IsNegative() {
		return nil, apperrors.ErrValidation.WithMessage("minimum amount cannot be negative")
	}
	if in.MaxDiscount != nil && !in.MaxDiscount.IsPositive() {
		return nil, apperrors.ErrValidation.WithMessage("max discount must be positive")
	}
	if in.UsageLimit != nil && *in.UsageLimit < 1 {
		return nil, apperrors.ErrValidation.WithMessage("usage limit must be at least 1")
	}
	if in.StartsAt != nil && in.ExpiresAt != nil && !in.ExpiresAt.After(*in.StartsAt) {
		return nil, apperrors.ErrValidation.WithMessage("coupon must expire after it starts")
	}

	c := &models.Coupon{
		Code:         code,
		DiscountType: in.DiscountType,
		Value:        in.Value,
		MinAmount:    in.MinAmount,
		UsageLimit:   in.UsageLimit,
		StartsAt:     in.StartsAt,
		ExpiresAt:    in.ExpiresAt,
		IsActive:     !in.Inactive,
		OwnerType:    owner.Type,
		OwnerID:      owner.ID,
	}
	if in.MaxDiscount != nil {
		c.MaxDiscount = decimal.NewNullDecimal(*in.MaxDiscount)
	}

	if err := s.store.Coupons().Create(ctx, c); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperrors.ErrCouponCodeTaken
		}
		return nil, err
	}
	s.logger.Info("coupon", "coupon created", map[string]interface{}{
		"coupon_id": c.ID,
		"code":      c.Code,
		"owner":     owner.String(),
	})
	return c, nil
}

func (s *service) GetByID(ctx context.Context, id uint) (*models.Coupon, error) {
	c, err := s.store.Coupons().GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.ErrCouponNotFound
	}
	return c, err
}

func (s *service) Validate(ctx context.Context, code string, p Purchase) (*DiscountResult, error) {
	c, err := s.lookup(ctx, s.store, code)
	if err != nil {
		return nil, err
	}
	if err := s.check(c, p); err != nil {
		return nil, err
	}
	// used_count is what redemption guards on; the usage rows are the
	// record. A quote refuses if either says the coupon is spent.
	if c.UsageLimit != nil {
		used, err := s.store.Coupons().CountUsage(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if used >= int64(*c.UsageLimit) {
			return nil, apperrors.ErrCouponUsageLimitReached
		}
	}
	discount := Discount(c, p.Total)
	return &DiscountResult{Coupon: c, Discount: discount, FinalTotal: p.Total.Sub(discount)}, nil
}

func (s *service) Redeem(ctx context.Context, code string, r Redemption) (*models.CouponUsage, error) {
	var usage *models.CouponUsage
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		var err error
		usage, err = s.RedeemTx(ctx, tx, code, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return usage, nil
}

func (s *service) RedeemTx(ctx context.Context, tx repositories.Store, code string, r Redemption) (*models.CouponUsage, error) {
	c, err := s.lookup(ctx, tx, code)
	if err != nil {
		return nil, err
	}

	existing, err := tx.Coupons().GetUsageByInvoice(ctx, r.InvoiceID)
	switch {
	case err == nil && existing.CouponID == c.ID:
		return existing, nil
	case err == nil:
		return nil, apperrors.ErrCouponNotApplicable.WithMessage("invoice %d already uses another coupon", r.InvoiceID)
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, err
	}

	if err := s.check(c, r.Purchase); err != nil {
		return nil, err
	}

	// The conditional increment is what makes concurrent redemptions safe:
	// at most usage_limit callers can move used_count.
	ok, err := tx.Coupons().IncrementUsage(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrCouponUsageLimitReached
	}

	usage := &models.CouponUsage{
		CouponID:       c.ID,
		InvoiceID:      r.InvoiceID,
		PaymentID:      r.PaymentID,
		StudentID:      r.StudentID,
		DiscountAmount: Discount(c, r.Total),
	}
	if err := tx.Coupons().CreateUsage(ctx, usage); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperrors.ErrConflict.WithMessage("coupon already redeemed for invoice %d", r.InvoiceID)
		}
		return nil, err
	}

	s.logger.Info("coupon", "coupon redeemed", map[string]interface{}{
		"coupon_id":  c.ID,
		"invoice_id": r.InvoiceID,
		"student_id": r.StudentID,
		"discount":   usage.DiscountAmount.StringFixed(2),
	})
	return usage, nil
}

func (s *service) lookup(ctx context.Context, store repositories.Store, code string) (*models.Coupon, error) {
	c, err := store.Coupons().GetByCode(ctx, NormalizeCode(code))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// check applies every rule except the atomic usage increment.
func (s *service) check(c *models.Coupon, p Purchase) error {
	now := s.now()
	if !c.IsActive {
		return apperrors.ErrCouponInactive
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return apperrors.ErrCouponNotStarted
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return apperrors.ErrCouponExpired
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return apperrors.ErrCouponUsageLimitReached
	}
	if p.Total.LessThan(c.MinAmount) {
		return apperrors.ErrCouponMinAmountNotMet.WithMessage("minimum purchase is %s", c.MinAmount.StringFixed(2))
	}

	switch c.OwnerType {
	case models.OwnerStudent:
		if c.OwnerID == p.StudentID {
			return apperrors.ErrCouponNotApplicable.WithMessage("referral coupons cannot be used by their owner")
		}
	case models.OwnerAcademy:
		if c.OwnerID != p.AcademyID {
			return apperrors.ErrCouponNotApplicable
		}
	}
	return nil
}

// Discount computes the reduction for total. Flat discounts are capped at
// the total; percentages are rounded to cents and capped at max_discount.
func Discount(c *models.Coupon, total decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.DiscountType {
	case models.DiscountFlat:
		d = c.Value
	case models.DiscountPercentage:
		d = total.Mul(c.Value).Div(hundred).Round(2)
		if c.MaxDiscount.Valid && d.GreaterThan(c.MaxDiscount.Decimal) {
			d = c.MaxDiscount.Decimal
		}
	}
	if d.GreaterThan(total) {
		d = total
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
