package coupon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "sayan/internal/errors"
	"sayan/internal/logger"
	"sayan/internal/models"
	"sayan/internal/repositories/dbtest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(i int) *int { return &i }

func newTestService(t *testing.T) Service {
	t.Helper()
	return NewService(dbtest.NewStore(t), logger.NewNop())
}

func TestDiscount(t *testing.T) {
	max10 := decimal.NewNullDecimal(dec("10"))
	tests := []struct {
		name   string
		coupon models.Coupon
		total  string
		want   string
	}{
		{"flat", models.Coupon{DiscountType: models.DiscountFlat, Value: dec("15")}, "100", "15"},
		{"flat capped at total", models.Coupon{DiscountType: models.DiscountFlat, Value: dec("150")}, "100", "100"},
		{"percentage", models.Coupon{DiscountType: models.DiscountPercentage, Value: dec("20")}, "100", "20"},
		{"percentage capped", models.Coupon{DiscountType: models.DiscountPercentage, Value: dec("20"), MaxDiscount: max10}, "100", "10"},
		{"percentage rounds to cents", models.Coupon{DiscountType: models.DiscountPercentage, Value: dec("15")}, "33.33", "5"},
		{"full percentage", models.Coupon{DiscountType: models.DiscountPercentage, Value: dec("100")}, "49.99", "49.99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Discount(&tt.coupon, dec(tt.total))
			assert.True(t, dec(tt.want).Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestCoupon_CreateNormalizesAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	c, err := svc.Create(ctx, models.SystemOwner(), CreateInput{Code: " save10 ", DiscountType: models.DiscountFlat, Value: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.Code)
	assert.True(t, c.IsActive)

	_, err = svc.Create(ctx, models.SystemOwner(), CreateInput{Code: "SAVE10", DiscountType: models.DiscountFlat, Value: dec("5")})
	assert.ErrorIs(t, err, apperrors.ErrCouponCodeTaken)

	_, err = svc.Create(ctx, models.SystemOwner(), CreateInput{Code: "BIG", DiscountType: models.DiscountPercentage, Value: dec("120")})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestCoupon_ValidateRules(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	system := models.SystemOwner()

	create := func(in CreateInput, owner models.Owner) {
		_, err := svc.Create(ctx, owner, in)
		require.NoError(t, err)
	}
	create(CreateInput{Code: "OFF", DiscountType: models.DiscountFlat, Value: dec("10"), Inactive: true}, system)
	create(CreateInput{Code: "LATER", DiscountType: models.DiscountFlat, Value: dec("10"), StartsAt: &future}, system)
	create(CreateInput{Code: "GONE", DiscountType: models.DiscountFlat, Value: dec("10"), ExpiresAt: &past}, system)
	create(CreateInput{Code: "MIN50", DiscountType: models.DiscountFlat, Value: dec("10"), MinAmount: dec("50")}, system)
	create(CreateInput{Code: "REF7", DiscountType: models.DiscountPercentage, Value: dec("10")}, models.StudentOwner(7))
	create(CreateInput{Code: "ACAD2", DiscountType: models.DiscountFlat, Value: dec("10")}, models.AcademyOwner(2))

	purchase := Purchase{StudentID: 7, AcademyID: 1, Total: dec("40")}
	tests := []struct {
		code string
		want error
	}{
		{"missing", apperrors.ErrCouponNotFound},
		{"off", apperrors.ErrCouponInactive},
		{"LATER", apperrors.ErrCouponNotStarted},
		{"GONE", apperrors.ErrCouponExpired},
		{"MIN50", apperrors.ErrCouponMinAmountNotMet},
		{"REF7", apperrors.ErrCouponNotApplicable},
		{"ACAD2", apperrors.ErrCouponNotApplicable},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			_, err := svc.Validate(ctx, tt.code, purchase)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	res, err := svc.Validate(ctx, "ref7", Purchase{StudentID: 8, AcademyID: 1, Total: dec("40")})
	require.NoError(t, err)
	assert.True(t, dec("4").Equal(res.Discount))
	assert.True(t, dec("36").Equal(res.FinalTotal))
}

func TestCoupon_ValidateCountsUsageRows(t *testing.T) {
	ctx := context.Background()
	store := dbtest.NewStore(t)
	svc := NewService(store, logger.NewNop())

	c, err := svc.Create(ctx, models.SystemOwner(), CreateInput{Code: "ONCE", DiscountType: models.DiscountFlat, Value: dec("5"), UsageLimit: intPtr(1)})
	require.NoError(t, err)

	// A usage row written without moving used_count.
	require.NoError(t, store.Coupons().CreateUsage(ctx, &models.CouponUsage{
		CouponID: c.ID, InvoiceID: 40, StudentID: 4, DiscountAmount: dec("5"),
	}))
	stored, err := store.Coupons().GetByCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Zero(t, stored.UsedCount)

	_, err = svc.Validate(ctx, "once", Purchase{StudentID: 5, Total: dec("50")})
	assert.ErrorIs(t, err, apperrors.ErrCouponUsageLimitReached)
}

func TestCoupon_RedeemIsIdempotentPerInvoice(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	c, err := svc.Create(ctx, models.SystemOwner(), CreateInput{Code: "TWICE", DiscountType: models.DiscountFlat, Value: dec("5"), UsageLimit: intPtr(2)})
	require.NoError(t, err)

	r := Redemption{Purchase: Purchase{StudentID: 1, AcademyID: 1, Total: dec("100")}, InvoiceID: 10}
	first, err := svc.Redeem(ctx, "TWICE", r)
	require.NoError(t, err)
	again, err := svc.Redeem(ctx, "TWICE", r)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	c, err = svc.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)
}

func TestCoupon_ConcurrentRedeemRespectsLimit(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	c, err := svc.Create(ctx, models.SystemOwner(), CreateInput{Code: "ONCE", DiscountType: models.DiscountFlat, Value: dec("5"), UsageLimit: intPtr(1)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflicts int
	for i := 1; i <= 2; i++ {
		wg.Add(1)
		go func(invoice uint) {
			defer wg.Done()
			_, err := svc.Redeem(ctx, "ONCE", Redemption{
				Purchase:  Purchase{StudentID: invoice, AcademyID: 1, Total: dec("100")},
				InvoiceID: invoice,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperrors.ErrCouponUsageLimitReached):
				assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uint(i))
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	c, err = svc.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)
}

func TestCoupon_InvoiceTakesOneCoupon(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	for _, code := range []string{"AAA", "BBB"} {
		_, err := svc.Create(ctx, models.SystemOwner(), CreateInput{Code: code, DiscountType: models.DiscountFlat, Value: dec("5")})
		require.NoError(t, err)
	}

	r := Redemption{Purchase: Purchase{StudentID: 1, AcademyID: 1, Total: dec("100")}, InvoiceID: 3}
	_, err := svc.Redeem(ctx, "AAA", r)
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, "BBB", r)
	assert.ErrorIs(t, err, apperrors.ErrCouponNotApplicable)
}
