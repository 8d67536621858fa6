package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	apperrors "sayan/internal/errors"
	"sayan/internal/logger"
	"sayan/internal/models"
	"sayan/internal/repositories"
	"sayan/internal/repositories/dbtest"
	"sayan/internal/services/coupon"
	"sayan/internal/services/referral"
	"sayan/internal/services/settings"
	"sayan/internal/services/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

type fixture struct {
	svc       Service
	store     repositories.Store
	wallets   wallet.Service
	coupons   coupon.Service
	referrals referral.Service
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := dbtest.NewStore(t)
	provider := settings.Static(settings.Defaults())
	log := logger.NewNop()
	wallets := wallet.NewService(store, nil, provider, nil, log, wallet.WalletConfig{}, nil)
	coupons := coupon.NewService(store, log)
	referrals := referral.NewService(store, wallets, provider, nil, log)
	return &fixture{
		svc:       NewService(store, wallets, coupons, referrals, provider, nil, log, nil, Config{WebhookSecret: webhookSecret}),
		store:     store,
		wallets:   wallets,
		coupons:   coupons,
		referrals: referrals,
	}
}

func (f *fixture) balance(t *testing.T, owner models.Owner) decimal.Decimal {
	t.Helper()
	b, err := f.wallets.GetBalance(context.Background(), owner)
	require.NoError(t, err)
	return b
}

// checkout creates an invoice for one item and starts a payment on it.
func (f *fixture) checkout(t *testing.T, studentID uint, price, couponCode string) (*models.Invoice, *models.Payment) {
	t.Helper()
	ctx := context.Background()
	invoice, err := f.svc.CreateInvoice(ctx, InvoiceInput{
		StudentID:  studentID,
		AcademyID:  1,
		Items:      []Item{{ItemType: "course", ItemID: 10, Name: "Algebra", UnitPrice: dec(price)}},
		CouponCode: couponCode,
	})
	require.NoError(t, err)
	payment, err := f.svc.StartPayment(ctx, PaymentInput{InvoiceID: invoice.ID, StudentID: studentID, Method: "mada"})
	require.NoError(t, err)
	return invoice, payment
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhook(event, gatewayID, paymentNumber string, amount decimal.Decimal) []byte {
	return []byte(fmt.Sprintf(`{"type":%q,"data":{"id":%q,"status":"paid","amount":%d,"currency":"SAR",
		"source":{"message":"declined"},"metadata":{"payment_number":%q}}}`,
		event, gatewayID, amount.Shift(2).IntPart(), paymentNumber))
}

func (f *fixture) deliver(t *testing.T, body []byte) (*WebhookResult, error) {
	t.Helper()
	return f.svc.HandleWebhook(context.Background(), body, sign(body))
}

func TestSplit_AlwaysBalances(t *testing.T) {
	fee := dec("15")
	for cents := int64(1); cents < 5000; cents += 37 {
		gross := decimal.New(cents*3, -2)
		vat := percentOf(gross, dec("13.04"))
		s := Split(gross, vat, fee)
		assert.True(t, s.Net.Add(s.SystemShare).Equal(gross), "gross %s", gross)
		assert.False(t, s.Net.IsNegative())
	}

	s := Split(dec("115"), dec("15"), fee)
	assert.True(t, dec("15").Equal(s.Fee))
	assert.True(t, dec("85").Equal(s.Net))
	assert.True(t, dec("30").Equal(s.SystemShare))
}

func TestCreateInvoice_Totals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	limit := dec("10")
	_, err := f.coupons.Create(ctx, models.SystemOwner(), coupon.CreateInput{
		Code: "SPRING", DiscountType: models.DiscountPercentage, Value: dec("20"), MaxDiscount: &limit,
	})
	require.NoError(t, err)

	invoice, err := f.svc.CreateInvoice(ctx, InvoiceInput{
		StudentID: 2,
		AcademyID: 1,
		Items: []Item{
			{ItemType: "course", ItemID: 1, Name: "Physics", UnitPrice: dec("100")},
			{ItemType: "lesson", ItemID: 2, Name: "Lab", UnitPrice: dec("50"), Quantity: 2},
		},
		CouponCode: "spring",
	})
	require.NoError(t, err)
	assert.True(t, dec("200").Equal(invoice.Subtotal))
	assert.True(t, dec("10").Equal(invoice.DiscountAmount))
	assert.True(t, dec("28.50").Equal(invoice.VATAmount))
	assert.True(t, dec("218.50").Equal(invoice.Total))
	assert.Equal(t, "SAR", invoice.Currency)
	assert.Len(t, invoice.Products, 2)

	_, err = f.svc.CreateInvoice(ctx, InvoiceInput{StudentID: 2, AcademyID: 1})
	assert.ErrorIs(t, err, apperrors.ErrEmptyInvoice)

	_, err = f.svc.CreateInvoice(ctx, InvoiceInput{
		StudentID: 2,
		AcademyID: 1,
		Items: []Item{
			{ItemType: "course", ItemID: 1, Name: "Physics", UnitPrice: dec("100"), Quantity: 3},
			{ItemType: "lesson", ItemID: 2, Name: "Lab", UnitPrice: dec("100"), Quantity: -2},
		},
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestListings_ScopeAndSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, paid := f.checkout(t, 2, "100", "")
	_, err := f.deliver(t, webhook(EventPaid, "gw_1", paid.PaymentNumber, paid.Amount))
	require.NoError(t, err)
	f.checkout(t, 3, "40", "")

	invoices, total, err := f.svc.ListInvoices(ctx, repositories.CheckoutFilter{StudentID: 2}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, invoices, 1)
	assert.Equal(t, models.InvoiceCompleted, invoices[0].Status)
	assert.Len(t, invoices[0].Products, 1)

	pending, total, err := f.svc.ListInvoices(ctx, repositories.CheckoutFilter{AcademyID: 1, Status: "pending"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, uint(3), pending[0].StudentID)

	payments, total, err := f.svc.ListPayments(ctx, repositories.CheckoutFilter{AcademyID: 1}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, payments, 1)
	assert.Equal(t, uint(3), payments[0].StudentID, "newest first")

	_, _, err = f.svc.ListPayments(ctx, repositories.CheckoutFilter{Status: "settled"}, 10, 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	sum, err := f.svc.SettlementSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Payments)
	assert.True(t, dec("115").Equal(sum.Gross))
	assert.True(t, dec("15").Equal(sum.Commission))
	assert.True(t, dec("85").Equal(sum.Net))
	assert.True(t, dec("15").Equal(sum.VAT))

	none, err := f.svc.SettlementSummary(ctx, 9)
	require.NoError(t, err)
	assert.Zero(t, none.Payments)
	assert.True(t, none.Net.IsZero())
}

func TestWebhook_SettlesAndSplits(t *testing.T) {
	f := newFixture(t)
	invoice, payment := f.checkout(t, 2, "100", "")
	require.True(t, dec("115").Equal(payment.Amount))

	res, err := f.deliver(t, webhook(EventPaid, "gw_1", payment.PaymentNumber, payment.Amount))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.Equal(t, models.PaymentCompleted, res.Payment.Status)
	assert.True(t, dec("15").Equal(res.Payment.PlatformFee))
	assert.True(t, dec("85").Equal(res.Payment.NetAmount))
	require.NotNil(t, res.Payment.GatewayTransactionID)
	assert.Equal(t, "gw_1", *res.Payment.GatewayTransactionID)

	assert.True(t, dec("85").Equal(f.balance(t, models.AcademyOwner(1))))
	assert.True(t, dec("30").Equal(f.balance(t, models.SystemOwner())))

	invoice, err = f.svc.GetInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceCompleted, invoice.Status)
	assert.NotNil(t, invoice.PaidAt)
}

func TestWebhook_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, payment := f.checkout(t, 2, "100", "")
	body := webhook(EventPaid, "gw_1", payment.PaymentNumber, payment.Amount)

	_, err := f.deliver(t, body)
	require.NoError(t, err)
	res, err := f.deliver(t, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	assert.True(t, dec("85").Equal(f.balance(t, models.AcademyOwner(1))))
	_, total, err := f.wallets.History(context.Background(), models.AcademyOwner(1), repositories.TransactionFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, err = f.deliver(t, webhook(EventPaid, "gw_2", payment.PaymentNumber, payment.Amount))
	assert.ErrorIs(t, err, apperrors.ErrPaymentState)
}

func TestWebhook_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, payment := f.checkout(t, 2, "100", "")
	body := webhook(EventPaid, "gw_1", payment.PaymentNumber, payment.Amount)

	_, err := f.svc.HandleWebhook(ctx, body, "deadbeef")
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	short := webhook(EventPaid, "gw_1", payment.PaymentNumber, dec("100"))
	_, err = f.deliver(t, short)
	assert.ErrorIs(t, err, apperrors.ErrAmountMismatch)

	_, err = f.deliver(t, webhook(EventPaid, "gw_1", "PAY-UNKNOWN", payment.Amount))
	assert.ErrorIs(t, err, apperrors.ErrPaymentNotFound)

	_, err = f.deliver(t, []byte(`{"type":"payment_paid"}`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidWebhook)

	p, err := f.svc.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, p.Status)
	assert.True(t, f.balance(t, models.AcademyOwner(1)).IsZero())
}

func TestWebhook_RejectedWithoutSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, payment := f.checkout(t, 2, "100", "")
	unsigned := NewService(f.store, f.wallets, f.coupons, f.referrals, settings.Static(settings.Defaults()), nil, logger.NewNop(), nil, Config{})

	body := webhook(EventPaid, "gw_1", payment.PaymentNumber, payment.Amount)
	mac := hmac.New(sha256.New, nil)
	mac.Write(body)
	_, err := unsigned.HandleWebhook(ctx, body, hex.EncodeToString(mac.Sum(nil)))
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	p, err := f.svc.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, p.Status)
	assert.True(t, f.balance(t, models.AcademyOwner(1)).IsZero())
}

func TestWebhook_FailureKeepsInvoicePayable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.coupons.Create(ctx, models.SystemOwner(), coupon.CreateInput{
		Code: "ONE", DiscountType: models.DiscountFlat, Value: dec("10"), UsageLimit: func() *int { n := 1; return &n }(),
	})
	require.NoError(t, err)
	invoice, payment := f.checkout(t, 2, "100", "ONE")

	res, err := f.deliver(t, webhook(EventFailed, "gw_1", payment.PaymentNumber, payment.Amount))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, models.PaymentFailed, res.Payment.Status)
	assert.Equal(t, "declined", res.Payment.FailureReason)

	retry, err := f.svc.StartPayment(ctx, PaymentInput{InvoiceID: invoice.ID, StudentID: 2})
	require.NoError(t, err, "retry reuses the invoice's coupon usage")
	assert.NotEqual(t, payment.PaymentNumber, retry.PaymentNumber)

	_, err = f.deliver(t, webhook(EventPaid, "gw_1", payment.PaymentNumber, payment.Amount))
	assert.ErrorIs(t, err, apperrors.ErrPaymentState)
}

func TestWebhook_Refund(t *testing.T) {
	f := newFixture(t)
	invoice, payment := f.checkout(t, 2, "100", "")
	_, err := f.deliver(t, webhook(EventPaid, "gw_1", payment.PaymentNumber, payment.Amount))
	require.NoError(t, err)

	refund := webhook(EventRefunded, "gw_1", payment.PaymentNumber, payment.Amount)
	res, err := f.deliver(t, refund)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefunded, res.Outcome)
	assert.Equal(t, models.PaymentRefunded, res.Payment.Status)
	assert.True(t, f.balance(t, models.AcademyOwner(1)).IsZero())
	assert.True(t, f.balance(t, models.SystemOwner()).IsZero())

	invoice, err = f.svc.GetInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceRefunded, invoice.Status)

	res, err = f.deliver(t, refund)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
}

func TestWebhook_RefundNeedsFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, payment := f.checkout(t, 2, "100", "")
	_, err := f.deliver(t, webhook(EventPaid, "gw_1", payment.PaymentNumber, payment.Amount))
	require.NoError(t, err)

	_, err = f.wallets.Debit(ctx, wallet.Entry{Owner: models.AcademyOwner(1), Amount: dec("50"), SourceType: models.SourceAdjustment})
	require.NoError(t, err)

	_, err = f.deliver(t, webhook(EventRefunded, "gw_1", payment.PaymentNumber, payment.Amount))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	p, err := f.svc.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, p.Status)
	assert.True(t, dec("35").Equal(f.balance(t, models.AcademyOwner(1))))
	assert.True(t, dec("30").Equal(f.balance(t, models.SystemOwner())))
}

func TestWebhook_PaysReferralOnFirstPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.coupons.Create(ctx, models.StudentOwner(7), coupon.CreateInput{
		Code: "REF7", DiscountType: models.DiscountPercentage, Value: dec("10"),
	})
	require.NoError(t, err)

	invoice, payment := f.checkout(t, 8, "100", "REF7")
	assert.True(t, dec("103.50").Equal(invoice.Total))

	res, err := f.deliver(t, webhook(EventPaid, "gw_1", payment.PaymentNumber, payment.Amount))
	require.NoError(t, err)
	assert.True(t, dec("76.50").Equal(res.Payment.NetAmount))
	assert.True(t, dec("76.50").Equal(f.balance(t, models.AcademyOwner(1))))
	assert.True(t, dec("27").Equal(f.balance(t, models.SystemOwner())))
	assert.True(t, dec("5").Equal(f.balance(t, models.StudentOwner(7))))

	_, second := f.checkout(t, 8, "100", "REF7")
	_, err = f.deliver(t, webhook(EventPaid, "gw_2", second.PaymentNumber, second.Amount))
	require.NoError(t, err)

	rewards, err := f.referrals.ListByReferrer(ctx, 7)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, models.RewardPaid, rewards[0].Status)
	assert.True(t, dec("5").Equal(f.balance(t, models.StudentOwner(7))))
}

func TestStartPayment_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	invoice, payment := f.checkout(t, 2, "100", "")

	_, err := f.svc.StartPayment(ctx, PaymentInput{InvoiceID: invoice.ID, StudentID: 3})
	assert.ErrorIs(t, err, apperrors.ErrInvoiceNotFound)

	_, err = f.deliver(t, webhook(EventPaid, "gw_1", payment.PaymentNumber, payment.Amount))
	require.NoError(t, err)

	_, err = f.svc.StartPayment(ctx, PaymentInput{InvoiceID: invoice.ID, StudentID: 2})
	assert.ErrorIs(t, err, apperrors.ErrInvoiceNotPayable)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	assert.True(t, VerifySignature(webhookSecret, body, sign(body)))
	assert.False(t, VerifySignature(webhookSecret, body, sign([]byte(`{"a":2}`))))
	assert.False(t, VerifySignature("", body, ""))
	assert.False(t, VerifySignature("", body, "anything"))

	mac := hmac.New(sha256.New, nil)
	mac.Write(body)
	assert.False(t, VerifySignature("", body, hex.EncodeToString(mac.Sum(nil))))
	assert.False(t, VerifySignature(webhookSecret, body, ""))
}
