package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "sayan/internal/errors"
	"sayan/internal/logger"
	"sayan/internal/models"
	"sayan/internal/repositories"
	"sayan/internal/services/coupon"
	"sayan/internal/services/notification"
	"sayan/internal/services/referral"
	"sayan/internal/services/settings"
	"sayan/internal/services/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MetricsCollector records webhook outcomes.
type MetricsCollector interface {
	RecordWebhook(event, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordWebhook(string, string) {}

type service struct {
	store     repositories.Store
	wallets   wallet.Service
	coupons   coupon.Service
	referrals referral.Service
	settings  settings.Provider
	notifier  notification.Notifier
	logger    logger.Logger
	metrics   MetricsCollector
	config    Config
	now       func() time.Time
}

func NewService(
	store repositories.Store,
	wallets wallet.Service,
	coupons coupon.Service,
	referrals referral.Service,
	settingsProvider settings.Provider,
	notifier notification.Notifier,
	log logger.Logger,
	metrics MetricsCollector,
	config Config,
) Service {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if config.Gateway == "" {
		config.Gateway = "moyasar"
	}
	return &service{
		store:     store,
		wallets:   wallets,
		coupons:   coupons,
		referrals: referrals,
		settings:  settingsProvider,
		notifier:  notifier,
		logger:    log,
		metrics:   metrics,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) CreateInvoice(ctx context.Context, in InvoiceInput) (*models.Invoice, error) {
	if in.StudentID == 0 || in.AcademyID == 0 {
		return nil, apperrors.ErrValidation.WithMessage("student and academy are required")
	}
	if len(in.Items) == 0 {
		return nil, apperrors.ErrEmptyInvoice
	}

	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		InvoiceNumber: s.invoiceNumber(),
		StudentID:     in.StudentID,
		AcademyID:     in.AcademyID,
		Currency:      cfg.Currency,
		VATRate:       cfg.VATPercent,
		Status:        models.InvoicePending,
	}

	subtotal := decimal.Zero
	for _, item := range in.Items {
		qty := item.Quantity
		if qty < 0 {
			return nil, apperrors.ErrValidation.WithMessage("invalid quantity for %q", item.Name)
		}
		if qty == 0 {
			qty = 1
		}
		if item.UnitPrice.IsNegative() || !item.UnitPrice.Equal(item.UnitPrice.Round(2)) {
			return nil, apperrors.ErrInvalidAmount.WithMessage("invalid price for %q", item.Name)
		}
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
		subtotal = subtotal.Add(line)
		invoice.Products = append(invoice.Products, models.InvoiceProduct{
			ItemType:   item.ItemType,
			ItemID:     item.ItemID,
			Name:       item.Name,
			UnitPrice:  item.UnitPrice,
			Quantity:   qty,
			TotalPrice: line,
		})
	}
	invoice.Subtotal = subtotal

	if code := strings.TrimSpace(in.CouponCode); code != "" {
		res, err := s.coupons.Validate(ctx, code, coupon.Purchase{
			StudentID: in.StudentID,
			AcademyID: in.AcademyID,
			Total:     subtotal,
		})
		if err != nil {
			return nil, err
		}
		invoice.DiscountAmount = res.Discount
		invoice.CouponID = &res.Coupon.ID
	}

	taxable := subtotal.Sub(invoice.DiscountAmount)
	invoice.VATAmount = percentOf(taxable, cfg.VATPercent)
	invoice.Total = taxable.Add(invoice.VATAmount)
	if !invoice.Total.IsPositive() {
		return nil, apperrors.ErrValidation.WithMessage("invoice total must be positive")
	}

	if err := s.store.Invoices().CreateInvoice(ctx, invoice); err != nil {
		return nil, err
	}
	s.logger.Info("payment", "invoice created", map[string]interface{}{
		"invoice_id":     invoice.ID,
		"invoice_number": invoice.InvoiceNumber,
		"student_id":     invoice.StudentID,
		"academy_id":     invoice.AcademyID,
		"total":          invoice.Total.StringFixed(2),
	})
	return invoice, nil
}

func (s *service) GetInvoice(ctx context.Context, id uint) (*models.Invoice, error) {
	invoice, err := s.store.Invoices().GetInvoice(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.ErrInvoiceNotFound
	}
	return invoice, err
}

func (s *service) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	p, err := s.store.Invoices().GetPayment(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.ErrPaymentNotFound
	}
	return p, err
}

// StartPayment opens a pending payment for an invoice and redeems its coupon
// in the same transaction. A retry after a failed attempt reuses the coupon
// usage already recorded for the invoice.
func (s *service) StartPayment(ctx context.Context, in PaymentInput) (*models.Payment, error) {
	var payment *models.Payment
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		invoice, err := tx.Invoices().GetInvoice(ctx, in.InvoiceID)
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.ErrInvoiceNotFound
		}
		if err != nil {
			return err
		}
		if in.StudentID != 0 && invoice.StudentID != in.StudentID {
			return apperrors.ErrInvoiceNotFound
		}
		if invoice.Status != models.InvoicePending {
			return apperrors.ErrInvoiceNotPayable.WithMessage("invoice %s is %s", invoice.InvoiceNumber, invoice.Status)
		}

		payment = &models.Payment{
			PaymentNumber: "PAY-" + strings.ToUpper(uuid.NewString()),
			InvoiceID:     invoice.ID,
			StudentID:     invoice.StudentID,
			AcademyID:     invoice.AcademyID,
			Amount:        invoice.Total,
			Currency:      invoice.Currency,
			Gateway:       s.config.Gateway,
			Method:        in.Method,
			Status:        models.PaymentPending,
		}
		if err := tx.Invoices().CreatePayment(ctx, payment); err != nil {
			return err
		}

		if invoice.CouponID == nil {
			return nil
		}
		c, err := tx.Coupons().GetByID(ctx, *invoice.CouponID)
		if err != nil {
			return fmt.Errorf("load invoice coupon: %w", err)
		}
		_, err = s.coupons.RedeemTx(ctx, tx, c.Code, coupon.Redemption{
			Purchase: coupon.Purchase{
				StudentID: invoice.StudentID,
				AcademyID: invoice.AcademyID,
				Total:     invoice.Subtotal,
			},
			InvoiceID: invoice.ID,
			PaymentID: payment.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment", "payment started", map[string]interface{}{
		"payment_id":     payment.ID,
		"payment_number": payment.PaymentNumber,
		"invoice_id":     payment.InvoiceID,
		"amount":         payment.Amount.StringFixed(2),
	})
	return payment, nil
}

func (s *service) invoiceNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("INV-%s-%s", s.now().Format("20060102"), strings.ToUpper(id[:10]))
}
