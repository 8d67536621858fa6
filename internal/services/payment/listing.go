package payment

import (
	"context"

	apperrors "sayan/internal/errors"
	"sayan/internal/models"
	"sayan/internal/repositories"

	"github.com/shopspring/decimal"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var (
	invoiceStatuses = map[string]bool{
		string(models.InvoicePending): true, string(models.InvoiceCompleted): true,
		string(models.InvoiceCancelled): true, string(models.InvoiceRefunded): true,
	}
	paymentStatuses = map[string]bool{
		string(models.PaymentPending): true, string(models.PaymentProcessing): true,
		string(models.PaymentCompleted): true, string(models.PaymentFailed): true,
		string(models.PaymentCancelled): true, string(models.PaymentRefunded): true,
		string(models.PaymentExpired): true,
	}
)

// SettlementSummary totals an academy's completed payments. Gross includes
// VAT, so Gross = Commission + Net + VAT.
type SettlementSummary struct {
	AcademyID  uint            `json:"academy_id"`
	Payments   int             `json:"total_payments"`
	Gross      decimal.Decimal `json:"total_amount"`
	Commission decimal.Decimal `json:"total_commission"`
	Net        decimal.Decimal `json:"total_net"`
	VAT        decimal.Decimal `json:"total_vat"`
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func checkRange(f repositories.CheckoutFilter) error {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return apperrors.ErrValidation.WithMessage("from must be before to")
	}
	return nil
}

func (s *service) ListInvoices(ctx context.Context, filter repositories.CheckoutFilter, limit, offset int) ([]models.Invoice, int64, error) {
	if filter.Status != "" && !invoiceStatuses[filter.Status] {
		return nil, 0, apperrors.ErrValidation.WithMessage("unknown invoice status %q", filter.Status)
	}
	if err := checkRange(filter); err != nil {
		return nil, 0, err
	}
	limit, offset = pageBounds(limit, offset)
	return s.store.Invoices().ListInvoices(ctx, filter, limit, offset)
}

func (s *service) ListPayments(ctx context.Context, filter repositories.CheckoutFilter, limit, offset int) ([]models.Payment, int64, error) {
	if filter.Status != "" && !paymentStatuses[filter.Status] {
		return nil, 0, apperrors.ErrValidation.WithMessage("unknown payment status %q", filter.Status)
	}
	if err := checkRange(filter); err != nil {
		return nil, 0, err
	}
	limit, offset = pageBounds(limit, offset)
	return s.store.Invoices().ListPayments(ctx, filter, limit, offset)
}

func (s *service) SettlementSummary(ctx context.Context, academyID uint) (*SettlementSummary, error) {
	if academyID == 0 {
		return nil, apperrors.ErrValidation.WithMessage("academy is required")
	}
	payments, err := s.store.Invoices().PaymentAmounts(ctx, repositories.CheckoutFilter{
		AcademyID: academyID,
		Status:    string(models.PaymentCompleted),
	})
	if err != nil {
		return nil, err
	}

	sum := &SettlementSummary{
		AcademyID:  academyID,
		Payments:   len(payments),
		Gross:      decimal.Zero,
		Commission: decimal.Zero,
		Net:        decimal.Zero,
	}
	for _, p := range payments {
		sum.Gross = sum.Gross.Add(p.Amount)
		sum.Commission = sum.Commission.Add(p.PlatformFee)
		sum.Net = sum.Net.Add(p.NetAmount)
	}
	sum.VAT = sum.Gross.Sub(sum.Commission).Sub(sum.Net)
	return sum, nil
}
