package payment

import (
	"context"

	"sayan/internal/models"
	"sayan/internal/repositories"

	"github.com/shopspring/decimal"
)

// Service covers checkout (invoice and payment creation) and reconciliation
// of gateway callbacks into the wallet ledger.
type Service interface {
	CreateInvoice(ctx context.Context, in InvoiceInput) (*models.Invoice, error)
	GetInvoice(ctx context.Context, id uint) (*models.Invoice, error)
	StartPayment(ctx context.Context, in PaymentInput) (*models.Payment, error)
	GetPayment(ctx context.Context, id uint) (*models.Payment, error)

	// Listings are newest first.
	ListInvoices(ctx context.Context, filter repositories.CheckoutFilter, limit, offset int) ([]models.Invoice, int64, error)
	ListPayments(ctx context.Context, filter repositories.CheckoutFilter, limit, offset int) ([]models.Payment, int64, error)
	SettlementSummary(ctx context.Context, academyID uint) (*SettlementSummary, error)

	// HandleWebhook verifies and applies a gateway callback. Deliveries are
	// idempotent by gateway transaction id.
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
}

type Item struct {
	ItemType  string          `json:"item_type" validate:"required,oneof=course lesson package subscription"`
	ItemID    uint            `json:"item_id" validate:"required"`
	Name      string          `json:"name" validate:"required,max=200"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" validate:"omitempty,min=1,max=100"`
}

type InvoiceInput struct {
	StudentID  uint   `json:"-"`
	AcademyID  uint   `json:"academy_id" validate:"required"`
	Items      []Item `json:"items" validate:"required,min=1,dive"`
	CouponCode string `json:"coupon_code" validate:"omitempty,max=32"`
}

type PaymentInput struct {
	InvoiceID uint   `json:"-"`
	StudentID uint   `json:"-"`
	Method    string `json:"method" validate:"omitempty,oneof=creditcard applepay stcpay mada"`
}

type WebhookResult struct {
	Event         string          `json:"event"`
	PaymentNumber string          `json:"payment_number"`
	Outcome       string          `json:"outcome"`
	Payment       *models.Payment `json:"payment,omitempty"`
}

const (
	OutcomeSettled   = "settled"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
	OutcomeRefunded  = "refunded"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
)

// Webhook event types sent by the gateway.
const (
	EventPaid     = "payment_paid"
	EventFailed   = "payment_failed"
	EventRefunded = "payment_refunded"
)

// Config for the payment gateway integration.
type Config struct {
	Gateway       string
	WebhookSecret string
}
