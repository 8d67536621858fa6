package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoiceCompleted InvoiceStatus = "completed"
	InvoiceCancelled InvoiceStatus = "cancelled"
	InvoiceRefunded  InvoiceStatus = "refunded"
)

type Invoice struct {
	ID             uint             `gorm:"primarykey" json:"id"`
	InvoiceNumber  string           `gorm:"type:varchar(40);not null;uniqueIndex" json:"invoice_number"`
	StudentID      uint             `gorm:"not null;index" json:"student_id"`
	AcademyID      uint             `gorm:"not null;index" json:"academy_id"`
	Currency       string           `gorm:"type:varchar(3);not null" json:"currency"`
	Subtotal       decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"subtotal"`
	DiscountAmount decimal.Decimal  `gorm:"type:numeric(20,2);not null;default:0" json:"discount_amount"`
	VATRate        decimal.Decimal  `gorm:"column:vat_rate;type:numeric(5,2);not null" json:"vat_rate"`
	VATAmount      decimal.Decimal  `gorm:"column:vat_amount;type:numeric(20,2);not null" json:"vat_amount"`
	Total          decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"total"`
	CouponID       *uint            `json:"coupon_id,omitempty"`
	Status         InvoiceStatus    `gorm:"type:varchar(16);not null;default:'pending';check:chk_invoices_status,status IN ('pending','completed','cancelled','refunded')" json:"status"`
	PaidAt         *time.Time       `json:"paid_at,omitempty"`
	Products       []InvoiceProduct `gorm:"constraint:OnDelete:RESTRICT" json:"products"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Taxable is the amount before VAT, i.e. subtotal less discount.
func (i *Invoice) Taxable() decimal.Decimal {
	return i.Total.Sub(i.VATAmount)
}

type InvoiceProduct struct {
	ID         uint            `gorm:"primarykey" json:"id"`
	InvoiceID  uint            `gorm:"not null;index" json:"invoice_id"`
	ItemType   string          `gorm:"type:varchar(16);not null" json:"item_type"`
	ItemID     uint            `gorm:"not null" json:"item_id"`
	Name       string          `gorm:"not null" json:"name"`
	UnitPrice  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"unit_price"`
	Quantity   int             `gorm:"not null;default:1" json:"quantity"`
	TotalPrice decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentExpired    PaymentStatus = "expired"
)

type Payment struct {
	ID                   uint            `gorm:"primarykey" json:"id"`
	PaymentNumber        string          `gorm:"type:varchar(40);not null;uniqueIndex" json:"payment_number"`
	InvoiceID            uint            `gorm:"not null;index" json:"invoice_id"`
	StudentID            uint            `gorm:"not null;index" json:"student_id"`
	AcademyID            uint            `gorm:"not null;index" json:"academy_id"`
	Amount               decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Currency             string          `gorm:"type:varchar(3);not null" json:"currency"`
	Gateway              string          `gorm:"type:varchar(32);not null" json:"gateway"`
	Method               string          `gorm:"type:varchar(32)" json:"method"`
	GatewayTransactionID *string         `gorm:"type:varchar(128);uniqueIndex" json:"gateway_transaction_id,omitempty"`
	Status               PaymentStatus   `gorm:"type:varchar(16);not null;default:'pending';index;check:chk_payments_status,status IN ('pending','processing','completed','failed','cancelled','refunded','expired')" json:"status"`
	PlatformFee          decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"platform_fee"`
	NetAmount            decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"net_amount"`
	FailureReason        string          `json:"failure_reason,omitempty"`
	GatewayMetadata      datatypes.JSON  `json:"gateway_metadata,omitempty"`
	ConfirmedAt          *time.Time      `json:"confirmed_at,omitempty"`
	RefundedAt           *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// PaymentGatewayLog stores each webhook delivery as received.
type PaymentGatewayLog struct {
	ID                   uint           `gorm:"primarykey" json:"id"`
	PaymentID            *uint          `gorm:"index" json:"payment_id,omitempty"`
	GatewayTransactionID string         `gorm:"type:varchar(128);index" json:"gateway_transaction_id"`
	EventType            string         `gorm:"type:varchar(32)" json:"event_type"`
	Outcome              string         `gorm:"type:varchar(32)" json:"outcome"`
	Payload              datatypes.JSON `json:"payload"`
	CreatedAt            time.Time      `json:"created_at"`
}
