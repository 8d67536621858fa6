package repositories

import (
	"context"
	"fmt"
	"time"

	"sayan/internal/models"

	"gorm.io/gorm"
)

type InvoiceRepository interface {
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	GetInvoice(ctx context.Context, id uint) (*models.Invoice, error)
	TransitionInvoice(ctx context.Context, id uint, from, to models.InvoiceStatus, updates map[string]interface{}) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id uint) (*models.Payment, error)
	GetPaymentByNumber(ctx context.Context, number string) (*models.Payment, error)
	GetPaymentByGatewayID(ctx context.Context, gatewayTransactionID string) (*models.Payment, error)
	TransitionPayment(ctx context.Context, id uint, from, to models.PaymentStatus, updates map[string]interface{}) error
	// HasCompletedPayment reports whether the student has any completed
	// payment other than excludeID.
	HasCompletedPayment(ctx context.Context, studentID, excludeID uint) (bool, error)

	AppendGatewayLog(ctx context.Context, log *models.PaymentGatewayLog) error

	ListInvoices(ctx context.Context, filter CheckoutFilter, limit, offset int) ([]models.Invoice, int64, error)
	ListPayments(ctx context.Context, filter CheckoutFilter, limit, offset int) ([]models.Payment, int64, error)
	// PaymentAmounts loads only the money columns of every matching payment.
	PaymentAmounts(ctx context.Context, filter CheckoutFilter) ([]models.Payment, error)
}

// CheckoutFilter narrows invoice and payment listings. Zero fields match
// everything; the created_at range is [From, To).
type CheckoutFilter struct {
	StudentID uint
	AcademyID uint
	Status    string
	From      *time.Time
	To        *time.Time
}

func (f CheckoutFilter) apply(db *gorm.DB) *gorm.DB {
	if f.StudentID != 0 {
		db = db.Where("student_id = ?", f.StudentID)
	}
	if f.AcademyID != 0 {
		db = db.Where("academy_id = ?", f.AcademyID)
	}
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.From != nil {
		db = db.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		db = db.Where("created_at < ?", *f.To)
	}
	return db
}

type invoiceRepository struct {
	db *gorm.DB
}

func (r *invoiceRepository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	if err := r.db.WithContext(ctx).Create(invoice).Error; err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func (r *invoiceRepository) GetInvoice(ctx context.Context, id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Preload("Products").First(&invoice, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &invoice, nil
}

func (r *invoiceRepository) TransitionInvoice(ctx context.Context, id uint, from, to models.InvoiceStatus, updates map[string]interface{}) error {
	return transition(r.db.WithContext(ctx), &models.Invoice{}, id, string(from), string(to), updates)
}

func (r *invoiceRepository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *invoiceRepository) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

func (r *invoiceRepository) GetPaymentByNumber(ctx context.Context, number string) (*models.Payment, error) {
	var payment models.Payment
	if err := forUpdate(r.db.WithContext(ctx)).Where("payment_number = ?", number).First(&payment).Error; err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

func (r *invoiceRepository) GetPaymentByGatewayID(ctx context.Context, gatewayTransactionID string) (*models.Payment, error) {
	var payment models.Payment
	err := forUpdate(r.db.WithContext(ctx)).
		Where("gateway_transaction_id = ?", gatewayTransactionID).
		First(&payment).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

func (r *invoiceRepository) TransitionPayment(ctx context.Context, id uint, from, to models.PaymentStatus, updates map[string]interface{}) error {
	err := transition(r.db.WithContext(ctx), &models.Payment{}, id, string(from), string(to), updates)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *invoiceRepository) HasCompletedPayment(ctx context.Context, studentID, excludeID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("student_id = ? AND id <> ? AND status IN ?", studentID, excludeID,
			[]models.PaymentStatus{models.PaymentCompleted, models.PaymentRefunded}).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to count payments: %w", err)
	}
	return n > 0, nil
}

func (r *invoiceRepository) AppendGatewayLog(ctx context.Context, log *models.PaymentGatewayLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to append gateway log: %w", err)
	}
	return nil
}

func (r *invoiceRepository) ListInvoices(ctx context.Context, filter CheckoutFilter, limit, offset int) ([]models.Invoice, int64, error) {
	var total int64
	if err := filter.apply(r.db.WithContext(ctx).Model(&models.Invoice{})).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	var invoices []models.Invoice
	err := filter.apply(r.db.WithContext(ctx)).
		Preload("Products").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&invoices).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, total, nil
}

func (r *invoiceRepository) ListPayments(ctx context.Context, filter CheckoutFilter, limit, offset int) ([]models.Payment, int64, error) {
	var total int64
	if err := filter.apply(r.db.WithContext(ctx).Model(&models.Payment{})).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	var payments []models.Payment
	err := filter.apply(r.db.WithContext(ctx)).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&payments).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, total, nil
}

func (r *invoiceRepository) PaymentAmounts(ctx context.Context, filter CheckoutFilter) ([]models.Payment, error) {
	var payments []models.Payment
	err := filter.apply(r.db.WithContext(ctx)).
		Select("id", "amount", "platform_fee", "net_amount").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load payment amounts: %w", err)
	}
	return payments, nil
}
