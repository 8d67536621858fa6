package repositories

import (
	"context"
	"fmt"
	"time"

	"sayan/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type WithdrawalFilter struct {
	WalletID uint
	Status   models.WithdrawalStatus
	Limit    int
	Offset   int
}

type WithdrawalRepository interface {
	Create(ctx context.Context, req *models.WithdrawalRequest) error
	GetByID(ctx context.Context, id uint) (*models.WithdrawalRequest, error)
	// Transition moves the request from one status to another only if it is
	// still in from. Returns ErrStateChanged otherwise.
	Transition(ctx context.Context, id uint, from, to models.WithdrawalStatus, updates map[string]interface{}) error
	SetProviderReference(ctx context.Context, id uint, reference string) error
	// Reserved sums amounts of requests that are pending or approved.
	Reserved(ctx context.Context, walletID uint) (decimal.Decimal, error)
	List(ctx context.Context, filter WithdrawalFilter) ([]models.WithdrawalRequest, int64, error)
	ListStaleProcessing(ctx context.Context, before time.Time) ([]models.WithdrawalRequest, error)

	AppendPayoutLog(ctx context.Context, log *models.PayoutLog) error
	PayoutLogs(ctx context.Context, requestID uint) ([]models.PayoutLog, error)
}

type withdrawalRepository struct {
	db *gorm.DB
}

func (r *withdrawalRepository) Create(ctx context.Context, req *models.WithdrawalRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("failed to create withdrawal request: %w", err)
	}
	return nil
}

func (r *withdrawalRepository) GetByID(ctx context.Context, id uint) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

func (r *withdrawalRepository) Transition(ctx context.Context, id uint, from, to models.WithdrawalStatus, updates map[string]interface{}) error {
	return transition(r.db.WithContext(ctx), &models.WithdrawalRequest{}, id, string(from), string(to), updates)
}

func (r *withdrawalRepository) SetProviderReference(ctx context.Context, id uint, reference string) error {
	res := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, models.WithdrawalProcessing).
		Update("provider_reference", reference)
	if res.Error != nil {
		return fmt.Errorf("failed to set provider reference: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStateChanged
	}
	return nil
}

func (r *withdrawalRepository) Reserved(ctx context.Context, walletID uint) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Where("wallet_id = ? AND status IN ?", walletID,
			[]models.WithdrawalStatus{models.WithdrawalPending, models.WithdrawalApproved}).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum reserved withdrawals: %w", err)
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total, nil
}

func (r *withdrawalRepository) List(ctx context.Context, filter WithdrawalFilter) ([]models.WithdrawalRequest, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{})
	if filter.WalletID != 0 {
		q = q.Where("wallet_id = ?", filter.WalletID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count withdrawals: %w", err)
	}

	var reqs []models.WithdrawalRequest
	if err := q.Order("created_at DESC").Order("id DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&reqs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return reqs, total, nil
}

func (r *withdrawalRepository) ListStaleProcessing(ctx context.Context, before time.Time) ([]models.WithdrawalRequest, error) {
	var reqs []models.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND provider_reference = '' AND processing_at < ?", models.WithdrawalProcessing, before).
		Order("id").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale withdrawals: %w", err)
	}
	return reqs, nil
}

func (r *withdrawalRepository) AppendPayoutLog(ctx context.Context, log *models.PayoutLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to append payout log: %w", err)
	}
	return nil
}

func (r *withdrawalRepository) PayoutLogs(ctx context.Context, requestID uint) ([]models.PayoutLog, error) {
	var logs []models.PayoutLog
	err := r.db.WithContext(ctx).Where("withdrawal_request_id = ?", requestID).Order("id").Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load payout logs: %w", err)
	}
	return logs, nil
}
