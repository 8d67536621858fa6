package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "sayan/internal/errors"
	"sayan/internal/logger"
	"sayan/internal/models"
	"sayan/internal/repositories"
	"sayan/internal/services/bankaccount"
	"sayan/internal/services/notification"
	"sayan/internal/services/payout"
	"sayan/internal/services/settings"
	"sayan/internal/services/wallet"

	"github.com/shopspring/decimal"
)

const (
	DefaultPayoutTimeout = 30 * time.Second
	DefaultStaleAfter    = 15 * time.Minute

	DefaultListLimit = 20
	MaxListLimit     = 100
)

type Config struct {
	PayoutTimeout time.Duration
	StaleAfter    time.Duration
	Metrics       MetricsCollector
}

// MetricsCollector counts requests entering each status.
type MetricsCollector interface {
	RecordWithdrawalTransition(status string)
}

type noopMetrics struct{}

func (noopMetrics) RecordWithdrawalTransition(string) {}

type Filter struct {
	Owner  *models.Owner
	Status models.WithdrawalStatus
	Limit  int
	Offset int
}

type Service interface {
	Request(ctx context.Context, requester models.Owner, amount decimal.Decimal, bankAccountID uint) (*models.WithdrawalRequest, error)
	Approve(ctx context.Context, id, approverID uint) (*models.WithdrawalRequest, error)
	Reject(ctx context.Context, id, rejecterID uint, reason string) (*models.WithdrawalRequest, error)
	MarkProcessing(ctx context.Context, id uint) (*models.WithdrawalRequest, error)
	Complete(ctx context.Context, id uint, reference string, raw []byte) (*models.WithdrawalRequest, error)
	Fail(ctx context.Context, id uint, reason string, raw []byte) (*models.WithdrawalRequest, error)

	// Process runs markProcessing, submits to the payout gateway and settles
	// the outcome.
	Process(ctx context.Context, id uint) (*models.WithdrawalRequest, error)
	HandlePayoutUpdate(ctx context.Context, update payout.Update) (*models.WithdrawalRequest, error)
	SweepStale(ctx context.Context) (int, error)

	Get(ctx context.Context, id uint) (*models.WithdrawalRequest, error)
	List(ctx context.Context, filter Filter) ([]models.WithdrawalRequest, int64, error)
	PayoutLogs(ctx context.Context, id uint) ([]models.PayoutLog, error)
}

type service struct {
	store    repositories.Store
	wallets  wallet.Service
	accounts bankaccount.Service
	gateway  payout.Gateway
	settings settings.Provider
	notifier notification.Notifier
	logger   logger.Logger
	config   Config
	now      func() time.Time
}

func NewService(
	store repositories.Store,
	wallets wallet.Service,
	accounts bankaccount.Service,
	gateway payout.Gateway,
	settingsProvider settings.Provider,
	notifier notification.Notifier,
	log logger.Logger,
	config Config,
) Service {
	if config.PayoutTimeout <= 0 {
		config.PayoutTimeout = DefaultPayoutTimeout
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultStaleAfter
	}
	if config.Metrics == nil {
		config.Metrics = noopMetrics{}
	}
	if notifier == nil {
		notifier = notification.Nop{}
	}
	return &service{
		store:    store,
		wallets:  wallets,
		accounts: accounts,
		gateway:  gateway,
		settings: settingsProvider,
		notifier: notifier,
		logger:   log,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Request(ctx context.Context, requester models.Owner, amount decimal.Decimal, bankAccountID uint) (*models.WithdrawalRequest, error) {
	if !requester.Valid() || requester.Type == models.OwnerSystem {
		return nil, apperrors.ErrInvalidOwner
	}
	if !wallet.ValidAmount(amount) {
		return nil, apperrors.ErrInvalidAmount
	}

	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(cfg.MinWithdrawal) {
		return nil, apperrors.ErrWithdrawalBelowMinimum.WithMessage("minimum withdrawal is %s", cfg.MinWithdrawal.StringFixed(2))
	}
	if cfg.MaxWithdrawal.IsPositive() && amount.GreaterThan(cfg.MaxWithdrawal) {
		return nil, apperrors.ErrWithdrawalAboveMaximum.WithMessage("maximum withdrawal is %s", cfg.MaxWithdrawal.StringFixed(2))
	}

	var req *models.WithdrawalRequest
	err = s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if _, err := s.accounts.Usable(ctx, tx, requester, bankAccountID); err != nil {
			return err
		}

		// Locking the wallet serializes concurrent requests against the
		// same available balance.
		w, err := tx.Wallets().GetByOwnerForUpdate(ctx, requester)
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.ErrInsufficientFunds
		}
		if err != nil {
			return err
		}
		switch w.Status {
		case models.WalletFrozen:
			return apperrors.ErrWalletFrozen
		case models.WalletDeactivated:
			return apperrors.ErrWalletInactive
		}

		reserved, err := tx.Withdrawals().Reserved(ctx, w.ID)
		if err != nil {
			return err
		}
		available := w.Balance.Sub(reserved)
		if amount.GreaterThan(available) {
			return apperrors.ErrInsufficientFunds.WithMessage("available balance is %s", available.StringFixed(2))
		}

		req = &models.WithdrawalRequest{
			WalletID:      w.ID,
			RequesterType: requester.Type,
			RequesterID:   requester.ID,
			BankAccountID: bankAccountID,
			Amount:        amount,
			Currency:      w.Currency,
			Status:        models.WithdrawalPending,
		}
		return tx.Withdrawals().Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal", "withdrawal requested", map[string]interface{}{
		"withdrawal_id": req.ID,
		"requester":     requester.String(),
		"amount":        amount.StringFixed(2),
	})
	s.notify(ctx, req, notification.EventWithdrawalRequested, nil)
	return req, nil
}

func (s *service) Approve(ctx context.Context, id, approverID uint) (*models.WithdrawalRequest, error) {
	if approverID == 0 {
		return nil, apperrors.ErrValidation.WithMessage("approver is required")
	}
	now := s.now()
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		return s.move(ctx, tx, id, models.WithdrawalPending, models.WithdrawalApproved, map[string]interface{}{
			"approved_by": approverID,
			"approved_at": now,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.settled(ctx, id, notification.EventWithdrawalApproved, map[string]interface{}{"approved_by": approverID})
}

func (s *service) Reject(ctx context.Context, id, rejecterID uint, reason string) (*models.WithdrawalRequest, error) {
	if reason == "" {
		return nil, apperrors.ErrValidation.WithMessage("rejection reason is required")
	}
	now := s.now()
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		updates := map[string]interface{}{
			"rejection_reason": reason,
			"rejected_at":      now,
		}
		if rejecterID != 0 {
			updates["rejected_by"] = rejecterID
		}
		return s.move(ctx, tx, id, models.WithdrawalPending, models.WithdrawalRejected, updates)
	})
	if err != nil {
		return nil, err
	}
	return s.settled(ctx, id, notification.EventWithdrawalRejected, map[string]interface{}{"reason": reason})
}

func (s *service) Get(ctx context.Context, id uint) (*models.WithdrawalRequest, error) {
	return s.load(ctx, s.store, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]models.WithdrawalRequest, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	repoFilter := repositories.WithdrawalFilter{
		Status: filter.Status,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	if filter.Owner != nil {
		w, err := s.store.Wallets().GetByOwner(ctx, *filter.Owner)
		if errors.Is(err, repositories.ErrNotFound) {
			return []models.WithdrawalRequest{}, 0, nil
		}
		if err != nil {
			return nil, 0, err
		}
		repoFilter.WalletID = w.ID
	}
	return s.store.Withdrawals().List(ctx, repoFilter)
}

func (s *service) PayoutLogs(ctx context.Context, id uint) ([]models.PayoutLog, error) {
	if _, err := s.load(ctx, s.store, id); err != nil {
		return nil, err
	}
	return s.store.Withdrawals().PayoutLogs(ctx, id)
}

func (s *service) load(ctx context.Context, store repositories.Store, id uint) (*models.WithdrawalRequest, error) {
	req, err := store.Withdrawals().GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// move applies a guarded status transition. A request that is no longer in
// from is reported as an invalid transition and left untouched.
func (s *service) move(ctx context.Context, tx repositories.Store, id uint, from, to models.WithdrawalStatus, updates map[string]interface{}) error {
	current, err := s.load(ctx, tx, id)
	if err != nil {
		return err
	}
	if current.Status != from {
		return invalidTransition(id, current.Status, to)
	}
	err = tx.Withdrawals().Transition(ctx, id, from, to, updates)
	if errors.Is(err, repositories.ErrStateChanged) {
		return invalidTransition(id, from, to)
	}
	return err
}

func invalidTransition(id uint, current, to models.WithdrawalStatus) error {
	return apperrors.ErrInvalidTransition.WithMessage("withdrawal %d cannot move from %s to %s", id, current, to)
}

// settled reloads the request after a committed transition and emits the
// matching notification.
func (s *service) settled(ctx context.Context, id uint, event string, data map[string]interface{}) (*models.WithdrawalRequest, error) {
	req, err := s.load(ctx, s.store, id)
	if err != nil {
		return nil, fmt.Errorf("reload withdrawal %d: %w", id, err)
	}
	s.logger.Info("withdrawal", "withdrawal "+string(req.Status), map[string]interface{}{
		"withdrawal_id": req.ID,
		"requester":     req.Requester().String(),
		"amount":        req.Amount.StringFixed(2),
	})
	s.notify(ctx, req, event, data)
	return req, nil
}

func (s *service) notify(ctx context.Context, req *models.WithdrawalRequest, event string, extra map[string]interface{}) {
	data := map[string]interface{}{
		"withdrawal_id": req.ID,
		"amount":        req.Amount.StringFixed(2),
		"currency":      req.Currency,
		"status":        string(req.Status),
	}
	for k, v := range extra {
		data[k] = v
	}
	s.config.Metrics.RecordWithdrawalTransition(string(req.Status))
	s.notifier.Send(ctx, notification.Event{Type: event, Recipient: req.Requester(), Data: data})
}
