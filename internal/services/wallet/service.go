package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "sayan/internal/errors"
	"sayan/internal/logger"
	"sayan/internal/models"
	"sayan/internal/repositories"
	"sayan/internal/services/notification"
	"sayan/internal/services/settings"

	"github.com/shopspring/decimal"
)

type service struct {
	store    repositories.Store
	cache    BalanceCache
	settings settings.Provider
	notifier notification.Notifier
	logger   logger.Logger
	config   WalletConfig
	metrics  MetricsCollector
}

// NewService creates a new wallet service
func NewService(
	store repositories.Store,
	cache BalanceCache,
	settingsProvider settings.Provider,
	notifier notification.Notifier,
	log logger.Logger,
	config WalletConfig,
	metrics MetricsCollector,
) Service {
	if store == nil {
		panic("store is required")
	}
	if settingsProvider == nil {
		panic("settings provider is required")
	}
	if cache == nil {
		cache = NoopCache{}
	}
	if notifier == nil {
		notifier = notification.Nop{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	if config.BalanceCacheTTL == 0 {
		config.BalanceCacheTTL = DefaultBalanceCacheTTL
	}

	// Metrics is optional, create no-op collector if nil
	if metrics == nil {
		metrics = &NoopMetricsCollector{}
	}

	return &service{
		store:    store,
		cache:    cache,
		settings: settingsProvider,
		notifier: notifier,
		logger:   log,
		config:   config,
		metrics:  metrics,
	}
}

func (s *service) Credit(ctx context.Context, e Entry) (*models.WalletTransaction, error) {
	return s.apply(ctx, opCredit, models.DirectionIn, e)
}

func (s *service) Debit(ctx context.Context, e Entry) (*models.WalletTransaction, error) {
	return s.apply(ctx, opDebit, models.DirectionOut, e)
}

func (s *service) apply(ctx context.Context, op string, dir models.Direction, e Entry) (*models.WalletTransaction, error) {
	start := time.Now()
	defer func() { s.metrics.RecordOperationDuration(op, time.Since(start)) }()

	var entry *models.WalletTransaction
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		var err error
		entry, err = s.Post(ctx, tx, dir, e)
		return err
	})
	if err != nil {
		s.metrics.RecordOperationResult(op, "failure")
		return nil, err
	}

	s.InvalidateCache(ctx, e.Owner)
	s.metrics.RecordOperationResult(op, "success")
	return entry, nil
}

func (s *service) InvalidateCache(ctx context.Context, owners ...models.Owner) {
	for _, owner := range owners {
		if err := s.cache.InvalidateBalance(ctx, owner); err != nil {
			s.logger.Warn("wallet", "failed to invalidate balance cache", map[string]interface{}{
				"owner": owner.String(),
				"error": err,
			})
		}
	}
}

func (s *service) GetBalance(ctx context.Context, owner models.Owner) (decimal.Decimal, error) {
	if !owner.Valid() {
		return decimal.Zero, apperrors.ErrInvalidOwner
	}

	balance, found, err := s.cache.GetBalance(ctx, owner)
	if err != nil {
		s.logger.Warn("wallet", "balance cache read failed", map[string]interface{}{"owner": owner.String(), "error": err})
	}
	if found {
		s.metrics.RecordCacheHit(opBalance)
		return balance, nil
	}
	s.metrics.RecordCacheMiss(opBalance)

	// The version is read before the row so a write that commits in between
	// makes the cache refuse this value.
	version, verr := s.cache.BalanceVersion(ctx, owner)
	if verr != nil {
		s.logger.Warn("wallet", "balance cache version read failed", map[string]interface{}{"owner": owner.String(), "error": verr})
	}

	wallet, err := s.store.Wallets().GetByOwner(ctx, owner)
	if errors.Is(err, repositories.ErrNotFound) {
		// No wallet yet means nothing was ever credited.
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get wallet: %w", err)
	}

	if verr == nil {
		if _, err := s.cache.SetBalance(ctx, owner, wallet.Balance, version, s.config.BalanceCacheTTL); err != nil {
			s.logger.Warn("wallet", "balance cache write failed", map[string]interface{}{"owner": owner.String(), "error": err})
		}
	}
	return wallet.Balance, nil
}

func (s *service) GetWallet(ctx context.Context, owner models.Owner) (*models.Wallet, error) {
	if !owner.Valid() {
		return nil, apperrors.ErrInvalidOwner
	}
	wallet, err := s.store.Wallets().GetByOwner(ctx, owner)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return wallet, nil
}

func (s *service) History(ctx context.Context, owner models.Owner, filter repositories.TransactionFilter, limit, offset int) ([]models.WalletTransaction, int64, error) {
	if filter.SourceType != "" && !filter.SourceType.Valid() {
		return nil, 0, apperrors.ErrValidation.WithMessage("unknown source type %q", filter.SourceType)
	}
	if filter.Direction != "" && filter.Direction != models.DirectionIn && filter.Direction != models.DirectionOut {
		return nil, 0, apperrors.ErrValidation.WithMessage("unknown direction %q", filter.Direction)
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, 0, apperrors.ErrValidation.WithMessage("from must be before to")
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	wallet, err := s.GetWallet(ctx, owner)
	if errors.Is(err, apperrors.ErrWalletNotFound) {
		return []models.WalletTransaction{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return s.store.Wallets().ListTransactions(ctx, wallet.ID, filter, limit, offset)
}

// Deactivate soft-deletes a wallet. History and balance are kept.
func (s *service) Deactivate(ctx context.Context, owner models.Owner, reason string) error {
	wallet, err := s.GetWallet(ctx, owner)
	if err != nil {
		return err
	}
	if wallet.Status == models.WalletFrozen {
		return apperrors.ErrWalletFrozen
	}
	if err := s.store.Wallets().UpdateStatus(ctx, wallet.ID, models.WalletDeactivated, reason); err != nil {
		return err
	}
	s.logger.Info("wallet", "wallet deactivated", map[string]interface{}{
		"wallet_id": wallet.ID,
		"owner":     owner.String(),
		"reason":    reason,
	})
	return nil
}
