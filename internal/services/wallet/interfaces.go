package wallet

import (
	"context"
	"time"

	"sayan/internal/models"
	"sayan/internal/repositories"

	"github.com/shopspring/decimal"
)

// Service defines the main wallet service interface
type Service interface {
	// Core ledger operations. Each runs in its own transaction.
	Credit(ctx context.Context, e Entry) (*models.WalletTransaction, error)
	Debit(ctx context.Context, e Entry) (*models.WalletTransaction, error)

	// Post applies e within a transaction owned by the caller. The caller
	// must call InvalidateCache for the owner once that transaction commits.
	Post(ctx context.Context, tx repositories.Store, dir models.Direction, e Entry) (*models.WalletTransaction, error)
	InvalidateCache(ctx context.Context, owners ...models.Owner)

	// Balance operations
	GetBalance(ctx context.Context, owner models.Owner) (decimal.Decimal, error)
	GetWallet(ctx context.Context, owner models.Owner) (*models.Wallet, error)
	History(ctx context.Context, owner models.Owner, filter repositories.TransactionFilter, limit, offset int) ([]models.WalletTransaction, int64, error)
	// Stats sums the owner's ledger rows in [from, to) by source type.
	Stats(ctx context.Context, owner models.Owner, from, to time.Time) (*Stats, error)

	// Integrity
	Reconcile(ctx context.Context, walletID uint) (*ReconcileReport, error)
	ReconcileAll(ctx context.Context) ([]ReconcileReport, error)

	// Wallet management
	Deactivate(ctx context.Context, owner models.Owner, reason string) error
}

// BalanceCache is satisfied by cache.CacheService. SetBalance must refuse
// the write once InvalidateBalance has moved past version.
type BalanceCache interface {
	GetBalance(ctx context.Context, owner models.Owner) (decimal.Decimal, bool, error)
	BalanceVersion(ctx context.Context, owner models.Owner) (int64, error)
	SetBalance(ctx context.Context, owner models.Owner, balance decimal.Decimal, version int64, ttl time.Duration) (bool, error)
	InvalidateBalance(ctx context.Context, owner models.Owner) error
}

// NoopCache never hits.
type NoopCache struct{}

func (NoopCache) GetBalance(context.Context, models.Owner) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}
func (NoopCache) BalanceVersion(context.Context, models.Owner) (int64, error) { return 0, nil }
func (NoopCache) SetBalance(context.Context, models.Owner, decimal.Decimal, int64, time.Duration) (bool, error) {
	return false, nil
}
func (NoopCache) InvalidateBalance(context.Context, models.Owner) error { return nil }
