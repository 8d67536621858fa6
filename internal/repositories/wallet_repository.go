package repositories

import (
	"context"
	"time"

	"sayan/internal/models"

	"github.com/shopspring/decimal"
)

// WalletRepository defines the interface for wallet-related database operations
type WalletRepository interface {
	// CreateIfAbsent inserts an empty wallet for owner unless one exists.
	CreateIfAbsent(ctx context.Context, owner models.Owner, currency string) error
	GetByOwner(ctx context.Context, owner models.Owner) (*models.Wallet, error)
	GetByOwnerForUpdate(ctx context.Context, owner models.Owner) (*models.Wallet, error)
	GetByID(ctx context.Context, id uint) (*models.Wallet, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Wallet, error)
	UpdateBalance(ctx context.Context, walletID uint, balance decimal.Decimal) error
	UpdateStatus(ctx context.Context, walletID uint, status models.WalletStatus, reason string) error
	ListIDs(ctx context.Context) ([]uint, error)

	// Ledger rows are append-only; there is no update or delete.
	AppendTransaction(ctx context.Context, tx *models.WalletTransaction) error
	ListTransactions(ctx context.Context, walletID uint, filter TransactionFilter, limit, offset int) ([]models.WalletTransaction, int64, error)
	AllTransactions(ctx context.Context, walletID uint, filter TransactionFilter) ([]models.WalletTransaction, error)
}

// TransactionFilter narrows ledger queries. Zero fields match everything;
// the range is [From, To).
type TransactionFilter struct {
	SourceType models.SourceType
	Direction  models.Direction
	From       *time.Time
	To         *time.Time
}
