package wallet

import (
	"time"

	"sayan/internal/models"

	"github.com/shopspring/decimal"
)

// Entry describes one ledger mutation. Amount is always positive; the
// direction is chosen by the operation.
type Entry struct {
	Owner       models.Owner
	Amount      decimal.Decimal
	SourceType  models.SourceType
	SourceID    string
	Description string
}

// WalletConfig holds configuration for wallet operations
type WalletConfig struct {
	BalanceCacheTTL time.Duration
}

// ReconcileReport is the outcome of folding a wallet's ledger.
type ReconcileReport struct {
	WalletID        uint            `json:"wallet_id"`
	Owner           models.Owner    `json:"owner"`
	StoredBalance   decimal.Decimal `json:"stored_balance"`
	ComputedBalance decimal.Decimal `json:"computed_balance"`
	Transactions    int             `json:"transactions"`
	Problems        []string        `json:"problems,omitempty"`
}

func (r *ReconcileReport) Consistent() bool {
	return len(r.Problems) == 0
}

// MetricsCollector defines the interface for collecting wallet metrics
type MetricsCollector interface {
	// Operation metrics
	RecordOperationDuration(operation string, duration time.Duration)
	RecordOperationResult(operation, result string)

	// Cache metrics
	RecordCacheHit(key string)
	RecordCacheMiss(key string)

	// Balance metrics
	RecordBalanceChange(walletID uint, oldBalance, newBalance decimal.Decimal)

	// Error metrics
	RecordError(operation, errType string)

	// Transaction metrics
	RecordTransaction(sourceType, direction string, amount decimal.Decimal)
}
