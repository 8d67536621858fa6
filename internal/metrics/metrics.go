// Package metrics exposes Prometheus instruments for the finance services.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

type Collector struct {
	operationDuration *prometheus.HistogramVec
	operationResults  *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	balanceChanges    *prometheus.CounterVec
	errors            *prometheus.CounterVec
	transactions      *prometheus.CounterVec
	transactionVolume *prometheus.CounterVec
	withdrawals       *prometheus.CounterVec
	settlements       *prometheus.CounterVec
}

// New registers the instruments on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		operationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sayan_wallet_operation_duration_seconds",
				Help:    "Wallet operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sayan_wallet_operations_total",
				Help: "Wallet operations by result",
			},
			[]string{"operation", "result"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sayan_balance_cache_lookups_total",
				Help: "Balance cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		balanceChanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sayan_wallet_balance_changes_total",
				Help: "Balance changes by direction",
			},
			[]string{"direction"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sayan_wallet_errors_total",
				Help: "Wallet errors by operation and kind",
			},
			[]string{"operation", "kind"},
		),
		transactions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sayan_wallet_transactions_total",
				Help: "Ledger entries by source type and direction",
			},
			[]string{"source_type", "direction"},
		),
		transactionVolume: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sayan_wallet_transaction_volume",
				Help: "Ledger volume in currency units",
			},
			[]string{"direction"},
		),
		withdrawals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sayan_withdrawal_transitions_total",
				Help: "Withdrawal state transitions",
			},
			[]string{"status"},
		),
		settlements: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sayan_payment_webhooks_total",
				Help: "Payment webhook outcomes",
			},
			[]string{"event", "outcome"},
		),
	}
}

func (c *Collector) RecordOperationDuration(operation string, d time.Duration) {
	c.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (c *Collector) RecordOperationResult(operation, result string) {
	c.operationResults.WithLabelValues(operation, result).Inc()
}

func (c *Collector) RecordCacheHit(string) {
	c.cacheLookups.WithLabelValues("hit").Inc()
}

func (c *Collector) RecordCacheMiss(string) {
	c.cacheLookups.WithLabelValues("miss").Inc()
}

func (c *Collector) RecordBalanceChange(_ uint, oldBalance, newBalance decimal.Decimal) {
	dir := "in"
	if newBalance.LessThan(oldBalance) {
		dir = "out"
	}
	c.balanceChanges.WithLabelValues(dir).Inc()
}

func (c *Collector) RecordError(operation, kind string) {
	c.errors.WithLabelValues(operation, kind).Inc()
}

func (c *Collector) RecordTransaction(sourceType, direction string, amount decimal.Decimal) {
	c.transactions.WithLabelValues(sourceType, direction).Inc()
	c.transactionVolume.WithLabelValues(direction).Add(amount.InexactFloat64())
}

func (c *Collector) RecordWithdrawalTransition(status string) {
	c.withdrawals.WithLabelValues(status).Inc()
}

func (c *Collector) RecordWebhook(event, outcome string) {
	c.settlements.WithLabelValues(event, outcome).Inc()
}
