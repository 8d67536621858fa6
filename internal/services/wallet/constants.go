package wallet

import "time"

const (
	DefaultBalanceCacheTTL = 5 * time.Minute
	DefaultHistoryLimit    = 20
	MaxHistoryLimit        = 100
)

const (
	opCredit    = "credit"
	opDebit     = "debit"
	opBalance   = "get_balance"
	opReconcile = "reconcile"
)
