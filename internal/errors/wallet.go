package errors

var (
	ErrInsufficientFunds = newError(KindInsufficientFunds, "INSUFFICIENT_FUNDS", "insufficient wallet balance")
	ErrInvalidAmount     = newError(KindValidation, "INVALID_AMOUNT", "amount must be positive with at most two decimals")
	ErrInvalidOwner      = newError(KindValidation, "INVALID_OWNER", "invalid wallet owner")
	ErrInvalidSource     = newError(KindValidation, "INVALID_SOURCE", "invalid transaction source type")
	ErrWalletNotFound    = newError(KindNotFound, "WALLET_NOT_FOUND", "wallet not found")
	ErrWalletFrozen      = newError(KindIntegrity, "WALLET_FROZEN", "wallet is frozen pending integrity review")
	ErrWalletInactive    = newError(KindConflict, "WALLET_INACTIVE", "wallet is deactivated")
	ErrLedgerMismatch    = newError(KindIntegrity, "LEDGER_MISMATCH", "wallet balance diverges from transaction history")
)
