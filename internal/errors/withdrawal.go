package errors

var (
	ErrWithdrawalNotFound     = newError(KindNotFound, "WITHDRAWAL_NOT_FOUND", "withdrawal request not found")
	ErrWithdrawalBelowMinimum = newError(KindValidation, "WITHDRAWAL_BELOW_MINIMUM", "amount is below the minimum withdrawal")
	ErrWithdrawalAboveMaximum = newError(KindValidation, "WITHDRAWAL_ABOVE_MAXIMUM", "amount exceeds the maximum withdrawal")
	ErrInvalidTransition      = newError(KindConflict, "INVALID_TRANSITION", "withdrawal is not in the expected state")
	ErrBankAccountNotFound    = newError(KindNotFound, "BANK_ACCOUNT_NOT_FOUND", "bank account not found")
	ErrBankAccountInactive    = newError(KindValidation, "BANK_ACCOUNT_INACTIVE", "bank account is not active")
	ErrPayoutFailed           = newError(KindExternalService, "PAYOUT_FAILED", "payout provider call failed")
)
