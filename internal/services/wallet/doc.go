/*
Package wallet implements the double-entry style ledger behind every balance
on the platform.

Every balance change is one WalletTransaction row written in the same database
transaction as the wallet update, with the wallet row locked for the duration:

	tx, err := svc.Credit(ctx, wallet.Entry{
	    Owner:      models.AcademyOwner(academyID),
	    Amount:     decimal.RequireFromString("85.00"),
	    SourceType: models.SourceSettlement,
	    SourceID:   paymentNumber,
	})

Services that need several ledger entries to commit together (settlement,
withdrawal processing, compensation) call Post with the Store they received
from ExecuteInTransaction and invalidate the balance cache after commit.

Wallets are created lazily on the first credit and are never deleted. A wallet
whose stored balance disagrees with its ledger is frozen by Reconcile and
refuses further mutation until an operator intervenes.

Error Handling:

  - errors.ErrInvalidAmount: amount is not positive or has more than two decimals
  - errors.ErrInsufficientFunds: debit larger than the balance
  - errors.ErrWalletFrozen: wallet is under integrity hold
  - errors.ErrWalletInactive: debit against a deactivated wallet
  - errors.ErrLedgerMismatch: reconciliation found a divergence
*/
package wallet
