package wallet

import (
	"context"
	"errors"
	"fmt"

	apperrors "sayan/internal/errors"
	"sayan/internal/models"
	"sayan/internal/repositories"
	"sayan/internal/services/notification"

	"github.com/shopspring/decimal"
)

// FoldBalance recomputes a balance from ledger rows.
func FoldBalance(txs []models.WalletTransaction) decimal.Decimal {
	total := decimal.Zero
	for i := range txs {
		total = total.Add(txs[i].Signed())
	}
	return total
}

// checkChain verifies each row against its own snapshot and against the row
// before it. txs must be in insertion order.
func checkChain(txs []models.WalletTransaction) []string {
	var problems []string
	running := decimal.Zero
	for i := range txs {
		t := &txs[i]
		if !t.BalanceBefore.Equal(running) {
			problems = append(problems, fmt.Sprintf("transaction %d: balance_before %s, expected %s", t.ID, t.BalanceBefore, running))
		}
		if want := t.BalanceBefore.Add(t.Signed()); !t.BalanceAfter.Equal(want) {
			problems = append(problems, fmt.Sprintf("transaction %d: balance_after %s, expected %s", t.ID, t.BalanceAfter, want))
		}
		running = running.Add(t.Signed())
	}
	return problems
}

// Reconcile compares the stored balance with the ledger. On divergence the
// wallet is frozen, an operator is alerted and ErrLedgerMismatch is returned
// along with the report. Nothing is corrected automatically.
func (s *service) Reconcile(ctx context.Context, walletID uint) (*ReconcileReport, error) {
	var report *ReconcileReport
	var froze bool

	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		wallet, err := tx.Wallets().GetByIDForUpdate(ctx, walletID)
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.ErrWalletNotFound
		}
		if err != nil {
			return err
		}

		txs, err := tx.Wallets().AllTransactions(ctx, walletID, repositories.TransactionFilter{})
		if err != nil {
			return err
		}

		report = &ReconcileReport{
			WalletID:        wallet.ID,
			Owner:           wallet.Owner(),
			StoredBalance:   wallet.Balance,
			ComputedBalance: FoldBalance(txs),
			Transactions:    len(txs),
			Problems:        checkChain(txs),
		}
		if !report.ComputedBalance.Equal(report.StoredBalance) {
			report.Problems = append(report.Problems, fmt.Sprintf("stored balance %s, ledger sums to %s",
				report.StoredBalance, report.ComputedBalance))
		}

		if report.Consistent() || wallet.Status == models.WalletFrozen {
			return nil
		}
		froze = true
		return tx.Wallets().UpdateStatus(ctx, wallet.ID, models.WalletFrozen, "ledger mismatch")
	})
	if err != nil {
		s.metrics.RecordError(opReconcile, string(apperrors.KindOf(err)))
		return nil, err
	}

	if report.Consistent() {
		return report, nil
	}

	s.metrics.RecordError(opReconcile, string(apperrors.KindIntegrity))
	s.InvalidateCache(ctx, report.Owner)
	s.logger.Error("wallet", "ledger integrity violation", map[string]interface{}{
		"wallet_id":        report.WalletID,
		"owner":            report.Owner.String(),
		"stored_balance":   report.StoredBalance.String(),
		"computed_balance": report.ComputedBalance.String(),
		"problems":         report.Problems,
		"frozen_now":       froze,
	})
	s.notifier.Send(ctx, notification.Event{
		Type:      notification.EventIntegrityViolation,
		Recipient: models.SystemOwner(),
		Data: map[string]interface{}{
			"wallet_id":        report.WalletID,
			"owner":            report.Owner.String(),
			"stored_balance":   report.StoredBalance.String(),
			"computed_balance": report.ComputedBalance.String(),
		},
	})
	return report, apperrors.ErrLedgerMismatch.WithMessage("wallet %d: stored %s, ledger %s",
		report.WalletID, report.StoredBalance, report.ComputedBalance)
}

// ReconcileAll checks every wallet and returns the inconsistent ones. It keeps
// going past individual failures.
func (s *service) ReconcileAll(ctx context.Context) ([]ReconcileReport, error) {
	ids, err := s.store.Wallets().ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	var broken []ReconcileReport
	var firstErr error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return broken, err
		}
		report, err := s.Reconcile(ctx, id)
		if report != nil && !report.Consistent() {
			broken = append(broken, *report)
			continue
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return broken, firstErr
}
