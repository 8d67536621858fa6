package wallet

import (
	"context"
	"errors"
	"fmt"

	apperrors "sayan/internal/errors"
	"sayan/internal/models"
	"sayan/internal/repositories"

	"github.com/shopspring/decimal"
)

// ValidAmount reports whether amount is positive with at most two decimals.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

func validateEntry(e Entry) error {
	if !e.Owner.Valid() {
		return apperrors.ErrInvalidOwner
	}
	if !ValidAmount(e.Amount) {
		return apperrors.ErrInvalidAmount
	}
	if !e.SourceType.Valid() {
		return apperrors.ErrInvalidSource
	}
	return nil
}

func (s *service) Post(ctx context.Context, tx repositories.Store, dir models.Direction, e Entry) (*models.WalletTransaction, error) {
	op := opCredit
	if dir == models.DirectionOut {
		op = opDebit
	}

	entry, err := s.post(ctx, tx, dir, e)
	if err != nil {
		s.metrics.RecordError(op, string(apperrors.KindOf(err)))
		return nil, err
	}
	s.metrics.RecordTransaction(string(e.SourceType), string(dir), e.Amount)
	return entry, nil
}

func (s *service) post(ctx context.Context, tx repositories.Store, dir models.Direction, e Entry) (*models.WalletTransaction, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}
	if dir != models.DirectionIn && dir != models.DirectionOut {
		return nil, fmt.Errorf("unsupported direction: %s", dir)
	}

	wallets := tx.Wallets()
	if dir == models.DirectionIn {
		cfg, err := s.settings.Current(ctx)
		if err != nil {
			return nil, err
		}
		if err := wallets.CreateIfAbsent(ctx, e.Owner, cfg.Currency); err != nil {
			return nil, err
		}
	}

	wallet, err := wallets.GetByOwnerForUpdate(ctx, e.Owner)
	if errors.Is(err, repositories.ErrNotFound) {
		// A debit against a wallet that was never credited.
		return nil, apperrors.ErrInsufficientFunds
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	switch wallet.Status {
	case models.WalletFrozen:
		return nil, apperrors.ErrWalletFrozen
	case models.WalletDeactivated:
		// Incoming funds are still accepted so compensation and refunds
		// cannot be lost.
		if dir == models.DirectionOut {
			return nil, apperrors.ErrWalletInactive
		}
	}

	before := wallet.Balance
	var after decimal.Decimal
	if dir == models.DirectionIn {
		after = before.Add(e.Amount)
	} else {
		if before.LessThan(e.Amount) {
			return nil, apperrors.ErrInsufficientFunds
		}
		after = before.Sub(e.Amount)
	}

	if err := wallets.UpdateBalance(ctx, wallet.ID, after); err != nil {
		return nil, err
	}

	entry := &models.WalletTransaction{
		WalletID:      wallet.ID,
		Amount:        e.Amount,
		Direction:     dir,
		SourceType:    e.SourceType,
		SourceID:      e.SourceID,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   e.Description,
	}
	if err := wallets.AppendTransaction(ctx, entry); err != nil {
		return nil, err
	}

	s.metrics.RecordBalanceChange(wallet.ID, before, after)
	return entry, nil
}
