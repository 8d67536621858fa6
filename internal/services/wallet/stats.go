package wallet

import (
	"context"
	"errors"
	"time"

	apperrors "sayan/internal/errors"
	"sayan/internal/models"
	"sayan/internal/repositories"

	"github.com/shopspring/decimal"
)

// SourceTotals sums the ledger rows of one source type.
type SourceTotals struct {
	In    decimal.Decimal `json:"in"`
	Out   decimal.Decimal `json:"out"`
	Count int             `json:"count"`
}

// Stats summarises a wallet's ledger over [From, To).
type Stats struct {
	Owner    models.Owner                        `json:"owner"`
	From     time.Time                           `json:"from"`
	To       time.Time                           `json:"to"`
	TotalIn  decimal.Decimal                     `json:"total_in"`
	TotalOut decimal.Decimal                     `json:"total_out"`
	Net      decimal.Decimal                     `json:"net"`
	Count    int                                 `json:"transactions_count"`
	BySource map[models.SourceType]*SourceTotals `json:"by_source"`
}

func newStats(owner models.Owner, from, to time.Time) *Stats {
	return &Stats{
		Owner:    owner,
		From:     from,
		To:       to,
		TotalIn:  decimal.Zero,
		TotalOut: decimal.Zero,
		Net:      decimal.Zero,
		BySource: map[models.SourceType]*SourceTotals{},
	}
}

func (st *Stats) add(t models.WalletTransaction) {
	src, ok := st.BySource[t.SourceType]
	if !ok {
		src = &SourceTotals{In: decimal.Zero, Out: decimal.Zero}
		st.BySource[t.SourceType] = src
	}
	src.Count++
	st.Count++
	if t.Direction == models.DirectionOut {
		src.Out = src.Out.Add(t.Amount)
		st.TotalOut = st.TotalOut.Add(t.Amount)
	} else {
		src.In = src.In.Add(t.Amount)
		st.TotalIn = st.TotalIn.Add(t.Amount)
	}
	st.Net = st.TotalIn.Sub(st.TotalOut)
}

func (s *service) Stats(ctx context.Context, owner models.Owner, from, to time.Time) (*Stats, error) {
	if !owner.Valid() {
		return nil, apperrors.ErrInvalidOwner
	}
	if !from.Before(to) {
		return nil, apperrors.ErrValidation.WithMessage("from must be before to")
	}

	st := newStats(owner, from, to)
	wallet, err := s.GetWallet(ctx, owner)
	if errors.Is(err, apperrors.ErrWalletNotFound) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}

	txs, err := s.store.Wallets().AllTransactions(ctx, wallet.ID, repositories.TransactionFilter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	for _, t := range txs {
		st.add(t)
	}
	return st, nil
}
