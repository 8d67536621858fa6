package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type SourceType string

const (
	SourceReferral   SourceType = "referral"
	SourceWithdrawal SourceType = "withdrawal"
	SourceAdmin      SourceType = "admin"
	SourceAdjustment SourceType = "adjustment"
	SourceRefund     SourceType = "refund"
	SourcePayout     SourceType = "payout"
	SourceSettlement SourceType = "settlement"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceReferral, SourceWithdrawal, SourceAdmin, SourceAdjustment, SourceRefund, SourcePayout, SourceSettlement:
		return true
	}
	return false
}

// WalletTransaction is an append-only ledger row. Amount is always positive;
// Direction carries the sign.
type WalletTransaction struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	WalletID      uint            `gorm:"not null;index:idx_wallet_tx_wallet_created" json:"wallet_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null;check:chk_wallet_transactions_amount,amount > 0" json:"amount"`
	Direction     Direction       `gorm:"type:varchar(3);not null;check:chk_wallet_transactions_direction,direction IN ('in','out')" json:"direction"`
	SourceType    SourceType      `gorm:"type:varchar(16);not null;index" json:"source_type"`
	SourceID      string          `gorm:"type:varchar(64);index" json:"source_id"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"balance_after"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `gorm:"index:idx_wallet_tx_wallet_created" json:"created_at"`
}

// Signed returns the amount with the direction applied.
func (t *WalletTransaction) Signed() decimal.Decimal {
	if t.Direction == DirectionOut {
		return t.Amount.Neg()
	}
	return t.Amount
}
