package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type WalletStatus string

const (
	WalletActive      WalletStatus = "active"
	WalletFrozen      WalletStatus = "frozen"
	WalletDeactivated WalletStatus = "deactivated"
)

type Wallet struct {
	ID           uint            `gorm:"primarykey" json:"id"`
	OwnerType    OwnerType       `gorm:"type:varchar(16);not null;uniqueIndex:idx_wallet_owner;check:chk_wallets_owner_type,owner_type IN ('student','academy','system')" json:"owner_type"`
	OwnerID      uint            `gorm:"not null;uniqueIndex:idx_wallet_owner" json:"owner_id"`
	Balance      decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0;check:chk_wallets_balance,balance >= 0" json:"balance"`
	Currency     string          `gorm:"type:varchar(3);not null;default:'SAR'" json:"currency"`
	Status       WalletStatus    `gorm:"type:varchar(16);not null;default:'active';check:chk_wallets_status,status IN ('active','frozen','deactivated')" json:"status"`
	StatusReason string          `gorm:"default:''" json:"status_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (w *Wallet) Owner() Owner {
	return Owner{Type: w.OwnerType, ID: w.OwnerID}
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	// Funds only ever arrive through a ledger entry.
	w.Balance = decimal.Zero
	if w.Status == "" {
		w.Status = WalletActive
	}
	return nil
}
