package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalApproved   WithdrawalStatus = "approved"
	WithdrawalRejected   WithdrawalStatus = "rejected"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
)

func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalRejected || s == WithdrawalCompleted || s == WithdrawalFailed
}

type WithdrawalRequest struct {
	ID                uint             `gorm:"primarykey" json:"id"`
	WalletID          uint             `gorm:"not null;index" json:"wallet_id"`
	RequesterType     OwnerType        `gorm:"type:varchar(16);not null" json:"requester_type"`
	RequesterID       uint             `gorm:"not null" json:"requester_id"`
	BankAccountID     uint             `gorm:"not null" json:"bank_account_id"`
	Amount            decimal.Decimal  `gorm:"type:numeric(20,2);not null;check:chk_withdrawal_requests_amount,amount > 0" json:"amount"`
	Currency          string           `gorm:"type:varchar(3);not null" json:"currency"`
	Status            WithdrawalStatus `gorm:"type:varchar(16);not null;default:'pending';index;check:chk_withdrawal_requests_status,status IN ('pending','approved','rejected','processing','completed','failed')" json:"status"`
	ApprovedBy        *uint            `json:"approved_by,omitempty"`
	RejectedBy        *uint            `json:"rejected_by,omitempty"`
	RejectionReason   string           `json:"rejection_reason,omitempty"`
	FailureReason     string           `json:"failure_reason,omitempty"`
	ProviderReference string           `gorm:"type:varchar(128);index" json:"provider_reference,omitempty"`
	ApprovedAt        *time.Time       `json:"approved_at,omitempty"`
	RejectedAt        *time.Time       `json:"rejected_at,omitempty"`
	ProcessingAt      *time.Time       `json:"processing_at,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	FailedAt          *time.Time       `json:"failed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (r *WithdrawalRequest) Requester() Owner {
	return Owner{Type: r.RequesterType, ID: r.RequesterID}
}

type PayoutLogStatus string

const (
	PayoutLogSubmitted PayoutLogStatus = "submitted"
	PayoutLogCompleted PayoutLogStatus = "completed"
	PayoutLogFailed    PayoutLogStatus = "failed"
)

// PayoutLog records every exchange with the payout provider.
type PayoutLog struct {
	ID                  uint            `gorm:"primarykey" json:"id"`
	WithdrawalRequestID uint            `gorm:"not null;index" json:"withdrawal_request_id"`
	Status              PayoutLogStatus `gorm:"type:varchar(16);not null" json:"status"`
	ProviderReference   string          `gorm:"type:varchar(128)" json:"provider_reference,omitempty"`
	Message             string          `json:"message,omitempty"`
	Response            datatypes.JSON  `json:"response,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

type BankAccount struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	OwnerType  OwnerType `gorm:"type:varchar(16);not null;index:idx_bank_account_owner" json:"owner_type"`
	OwnerID    uint      `gorm:"not null;index:idx_bank_account_owner" json:"owner_id"`
	HolderName string    `gorm:"not null" json:"holder_name"`
	BankName   string    `gorm:"not null" json:"bank_name"`
	SealedIBAN string    `gorm:"column:sealed_iban;not null" json:"-"`
	IBANLast4  string    `gorm:"column:iban_last4;type:varchar(4)" json:"iban_last4"`
	SwiftCode  string    `gorm:"type:varchar(11)" json:"swift_code,omitempty"`
	// PayoutDestination is the provider-side id of this account, when one
	// has been registered with the payout provider.
	PayoutDestination string    `gorm:"type:varchar(64)" json:"-"`
	IsDefault         bool      `gorm:"not null;default:false" json:"is_default"`
	IsActive          bool      `gorm:"not null" json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (b *BankAccount) Owner() Owner {
	return Owner{Type: b.OwnerType, ID: b.OwnerID}
}
