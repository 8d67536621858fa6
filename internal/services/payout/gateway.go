// Package payout adapts external payout providers to the withdrawal
// workflow. Every submission carries an idempotency key so a retried call
// can never pay the same withdrawal twice.
package payout

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	ErrInvalidSignature = errors.New("payout webhook signature mismatch")
	ErrUnhandledEvent   = errors.New("payout webhook event not handled")
)

// Destination is an opened bank account, ready to hand to a provider.
type Destination struct {
	AccountID  uint
	HolderName string
	BankName   string
	IBAN       string
	SwiftCode  string
	// ProviderAccount is the provider-side account id, if registered.
	ProviderAccount string
}

type Result struct {
	Reference string
	Status    Status
	Message   string
	Raw       []byte
}

// Update is an asynchronous status change reported by the provider.
type Update struct {
	WithdrawalID uint
	Reference    string
	Status       Status
	Reason       string
	Raw          []byte
}

type Gateway interface {
	Name() string
	Submit(ctx context.Context, dest Destination, amount decimal.Decimal, currency, idempotencyKey string) (*Result, error)
	// ParseWebhook verifies and decodes a provider callback.
	ParseWebhook(payload []byte, signature string) (*Update, error)
}
