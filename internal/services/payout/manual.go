package payout

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ManualGateway is used when no provider is configured. Transfers are made
// by the finance team and reported back through the payout webhook.
type ManualGateway struct {
	secret string
}

func NewManualGateway(webhookSecret string) *ManualGateway {
	return &ManualGateway{secret: webhookSecret}
}

func (g *ManualGateway) Name() string { return "manual" }

func (g *ManualGateway) Submit(_ context.Context, _ Destination, amount decimal.Decimal, currency, idempotencyKey string) (*Result, error) {
	raw, _ := json.Marshal(map[string]string{
		"amount":   amount.StringFixed(2),
		"currency": currency,
		"key":      idempotencyKey,
	})
	return &Result{
		Reference: "manual-" + idempotencyKey,
		Status:    StatusPending,
		Message:   "queued for manual transfer",
		Raw:       raw,
	}, nil
}

type manualUpdate struct {
	WithdrawalID uint   `json:"withdrawal_id"`
	Reference    string `json:"reference"`
	Status       Status `json:"status"`
	Reason       string `json:"reason"`
}

// ParseWebhook expects a JSON body signed with hex(HMAC-SHA256(secret, body)).
func (g *ManualGateway) ParseWebhook(payload []byte, signature string) (*Update, error) {
	if g.secret == "" || signature == "" {
		return nil, ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(payload)
	if !hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), []byte(signature)) {
		return nil, ErrInvalidSignature
	}

	var u manualUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		return nil, fmt.Errorf("decode payout update: %w", err)
	}
	if u.WithdrawalID == 0 || (u.Status != StatusCompleted && u.Status != StatusFailed) {
		return nil, ErrUnhandledEvent
	}
	return &Update{
		WithdrawalID: u.WithdrawalID,
		Reference:    u.Reference,
		Status:       u.Status,
		Reason:       u.Reason,
		Raw:          payload,
	}, nil
}
