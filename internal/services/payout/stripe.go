package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	apperrors "sayan/internal/errors"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	stripepayout "github.com/stripe/stripe-go/v72/payout"
	"github.com/stripe/stripe-go/v72/webhook"
)

const metadataWithdrawalID = "withdrawal_request_id"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	MaxRetries    int64
	// URL overrides the API endpoint. Empty means the live Stripe API.
	URL string
}

type StripeGateway struct {
	client        stripepayout.Client
	webhookSecret string
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
	}
	if cfg.URL != "" {
		backendCfg.URL = stripe.String(cfg.URL)
	}
	return &StripeGateway{
		client: stripepayout.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
		webhookSecret: cfg.WebhookSecret,
	}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) Submit(ctx context.Context, dest Destination, amount decimal.Decimal, currency, idempotencyKey string) (*Result, error) {
	params := &stripe.PayoutParams{
		Amount:      stripe.Int64(amount.Shift(2).IntPart()),
		Currency:    stripe.String(strings.ToLower(currency)),
		Description: stripe.String(fmt.Sprintf("Withdrawal %s", idempotencyKey)),
	}
	if dest.ProviderAccount != "" {
		params.Destination = stripe.String(dest.ProviderAccount)
	}
	params.Context = ctx
	params.SetIdempotencyKey("withdrawal-" + idempotencyKey)
	params.AddMetadata(metadataWithdrawalID, idempotencyKey)
	params.AddMetadata("bank_account_id", strconv.FormatUint(uint64(dest.AccountID), 10))

	po, err := g.client.New(params)
	if err != nil {
		return nil, apperrors.ErrPayoutFailed.Wrap(fmt.Errorf("stripe payout: %w", err))
	}

	res := &Result{
		Reference: po.ID,
		Status:    mapStripeStatus(po.Status),
		Message:   po.FailureMessage,
	}
	if po.LastResponse != nil {
		res.Raw = po.LastResponse.RawJSON
	}
	return res, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Update, error) {
	if g.webhookSecret == "" {
		return nil, ErrInvalidSignature
	}
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !strings.HasPrefix(event.Type, "payout.") || event.Data == nil {
		return nil, ErrUnhandledEvent
	}

	var po stripe.Payout
	if err := json.Unmarshal(event.Data.Raw, &po); err != nil {
		return nil, fmt.Errorf("decode payout event: %w", err)
	}
	id, err := strconv.ParseUint(po.Metadata[metadataWithdrawalID], 10, 64)
	if err != nil {
		return nil, ErrUnhandledEvent
	}

	return &Update{
		WithdrawalID: uint(id),
		Reference:    po.ID,
		Status:       mapStripeStatus(po.Status),
		Reason:       po.FailureMessage,
		Raw:          event.Data.Raw,
	}, nil
}

func mapStripeStatus(s stripe.PayoutStatus) Status {
	switch s {
	case stripe.PayoutStatusPaid:
		return StatusCompleted
	case stripe.PayoutStatusFailed, stripe.PayoutStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}
