package payout

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestManualGateway_SubmitIsPending(t *testing.T) {
	gw := NewManualGateway("s3cret")
	res, err := gw.Submit(context.Background(), Destination{}, decimal.NewFromInt(50), "SAR", "7")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, "manual-7", res.Reference)
}

func TestManualGateway_ParseWebhook(t *testing.T) {
	gw := NewManualGateway("s3cret")
	body := []byte(`{"withdrawal_id":7,"reference":"TRX-1","status":"completed"}`)

	update, err := gw.ParseWebhook(body, sign("s3cret", body))
	require.NoError(t, err)
	assert.Equal(t, uint(7), update.WithdrawalID)
	assert.Equal(t, StatusCompleted, update.Status)

	_, err = gw.ParseWebhook(body, sign("wrong", body))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	pending := []byte(`{"withdrawal_id":7,"status":"pending"}`)
	_, err = gw.ParseWebhook(pending, sign("s3cret", pending))
	assert.ErrorIs(t, err, ErrUnhandledEvent)
}

func TestManualGateway_RejectsWithoutSecret(t *testing.T) {
	gw := NewManualGateway("")
	forged := []byte(`{"withdrawal_id":1,"status":"failed"}`)

	_, err := gw.ParseWebhook(forged, sign("", forged))
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = gw.ParseWebhook(forged, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
