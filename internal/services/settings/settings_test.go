package settings

import (
	"context"
	"testing"
	"time"

	apperrors "sayan/internal/errors"
	"sayan/internal/logger"
	"sayan/internal/models"
	"sayan/internal/repositories/dbtest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_CurrentFallsBackToDefaults(t *testing.T) {
	svc := NewService(dbtest.NewStore(t), time.Minute, logger.NewNop())

	s, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Version)
	assert.True(t, decimal.NewFromInt(15).Equal(s.PlatformFeePercent))
	assert.True(t, decimal.NewFromInt(5).Equal(s.RewardAmount(models.RewardFirstPurchase)))
}

func TestService_UpdateBumpsVersionAndInvalidates(t *testing.T) {
	ctx := context.Background()
	svc := NewService(dbtest.NewStore(t), time.Hour, logger.NewNop())

	before, err := svc.Current(ctx)
	require.NoError(t, err)

	after, err := svc.Update(ctx, KeyPlatformFeePercent, "10", nil)
	require.NoError(t, err)
	assert.Greater(t, after.Version, before.Version)
	assert.True(t, decimal.NewFromInt(10).Equal(after.PlatformFeePercent))

	again, err := svc.Update(ctx, KeyPlatformFeePercent, "12", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Version)
}

func TestService_UpdateRejectsBadValues(t *testing.T) {
	svc := NewService(dbtest.NewStore(t), time.Minute, logger.NewNop())

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown key", "favourite_colour", "blue"},
		{"negative amount", KeyMinWithdrawal, "-5"},
		{"percent over 100", KeyVATPercent, "150"},
		{"not a number", KeyMaxWithdrawal, "lots"},
		{"bad currency", KeyCurrency, "RIYAL"},
		{"bad expiry", KeyReferralRewardValidDays, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), tt.key, tt.value, nil)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		})
	}
}

func TestStaticProvider(t *testing.T) {
	d := Defaults()
	got, err := Static(d).Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, d, got)
}
