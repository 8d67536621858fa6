// Package settings loads the platform's financial configuration from the
// platform_settings table into a typed, versioned snapshot.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"time"

	apperrors "sayan/internal/errors"
	"sayan/internal/logger"
	"sayan/internal/models"
	"sayan/internal/repositories"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

const (
	KeyCurrency                = "currency"
	KeyPlatformFeePercent      = "platform_fee_percent"
	KeyVATPercent              = "vat_percent"
	KeyMinWithdrawal           = "min_withdrawal"
	KeyMaxWithdrawal           = "max_withdrawal"
	KeyRewardSignup            = "referral_reward_signup"
	KeyRewardFirstPurchase     = "referral_reward_first_purchase"
	KeyRewardCourseCompleted   = "referral_reward_course_completed"
	KeyReferralRewardValidDays = "referral_reward_valid_days"
)

const snapshotKey = "snapshot"

// Settings is an immutable snapshot. Version is the highest row version seen,
// so any edit produces a new version.
type Settings struct {
	Version            int
	Currency           string
	PlatformFeePercent decimal.Decimal
	VATPercent         decimal.Decimal
	MinWithdrawal      decimal.Decimal
	MaxWithdrawal      decimal.Decimal
	ReferralRewards    map[models.RewardType]decimal.Decimal
	ReferralValidFor   time.Duration
}

func (s *Settings) RewardAmount(t models.RewardType) decimal.Decimal {
	return s.ReferralRewards[t]
}

func Defaults() *Settings {
	return &Settings{
		Currency:           "SAR",
		PlatformFeePercent: decimal.NewFromInt(15),
		VATPercent:         decimal.NewFromInt(15),
		MinWithdrawal:      decimal.NewFromInt(50),
		MaxWithdrawal:      decimal.NewFromInt(50000),
		ReferralRewards: map[models.RewardType]decimal.Decimal{
			models.RewardSignup:          decimal.Zero,
			models.RewardFirstPurchase:   decimal.NewFromInt(5),
			models.RewardCourseCompleted: decimal.Zero,
		},
		ReferralValidFor: 90 * 24 * time.Hour,
	}
}

// DefaultRows is what the seeder writes on a fresh database.
func DefaultRows() map[string]string {
	d := Defaults()
	return map[string]string{
		KeyCurrency:                d.Currency,
		KeyPlatformFeePercent:      d.PlatformFeePercent.String(),
		KeyVATPercent:              d.VATPercent.String(),
		KeyMinWithdrawal:           d.MinWithdrawal.String(),
		KeyMaxWithdrawal:           d.MaxWithdrawal.String(),
		KeyRewardSignup:            d.RewardAmount(models.RewardSignup).String(),
		KeyRewardFirstPurchase:     d.RewardAmount(models.RewardFirstPurchase).String(),
		KeyRewardCourseCompleted:   d.RewardAmount(models.RewardCourseCompleted).String(),
		KeyReferralRewardValidDays: "90",
	}
}

type Provider interface {
	Current(ctx context.Context) (*Settings, error)
}

type staticProvider struct {
	s *Settings
}

// Static returns a Provider that always yields s.
func Static(s *Settings) Provider {
	return staticProvider{s: s}
}

func (p staticProvider) Current(context.Context) (*Settings, error) {
	return p.s, nil
}

type Service struct {
	store  repositories.Store
	cache  *gocache.Cache
	logger logger.Logger
}

func NewService(store repositories.Store, ttl time.Duration, log logger.Logger) *Service {
	return &Service{
		store:  store,
		cache:  gocache.New(ttl, 2*ttl),
		logger: log,
	}
}

func (s *Service) Current(ctx context.Context) (*Settings, error) {
	if x, found := s.cache.Get(snapshotKey); found {
		return x.(*Settings), nil
	}

	rows, err := s.store.Settings().All(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := build(rows)
	if err != nil {
		return nil, err
	}
	s.cache.Set(snapshotKey, snap, gocache.DefaultExpiration)
	return snap, nil
}

// Update validates and stores one key, then drops the cached snapshot.
func (s *Service) Update(ctx context.Context, key, value string, updatedBy *uint) (*Settings, error) {
	known, err := apply(Defaults(), key, value)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, apperrors.ErrValidation.WithMessage("unknown setting %s", key)
	}
	row, err := s.store.Settings().Upsert(ctx, key, value, updatedBy)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(snapshotKey)
	s.logger.Info("settings", "platform setting updated", map[string]interface{}{
		"key":     key,
		"value":   value,
		"version": row.Version,
	})
	return s.Current(ctx)
}

func build(rows []models.PlatformSetting) (*Settings, error) {
	snap := Defaults()
	for _, row := range rows {
		if row.Version > snap.Version {
			snap.Version = row.Version
		}
		if _, err := apply(snap, row.Key, row.Value); err != nil {
			return nil, err
		}
	}
	if snap.MaxWithdrawal.LessThan(snap.MinWithdrawal) {
		return nil, apperrors.ErrValidation.WithMessage("max_withdrawal is below min_withdrawal")
	}
	return snap, nil
}

// apply writes key into snap. Unknown keys are ignored on load but rejected
// by Update, which is why it reports whether the key was recognised.
func apply(snap *Settings, key, value string) (bool, error) {
	parseAmount := func() (decimal.Decimal, error) {
		d, err := decimal.NewFromString(value)
		if err != nil || d.IsNegative() {
			return decimal.Zero, apperrors.ErrValidation.WithMessage("setting %s must be a non-negative number", key)
		}
		return d, nil
	}
	parsePercent := func() (decimal.Decimal, error) {
		d, err := parseAmount()
		if err != nil {
			return d, err
		}
		if d.GreaterThan(decimal.NewFromInt(100)) {
			return decimal.Zero, apperrors.ErrValidation.WithMessage("setting %s must be between 0 and 100", key)
		}
		return d, nil
	}

	var err error
	switch key {
	case KeyCurrency:
		if len(value) != 3 {
			return true, apperrors.ErrValidation.WithMessage("currency must be a 3 letter code")
		}
		snap.Currency = value
	case KeyPlatformFeePercent:
		snap.PlatformFeePercent, err = parsePercent()
	case KeyVATPercent:
		snap.VATPercent, err = parsePercent()
	case KeyMinWithdrawal:
		snap.MinWithdrawal, err = parseAmount()
	case KeyMaxWithdrawal:
		snap.MaxWithdrawal, err = parseAmount()
	case KeyRewardSignup:
		snap.ReferralRewards[models.RewardSignup], err = parseAmount()
	case KeyRewardFirstPurchase:
		snap.ReferralRewards[models.RewardFirstPurchase], err = parseAmount()
	case KeyRewardCourseCompleted:
		snap.ReferralRewards[models.RewardCourseCompleted], err = parseAmount()
	case KeyReferralRewardValidDays:
		days, convErr := strconv.Atoi(value)
		if convErr != nil || days <= 0 {
			return true, apperrors.ErrValidation.WithMessage("%s must be a positive integer", key)
		}
		snap.ReferralValidFor = time.Duration(days) * 24 * time.Hour
	default:
		return false, nil
	}
	if err != nil {
		return true, fmt.Errorf("invalid setting %s: %w", key, err)
	}
	return true, nil
}
