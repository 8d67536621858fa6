// Package referral creates and pays rewards owed to students whose referral
// coupons brought in new paying students.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	apperrors "sayan/internal/errors"
	"sayan/internal/logger"
	"sayan/internal/models"
	"sayan/internal/repositories"
	"sayan/internal/services/notification"
	"sayan/internal/services/settings"
	"sayan/internal/services/wallet"
)

const SweepBatchSize = 100

type Grant struct {
	ReferrerID     uint
	ReferredUserID uint
	Type           models.RewardType
	CouponID       *uint
	PaymentID      *uint
}

type SweepResult struct {
	Paid    int `json:"paid"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

type Service interface {
	// CreateTx records a pending reward inside the caller's transaction. It
	// returns nil when the reward already exists or its amount is zero.
	CreateTx(ctx context.Context, tx repositories.Store, g Grant) (*models.ReferralReward, error)
	// PayTx credits the referrer and marks the reward paid inside the
	// caller's transaction. The caller invalidates the referrer's cached
	// balance after commit.
	PayTx(ctx context.Context, tx repositories.Store, reward *models.ReferralReward) error

	// Paid runs the post-commit side effects of a reward paid with PayTx.
	Paid(ctx context.Context, reward *models.ReferralReward)

	Award(ctx context.Context, g Grant) (*models.ReferralReward, error)
	PayReward(ctx context.Context, id uint) (*models.ReferralReward, error)
	Sweep(ctx context.Context) (SweepResult, error)
	ListByReferrer(ctx context.Context, referrerID uint) ([]models.ReferralReward, error)
}

type service struct {
	store    repositories.Store
	wallets  wallet.Service
	settings settings.Provider
	notifier notification.Notifier
	logger   logger.Logger
	now      func() time.Time
}

func NewService(store repositories.Store, wallets wallet.Service, settingsProvider settings.Provider, notifier notification.Notifier, log logger.Logger) Service {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	return &service{
		store:    store,
		wallets:  wallets,
		settings: settingsProvider,
		notifier: notifier,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) CreateTx(ctx context.Context, tx repositories.Store, g Grant) (*models.ReferralReward, error) {
	if g.ReferrerID == 0 || g.ReferredUserID == 0 {
		return nil, apperrors.ErrValidation.WithMessage("referrer and referred user are required")
	}
	if g.ReferrerID == g.ReferredUserID {
		return nil, apperrors.ErrValidation.WithMessage("students cannot refer themselves")
	}

	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	amount := cfg.RewardAmount(g.Type)
	if !amount.IsPositive() {
		return nil, nil
	}

	reward := &models.ReferralReward{
		ReferrerID:     g.ReferrerID,
		ReferredUserID: g.ReferredUserID,
		RewardType:     g.Type,
		CouponID:       g.CouponID,
		PaymentID:      g.PaymentID,
		Amount:         amount,
		Status:         models.RewardPending,
	}
	if cfg.ReferralValidFor > 0 {
		expires := s.now().Add(cfg.ReferralValidFor)
		reward.ExpiresAt = &expires
	}

	inserted, err := tx.Referrals().CreateIfAbsent(ctx, reward)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}
	return reward, nil
}

func (s *service) PayTx(ctx context.Context, tx repositories.Store, reward *models.ReferralReward) error {
	if reward.Status != models.RewardPending {
		return apperrors.ErrConflict.WithMessage("referral reward %d is %s", reward.ID, reward.Status)
	}
	if s.expired(reward) {
		return apperrors.ErrRewardExpired
	}

	// The credit goes first: a refused credit leaves nothing written and the
	// reward stays pending for the sweep.
	if _, err := s.wallets.Post(ctx, tx, models.DirectionIn, wallet.Entry{
		Owner:       models.StudentOwner(reward.ReferrerID),
		Amount:      reward.Amount,
		SourceType:  models.SourceReferral,
		SourceID:    strconv.FormatUint(uint64(reward.ID), 10),
		Description: fmt.Sprintf("Referral reward (%s)", reward.RewardType),
	}); err != nil {
		return err
	}

	paidAt := s.now()
	err := tx.Referrals().Transition(ctx, reward.ID, models.RewardPending, models.RewardPaid, map[string]interface{}{
		"paid_at": paidAt,
	})
	if errors.Is(err, repositories.ErrStateChanged) {
		return apperrors.ErrConflict.WithMessage("referral reward %d was settled concurrently", reward.ID)
	}
	if err != nil {
		return err
	}
	reward.Status = models.RewardPaid
	reward.PaidAt = &paidAt
	return nil
}

func (s *service) Award(ctx context.Context, g Grant) (*models.ReferralReward, error) {
	var reward *models.ReferralReward
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		var err error
		reward, err = s.CreateTx(ctx, tx, g)
		return err
	})
	if err != nil || reward == nil {
		return nil, err
	}
	return s.PayReward(ctx, reward.ID)
}

func (s *service) PayReward(ctx context.Context, id uint) (*models.ReferralReward, error) {
	var reward *models.ReferralReward
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		var err error
		reward, err = tx.Referrals().GetByID(ctx, id)
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.ErrRewardNotFound
		}
		if err != nil {
			return err
		}
		return s.PayTx(ctx, tx, reward)
	})
	if err != nil {
		return nil, err
	}
	s.Paid(ctx, reward)
	return reward, nil
}

func (s *service) Paid(ctx context.Context, reward *models.ReferralReward) {
	owner := models.StudentOwner(reward.ReferrerID)
	s.wallets.InvalidateCache(ctx, owner)
	s.logger.Info("referral", "referral reward paid", map[string]interface{}{
		"reward_id":   reward.ID,
		"referrer_id": reward.ReferrerID,
		"amount":      reward.Amount.StringFixed(2),
	})
	s.notifier.Send(ctx, notification.Event{
		Type:      notification.EventReferralRewardPaid,
		Recipient: owner,
		Data: map[string]interface{}{
			"reward_id":   reward.ID,
			"reward_type": string(reward.RewardType),
			"amount":      reward.Amount.StringFixed(2),
		},
	})
}

// Sweep expires overdue pending rewards and retries payment of the rest.
func (s *service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	pending, err := s.store.Referrals().ListPending(ctx, SweepBatchSize)
	if err != nil {
		return res, err
	}

	for i := range pending {
		reward := &pending[i]
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if s.expired(reward) {
			err := s.store.Referrals().Transition(ctx, reward.ID, models.RewardPending, models.RewardExpired, nil)
			if err != nil && !errors.Is(err, repositories.ErrStateChanged) {
				return res, err
			}
			if err == nil {
				res.Expired++
			}
			continue
		}

		if _, err := s.PayReward(ctx, reward.ID); err != nil {
			res.Failed++
			s.logger.Warn("referral", "referral reward payment failed", map[string]interface{}{
				"reward_id": reward.ID,
				"error":     err,
			})
			continue
		}
		res.Paid++
	}

	if res != (SweepResult{}) {
		s.logger.Info("referral", "referral sweep finished", map[string]interface{}{
			"paid":    res.Paid,
			"expired": res.Expired,
			"failed":  res.Failed,
		})
	}
	return res, nil
}

func (s *service) ListByReferrer(ctx context.Context, referrerID uint) ([]models.ReferralReward, error) {
	return s.store.Referrals().ListByReferrer(ctx, referrerID)
}

func (s *service) expired(r *models.ReferralReward) bool {
	return r.ExpiresAt != nil && s.now().After(*r.ExpiresAt)
}
