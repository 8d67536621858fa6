// Package jobs schedules the periodic finance sweeps.
package jobs

import (
	"context"
	"time"

	"sayan/internal/logger"
	"sayan/internal/services/referral"
	"sayan/internal/services/wallet"

	"github.com/robfig/cron/v3"
)

const jobTimeout = 10 * time.Minute

// Schedule holds cron expressions (standard five-field syntax).
type Schedule struct {
	ReferralSweep  string
	PayoutSweep    string
	ReconcileSweep string
}

// StaleSweeper is the part of the withdrawal service the payout job needs.
type StaleSweeper interface {
	SweepStale(ctx context.Context) (int, error)
}

type Runner struct {
	cron        *cron.Cron
	referrals   referral.Service
	withdrawals StaleSweeper
	wallets     wallet.Service
	logger      logger.Logger
}

func NewRunner(referrals referral.Service, withdrawals StaleSweeper, wallets wallet.Service, log logger.Logger) *Runner {
	return &Runner{
		// Skip a run while the previous one is still going.
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		referrals:   referrals,
		withdrawals: withdrawals,
		wallets:     wallets,
		logger:      log,
	}
}

// Register adds every job whose expression is non-empty.
func (r *Runner) Register(s Schedule) error {
	jobs := []struct {
		spec string
		name string
		fn   func(context.Context) error
	}{
		{s.ReferralSweep, "referral_sweep", r.SweepReferrals},
		{s.PayoutSweep, "payout_sweep", r.SweepPayouts},
		{s.ReconcileSweep, "reconcile_all", r.ReconcileAll},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		name, fn := job.name, job.fn
		if _, err := r.cron.AddFunc(job.spec, func() { r.run(name, fn) }); err != nil {
			return err
		}
		r.logger.Info("jobs", "job scheduled", map[string]interface{}{"job": name, "spec": job.spec})
	}
	return nil
}

func (r *Runner) Start() {
	r.cron.Start()
}

// Stop waits for running jobs to finish or ctx to end.
func (r *Runner) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (r *Runner) run(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		r.logger.Error("jobs", "job failed", map[string]interface{}{
			"job":      name,
			"duration": time.Since(start).String(),
			"error":    err,
		})
		return
	}
	r.logger.Debug("jobs", "job finished", map[string]interface{}{
		"job":      name,
		"duration": time.Since(start).String(),
	})
}

func (r *Runner) SweepReferrals(ctx context.Context) error {
	res, err := r.referrals.Sweep(ctx)
	if err != nil {
		return err
	}
	if res.Paid+res.Expired+res.Failed > 0 {
		r.logger.Info("jobs", "referral sweep", map[string]interface{}{
			"paid":    res.Paid,
			"expired": res.Expired,
			"failed":  res.Failed,
		})
	}
	return nil
}

func (r *Runner) SweepPayouts(ctx context.Context) error {
	n, err := r.withdrawals.SweepStale(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Warn("jobs", "stale payouts failed", map[string]interface{}{"count": n})
	}
	return nil
}

// ReconcileAll checks every wallet. Mismatched wallets are frozen and
// reported by the wallet service itself.
func (r *Runner) ReconcileAll(ctx context.Context) error {
	broken, err := r.wallets.ReconcileAll(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("jobs", "reconciliation finished", map[string]interface{}{
		"inconsistent": len(broken),
	})
	return nil
}
