package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	apperrors "sayan/internal/errors"
	"sayan/internal/models"
	"sayan/internal/repositories"
	"sayan/internal/services/notification"
	"sayan/internal/services/payout"
	"sayan/internal/services/wallet"

	"gorm.io/datatypes"
)

const reasonTimedOut = "payout submission timed out"

// MarkProcessing moves an approved request to processing and debits the
// wallet in the same transaction. Funds leave the wallet only here.
func (s *service) MarkProcessing(ctx context.Context, id uint) (*models.WithdrawalRequest, error) {
	var owner models.Owner
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		req, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		owner = req.Requester()

		if err := s.move(ctx, tx, id, models.WithdrawalApproved, models.WithdrawalProcessing, map[string]interface{}{
			"processing_at": s.now(),
		}); err != nil {
			return err
		}

		_, err = s.wallets.Post(ctx, tx, models.DirectionOut, wallet.Entry{
			Owner:       owner,
			Amount:      req.Amount,
			SourceType:  models.SourceWithdrawal,
			SourceID:    strconv.FormatUint(uint64(id), 10),
			Description: fmt.Sprintf("Withdrawal #%d", id),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.wallets.InvalidateCache(ctx, owner)
	return s.settled(ctx, id, notification.EventWithdrawalProcessing, nil)
}

func (s *service) Complete(ctx context.Context, id uint, reference string, raw []byte) (*models.WithdrawalRequest, error) {
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		updates := map[string]interface{}{"completed_at": s.now()}
		if reference != "" {
			updates["provider_reference"] = reference
		}
		if err := s.move(ctx, tx, id, models.WithdrawalProcessing, models.WithdrawalCompleted, updates); err != nil {
			return err
		}
		return tx.Withdrawals().AppendPayoutLog(ctx, &models.PayoutLog{
			WithdrawalRequestID: id,
			Status:              models.PayoutLogCompleted,
			ProviderReference:   reference,
			Response:            jsonOrNil(raw),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.settled(ctx, id, notification.EventWithdrawalCompleted, map[string]interface{}{"reference": reference})
}

// Fail moves a processing request to failed and credits the debited amount
// back to the wallet, all in one transaction. The credit is applied even if
// the wallet was deactivated in the meantime.
func (s *service) Fail(ctx context.Context, id uint, reason string, raw []byte) (*models.WithdrawalRequest, error) {
	if reason == "" {
		reason = "payout failed"
	}
	var owner models.Owner
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		req, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		owner = req.Requester()

		if err := s.move(ctx, tx, id, models.WithdrawalProcessing, models.WithdrawalFailed, map[string]interface{}{
			"failed_at":      s.now(),
			"failure_reason": reason,
		}); err != nil {
			return err
		}
		if err := tx.Withdrawals().AppendPayoutLog(ctx, &models.PayoutLog{
			WithdrawalRequestID: id,
			Status:              models.PayoutLogFailed,
			ProviderReference:   req.ProviderReference,
			Message:             reason,
			Response:            jsonOrNil(raw),
		}); err != nil {
			return err
		}

		_, err = s.wallets.Post(ctx, tx, models.DirectionIn, wallet.Entry{
			Owner:       owner,
			Amount:      req.Amount,
			SourceType:  models.SourceRefund,
			SourceID:    strconv.FormatUint(uint64(id), 10),
			Description: fmt.Sprintf("Withdrawal #%d reversed: %s", id, reason),
		})
		return err
	})
	if err != nil {
		s.logger.Error("withdrawal", "failed to record payout failure", map[string]interface{}{
			"withdrawal_id": id,
			"reason":        reason,
			"error":         err,
		})
		return nil, err
	}
	s.wallets.InvalidateCache(ctx, owner)
	return s.settled(ctx, id, notification.EventWithdrawalFailed, map[string]interface{}{"reason": reason})
}

func (s *service) Process(ctx context.Context, id uint) (*models.WithdrawalRequest, error) {
	req, err := s.MarkProcessing(ctx, id)
	if err != nil {
		return nil, err
	}

	// The debit is committed. From here on the request must reach a
	// settled state regardless of what happens to the caller.
	ctx = context.WithoutCancel(ctx)

	dest, err := s.accounts.Destination(ctx, req.BankAccountID)
	if err != nil {
		return s.Fail(ctx, id, "payout destination unavailable: "+err.Error(), nil)
	}

	res, err := s.submit(ctx, req, dest)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = reasonTimedOut
		}
		s.logger.Warn("withdrawal", "payout submission failed", map[string]interface{}{
			"withdrawal_id": id,
			"gateway":       s.gateway.Name(),
			"error":         err,
		})
		return s.Fail(ctx, id, reason, nil)
	}

	switch res.Status {
	case payout.StatusCompleted:
		return s.Complete(ctx, id, res.Reference, res.Raw)
	case payout.StatusFailed:
		reason := res.Message
		if reason == "" {
			reason = "payout rejected by provider"
		}
		return s.Fail(ctx, id, reason, res.Raw)
	default:
		if err := s.store.Withdrawals().SetProviderReference(ctx, id, res.Reference); err != nil {
			if errors.Is(err, repositories.ErrStateChanged) {
				// A provider callback settled the request first.
				return s.load(ctx, s.store, id)
			}
			return nil, err
		}
		return s.load(ctx, s.store, id)
	}
}

// submit calls the gateway with the request id as idempotency key and logs
// the exchange.
func (s *service) submit(ctx context.Context, req *models.WithdrawalRequest, dest payout.Destination) (*payout.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.PayoutTimeout)
	defer cancel()

	res, err := s.gateway.Submit(callCtx, dest, req.Amount, req.Currency, strconv.FormatUint(uint64(req.ID), 10))
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}

	entry := &models.PayoutLog{
		WithdrawalRequestID: req.ID,
		Status:              models.PayoutLogSubmitted,
	}
	if err != nil {
		entry.Status = models.PayoutLogFailed
		entry.Message = err.Error()
	} else {
		entry.ProviderReference = res.Reference
		entry.Message = res.Message
		entry.Response = jsonOrNil(res.Raw)
	}
	if logErr := s.store.Withdrawals().AppendPayoutLog(ctx, entry); logErr != nil {
		s.logger.Error("withdrawal", "failed to append payout log", map[string]interface{}{
			"withdrawal_id": req.ID,
			"error":         logErr,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.gateway.Name(), err)
	}
	return res, nil
}

// HandlePayoutUpdate settles a request from an asynchronous provider
// callback. Replays of an already applied outcome are accepted.
func (s *service) HandlePayoutUpdate(ctx context.Context, update payout.Update) (*models.WithdrawalRequest, error) {
	req, err := s.load(ctx, s.store, update.WithdrawalID)
	if err != nil {
		return nil, err
	}
	if req.ProviderReference != "" && update.Reference != "" && req.ProviderReference != update.Reference {
		return nil, apperrors.ErrValidation.WithMessage("payout reference %s does not match withdrawal %d", update.Reference, req.ID)
	}

	switch update.Status {
	case payout.StatusCompleted:
		if req.Status == models.WithdrawalCompleted {
			return req, nil
		}
		return s.Complete(ctx, req.ID, update.Reference, update.Raw)
	case payout.StatusFailed:
		if req.Status == models.WithdrawalFailed {
			return req, nil
		}
		if req.Status == models.WithdrawalCompleted {
			s.logger.Error("withdrawal", "provider reported failure for completed payout", map[string]interface{}{
				"withdrawal_id": req.ID,
				"reference":     update.Reference,
				"reason":        update.Reason,
			})
		}
		return s.Fail(ctx, req.ID, update.Reason, update.Raw)
	default:
		if req.Status == models.WithdrawalProcessing && req.ProviderReference == "" && update.Reference != "" {
			if err := s.store.Withdrawals().SetProviderReference(ctx, req.ID, update.Reference); err != nil && !errors.Is(err, repositories.ErrStateChanged) {
				return nil, err
			}
			return s.load(ctx, s.store, req.ID)
		}
		return req, nil
	}
}

// SweepStale fails requests stuck in processing without a provider
// reference, which happens when the process died between the debit and the
// gateway answer.
func (s *service) SweepStale(ctx context.Context) (int, error) {
	stale, err := s.store.Withdrawals().ListStaleProcessing(ctx, s.now().Add(-s.config.StaleAfter))
	if err != nil {
		return 0, err
	}

	// One stuck request (a frozen wallet, say) must not hold back the rest.
	swept := 0
	var errs []error
	for _, req := range stale {
		if _, err := s.Fail(ctx, req.ID, reasonTimedOut, nil); err != nil {
			if apperrors.Is(err, apperrors.ErrInvalidTransition) {
				continue
			}
			s.logger.Error("withdrawal", "failed to sweep stale payout", map[string]interface{}{
				"withdrawal_id": req.ID,
				"error":         err.Error(),
			})
			errs = append(errs, fmt.Errorf("withdrawal %d: %w", req.ID, err))
			continue
		}
		swept++
	}
	if swept > 0 || len(errs) > 0 {
		s.logger.Warn("withdrawal", "stale payouts failed", map[string]interface{}{"count": swept, "skipped": len(errs)})
	}
	return swept, errors.Join(errs...)
}

func jsonOrNil(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	return datatypes.JSON(raw)
}
