package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "sayan/internal/errors"
	"sayan/internal/models"
	"sayan/internal/repositories"
	"sayan/internal/services/notification"
	"sayan/internal/services/referral"
	"sayan/internal/services/wallet"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type webhookPayload struct {
	Type string      `json:"type"`
	Data webhookData `json:"data"`
}

type webhookData struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Source   struct {
		Message string `json:"message"`
	} `json:"source"`
	Metadata struct {
		PaymentNumber string `json:"payment_number"`
	} `json:"metadata"`
}

// amount converts the gateway's minor units (halalas) to a decimal.
func (d webhookData) amount() decimal.Decimal {
	return decimal.New(d.Amount, -2)
}

// VerifySignature checks hex(HMAC-SHA256(secret, body)). Nothing verifies
// against an empty secret.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if !VerifySignature(s.config.WebhookSecret, payload, signature) {
		s.logger.Warn("payment", "webhook signature mismatch", map[string]interface{}{"size": len(payload)})
		s.metrics.RecordWebhook("unknown", OutcomeRejected)
		return nil, apperrors.ErrInvalidSignature
	}

	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apperrors.ErrInvalidWebhook.Wrap(err)
	}
	if p.Type == "" || p.Data.ID == "" || p.Data.Metadata.PaymentNumber == "" {
		return nil, apperrors.ErrInvalidWebhook
	}

	res := &WebhookResult{Event: p.Type, PaymentNumber: p.Data.Metadata.PaymentNumber}
	var err error
	switch p.Type {
	case EventPaid:
		res.Payment, res.Outcome, err = s.settle(ctx, p.Data)
	case EventFailed:
		res.Payment, res.Outcome, err = s.fail(ctx, p.Data)
	case EventRefunded:
		res.Payment, res.Outcome, err = s.refund(ctx, p.Data)
	default:
		res.Outcome = OutcomeIgnored
	}

	outcome := res.Outcome
	if err != nil {
		outcome = OutcomeRejected
	}
	s.metrics.RecordWebhook(p.Type, outcome)
	s.logDelivery(ctx, p, res.Payment, payload, outcome, err)

	if err != nil {
		return nil, err
	}
	return res, nil
}

// logDelivery appends the raw callback to the gateway log. It runs outside
// the settlement transaction so rejected deliveries are kept as well.
func (s *service) logDelivery(ctx context.Context, p webhookPayload, payment *models.Payment, payload []byte, outcome string, cause error) {
	entry := &models.PaymentGatewayLog{
		GatewayTransactionID: p.Data.ID,
		EventType:            p.Type,
		Outcome:              outcome,
		Payload:              datatypes.JSON(payload),
	}
	if payment != nil {
		entry.PaymentID = &payment.ID
	}
	if err := s.store.Invoices().AppendGatewayLog(ctx, entry); err != nil {
		s.logger.Error("payment", "failed to append gateway log", map[string]interface{}{
			"gateway_transaction_id": p.Data.ID,
			"error":                  err,
		})
	}

	details := map[string]interface{}{
		"event":                  p.Type,
		"payment_number":         p.Data.Metadata.PaymentNumber,
		"gateway_transaction_id": p.Data.ID,
		"outcome":                outcome,
	}
	if cause != nil {
		details["error"] = cause
		s.logger.Warn("payment", "webhook rejected", details)
		return
	}
	s.logger.Info("payment", "webhook processed", details)
}

func (s *service) lockPayment(ctx context.Context, tx repositories.Store, number string) (*models.Payment, error) {
	payment, err := tx.Invoices().GetPaymentByNumber(ctx, number)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.ErrPaymentNotFound
	}
	return payment, err
}

type settlementEffects struct {
	credited []models.Owner
	reward   *models.ReferralReward
}

// settle completes the payment and its invoice, credits the academy its net
// share and the platform its fee and VAT, and pays a first-purchase referral
// reward, all in one transaction.
func (s *service) settle(ctx context.Context, d webhookData) (*models.Payment, string, error) {
	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return nil, "", err
	}

	var payment *models.Payment
	var outcome string
	var fx settlementEffects
	err = s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		payment, err = s.lockPayment(ctx, tx, d.Metadata.PaymentNumber)
		if err != nil {
			return err
		}

		if payment.Status == models.PaymentCompleted || payment.Status == models.PaymentRefunded {
			if payment.GatewayTransactionID != nil && *payment.GatewayTransactionID == d.ID {
				outcome = OutcomeDuplicate
				return nil
			}
			return apperrors.ErrPaymentState.WithMessage("payment %s already settled by another transaction", payment.PaymentNumber)
		}
		if payment.Status != models.PaymentPending && payment.Status != models.PaymentProcessing {
			return apperrors.ErrPaymentState.WithMessage("payment %s is %s", payment.PaymentNumber, payment.Status)
		}
		if other, err := tx.Invoices().GetPaymentByGatewayID(ctx, d.ID); err == nil && other.ID != payment.ID {
			return apperrors.ErrPaymentState.WithMessage("gateway transaction %s belongs to payment %s", d.ID, other.PaymentNumber)
		} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		if !d.amount().Equal(payment.Amount) {
			return apperrors.ErrAmountMismatch.WithMessage("gateway reported %s, payment is %s",
				d.amount().StringFixed(2), payment.Amount.StringFixed(2))
		}

		invoice, err := tx.Invoices().GetInvoice(ctx, payment.InvoiceID)
		if err != nil {
			return fmt.Errorf("load invoice: %w", err)
		}
		if invoice.Status != models.InvoicePending {
			return apperrors.ErrInvoiceNotPayable.WithMessage("invoice %s is %s", invoice.InvoiceNumber, invoice.Status)
		}

		split := Split(payment.Amount, invoice.VATAmount, cfg.PlatformFeePercent)
		now := s.now()
		meta, _ := json.Marshal(d)

		err = tx.Invoices().TransitionPayment(ctx, payment.ID, payment.Status, models.PaymentCompleted, map[string]interface{}{
			"gateway_transaction_id": d.ID,
			"platform_fee":           split.Fee,
			"net_amount":             split.Net,
			"confirmed_at":           now,
			"gateway_metadata":       datatypes.JSON(meta),
		})
		if errors.Is(err, repositories.ErrStateChanged) || errors.Is(err, repositories.ErrDuplicate) {
			return apperrors.ErrPaymentState.WithMessage("payment %s changed concurrently", payment.PaymentNumber)
		}
		if err != nil {
			return err
		}
		err = tx.Invoices().TransitionInvoice(ctx, invoice.ID, models.InvoicePending, models.InvoiceCompleted, map[string]interface{}{
			"paid_at": now,
		})
		if errors.Is(err, repositories.ErrStateChanged) {
			return apperrors.ErrInvoiceNotPayable
		}
		if err != nil {
			return err
		}

		academy := models.AcademyOwner(payment.AcademyID)
		if split.Net.IsPositive() {
			if _, err := s.wallets.Post(ctx, tx, models.DirectionIn, wallet.Entry{
				Owner:       academy,
				Amount:      split.Net,
				SourceType:  models.SourceSettlement,
				SourceID:    payment.PaymentNumber,
				Description: fmt.Sprintf("Invoice %s net of platform fee", invoice.InvoiceNumber),
			}); err != nil {
				return err
			}
			fx.credited = append(fx.credited, academy)
		}
		if split.SystemShare.IsPositive() {
			if _, err := s.wallets.Post(ctx, tx, models.DirectionIn, wallet.Entry{
				Owner:       models.SystemOwner(),
				Amount:      split.SystemShare,
				SourceType:  models.SourceSettlement,
				SourceID:    payment.PaymentNumber,
				Description: fmt.Sprintf("Platform fee %s and VAT %s for invoice %s", split.Fee.StringFixed(2), split.VAT.StringFixed(2), invoice.InvoiceNumber),
			}); err != nil {
				return err
			}
			fx.credited = append(fx.credited, models.SystemOwner())
		}

		fx.reward, err = s.referralReward(ctx, tx, payment)
		if err != nil {
			return err
		}

		outcome = OutcomeSettled
		payment, err = tx.Invoices().GetPayment(ctx, payment.ID)
		return err
	})
	if err != nil {
		return payment, "", err
	}
	if outcome == OutcomeDuplicate {
		return payment, outcome, nil
	}

	s.wallets.InvalidateCache(ctx, fx.credited...)
	if fx.reward != nil && fx.reward.Status == models.RewardPaid {
		s.referrals.Paid(ctx, fx.reward)
	}
	s.notifier.Send(ctx, notification.Event{
		Type:      notification.EventPaymentSettled,
		Recipient: models.AcademyOwner(payment.AcademyID),
		Data: map[string]interface{}{
			"payment_number": payment.PaymentNumber,
			"invoice_id":     payment.InvoiceID,
			"amount":         payment.Amount.StringFixed(2),
			"net_amount":     payment.NetAmount.StringFixed(2),
		},
	})
	return payment, outcome, nil
}

// referralReward creates and pays the first-purchase reward when the
// invoice used a student's referral coupon. A reward that cannot be paid
// right now stays pending for the sweep and does not block settlement.
func (s *service) referralReward(ctx context.Context, tx repositories.Store, payment *models.Payment) (*models.ReferralReward, error) {
	usage, err := tx.Coupons().GetUsageByInvoice(ctx, payment.InvoiceID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c, err := tx.Coupons().GetByID(ctx, usage.CouponID)
	if err != nil {
		return nil, err
	}
	if !c.IsReferral() || c.OwnerID == payment.StudentID {
		return nil, nil
	}

	paidBefore, err := tx.Invoices().HasCompletedPayment(ctx, payment.StudentID, payment.ID)
	if err != nil || paidBefore {
		return nil, err
	}

	reward, err := s.referrals.CreateTx(ctx, tx, referral.Grant{
		ReferrerID:     c.OwnerID,
		ReferredUserID: payment.StudentID,
		Type:           models.RewardFirstPurchase,
		CouponID:       &c.ID,
		PaymentID:      &payment.ID,
	})
	if err != nil || reward == nil {
		return nil, err
	}

	if err := s.referrals.PayTx(ctx, tx, reward); err != nil {
		if apperrors.KindOf(err) == apperrors.KindInternal {
			return nil, err
		}
		s.logger.Warn("payment", "referral reward left pending", map[string]interface{}{
			"reward_id":   reward.ID,
			"referrer_id": reward.ReferrerID,
			"error":       err,
		})
	}
	return reward, nil
}

func (s *service) fail(ctx context.Context, d webhookData) (*models.Payment, string, error) {
	var payment *models.Payment
	var outcome string
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		var err error
		payment, err = s.lockPayment(ctx, tx, d.Metadata.PaymentNumber)
		if err != nil {
			return err
		}
		switch payment.Status {
		case models.PaymentFailed:
			outcome = OutcomeDuplicate
			return nil
		case models.PaymentPending, models.PaymentProcessing:
		default:
			return apperrors.ErrPaymentState.WithMessage("payment %s is %s", payment.PaymentNumber, payment.Status)
		}

		reason := d.Source.Message
		if reason == "" {
			reason = d.Status
		}
		meta, _ := json.Marshal(d)
		err = tx.Invoices().TransitionPayment(ctx, payment.ID, payment.Status, models.PaymentFailed, map[string]interface{}{
			"failure_reason":   reason,
			"gateway_metadata": datatypes.JSON(meta),
		})
		if errors.Is(err, repositories.ErrStateChanged) {
			return apperrors.ErrPaymentState
		}
		if err != nil {
			return err
		}
		outcome = OutcomeFailed
		payment, err = tx.Invoices().GetPayment(ctx, payment.ID)
		return err
	})
	if err != nil {
		return payment, "", err
	}
	return payment, outcome, nil
}

// refund reverses a settlement: the academy's net and the platform's share
// are debited back. If either wallet cannot cover it nothing changes.
func (s *service) refund(ctx context.Context, d webhookData) (*models.Payment, string, error) {
	var payment *models.Payment
	var outcome string
	var debited []models.Owner
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		var err error
		payment, err = s.lockPayment(ctx, tx, d.Metadata.PaymentNumber)
		if err != nil {
			return err
		}
		if payment.Status == models.PaymentRefunded {
			outcome = OutcomeDuplicate
			return nil
		}
		if payment.Status != models.PaymentCompleted {
			return apperrors.ErrPaymentState.WithMessage("payment %s is %s", payment.PaymentNumber, payment.Status)
		}
		if payment.GatewayTransactionID == nil || *payment.GatewayTransactionID != d.ID {
			return apperrors.ErrPaymentState.WithMessage("refund for unknown gateway transaction %s", d.ID)
		}

		systemShare := payment.Amount.Sub(payment.NetAmount)
		reverse := []struct {
			owner  models.Owner
			amount decimal.Decimal
		}{
			{models.AcademyOwner(payment.AcademyID), payment.NetAmount},
			{models.SystemOwner(), systemShare},
		}
		for _, r := range reverse {
			if !r.amount.IsPositive() {
				continue
			}
			if _, err := s.wallets.Post(ctx, tx, models.DirectionOut, wallet.Entry{
				Owner:       r.owner,
				Amount:      r.amount,
				SourceType:  models.SourceRefund,
				SourceID:    payment.PaymentNumber,
				Description: fmt.Sprintf("Refund of payment %s", payment.PaymentNumber),
			}); err != nil {
				return err
			}
			debited = append(debited, r.owner)
		}

		now := s.now()
		if err := tx.Invoices().TransitionPayment(ctx, payment.ID, models.PaymentCompleted, models.PaymentRefunded, map[string]interface{}{
			"refunded_at": now,
		}); err != nil {
			if errors.Is(err, repositories.ErrStateChanged) {
				return apperrors.ErrPaymentState
			}
			return err
		}
		if err := tx.Invoices().TransitionInvoice(ctx, payment.InvoiceID, models.InvoiceCompleted, models.InvoiceRefunded, nil); err != nil {
			if errors.Is(err, repositories.ErrStateChanged) {
				return apperrors.ErrInvoiceNotPayable.WithMessage("invoice is not completed")
			}
			return err
		}

		outcome = OutcomeRefunded
		payment, err = tx.Invoices().GetPayment(ctx, payment.ID)
		return err
	})
	if err != nil {
		return payment, "", err
	}
	if outcome == OutcomeRefunded {
		s.wallets.InvalidateCache(ctx, debited...)
		s.notifier.Send(ctx, notification.Event{
			Type:      notification.EventPaymentRefunded,
			Recipient: models.AcademyOwner(payment.AcademyID),
			Data: map[string]interface{}{
				"payment_number": payment.PaymentNumber,
				"amount":         payment.Amount.StringFixed(2),
			},
		})
	}
	return payment, outcome, nil
}
