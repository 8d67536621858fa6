package handlers

import (
	"errors"

	apperrors "sayan/internal/errors"
	"sayan/internal/logger"
	"sayan/internal/services/payment"
	"sayan/internal/services/payout"
	"sayan/internal/services/withdrawal"
	"sayan/internal/utils"

	"github.com/gofiber/fiber/v2"
)

const (
	SignatureHeader       = "X-Webhook-Signature"
	StripeSignatureHeader = "Stripe-Signature"
)

// WebhookHandler receives provider callbacks. Routes using it are not behind
// the auth middleware; each delivery is authenticated by its signature.
type WebhookHandler struct {
	payments    payment.Service
	gateway     payout.Gateway
	withdrawals withdrawal.Service
	logger      logger.Logger
}

func NewWebhookHandler(payments payment.Service, gateway payout.Gateway, withdrawals withdrawal.Service, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		payments:    payments,
		gateway:     gateway,
		withdrawals: withdrawals,
		logger:      log,
	}
}

func (h *WebhookHandler) PaymentWebhook(c *fiber.Ctx) error {
	res, err := h.payments.HandleWebhook(c.UserContext(), c.Body(), c.Get(SignatureHeader))
	if errors.Is(err, apperrors.ErrInvalidSignature) {
		return utils.Unauthorized(c, "invalid signature")
	}
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, res)
}

func (h *WebhookHandler) PayoutWebhook(c *fiber.Ctx) error {
	signature := c.Get(StripeSignatureHeader)
	if signature == "" {
		signature = c.Get(SignatureHeader)
	}

	update, err := h.gateway.ParseWebhook(c.Body(), signature)
	switch {
	case errors.Is(err, payout.ErrInvalidSignature):
		h.logger.Warn("webhook", "payout signature mismatch", map[string]interface{}{
			"gateway": h.gateway.Name(),
		})
		return utils.Unauthorized(c, "invalid signature")
	case errors.Is(err, payout.ErrUnhandledEvent):
		return utils.Success(c, fiber.Map{"outcome": payment.OutcomeIgnored})
	case err != nil:
		return utils.BadRequest(c, "Invalid payload")
	}

	req, err := h.withdrawals.HandlePayoutUpdate(c.UserContext(), *update)
	if apperrors.IsKind(err, apperrors.KindConflict) {
		// The request already settled the other way; acknowledge so the
		// provider stops retrying.
		h.logger.Warn("webhook", "payout update conflicts with request state", map[string]interface{}{
			"withdrawal_id": update.WithdrawalID,
			"reference":     update.Reference,
			"status":        update.Status,
			"error":         err,
		})
		return utils.Success(c, fiber.Map{"outcome": payment.OutcomeRejected})
	}
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"outcome": "applied", "withdrawal": req})
}
