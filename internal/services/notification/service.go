// Package notification delivers finance events to requesters and operators.
// Delivery is fire-and-forget: a failed publish is logged and never reaches
// the caller.
package notification

import (
	"context"
	"time"

	"sayan/internal/logger"
	"sayan/internal/models"
)

const (
	EventWithdrawalRequested  = "withdrawal.requested"
	EventWithdrawalApproved   = "withdrawal.approved"
	EventWithdrawalRejected   = "withdrawal.rejected"
	EventWithdrawalProcessing = "withdrawal.processing"
	EventWithdrawalCompleted  = "withdrawal.completed"
	EventWithdrawalFailed     = "withdrawal.failed"
	EventPaymentSettled       = "payment.settled"
	EventPaymentRefunded      = "payment.refunded"
	EventReferralRewardPaid   = "referral.reward_paid"
	EventIntegrityViolation   = "wallet.integrity_violation"
)

type Event struct {
	Type       string                 `json:"type"`
	Recipient  models.Owner           `json:"recipient"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func (e Event) EventType() string {
	return e.Type
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Notifier is what the finance services depend on.
type Notifier interface {
	Send(ctx context.Context, event Event)
}

type Service struct {
	publisher Publisher
	logger    logger.Logger
	timeout   time.Duration
}

func NewService(publisher Publisher, log logger.Logger) *Service {
	return &Service{publisher: publisher, logger: log, timeout: 5 * time.Second}
}

func (s *Service) Send(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	// Detached from the request so a cancelled caller does not drop the event.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, event); err != nil {
		s.logger.Warn("notification", "failed to publish event", map[string]interface{}{
			"event":     event.Type,
			"recipient": event.Recipient.String(),
			"error":     err,
		})
	}
}

// LogPublisher writes events to the application log. Used when no broker is
// configured.
type LogPublisher struct {
	logger logger.Logger
}

func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{logger: log}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info("notification", event.Type, map[string]interface{}{
		"recipient": event.Recipient.String(),
		"data":      event.Data,
	})
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Send(context.Context, Event) {}
