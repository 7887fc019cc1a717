package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/platform/messaging/producers"
)

// WebhookServiceImpl implements the WebhookService interface
type WebhookServiceImpl struct {
	producer producers.MessagePublisher
	logger   *slog.Logger
}

// NewWebhookService creates a new webhook service
func NewWebhookService(logger *slog.Logger, producer producers.MessagePublisher) WebhookService {
	return &WebhookServiceImpl{
		producer: producer,
		logger:   logger,
	}
}

// EnqueueCallback validates the callback and publishes it to Kafka, keyed by
// payment id so reports for one payment stay ordered on one partition. The
// provider gets its 200 only after the write is acknowledged; all
// reconciliation happens asynchronously in the settlement processor.
func (s *WebhookServiceImpl) EnqueueCallback(ctx context.Context, callback *shared.PaymentCallback) error {
	if err := callback.Validate(); err != nil {
		return err
	}

	if callback.ReceivedAt.IsZero() {
		callback.ReceivedAt = time.Now().UTC()
	}

	if err := s.producer.Publish(ctx, callback.PaymentID, callback); err != nil {
		s.logger.Error("Failed to publish payment callback",
			"payment_id", callback.PaymentID,
			"raw_status", callback.Status,
			"error", err,
		)
		return err
	}

	s.logger.Info("Payment callback queued",
		"payment_id", callback.PaymentID,
		"raw_status", callback.Status,
	)
	return nil
}
