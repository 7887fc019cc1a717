package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/platform/messaging/producers"
	"github.com/cryptofund-settlement/internal/settlement_processor/service"
)

// WebhookEventHandler handles incoming payment callback messages from Kafka
type WebhookEventHandler struct {
	reconcileService service.ReconcileService
	producer         producers.DeadLetterPublisher
	logger           *slog.Logger
}

// NewWebhookEventHandler creates a new handler
func NewWebhookEventHandler(
	logger *slog.Logger,
	reconcileService service.ReconcileService,
	producer producers.DeadLetterPublisher,
) *WebhookEventHandler {
	return &WebhookEventHandler{
		reconcileService: reconcileService,
		producer:         producer,
		logger:           logger,
	}
}

// HandleMessage processes Kafka messages
func (h *WebhookEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var callback shared.PaymentCallback
	if err := json.Unmarshal(value, &callback); err != nil {
		unmarshalErrorMsg := "Failed to unmarshal payment callback from Kafka message"
		h.logger.Error(unmarshalErrorMsg,
			"error", err,
			"message_key", string(key),
		)

		// Send to DLQ if available
		if h.producer != nil {
			dlqReason := fmt.Sprintf("%s: %s", unmarshalErrorMsg, err.Error())
			if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, dlqReason); dlqErr != nil {
				h.logger.Error("Failed to publish message to DLQ after unmarshal error",
					"dlq_error", dlqErr,
					"original_error", err,
					"message_key", string(key),
				)
				// Return original error if DLQ fails
			} else {
				h.logger.Info("Successfully published unprocessable message to DLQ", "message_key", string(key), "reason", dlqReason)
				// Message handled, commit offset
				return nil
			}
		}
		// Allow Kafka retries
		return fmt.Errorf("failed to unmarshal message value: %w", err)
	}

	// Add correlation ID to logger
	logger := h.logger
	if callback.CorrelationID != "" {
		logger = h.logger.With("correlation_id", callback.CorrelationID)
	}

	logger.Info("Received payment callback for reconciliation",
		"payment_id", callback.PaymentID,
		"raw_status", callback.Status,
	)

	if err := h.reconcileService.ProcessCallback(ctx, &callback); err != nil {
		logger.Error("Failed to reconcile payment callback",
			"payment_id", callback.PaymentID,
			"error", err,
		)
		return fmt.Errorf("reconciling payment %s failed: %w", callback.PaymentID, err)
	}

	logger.Info("Successfully reconciled payment callback", "payment_id", callback.PaymentID)
	return nil // Success, commit offset
}
