package handler

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cryptofund-settlement/internal/api_gateway/middleware"
	"github.com/cryptofund-settlement/internal/api_gateway/service"
	"github.com/cryptofund-settlement/internal/domain/shared"
)

// WebhookHandler handles payment gateway callback notifications
type WebhookHandler struct {
	webhookService service.WebhookService
	logger         *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(logger *slog.Logger, webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		logger:         logger,
	}
}

// HandlePayment accepts a gateway payment callback and queues it for the
// settlement processor. The provider retries on non-2xx, so 200 is returned
// only once the event is durably queued; replays are welcome and are
// deduplicated downstream.
func (h *WebhookHandler) HandlePayment(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid webhook body", "error", err)
		RespondBadRequest(c, "Invalid webhook body: "+err.Error())
		return
	}

	callback := &shared.PaymentCallback{
		PaymentID:       req.PaymentID,
		Status:          req.Status,
		Address:         req.Address,
		TransactionHash: req.TransactionHash,
		Amount:          req.Amount,
		Currency:        req.Currency,
		USDEquivalent:   req.USDEquivalent,
		Metadata:        req.Metadata,
		CorrelationID:   middleware.GetCorrelationID(c),
		ReceivedAt:      time.Now().UTC(),
	}

	if err := h.webhookService.EnqueueCallback(c.Request.Context(), callback); err != nil {
		h.logger.Error("Failed to queue payment callback",
			"payment_id", req.PaymentID,
			"raw_status", req.Status,
			"error", err,
		)
		// Non-2xx so the provider retries the delivery
		RespondInternalError(c)
		return
	}

	RespondOK(c, gin.H{"received": true})
}
