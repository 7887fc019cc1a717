package components

import (
	"context"
	"log/slog"
	"time"

	"github.com/cryptofund-settlement/internal/domain/donation"
	"github.com/cryptofund-settlement/internal/domain/payment"
	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/settlement_processor/service"
)

// PaymentRecorderImpl keeps the MongoDB audit trail of gateway callbacks
type PaymentRecorderImpl struct {
	paymentRecords payment.Repository
	logger         *slog.Logger
}

func NewPaymentRecorder(paymentRecords payment.Repository, logger *slog.Logger) service.PaymentRecorder {
	return &PaymentRecorderImpl{
		paymentRecords: paymentRecords,
		logger:         logger,
	}
}

// SeenBefore checks the audit trail for an identical earlier report
func (r *PaymentRecorderImpl) SeenBefore(ctx context.Context, callback *shared.PaymentCallback) (bool, error) {
	return r.paymentRecords.HasEvent(ctx, callback.PaymentID, callback.Status)
}

// RecordCallback appends the callback to the payment's audit document,
// creating the document first when this is the payment's first report.
// Failures are logged and swallowed: the Postgres side already committed
// and an audit gap must not trigger a redelivery that would replay it.
func (r *PaymentRecorderImpl) RecordCallback(ctx context.Context, callback *shared.PaymentCallback, d *donation.Donation, normalized shared.PaymentState) {
	event := payment.StatusEvent{
		RawStatus:  callback.Status,
		Normalized: string(normalized),
		TxHash:     callback.TransactionHash,
		ReportedAt: callback.ReceivedAt,
	}

	record, err := r.paymentRecords.GetByPaymentID(ctx, callback.PaymentID)
	if err != nil {
		r.logger.Warn("Failed to load payment audit record", "payment_id", callback.PaymentID, "error", err)
		return
	}

	if record == nil {
		now := time.Now()
		record = &payment.Record{
			PaymentID:       callback.PaymentID,
			Kind:            payment.RecordKindDonation,
			Amount:          callback.Amount.String(),
			Currency:        callback.Currency,
			Status:          callback.Status,
			TransactionHash: callback.TransactionHash,
			Events:          []payment.StatusEvent{event},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if d != nil {
			record.DonationID = d.ID
			record.CampaignID = d.CampaignID
		}
		if err := r.paymentRecords.Create(ctx, record); err != nil {
			r.logger.Warn("Failed to create payment audit record", "payment_id", callback.PaymentID, "error", err)
		}
		return
	}

	if record.HasEvent(callback.Status) {
		return // Same report landed between the dedup check and now
	}

	if err := r.paymentRecords.AppendEvent(ctx, callback.PaymentID, event); err != nil {
		r.logger.Warn("Failed to append payment audit event",
			"payment_id", callback.PaymentID,
			"raw_status", callback.Status,
			"error", err)
	}
}
