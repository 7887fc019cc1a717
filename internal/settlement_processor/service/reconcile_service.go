package service

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/cryptofund-settlement/internal/domain/conversion"
	"github.com/cryptofund-settlement/internal/domain/donation"
	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/gateway"
	"github.com/cryptofund-settlement/internal/platform/persistence"
)

type ReconcileServiceImpl struct {
	pgDB         persistence.TxExecutor
	validator    CallbackValidator
	transitioner DonationTransitioner
	recorder     PaymentRecorder
	initiator    ConversionInitiator
	donationRepo donation.Repository
	logger       *slog.Logger
}

func NewReconcileService(
	pgDB persistence.TxExecutor,
	validator CallbackValidator,
	transitioner DonationTransitioner,
	recorder PaymentRecorder,
	initiator ConversionInitiator,
	donationRepo donation.Repository,
	logger *slog.Logger,
) ReconcileService {
	return &ReconcileServiceImpl{
		pgDB:         pgDB,
		validator:    validator,
		transitioner: transitioner,
		recorder:     recorder,
		initiator:    initiator,
		donationRepo: donationRepo,
		logger:       logger,
	}
}

// ProcessCallback handles one payment gateway callback. Replays are absorbed
// in two layers: an exact (payment id, raw status) repeat is dropped against
// the audit trail, and any report against a settled donation can no longer
// change it. A returned error means the message should be redelivered.
func (s *ReconcileServiceImpl) ProcessCallback(ctx context.Context, callback *shared.PaymentCallback) error {
	logger := s.logger
	if callback.CorrelationID != "" {
		logger = s.logger.With("correlation_id", callback.CorrelationID)
	}

	// 1. Validate the callback
	if err := s.validator.Validate(callback); err != nil {
		logger.Warn("Dropping invalid payment callback", "payment_id", callback.PaymentID, "error", err)
		return nil // Acknowledge; a malformed callback never becomes valid
	}

	normalized := gateway.NormalizePaymentStatus(callback.Status)
	logger.Info("Processing payment callback",
		"payment_id", callback.PaymentID,
		"raw_status", callback.Status,
		"normalized", string(normalized))

	// 2. Drop exact replays
	seen, err := s.recorder.SeenBefore(ctx, callback)
	if err != nil {
		return err // Let Kafka retry
	}
	if seen {
		logger.Info("Duplicate callback ignored", "payment_id", callback.PaymentID, "raw_status", callback.Status)
		return nil
	}

	// 3. Resolve the donation
	d, err := s.validator.ResolveDonation(ctx, callback)
	if err != nil {
		return err // Let Kafka retry
	}
	if d == nil {
		logger.Warn("Callback matches no donation; recording for audit only",
			"payment_id", callback.PaymentID, "raw_status", callback.Status)
		s.recorder.RecordCallback(ctx, callback, nil, normalized)
		return nil
	}

	// 4. A settled donation only collects audit events
	if d.Status.Settled() {
		logger.Info("Donation already settled; callback recorded for audit",
			"donation_id", d.ID.String(), "status", string(d.Status), "raw_status", callback.Status)
		s.recorder.RecordCallback(ctx, callback, d, normalized)
		return nil
	}

	// 5. Non-terminal reports keep the donation pending
	if normalized == shared.PaymentStatePending {
		s.recorder.RecordCallback(ctx, callback, d, normalized)
		return nil
	}

	// 6. Apply the terminal transition in one transaction
	var createdConversion *conversion.Conversion
	err = s.pgDB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		donationRepo := s.donationRepo.WithTx(tx)

		locked, err := donationRepo.LockForUpdate(ctx, d.ID)
		if err != nil {
			return err
		}
		if locked.Status.Settled() {
			return nil // Raced with another callback for the same payment
		}

		switch normalized {
		case shared.PaymentStateCompleted:
			createdConversion, err = s.transitioner.ApplyCompleted(ctx, tx, locked, callback)
			return err
		case shared.PaymentStateFailed:
			return s.transitioner.ApplyFailed(ctx, tx, locked, callback)
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to apply payment callback",
			"donation_id", d.ID.String(), "payment_id", callback.PaymentID, "error", err)
		return err
	}

	// 7. Post-commit side effects, both best-effort
	s.recorder.RecordCallback(ctx, callback, d, normalized)
	if createdConversion != nil {
		s.initiator.Initiate(ctx, createdConversion)
	}

	logger.Info("Payment callback applied",
		"donation_id", d.ID.String(),
		"payment_id", callback.PaymentID,
		"normalized", string(normalized),
		"conversion_created", createdConversion != nil)
	return nil
}
