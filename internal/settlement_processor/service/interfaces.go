package service

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/cryptofund-settlement/internal/domain/conversion"
	"github.com/cryptofund-settlement/internal/domain/donation"
	"github.com/cryptofund-settlement/internal/domain/shared"
)

// ReconcileService applies a payment gateway callback to the owning donation.
type ReconcileService interface {
	ProcessCallback(ctx context.Context, callback *shared.PaymentCallback) error
}

// CallbackValidator validates callbacks and resolves them to donations
type CallbackValidator interface {
	Validate(callback *shared.PaymentCallback) error
	// ResolveDonation finds the donation a callback belongs to. Returns
	// nil, nil when no donation matches.
	ResolveDonation(ctx context.Context, callback *shared.PaymentCallback) (*donation.Donation, error)
}

// DonationTransitioner applies the donation state change inside a transaction
type DonationTransitioner interface {
	// ApplyCompleted transitions the donation to completed, crediting the
	// campaign directly or returning the conversion row it created.
	ApplyCompleted(ctx context.Context, tx pgx.Tx, d *donation.Donation, callback *shared.PaymentCallback) (*conversion.Conversion, error)
	// ApplyFailed transitions the donation to failed.
	ApplyFailed(ctx context.Context, tx pgx.Tx, d *donation.Donation, callback *shared.PaymentCallback) error
}

// PaymentRecorder maintains the append-only audit trail of callbacks
type PaymentRecorder interface {
	// SeenBefore reports whether this exact (payment id, raw status) report
	// was already recorded.
	SeenBefore(ctx context.Context, callback *shared.PaymentCallback) (bool, error)
	// RecordCallback appends the callback to the payment's audit document,
	// creating the document if needed. Best-effort: errors are logged by
	// the implementation, not returned.
	RecordCallback(ctx context.Context, callback *shared.PaymentCallback, d *donation.Donation, normalized shared.PaymentState)
}

// ConversionInitiator kicks off the exchange for a freshly created conversion
type ConversionInitiator interface {
	// Initiate requests the exchange. Best-effort: a failure leaves the
	// conversion pending for the poller to retry.
	Initiate(ctx context.Context, conv *conversion.Conversion)
}
