package payment

import (
	"context"
)

// Repository manages payment record persistence. Records are append-only:
// documents gain status events but are never deleted.
type Repository interface {
	Create(ctx context.Context, record *Record) error

	// GetByPaymentID returns the record for a gateway payment id, or
	// nil, nil when none exists yet.
	GetByPaymentID(ctx context.Context, paymentID string) (*Record, error)

	// AppendEvent appends a status event and advances the record's current
	// status and tx hash.
	AppendEvent(ctx context.Context, paymentID string, event StatusEvent) error

	// HasEvent reports whether the (paymentID, rawStatus) pair was already
	// recorded; used for webhook deduplication.
	HasEvent(ctx context.Context, paymentID, rawStatus string) (bool, error)
}

// ErrDuplicateRecord indicates payment id uniqueness violation
type ErrDuplicateRecord struct {
	PaymentID string
}

func (e ErrDuplicateRecord) Error() string {
	return "payment record already exists: " + e.PaymentID
}
