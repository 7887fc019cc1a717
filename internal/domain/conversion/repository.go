package conversion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cryptofund-settlement/internal/domain/shared"
)

// Repository defines currency conversion persistence operations
type Repository interface {
	Create(ctx context.Context, c *Conversion) error
	GetByID(ctx context.Context, id uuid.UUID) (*Conversion, error)

	// GetByExchangeID resolves a conversion by the gateway's exchange id
	GetByExchangeID(ctx context.Context, exchangeID string) (*Conversion, error)

	// GetByDonationID returns the conversion created for a donation, or
	// nil, nil when the donation needed none.
	GetByDonationID(ctx context.Context, donationID uuid.UUID) (*Conversion, error)

	// LockByExchangeID acquires a pessimistic lock for a status refresh
	LockByExchangeID(ctx context.Context, exchangeID string) (*Conversion, error)

	// SetExchangeRequested records the gateway's exchange id once the
	// exchange request is accepted.
	SetExchangeRequested(ctx context.Context, id uuid.UUID, exchangeID string, estCompletion *time.Time) error

	// UpdateStatus writes the refreshed status plus the converted amount
	// and tx hash when known.
	UpdateStatus(ctx context.Context, id uuid.UUID, status shared.ConversionStatus, toAmount decimal.NullDecimal, txHash string) error

	// ListAwaitingExchange returns conversions whose exchange request has
	// not been accepted yet (no exchange id).
	ListAwaitingExchange(ctx context.Context, limit int) ([]*Conversion, error)

	// ListInFlight returns non-terminal conversions that have an exchange id
	ListInFlight(ctx context.Context, limit int) ([]*Conversion, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrConversionNotFound indicates missing conversion
type ErrConversionNotFound struct {
	ExchangeID string
}

func (e ErrConversionNotFound) Error() string {
	return "conversion not found for exchange: " + e.ExchangeID
}

// Is implements the errors.Is interface for ErrConversionNotFound
func (e ErrConversionNotFound) Is(target error) bool {
	t, ok := target.(ErrConversionNotFound)
	if !ok {
		return false
	}
	if t.ExchangeID == "" {
		return true
	}
	return e.ExchangeID == t.ExchangeID
}
