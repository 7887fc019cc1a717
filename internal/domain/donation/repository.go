package donation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cryptofund-settlement/internal/domain/shared"
)

// Repository defines donation persistence operations
type Repository interface {
	Create(ctx context.Context, d *Donation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Donation, error)

	// GetByPaymentID resolves a donation from the gateway's payment id.
	// Returns nil, nil when no donation carries that id.
	GetByPaymentID(ctx context.Context, paymentID string) (*Donation, error)

	// GetByPaymentAddress resolves a donation from its payment address.
	// Returns nil, nil when none matches.
	GetByPaymentAddress(ctx context.Context, address string) (*Donation, error)

	// LockForUpdate acquires a pessimistic lock for reconciliation
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Donation, error)

	// MarkCompleted transitions pending -> completed, recording the payment
	// correlation fields in the same write.
	MarkCompleted(ctx context.Context, id uuid.UUID, paymentID, txHash string, usdEquivalent decimal.NullDecimal) error

	// MarkFailed transitions pending -> failed
	MarkFailed(ctx context.Context, id uuid.UUID, paymentID string) error

	// MarkRefunded transitions completed -> refunded, recording the
	// withdrawal id of the refund. Returns false when the donation was not
	// in a refundable state (already refunded or processed).
	MarkRefunded(ctx context.Context, id uuid.UUID, withdrawalID string) (bool, error)

	// MarkProcessedByCampaign transitions every completed donation of the
	// campaign to processed after a successful payout.
	MarkProcessedByCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error)

	// SumCompletedByCampaign totals the amount of completed donations
	SumCompletedByCampaign(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error)

	// ClaimForRefund stamps the campaign's completed donations with this
	// settlement pass's claim time and returns them. Rows claimed after
	// staleBefore belong to a live pass and are skipped, so concurrent
	// finalizers never refund the same donation; a claim left behind by a
	// crashed pass goes stale and is handed out again.
	ClaimForRefund(ctx context.Context, campaignID uuid.UUID, now, staleBefore time.Time) ([]*Donation, error)

	GetByCampaignID(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]*Donation, error)
	CountByCampaignID(ctx context.Context, campaignID uuid.UUID) (int64, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrDonationNotFound indicates missing donation
type ErrDonationNotFound struct {
	DonationID uuid.UUID
}

func (e ErrDonationNotFound) Error() string {
	return "donation not found: " + e.DonationID.String()
}

// Is implements the errors.Is interface for ErrDonationNotFound
func (e ErrDonationNotFound) Is(target error) bool {
	t, ok := target.(ErrDonationNotFound)
	if !ok {
		return false
	}
	if t.DonationID == uuid.Nil {
		return true
	}
	return e.DonationID == t.DonationID
}

// ErrInvalidTransition indicates a write that would violate the monotonic
// donation state machine.
type ErrInvalidTransition struct {
	DonationID uuid.UUID
	From       shared.DonationStatus
	To         shared.DonationStatus
}

func (e ErrInvalidTransition) Error() string {
	return "invalid donation transition " + string(e.From) + " -> " + string(e.To) + ": " + e.DonationID.String()
}
