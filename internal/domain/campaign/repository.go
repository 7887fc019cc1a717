package campaign

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository defines campaign persistence operations
type Repository interface {
	Create(ctx context.Context, c *Campaign) error
	GetByID(ctx context.Context, id uuid.UUID) (*Campaign, error)

	// LockForUpdate acquires a pessimistic lock for finalization
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Campaign, error)

	// AddToRaised atomically increments the raised amount
	AddToRaised(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error

	// Finalize flips is_active to false and writes the final raised total.
	// Returns false when the campaign was already inactive (or not yet
	// ended), making finalization at-most-once under concurrent callers.
	Finalize(ctx context.Context, id uuid.UUID, totalRaised decimal.Decimal, now time.Time) (bool, error)

	// ListEndedActive returns campaigns whose deadline has passed but that
	// have not been finalized yet.
	ListEndedActive(ctx context.Context, now time.Time, limit int) ([]*Campaign, error)

	// ListUnsettled returns inactive campaigns that still hold completed
	// donations, i.e. settlements interrupted before the payout or refund
	// fan-out finished.
	ListUnsettled(ctx context.Context, limit int) ([]*Campaign, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrCampaignNotFound indicates missing campaign
type ErrCampaignNotFound struct {
	CampaignID uuid.UUID
}

func (e ErrCampaignNotFound) Error() string {
	return "campaign not found: " + e.CampaignID.String()
}

// Is implements the errors.Is interface for ErrCampaignNotFound
func (e ErrCampaignNotFound) Is(target error) bool {
	t, ok := target.(ErrCampaignNotFound)
	if !ok {
		return false
	}
	if t.CampaignID == uuid.Nil {
		return true
	}
	return e.CampaignID == t.CampaignID
}

// ErrCampaignClosed indicates the campaign is inactive or past its deadline
type ErrCampaignClosed struct {
	CampaignID uuid.UUID
}

func (e ErrCampaignClosed) Error() string {
	return "campaign is not accepting donations: " + e.CampaignID.String()
}

// ErrCampaignNotEnded indicates finalization was requested before the deadline
type ErrCampaignNotEnded struct {
	CampaignID uuid.UUID
	EndDate    time.Time
}

func (e ErrCampaignNotEnded) Error() string {
	return "campaign has not ended yet: " + e.CampaignID.String()
}
