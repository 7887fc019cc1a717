package payout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository defines campaign payout persistence operations
type Repository interface {
	// Claim inserts the pending payout row for the campaign, or takes over
	// an existing pending row whose claim went stale (claimed before
	// staleBefore). A row that already carries a withdrawal id is never
	// reclaimed. Returns whether this caller now holds the claim.
	Claim(ctx context.Context, p *CampaignPayout, staleBefore time.Time) (bool, error)

	// MarkAccepted records the gateway withdrawal on the pending row
	MarkAccepted(ctx context.Context, campaignID uuid.UUID, transactionID string, fee decimal.NullDecimal) error

	// GetByCampaignID returns the payout for a campaign, or nil, nil when
	// none was recorded.
	GetByCampaignID(ctx context.Context, campaignID uuid.UUID) (*CampaignPayout, error)

	WithTx(tx pgx.Tx) Repository
}
