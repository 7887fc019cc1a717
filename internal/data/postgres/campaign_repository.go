// Package postgres provides PostgreSQL implementations of the domain repositories.
// It handles all database operations while maintaining transaction safety and
// proper error handling for the settlement pipeline.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cryptofund-settlement/internal/domain/campaign"
	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/platform/persistence"
)

// CampaignRepository implements the campaign.Repository interface for PostgreSQL
type CampaignRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewCampaignRepository creates a new PostgreSQL campaign repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewCampaignRepository(logger *slog.Logger, db *persistence.PostgresDB) campaign.Repository {
	return &CampaignRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing for atomic operations
// across multiple repository calls.
func (r *CampaignRepository) WithTx(tx pgx.Tx) campaign.Repository {
	return &CampaignRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const campaignColumns = `id, creator_id, goal_amount, target_currency, raised_amount, end_date, is_active, creator_payout_wallet_address, created_at, updated_at`

func scanCampaign(row pgx.Row) (*campaign.Campaign, error) {
	var c campaign.Campaign
	err := row.Scan(
		&c.ID,
		&c.CreatorID,
		&c.GoalAmount,
		&c.TargetCurrency,
		&c.RaisedAmount,
		&c.EndDate,
		&c.IsActive,
		&c.CreatorPayoutWalletAddress,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create stores a new campaign in the database
func (r *CampaignRepository) Create(ctx context.Context, c *campaign.Campaign) error {
	query := `
		INSERT INTO campaigns (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.querier.Exec(ctx, query,
		c.ID,
		c.CreatorID,
		c.GoalAmount,
		c.TargetCurrency,
		c.RaisedAmount,
		c.EndDate,
		c.IsActive,
		c.CreatorPayoutWalletAddress,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create campaign", "error", err)
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by its ID
func (r *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE id = $1
	`

	c, err := scanCampaign(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, campaign.ErrCampaignNotFound{CampaignID: id}
		}
		r.logger.Error("Failed to get campaign", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return c, nil
}

// LockForUpdate obtains a pessimistic lock on the campaign and returns its
// current state. Must be used within a transaction; the lock serializes
// concurrent raised-amount updates and finalization attempts.
func (r *CampaignRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE id = $1
		FOR UPDATE
	`

	c, err := scanCampaign(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, campaign.ErrCampaignNotFound{CampaignID: id}
		}
		r.logger.Error("Failed to lock campaign for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock campaign for update: %w", err)
	}

	return c, nil
}

// AddToRaised atomically increments the campaign's raised amount
func (r *CampaignRepository) AddToRaised(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE campaigns
		SET raised_amount = raised_amount + $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, amount, id)
	if err != nil {
		r.logger.Error("Failed to add to raised amount", "id", id.String(), "error", err)
		return fmt.Errorf("failed to add to raised amount: %w", err)
	}

	if result.RowsAffected() == 0 {
		return campaign.ErrCampaignNotFound{CampaignID: id}
	}

	return nil
}

// Finalize deactivates the campaign and records the settled total. The
// conditional WHERE makes this a no-op when the campaign is already
// inactive or the deadline has not passed, so concurrent finalizers can
// race safely: exactly one caller observes finalized=true.
func (r *CampaignRepository) Finalize(ctx context.Context, id uuid.UUID, totalRaised decimal.Decimal, now time.Time) (bool, error) {
	query := `
		UPDATE campaigns
		SET is_active = FALSE, raised_amount = $1, updated_at = $2
		WHERE id = $3 AND is_active = TRUE AND end_date <= $2
	`

	result, err := r.querier.Exec(ctx, query, totalRaised, now, id)
	if err != nil {
		r.logger.Error("Failed to finalize campaign", "id", id.String(), "error", err)
		return false, fmt.Errorf("failed to finalize campaign: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// ListEndedActive returns campaigns past their deadline that are still active
func (r *CampaignRepository) ListEndedActive(ctx context.Context, now time.Time, limit int) ([]*campaign.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE is_active = TRUE AND end_date <= $1
		ORDER BY end_date ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, now, limit)
	if err != nil {
		r.logger.Error("Failed to list ended campaigns", "error", err)
		return nil, fmt.Errorf("failed to list ended campaigns: %w", err)
	}
	defer rows.Close()

	return collectCampaigns(rows)
}

// ListUnsettled returns inactive campaigns that still hold completed
// donations. A completed donation on an inactive campaign means a settlement
// pass was interrupted before the payout or refund fan-out finished.
func (r *CampaignRepository) ListUnsettled(ctx context.Context, limit int) ([]*campaign.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns c
		WHERE c.is_active = FALSE
			AND EXISTS (
				SELECT 1 FROM donations d
				WHERE d.campaign_id = c.id AND d.status = $1 AND d.refunded = FALSE
			)
		ORDER BY c.end_date ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, shared.DonationStatusCompleted, limit)
	if err != nil {
		r.logger.Error("Failed to list unsettled campaigns", "error", err)
		return nil, fmt.Errorf("failed to list unsettled campaigns: %w", err)
	}
	defer rows.Close()

	return collectCampaigns(rows)
}

func collectCampaigns(rows pgx.Rows) ([]*campaign.Campaign, error) {
	var campaigns []*campaign.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign row: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaign rows: %w", err)
	}
	return campaigns, nil
}
