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

	"github.com/cryptofund-settlement/internal/domain/payout"
	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/platform/persistence"
)

// PayoutRepository implements the payout.Repository interface for PostgreSQL
type PayoutRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewPayoutRepository creates a new PostgreSQL payout repository
func NewPayoutRepository(logger *slog.Logger, db *persistence.PostgresDB) payout.Repository {
	return &PayoutRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction
func (r *PayoutRepository) WithTx(tx pgx.Tx) payout.Repository {
	return &PayoutRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Claim inserts the pending payout row for a campaign. The unique constraint
// on campaign_id makes the insert the single point of arbitration: a
// conflicting row is only taken over when it is still pending and its claim
// is older than staleBefore, so a live pass keeps exclusive ownership and an
// accepted withdrawal is never repeated.
func (r *PayoutRepository) Claim(ctx context.Context, p *payout.CampaignPayout, staleBefore time.Time) (bool, error) {
	query := `
		INSERT INTO campaign_payouts (id, campaign_id, amount, currency, wallet_address, transaction_id, fee, status, claimed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (campaign_id) DO UPDATE
		SET claimed_at = EXCLUDED.claimed_at, amount = EXCLUDED.amount, wallet_address = EXCLUDED.wallet_address
		WHERE campaign_payouts.transaction_id = '' AND campaign_payouts.claimed_at < $11
	`

	result, err := r.querier.Exec(ctx, query,
		p.ID,
		p.CampaignID,
		p.Amount,
		p.Currency,
		p.WalletAddress,
		p.TransactionID,
		p.Fee,
		p.Status,
		p.ClaimedAt,
		p.CreatedAt,
		staleBefore,
	)
	if err != nil {
		r.logger.Error("Failed to claim payout", "campaignID", p.CampaignID.String(), "error", err)
		return false, fmt.Errorf("failed to claim payout: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// MarkAccepted records the gateway withdrawal on the pending payout row
func (r *PayoutRepository) MarkAccepted(ctx context.Context, campaignID uuid.UUID, transactionID string, fee decimal.NullDecimal) error {
	query := `
		UPDATE campaign_payouts
		SET transaction_id = $2, fee = $3, status = $4
		WHERE campaign_id = $1 AND transaction_id = ''
	`

	result, err := r.querier.Exec(ctx, query, campaignID, transactionID, fee, shared.PayoutStatusCompleted)
	if err != nil {
		r.logger.Error("Failed to mark payout accepted", "campaignID", campaignID.String(), "error", err)
		return fmt.Errorf("failed to mark payout accepted: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("no pending payout claim for campaign %s", campaignID)
	}

	return nil
}

// GetByCampaignID retrieves the payout for a campaign
func (r *PayoutRepository) GetByCampaignID(ctx context.Context, campaignID uuid.UUID) (*payout.CampaignPayout, error) {
	query := `
		SELECT id, campaign_id, amount, currency, wallet_address, transaction_id, fee, status, claimed_at, created_at
		FROM campaign_payouts
		WHERE campaign_id = $1
	`

	var p payout.CampaignPayout
	err := r.querier.QueryRow(ctx, query, campaignID).Scan(
		&p.ID,
		&p.CampaignID,
		&p.Amount,
		&p.Currency,
		&p.WalletAddress,
		&p.TransactionID,
		&p.Fee,
		&p.Status,
		&p.ClaimedAt,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // No payout recorded for this campaign
		}
		r.logger.Error("Failed to get payout record", "campaignID", campaignID.String(), "error", err)
		return nil, fmt.Errorf("failed to get payout record: %w", err)
	}

	return &p, nil
}
