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

	"github.com/cryptofund-settlement/internal/domain/donation"
	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/platform/persistence"
)

// DonationRepository implements the donation.Repository interface for PostgreSQL
type DonationRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewDonationRepository creates a new PostgreSQL donation repository
func NewDonationRepository(logger *slog.Logger, db *persistence.PostgresDB) donation.Repository {
	return &DonationRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction
func (r *DonationRepository) WithTx(tx pgx.Tx) donation.Repository {
	return &DonationRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const donationColumns = `id, campaign_id, user_id, amount, currency, message, anonymous, payment_address, payment_id, transaction_hash, status, refunded, refund_tx_id, usd_equivalent, created_at, completed_at, updated_at`

func scanDonation(row pgx.Row) (*donation.Donation, error) {
	var d donation.Donation
	err := row.Scan(
		&d.ID,
		&d.CampaignID,
		&d.UserID,
		&d.Amount,
		&d.Currency,
		&d.Message,
		&d.Anonymous,
		&d.PaymentAddress,
		&d.PaymentID,
		&d.TransactionHash,
		&d.Status,
		&d.Refunded,
		&d.RefundTxID,
		&d.USDEquivalent,
		&d.CreatedAt,
		&d.CompletedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create stores a new donation in the database
func (r *DonationRepository) Create(ctx context.Context, d *donation.Donation) error {
	query := `
		INSERT INTO donations (` + donationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.querier.Exec(ctx, query,
		d.ID,
		d.CampaignID,
		d.UserID,
		d.Amount,
		d.Currency,
		d.Message,
		d.Anonymous,
		d.PaymentAddress,
		d.PaymentID,
		d.TransactionHash,
		d.Status,
		d.Refunded,
		d.RefundTxID,
		d.USDEquivalent,
		d.CreatedAt,
		d.CompletedAt,
		d.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create donation", "error", err)
		return fmt.Errorf("failed to create donation: %w", err)
	}

	return nil
}

// GetByID retrieves a donation by its ID
func (r *DonationRepository) GetByID(ctx context.Context, id uuid.UUID) (*donation.Donation, error) {
	query := `
		SELECT ` + donationColumns + `
		FROM donations
		WHERE id = $1
	`

	d, err := scanDonation(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, donation.ErrDonationNotFound{DonationID: id}
		}
		r.logger.Error("Failed to get donation", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}

	return d, nil
}

// GetByPaymentID retrieves a donation by the gateway's payment ID
func (r *DonationRepository) GetByPaymentID(ctx context.Context, paymentID string) (*donation.Donation, error) {
	query := `
		SELECT ` + donationColumns + `
		FROM donations
		WHERE payment_id = $1
	`

	d, err := scanDonation(r.querier.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // No donation carries this payment id
		}
		r.logger.Error("Failed to get donation by payment id", "paymentID", paymentID, "error", err)
		return nil, fmt.Errorf("failed to get donation by payment id: %w", err)
	}

	return d, nil
}

// GetByPaymentAddress retrieves a donation by its payment address
func (r *DonationRepository) GetByPaymentAddress(ctx context.Context, address string) (*donation.Donation, error) {
	query := `
		SELECT ` + donationColumns + `
		FROM donations
		WHERE payment_address = $1
	`

	d, err := scanDonation(r.querier.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get donation by payment address", "address", address, "error", err)
		return nil, fmt.Errorf("failed to get donation by payment address: %w", err)
	}

	return d, nil
}

// LockForUpdate obtains a pessimistic lock on the donation and returns its
// current state. Must be used within a transaction.
func (r *DonationRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*donation.Donation, error) {
	query := `
		SELECT ` + donationColumns + `
		FROM donations
		WHERE id = $1
		FOR UPDATE
	`

	d, err := scanDonation(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, donation.ErrDonationNotFound{DonationID: id}
		}
		r.logger.Error("Failed to lock donation for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock donation for update: %w", err)
	}

	return d, nil
}

// MarkCompleted transitions a pending donation to completed. The status guard
// in the WHERE clause keeps the transition monotonic under replayed webhooks.
func (r *DonationRepository) MarkCompleted(ctx context.Context, id uuid.UUID, paymentID, txHash string, usdEquivalent decimal.NullDecimal) error {
	query := `
		UPDATE donations
		SET status = $1, payment_id = $2, transaction_hash = $3, usd_equivalent = $4, completed_at = NOW(), updated_at = NOW()
		WHERE id = $5 AND status = $6
	`

	result, err := r.querier.Exec(ctx, query,
		shared.DonationStatusCompleted,
		paymentID,
		txHash,
		usdEquivalent,
		id,
		shared.DonationStatusPending,
	)
	if err != nil {
		r.logger.Error("Failed to mark donation completed", "id", id.String(), "error", err)
		return fmt.Errorf("failed to mark donation completed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return donation.ErrInvalidTransition{DonationID: id, From: shared.DonationStatusPending, To: shared.DonationStatusCompleted}
	}

	return nil
}

// MarkFailed transitions a pending donation to failed
func (r *DonationRepository) MarkFailed(ctx context.Context, id uuid.UUID, paymentID string) error {
	query := `
		UPDATE donations
		SET status = $1, payment_id = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	result, err := r.querier.Exec(ctx, query,
		shared.DonationStatusFailed,
		paymentID,
		id,
		shared.DonationStatusPending,
	)
	if err != nil {
		r.logger.Error("Failed to mark donation failed", "id", id.String(), "error", err)
		return fmt.Errorf("failed to mark donation failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return donation.ErrInvalidTransition{DonationID: id, From: shared.DonationStatusPending, To: shared.DonationStatusFailed}
	}

	return nil
}

// MarkRefunded transitions a completed donation to refunded. Returns false
// when the donation is not refundable, which lets the finalizer skip
// already-refunded rows on a retried pass instead of failing the batch.
func (r *DonationRepository) MarkRefunded(ctx context.Context, id uuid.UUID, withdrawalID string) (bool, error) {
	query := `
		UPDATE donations
		SET status = $1, refunded = TRUE, refund_tx_id = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4 AND refunded = FALSE
	`

	result, err := r.querier.Exec(ctx, query,
		shared.DonationStatusRefunded,
		withdrawalID,
		id,
		shared.DonationStatusCompleted,
	)
	if err != nil {
		r.logger.Error("Failed to mark donation refunded", "id", id.String(), "error", err)
		return false, fmt.Errorf("failed to mark donation refunded: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// MarkProcessedByCampaign transitions all completed donations of a campaign
// to processed after a successful payout. Returns the number of rows moved.
func (r *DonationRepository) MarkProcessedByCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	query := `
		UPDATE donations
		SET status = $1, updated_at = NOW()
		WHERE campaign_id = $2 AND status = $3
	`

	result, err := r.querier.Exec(ctx, query,
		shared.DonationStatusProcessed,
		campaignID,
		shared.DonationStatusCompleted,
	)
	if err != nil {
		r.logger.Error("Failed to mark donations processed", "campaignID", campaignID.String(), "error", err)
		return 0, fmt.Errorf("failed to mark donations processed: %w", err)
	}

	return result.RowsAffected(), nil
}

// SumCompletedByCampaign totals the amounts of completed donations
func (r *DonationRepository) SumCompletedByCampaign(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM donations
		WHERE campaign_id = $1 AND status = $2
	`

	var total decimal.Decimal
	err := r.querier.QueryRow(ctx, query, campaignID, shared.DonationStatusCompleted).Scan(&total)
	if err != nil {
		r.logger.Error("Failed to sum completed donations", "campaignID", campaignID.String(), "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum completed donations: %w", err)
	}

	return total, nil
}

// ClaimForRefund stamps the campaign's completed donations with the claim
// time of this settlement pass and returns them. The claim guard in the
// WHERE clause skips rows a live pass already claimed, so two finalizers can
// never hand the same donation to the gateway; claims older than staleBefore
// belong to a pass that died and are taken over.
func (r *DonationRepository) ClaimForRefund(ctx context.Context, campaignID uuid.UUID, now, staleBefore time.Time) ([]*donation.Donation, error) {
	query := `
		UPDATE donations
		SET refund_claimed_at = $2, updated_at = NOW()
		WHERE campaign_id = $1 AND status = $3 AND refunded = FALSE
			AND (refund_claimed_at IS NULL OR refund_claimed_at < $4)
		RETURNING ` + donationColumns + `
	`

	rows, err := r.querier.Query(ctx, query, campaignID, now, shared.DonationStatusCompleted, staleBefore)
	if err != nil {
		r.logger.Error("Failed to claim donations for refund", "campaignID", campaignID.String(), "error", err)
		return nil, fmt.Errorf("failed to claim donations for refund: %w", err)
	}
	defer rows.Close()

	return collectDonations(rows)
}

// GetByCampaignID returns a page of donations for a campaign, newest first
func (r *DonationRepository) GetByCampaignID(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]*donation.Donation, error) {
	query := `
		SELECT ` + donationColumns + `
		FROM donations
		WHERE campaign_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, campaignID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to get donations by campaign", "campaignID", campaignID.String(), "error", err)
		return nil, fmt.Errorf("failed to get donations by campaign: %w", err)
	}
	defer rows.Close()

	return collectDonations(rows)
}

// CountByCampaignID returns the total number of donations for a campaign
func (r *DonationRepository) CountByCampaignID(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM donations
		WHERE campaign_id = $1
	`

	var count int64
	err := r.querier.QueryRow(ctx, query, campaignID).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count donations", "campaignID", campaignID.String(), "error", err)
		return 0, fmt.Errorf("failed to count donations: %w", err)
	}

	return count, nil
}

func collectDonations(rows pgx.Rows) ([]*donation.Donation, error) {
	var donations []*donation.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan donation row: %w", err)
		}
		donations = append(donations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate donation rows: %w", err)
	}
	return donations, nil
}
