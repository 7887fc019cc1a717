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

	"github.com/cryptofund-settlement/internal/domain/conversion"
	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/platform/persistence"
)

// ConversionRepository implements the conversion.Repository interface for PostgreSQL
type ConversionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewConversionRepository creates a new PostgreSQL conversion repository
func NewConversionRepository(logger *slog.Logger, db *persistence.PostgresDB) conversion.Repository {
	return &ConversionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction
func (r *ConversionRepository) WithTx(tx pgx.Tx) conversion.Repository {
	return &ConversionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const conversionColumns = `id, donation_id, campaign_id, from_currency, to_currency, from_amount, to_amount, exchange_id, status, estimated_completion, tx_hash, created_at, updated_at`

func scanConversion(row pgx.Row) (*conversion.Conversion, error) {
	var c conversion.Conversion
	err := row.Scan(
		&c.ID,
		&c.DonationID,
		&c.CampaignID,
		&c.FromCurrency,
		&c.ToCurrency,
		&c.FromAmount,
		&c.ToAmount,
		&c.ExchangeID,
		&c.Status,
		&c.EstCompletion,
		&c.TxHash,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create stores a new conversion in the database
func (r *ConversionRepository) Create(ctx context.Context, c *conversion.Conversion) error {
	query := `
		INSERT INTO currency_conversions (` + conversionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.querier.Exec(ctx, query,
		c.ID,
		c.DonationID,
		c.CampaignID,
		c.FromCurrency,
		c.ToCurrency,
		c.FromAmount,
		c.ToAmount,
		c.ExchangeID,
		c.Status,
		c.EstCompletion,
		c.TxHash,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create conversion", "error", err)
		return fmt.Errorf("failed to create conversion: %w", err)
	}

	return nil
}

// GetByID retrieves a conversion by its ID
func (r *ConversionRepository) GetByID(ctx context.Context, id uuid.UUID) (*conversion.Conversion, error) {
	query := `
		SELECT ` + conversionColumns + `
		FROM currency_conversions
		WHERE id = $1
	`

	c, err := scanConversion(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, conversion.ErrConversionNotFound{ExchangeID: id.String()}
		}
		r.logger.Error("Failed to get conversion", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}

	return c, nil
}

// GetByExchangeID retrieves a conversion by the gateway's exchange ID
func (r *ConversionRepository) GetByExchangeID(ctx context.Context, exchangeID string) (*conversion.Conversion, error) {
	query := `
		SELECT ` + conversionColumns + `
		FROM currency_conversions
		WHERE exchange_id = $1
	`

	c, err := scanConversion(r.querier.QueryRow(ctx, query, exchangeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, conversion.ErrConversionNotFound{ExchangeID: exchangeID}
		}
		r.logger.Error("Failed to get conversion by exchange id", "exchangeID", exchangeID, "error", err)
		return nil, fmt.Errorf("failed to get conversion by exchange id: %w", err)
	}

	return c, nil
}

// GetByDonationID retrieves the conversion created for a donation
func (r *ConversionRepository) GetByDonationID(ctx context.Context, donationID uuid.UUID) (*conversion.Conversion, error) {
	query := `
		SELECT ` + conversionColumns + `
		FROM currency_conversions
		WHERE donation_id = $1
	`

	c, err := scanConversion(r.querier.QueryRow(ctx, query, donationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Donation required no conversion
		}
		r.logger.Error("Failed to get conversion by donation id", "donationID", donationID.String(), "error", err)
		return nil, fmt.Errorf("failed to get conversion by donation id: %w", err)
	}

	return c, nil
}

// LockByExchangeID obtains a pessimistic lock on the conversion for a status
// refresh. Must be used within a transaction; the lock makes the terminal
// transition, and the raised-amount increment that rides on it, exactly-once.
func (r *ConversionRepository) LockByExchangeID(ctx context.Context, exchangeID string) (*conversion.Conversion, error) {
	query := `
		SELECT ` + conversionColumns + `
		FROM currency_conversions
		WHERE exchange_id = $1
		FOR UPDATE
	`

	c, err := scanConversion(r.querier.QueryRow(ctx, query, exchangeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, conversion.ErrConversionNotFound{ExchangeID: exchangeID}
		}
		r.logger.Error("Failed to lock conversion", "exchangeID", exchangeID, "error", err)
		return nil, fmt.Errorf("failed to lock conversion: %w", err)
	}

	return c, nil
}

// SetExchangeRequested records the gateway exchange id on a pending
// conversion. The status guard keeps a duplicate exchange request from
// overwriting an exchange that is already in flight.
func (r *ConversionRepository) SetExchangeRequested(ctx context.Context, id uuid.UUID, exchangeID string, estCompletion *time.Time) error {
	query := `
		UPDATE currency_conversions
		SET exchange_id = $1, status = $2, estimated_completion = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5 AND exchange_id = ''
	`

	result, err := r.querier.Exec(ctx, query,
		exchangeID,
		shared.ConversionStatusProcessing,
		estCompletion,
		id,
		shared.ConversionStatusPending,
	)
	if err != nil {
		r.logger.Error("Failed to record exchange request", "id", id.String(), "error", err)
		return fmt.Errorf("failed to record exchange request: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("conversion %s already has an exchange in flight", id)
	}

	return nil
}

// UpdateStatus writes the refreshed status along with the converted amount
// and tx hash when the gateway reported them.
func (r *ConversionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status shared.ConversionStatus, toAmount decimal.NullDecimal, txHash string) error {
	query := `
		UPDATE currency_conversions
		SET status = $1, to_amount = COALESCE($2, to_amount), tx_hash = COALESCE(NULLIF($3, ''), tx_hash), updated_at = NOW()
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query, status, toAmount, txHash, id)
	if err != nil {
		r.logger.Error("Failed to update conversion status", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update conversion status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return conversion.ErrConversionNotFound{ExchangeID: id.String()}
	}

	return nil
}

// ListAwaitingExchange returns conversions whose exchange request has not
// been accepted yet, oldest first.
func (r *ConversionRepository) ListAwaitingExchange(ctx context.Context, limit int) ([]*conversion.Conversion, error) {
	query := `
		SELECT ` + conversionColumns + `
		FROM currency_conversions
		WHERE status = $1 AND exchange_id = ''
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, shared.ConversionStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to list conversions awaiting exchange", "error", err)
		return nil, fmt.Errorf("failed to list conversions awaiting exchange: %w", err)
	}
	defer rows.Close()

	return collectConversions(rows)
}

// ListInFlight returns non-terminal conversions with an exchange id
func (r *ConversionRepository) ListInFlight(ctx context.Context, limit int) ([]*conversion.Conversion, error) {
	query := `
		SELECT ` + conversionColumns + `
		FROM currency_conversions
		WHERE status = $1 AND exchange_id <> ''
		ORDER BY updated_at ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, shared.ConversionStatusProcessing, limit)
	if err != nil {
		r.logger.Error("Failed to list in-flight conversions", "error", err)
		return nil, fmt.Errorf("failed to list in-flight conversions: %w", err)
	}
	defer rows.Close()

	return collectConversions(rows)
}

func collectConversions(rows pgx.Rows) ([]*conversion.Conversion, error) {
	var conversions []*conversion.Conversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversion row: %w", err)
		}
		conversions = append(conversions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversion rows: %w", err)
	}
	return conversions, nil
}
