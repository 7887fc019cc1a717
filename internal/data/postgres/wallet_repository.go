package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cryptofund-settlement/internal/domain/wallet"
	"github.com/cryptofund-settlement/internal/platform/persistence"
)

// WalletRepository implements the wallet.Repository interface for PostgreSQL
type WalletRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewWalletRepository creates a new PostgreSQL wallet repository
func NewWalletRepository(logger *slog.Logger, db *persistence.PostgresDB) wallet.Repository {
	return &WalletRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// Create stores a wallet directory entry
func (r *WalletRepository) Create(ctx context.Context, w *wallet.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, currency, address, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.querier.Exec(ctx, query, w.ID, w.UserID, w.Currency, w.Address, w.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create wallet", "error", err)
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	return nil
}

// GetByUserAndCurrency retrieves a user's wallet for a currency
func (r *WalletRepository) GetByUserAndCurrency(ctx context.Context, userID uuid.UUID, currency string) (*wallet.Wallet, error) {
	query := `
		SELECT id, user_id, currency, address, created_at
		FROM wallets
		WHERE user_id = $1 AND currency = $2
	`

	var w wallet.Wallet
	err := r.querier.QueryRow(ctx, query, userID, currency).Scan(
		&w.ID,
		&w.UserID,
		&w.Currency,
		&w.Address,
		&w.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // User has no wallet for this currency
		}
		r.logger.Error("Failed to get wallet", "userID", userID.String(), "currency", currency, "error", err)
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return &w, nil
}
