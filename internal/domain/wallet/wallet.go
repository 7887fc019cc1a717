package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Wallet is a user's receiving address for one currency. The directory is
// consulted when resolving payout and refund destinations.
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Currency  string    `json:"currency"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository defines wallet directory operations
type Repository interface {
	Create(ctx context.Context, w *Wallet) error

	// GetByUserAndCurrency returns the user's wallet for a currency, or
	// nil, nil when the user has none registered.
	GetByUserAndCurrency(ctx context.Context, userID uuid.UUID, currency string) (*Wallet, error)
}
