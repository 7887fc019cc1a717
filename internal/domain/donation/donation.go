package donation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cryptofund-settlement/internal/domain/shared"
)

// Common errors
var (
	ErrInvalidAmount   = errors.New("donation amount must be positive")
	ErrInvalidCurrency = errors.New("donation currency cannot be empty")
)

// Donation represents a single pledge toward a campaign. PaymentID is the
// gateway's identifier for the payment object behind PaymentAddress and is
// empty until the gateway assigns one.
type Donation struct {
	ID              uuid.UUID           `json:"id"`
	CampaignID      uuid.UUID           `json:"campaign_id"`
	UserID          uuid.UUID           `json:"user_id"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        string              `json:"currency"`
	Message         string              `json:"message,omitempty"`
	Anonymous       bool                `json:"anonymous"`
	PaymentAddress  string              `json:"payment_address"`
	PaymentID       string              `json:"payment_id,omitempty"`
	TransactionHash string              `json:"transaction_hash,omitempty"`
	Status          shared.DonationStatus `json:"status"`
	Refunded        bool                `json:"refunded"`
	RefundTxID      string              `json:"refund_tx_id,omitempty"`
	USDEquivalent   decimal.NullDecimal `json:"usd_equivalent,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// NewDonation creates a pending donation for the given campaign
func NewDonation(campaignID, userID uuid.UUID, amount decimal.Decimal, currency, message string, anonymous bool) (*Donation, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if currency == "" {
		return nil, ErrInvalidCurrency
	}

	return &Donation{
		ID:         uuid.New(),
		CampaignID: campaignID,
		UserID:     userID,
		Amount:     amount,
		Currency:   currency,
		Message:    message,
		Anonymous:  anonymous,
		Status:     shared.DonationStatusPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}, nil
}
