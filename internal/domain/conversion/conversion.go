package conversion

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cryptofund-settlement/internal/domain/shared"
)

// Conversion represents an external exchange of a donated currency into a
// campaign's target currency. The row itself is the handoff between the
// donation reconciler (which creates it) and the conversion tracker (which
// requests the exchange and follows it to a terminal state): ExchangeID is
// empty until the gateway accepts the exchange request, so a crashed or
// failed request is retried by simply picking the row up again.
type Conversion struct {
	ID            uuid.UUID               `json:"id"`
	DonationID    uuid.UUID               `json:"donation_id"`
	CampaignID    uuid.UUID               `json:"campaign_id"`
	FromCurrency  string                  `json:"from_currency"`
	ToCurrency    string                  `json:"to_currency"`
	FromAmount    decimal.Decimal         `json:"from_amount"`
	ToAmount      decimal.NullDecimal     `json:"to_amount,omitempty"`
	ExchangeID    string                  `json:"exchange_id,omitempty"`
	Status        shared.ConversionStatus `json:"status"`
	EstCompletion *time.Time              `json:"estimated_completion_time,omitempty"`
	TxHash        string                  `json:"tx_hash,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// NewConversion creates a PENDING conversion for a completed donation whose
// currency differs from the campaign target.
func NewConversion(donationID, campaignID uuid.UUID, fromCurrency, toCurrency string, fromAmount decimal.Decimal) *Conversion {
	return &Conversion{
		ID:           uuid.New(),
		DonationID:   donationID,
		CampaignID:   campaignID,
		FromCurrency: fromCurrency,
		ToCurrency:   toCurrency,
		FromAmount:   fromAmount,
		Status:       shared.ConversionStatusPending,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}
