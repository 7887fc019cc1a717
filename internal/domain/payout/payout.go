package payout

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cryptofund-settlement/internal/domain/shared"
)

// CampaignPayout is the claim and audit record of a creator payout. At most
// one row exists per campaign: it is inserted as a pending claim before the
// gateway withdrawal and completed with the withdrawal id afterwards, so a
// second finalization pass can never issue a second withdrawal.
type CampaignPayout struct {
	ID            uuid.UUID           `json:"id"`
	CampaignID    uuid.UUID           `json:"campaign_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	WalletAddress string              `json:"wallet_address"`
	TransactionID string              `json:"transaction_id"` // gateway withdrawal id, empty while pending
	Fee           decimal.NullDecimal `json:"fee,omitempty"`
	Status        shared.PayoutStatus `json:"status"`
	ClaimedAt     time.Time           `json:"claimed_at"`
	CreatedAt     time.Time           `json:"created_at"`
}

// NewCampaignPayout builds a pending payout claim for the campaign
func NewCampaignPayout(campaignID uuid.UUID, amount decimal.Decimal, currency, walletAddress string) *CampaignPayout {
	now := time.Now()
	return &CampaignPayout{
		ID:            uuid.New(),
		CampaignID:    campaignID,
		Amount:        amount,
		Currency:      currency,
		WalletAddress: walletAddress,
		Status:        shared.PayoutStatusPending,
		ClaimedAt:     now,
		CreatedAt:     now,
	}
}
