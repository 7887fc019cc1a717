package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cryptofund-settlement/internal/domain/campaign"
	"github.com/cryptofund-settlement/internal/domain/conversion"
	"github.com/cryptofund-settlement/internal/domain/donation"
	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/domain/wallet"
	"github.com/cryptofund-settlement/internal/settlement/finalizer"
)

// CampaignService defines the interface for campaign operations
type CampaignService interface {
	// CreateCampaign creates a new active campaign
	CreateCampaign(ctx context.Context, creatorID uuid.UUID, goal decimal.Decimal, targetCurrency string, endDate time.Time, payoutAddress string) (*campaign.Campaign, error)

	// GetCampaignByID retrieves a campaign by its ID
	// Returns ErrCampaignNotFound if the campaign doesn't exist
	GetCampaignByID(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error)

	// FinalizeCampaign settles an ended campaign: payout when the goal was
	// met, refunds otherwise. Repeat calls no-op with outcome
	// "already_finalized".
	FinalizeCampaign(ctx context.Context, id uuid.UUID) (*finalizer.Result, error)
}

// DonationService defines the interface for donation operations
type DonationService interface {
	// CreateDonation validates the donation, obtains a payment address from
	// the gateway, and persists the pending donation. Nothing is persisted
	// when the gateway call fails.
	CreateDonation(ctx context.Context, campaignID, userID uuid.UUID, amount decimal.Decimal, currency, message string, anonymous bool) (*donation.Donation, error)

	// GetDonationByID retrieves a donation by its ID
	// Returns ErrDonationNotFound if the donation doesn't exist
	GetDonationByID(ctx context.Context, id uuid.UUID) (*donation.Donation, error)

	// GetDonationsByCampaignID retrieves a paginated list of a campaign's
	// donations plus the total count.
	GetDonationsByCampaignID(ctx context.Context, campaignID uuid.UUID, page, perPage int) ([]*donation.Donation, int64, error)
}

// WebhookService defines the interface for webhook ingress
type WebhookService interface {
	// EnqueueCallback validates a gateway callback and queues it for the
	// settlement processor. Returning nil means the event is durable.
	EnqueueCallback(ctx context.Context, callback *shared.PaymentCallback) error
}

// ConversionService defines the interface for conversion status reads
type ConversionService interface {
	// GetConversionByExchangeID refreshes the conversion from the gateway
	// and returns the stored row. When the gateway is unreachable the last
	// persisted state is returned instead.
	GetConversionByExchangeID(ctx context.Context, exchangeID string) (*conversion.Conversion, error)
}

// WalletService defines the interface for the wallet directory
type WalletService interface {
	// RegisterWallet records a user's receiving address for one currency,
	// used later to resolve payout and refund destinations.
	RegisterWallet(ctx context.Context, userID uuid.UUID, currency, address string) (*wallet.Wallet, error)
}
