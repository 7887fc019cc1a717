package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cryptofund-settlement/internal/domain/campaign"
	"github.com/cryptofund-settlement/internal/domain/donation"
	"github.com/cryptofund-settlement/internal/domain/payment"
	"github.com/cryptofund-settlement/internal/gateway"
)

// DonationServiceImpl implements the DonationService interface
type DonationServiceImpl struct {
	donationRepo   donation.Repository
	campaignRepo   campaign.Repository
	paymentRecords payment.Repository
	gatewayClient  gateway.Client
	logger         *slog.Logger
}

// NewDonationService creates a new donation service
func NewDonationService(
	logger *slog.Logger,
	donationRepo donation.Repository,
	campaignRepo campaign.Repository,
	paymentRecords payment.Repository,
	gatewayClient gateway.Client,
) DonationService {
	return &DonationServiceImpl{
		donationRepo:   donationRepo,
		campaignRepo:   campaignRepo,
		paymentRecords: paymentRecords,
		gatewayClient:  gatewayClient,
		logger:         logger,
	}
}

// CreateDonation validates the donation against its campaign, asks the
// gateway for a payment address, and only then persists the pending donation.
// The gateway call happens before any write so a gateway failure leaves
// nothing behind; the donation id travels in the payment metadata and comes
// back in webhooks for resolution.
func (s *DonationServiceImpl) CreateDonation(ctx context.Context, campaignID, userID uuid.UUID, amount decimal.Decimal, currency, message string, anonymous bool) (*donation.Donation, error) {
	d, err := donation.NewDonation(campaignID, userID, amount, currency, message, anonymous)
	if err != nil {
		return nil, err
	}

	camp, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !camp.AcceptsDonations(time.Now()) {
		return nil, campaign.ErrCampaignClosed{CampaignID: campaignID}
	}

	intent, err := s.gatewayClient.CreatePaymentAddress(ctx, currency, amount, map[string]string{
		"donation_id": d.ID.String(),
		"campaign_id": campaignID.String(),
	})
	if err != nil {
		s.logger.Error("Failed to create payment address",
			"campaign_id", campaignID.String(),
			"currency", currency,
			"error", err,
		)
		return nil, err
	}

	d.PaymentID = intent.PaymentID
	d.PaymentAddress = intent.Address

	if err := s.donationRepo.Create(ctx, d); err != nil {
		return nil, err
	}

	s.recordPendingPayment(ctx, d)

	s.logger.Info("Donation created",
		"donation_id", d.ID.String(),
		"campaign_id", campaignID.String(),
		"payment_id", d.PaymentID,
		"amount", amount.String(),
		"currency", currency,
	)
	return d, nil
}

// recordPendingPayment opens the payment's audit document. Best-effort: the
// donation row is already committed and the processor creates the document
// on the first webhook anyway.
func (s *DonationServiceImpl) recordPendingPayment(ctx context.Context, d *donation.Donation) {
	now := time.Now()
	record := &payment.Record{
		PaymentID:          d.PaymentID,
		Kind:               payment.RecordKindDonation,
		DonationID:         d.ID,
		CampaignID:         d.CampaignID,
		Amount:             d.Amount.String(),
		Currency:           d.Currency,
		Status:             string(d.Status),
		DestinationAddress: d.PaymentAddress,
		Events:             []payment.StatusEvent{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.paymentRecords.Create(ctx, record); err != nil {
		s.logger.Warn("Failed to create payment audit record",
			"payment_id", d.PaymentID,
			"donation_id", d.ID.String(),
			"error", err,
		)
	}
}

// GetDonationByID retrieves a donation by its ID
func (s *DonationServiceImpl) GetDonationByID(ctx context.Context, id uuid.UUID) (*donation.Donation, error) {
	return s.donationRepo.GetByID(ctx, id)
}

// GetDonationsByCampaignID retrieves a paginated list of a campaign's donations
func (s *DonationServiceImpl) GetDonationsByCampaignID(ctx context.Context, campaignID uuid.UUID, page, perPage int) ([]*donation.Donation, int64, error) {
	offset := (page - 1) * perPage

	donations, err := s.donationRepo.GetByCampaignID(ctx, campaignID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.donationRepo.CountByCampaignID(ctx, campaignID)
	if err != nil {
		return nil, 0, err
	}

	return donations, total, nil
}
