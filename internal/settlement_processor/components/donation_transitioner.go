package components

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cryptofund-settlement/internal/domain/campaign"
	"github.com/cryptofund-settlement/internal/domain/conversion"
	"github.com/cryptofund-settlement/internal/domain/donation"
	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/settlement_processor/service"
)

// DonationTransitionerImpl applies donation state transitions within the
// caller's transaction.
type DonationTransitionerImpl struct {
	donationRepo   donation.Repository
	campaignRepo   campaign.Repository
	conversionRepo conversion.Repository
	logger         *slog.Logger
}

func NewDonationTransitioner(
	donationRepo donation.Repository,
	campaignRepo campaign.Repository,
	conversionRepo conversion.Repository,
	logger *slog.Logger,
) service.DonationTransitioner {
	return &DonationTransitionerImpl{
		donationRepo:   donationRepo,
		campaignRepo:   campaignRepo,
		conversionRepo: conversionRepo,
		logger:         logger,
	}
}

// ApplyCompleted marks the donation completed. A donation in the campaign's
// target currency credits the raised amount directly in the same
// transaction; any other currency gets a pending conversion row instead,
// and the campaign is credited only when that conversion completes.
func (t *DonationTransitionerImpl) ApplyCompleted(ctx context.Context, tx pgx.Tx, d *donation.Donation, callback *shared.PaymentCallback) (*conversion.Conversion, error) {
	donationRepo := t.donationRepo.WithTx(tx)
	campaignRepo := t.campaignRepo.WithTx(tx)

	camp, err := campaignRepo.GetByID(ctx, d.CampaignID)
	if err != nil {
		return nil, err
	}

	var usdEquivalent decimal.NullDecimal
	if callback.USDEquivalent.IsPositive() {
		usdEquivalent = decimal.NewNullDecimal(callback.USDEquivalent)
	}

	if err := donationRepo.MarkCompleted(ctx, d.ID, callback.PaymentID, callback.TransactionHash, usdEquivalent); err != nil {
		return nil, err
	}

	if sameCurrency(d.Currency, camp.TargetCurrency) {
		if err := campaignRepo.AddToRaised(ctx, camp.ID, d.Amount); err != nil {
			return nil, err
		}
		t.logger.Info("Donation credited to campaign",
			"donation_id", d.ID.String(),
			"campaign_id", camp.ID.String(),
			"amount", d.Amount.String(),
			"currency", d.Currency)
		return nil, nil
	}

	conv := conversion.NewConversion(d.ID, camp.ID, strings.ToLower(d.Currency), strings.ToLower(camp.TargetCurrency), d.Amount)
	if err := t.conversionRepo.WithTx(tx).Create(ctx, conv); err != nil {
		return nil, err
	}

	t.logger.Info("Conversion created for completed donation",
		"donation_id", d.ID.String(),
		"conversion_id", conv.ID.String(),
		"from", conv.FromCurrency,
		"to", conv.ToCurrency)
	return conv, nil
}

// ApplyFailed marks the donation failed
func (t *DonationTransitionerImpl) ApplyFailed(ctx context.Context, tx pgx.Tx, d *donation.Donation, callback *shared.PaymentCallback) error {
	if err := t.donationRepo.WithTx(tx).MarkFailed(ctx, d.ID, callback.PaymentID); err != nil {
		return err
	}
	t.logger.Info("Donation marked failed",
		"donation_id", d.ID.String(),
		"payment_id", callback.PaymentID,
		"raw_status", callback.Status)
	return nil
}

func sameCurrency(a, b string) bool {
	return strings.EqualFold(a, b)
}
