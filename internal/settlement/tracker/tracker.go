// Package tracker follows currency conversions from creation to a terminal
// state. It is the only writer of conversion status transitions, which keeps
// the raised-amount increment that rides on a completed conversion
// exactly-once no matter how many callers ask for a refresh.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cryptofund-settlement/internal/domain/campaign"
	"github.com/cryptofund-settlement/internal/domain/conversion"
	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/gateway"
	"github.com/cryptofund-settlement/internal/platform/persistence"
)

// Tracker requests exchanges for pending conversions and reconciles
// in-flight exchanges against the gateway.
type Tracker struct {
	logger            *slog.Logger
	db                persistence.TxExecutor
	conversionRepo    conversion.Repository
	campaignRepo      campaign.Repository
	gatewayClient     gateway.Client
	settlementAddress string
}

// NewTracker creates a conversion tracker
func NewTracker(
	logger *slog.Logger,
	db persistence.TxExecutor,
	conversionRepo conversion.Repository,
	campaignRepo campaign.Repository,
	gatewayClient gateway.Client,
	settlementAddress string,
) *Tracker {
	return &Tracker{
		logger:            logger,
		db:                db,
		conversionRepo:    conversionRepo,
		campaignRepo:      campaignRepo,
		gatewayClient:     gatewayClient,
		settlementAddress: settlementAddress,
	}
}

// RequestExchange asks the gateway to start the exchange for a pending
// conversion and records the returned exchange id. The gateway call happens
// before any transaction is opened; if recording the id fails the row stays
// pending and is picked up again by the poller, and the duplicate exchange
// request is absorbed by the status guard on the update.
func (t *Tracker) RequestExchange(ctx context.Context, conv *conversion.Conversion) error {
	if conv.ExchangeID != "" {
		return nil // Exchange already in flight
	}

	ex, err := t.gatewayClient.CreateExchange(ctx, conv.FromCurrency, conv.ToCurrency, conv.FromAmount, t.settlementAddress)
	if err != nil {
		return fmt.Errorf("failed to request exchange for conversion %s: %w", conv.ID, err)
	}

	var estCompletion *time.Time
	if ex.EstCompletion != "" {
		if est, parseErr := time.Parse(time.RFC3339, ex.EstCompletion); parseErr == nil {
			estCompletion = &est
		}
	}

	if err := t.conversionRepo.SetExchangeRequested(ctx, conv.ID, ex.ExchangeID, estCompletion); err != nil {
		return fmt.Errorf("failed to record exchange id for conversion %s: %w", conv.ID, err)
	}

	t.logger.Info("Exchange requested",
		"conversion_id", conv.ID.String(),
		"exchange_id", ex.ExchangeID,
		"from", conv.FromCurrency,
		"to", conv.ToCurrency)

	return nil
}

// RefreshByExchangeID fetches the gateway's view of an exchange and applies
// any status change. The gateway is queried before the transaction opens;
// inside the transaction the conversion row is locked, a terminal row is
// left untouched, and the campaign's raised amount is incremented only on
// the transition into COMPLETED.
func (t *Tracker) RefreshByExchangeID(ctx context.Context, exchangeID string) (*conversion.Conversion, error) {
	status, err := t.gatewayClient.GetExchangeStatus(ctx, exchangeID)
	if err != nil {
		return nil, err
	}

	var refreshed *conversion.Conversion
	err = t.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		conversionRepo := t.conversionRepo.WithTx(tx)

		conv, err := conversionRepo.LockByExchangeID(ctx, exchangeID)
		if err != nil {
			return err
		}

		if conv.Status.IsTerminal() {
			refreshed = conv
			return nil
		}

		if conv.Status == status.Status {
			refreshed = conv
			return nil
		}

		toAmount := conv.ToAmount
		if status.Status == shared.ConversionStatusCompleted {
			if !status.ToAmount.IsPositive() {
				return fmt.Errorf("exchange %s completed without a converted amount", exchangeID)
			}
			toAmount = decimal.NewNullDecimal(status.ToAmount)

			campaignRepo := t.campaignRepo.WithTx(tx)
			if err := campaignRepo.AddToRaised(ctx, conv.CampaignID, status.ToAmount); err != nil {
				return err
			}
		}

		if err := conversionRepo.UpdateStatus(ctx, conv.ID, status.Status, toAmount, status.TxHash); err != nil {
			return err
		}

		conv.Status = status.Status
		conv.ToAmount = toAmount
		if status.TxHash != "" {
			conv.TxHash = status.TxHash
		}
		refreshed = conv
		return nil
	})
	if err != nil {
		return nil, err
	}

	if refreshed.Status == shared.ConversionStatusFailed {
		t.logger.Warn("Conversion failed; donated funds need manual reconciliation",
			"conversion_id", refreshed.ID.String(),
			"exchange_id", exchangeID,
			"donation_id", refreshed.DonationID.String(),
			"campaign_id", refreshed.CampaignID.String())
	}

	return refreshed, nil
}
