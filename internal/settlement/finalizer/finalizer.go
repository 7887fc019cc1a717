// Package finalizer closes ended campaigns: it deactivates the campaign
// exactly once, then settles the funds, paying the creator when the goal
// was met and refunding donors when it was not.
package finalizer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cryptofund-settlement/internal/domain/campaign"
	"github.com/cryptofund-settlement/internal/domain/donation"
	"github.com/cryptofund-settlement/internal/domain/payment"
	"github.com/cryptofund-settlement/internal/domain/payout"
	"github.com/cryptofund-settlement/internal/domain/wallet"
	"github.com/cryptofund-settlement/internal/gateway"
	"github.com/cryptofund-settlement/internal/platform/persistence"
)

// Outcome describes how a finalization attempt ended
type Outcome string

const (
	// OutcomeAlreadyFinalized means another caller finished the campaign first
	OutcomeAlreadyFinalized Outcome = "already_finalized"
	// OutcomePayout means the goal was met and the creator withdrawal was accepted
	OutcomePayout Outcome = "payout"
	// OutcomePayoutBlocked means the goal was met but no payout destination exists
	OutcomePayoutBlocked Outcome = "payout_blocked"
	// OutcomeRefunds means the goal was missed and donor refunds were attempted
	OutcomeRefunds Outcome = "refunds"
)

// Result is the summary of one finalization attempt
type Result struct {
	CampaignID     uuid.UUID       `json:"campaign_id"`
	Outcome        Outcome         `json:"outcome"`
	TotalRaised    decimal.Decimal `json:"total_raised"`
	GoalMet        bool            `json:"goal_met"`
	DonationCount  int             `json:"donation_count"`
	Refunded       int             `json:"refunded,omitempty"`
	RefundFailures int             `json:"refund_failures,omitempty"`
	WithdrawalID   string          `json:"withdrawal_id,omitempty"`
}

// claimTTL bounds how long a settlement pass exclusively owns the work it
// claimed. A pass that dies mid-settlement leaves its claims behind; once
// they go stale the next pass takes them over.
const claimTTL = 10 * time.Minute

// Finalizer settles ended campaigns. It is safe to call concurrently from
// the HTTP handler and the background poller: the payout and refund work is
// claimed inside the same transaction that deactivates the campaign, so the
// gateway sees at most one withdrawal per donation and per creator payout
// while a claim is live, and an interrupted settlement is resumed by
// calling Finalize again after the claim goes stale.
type Finalizer struct {
	logger         *slog.Logger
	db             persistence.TxExecutor
	campaignRepo   campaign.Repository
	donationRepo   donation.Repository
	payoutRepo     payout.Repository
	walletRepo     wallet.Repository
	paymentRecords payment.Repository
	gatewayClient  gateway.Client
}

// NewFinalizer creates a campaign finalizer
func NewFinalizer(
	logger *slog.Logger,
	db persistence.TxExecutor,
	campaignRepo campaign.Repository,
	donationRepo donation.Repository,
	payoutRepo payout.Repository,
	walletRepo wallet.Repository,
	paymentRecords payment.Repository,
	gatewayClient gateway.Client,
) *Finalizer {
	return &Finalizer{
		logger:         logger,
		db:             db,
		campaignRepo:   campaignRepo,
		donationRepo:   donationRepo,
		payoutRepo:     payoutRepo,
		walletRepo:     walletRepo,
		paymentRecords: paymentRecords,
		gatewayClient:  gatewayClient,
	}
}

// Finalize closes the campaign and settles its funds. The deactivation, the
// total snapshot, and the claims on the settlement work commit in one
// transaction; the gateway withdrawals happen after the commit, never
// inside it, and only for work this call claimed. A concurrent or repeated
// call finds nothing left to claim and no-ops, while claims left behind by
// a crashed pass go stale after claimTTL and are taken over.
func (f *Finalizer) Finalize(ctx context.Context, campaignID uuid.UUID) (*Result, error) {
	now := time.Now()
	staleBefore := now.Add(-claimTTL)

	var (
		camp          *campaign.Campaign
		claimed       []*donation.Donation
		total         decimal.Decimal
		goalMet       bool
		payoutAddress string
		payoutClaimed bool
	)
	err := f.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		campaignRepo := f.campaignRepo.WithTx(tx)
		donationRepo := f.donationRepo.WithTx(tx)
		payoutRepo := f.payoutRepo.WithTx(tx)

		locked, err := campaignRepo.LockForUpdate(ctx, campaignID)
		if err != nil {
			return err
		}
		if locked.IsActive && !locked.Ended(now) {
			return campaign.ErrCampaignNotEnded{CampaignID: campaignID, EndDate: locked.EndDate}
		}

		if locked.IsActive {
			total, err = donationRepo.SumCompletedByCampaign(ctx, campaignID)
			if err != nil {
				return err
			}
			finalized, err := campaignRepo.Finalize(ctx, campaignID, total, now)
			if err != nil {
				return err
			}
			if !finalized {
				// Lost the race despite holding the lock; treat as inactive
				locked.IsActive = false
				total = locked.RaisedAmount
			}
		} else {
			// Settled total was snapshotted by the pass that deactivated
			total = locked.RaisedAmount
		}

		camp = locked
		goalMet = locked.GoalMet(total)

		if !goalMet {
			claimed, err = donationRepo.ClaimForRefund(ctx, campaignID, now, staleBefore)
			return err
		}

		payoutAddress, err = f.resolvePayoutAddress(ctx, locked)
		if err != nil || payoutAddress == "" {
			return err
		}
		claim := payout.NewCampaignPayout(campaignID, total, locked.TargetCurrency, payoutAddress)
		payoutClaimed, err = payoutRepo.Claim(ctx, claim, staleBefore)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		CampaignID:  campaignID,
		TotalRaised: total,
		GoalMet:     goalMet,
	}

	if goalMet {
		if payoutAddress == "" {
			f.logger.Warn("Campaign met its goal but the creator has no payout destination",
				"campaign_id", camp.ID.String(),
				"creator_id", camp.CreatorID.String(),
				"target_currency", camp.TargetCurrency)
			result.Outcome = OutcomePayoutBlocked
			return result, nil
		}
		return f.settlePayout(ctx, camp, total, payoutAddress, payoutClaimed, result)
	}

	result.DonationCount = len(claimed)
	if len(claimed) == 0 {
		result.Outcome = OutcomeAlreadyFinalized
		return result, nil
	}
	return f.settleRefunds(ctx, claimed, result)
}

// settlePayout withdraws the settled total to the creator. Only the caller
// holding the payout claim talks to the gateway; a caller that lost the
// claim either reports the withdrawal already recorded or backs off while
// the claim holder is still in flight.
func (f *Finalizer) settlePayout(ctx context.Context, camp *campaign.Campaign, total decimal.Decimal, address string, claimed bool, result *Result) (*Result, error) {
	if !claimed {
		existing, err := f.payoutRepo.GetByCampaignID(ctx, camp.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil || existing.TransactionID == "" {
			// Another caller holds a live claim and owns the withdrawal now
			result.Outcome = OutcomeAlreadyFinalized
			return result, nil
		}
		result.WithdrawalID = existing.TransactionID
	} else {
		wd, err := f.gatewayClient.CreateWithdrawal(ctx, camp.TargetCurrency, total, address)
		if err != nil {
			// The claim stays behind and goes stale; a later pass retries
			return nil, fmt.Errorf("failed to withdraw payout for campaign %s: %w", camp.ID, err)
		}

		if err := f.payoutRepo.MarkAccepted(ctx, camp.ID, wd.WithdrawalID, decimal.NewNullDecimal(wd.Fee)); err != nil {
			return nil, err
		}
		result.WithdrawalID = wd.WithdrawalID
		f.recordSettlement(ctx, wd.WithdrawalID, payment.RecordKindPayout, camp.ID, uuid.Nil, total, camp.TargetCurrency, address)
	}

	moved, err := f.donationRepo.MarkProcessedByCampaign(ctx, camp.ID)
	if err != nil {
		return nil, err
	}
	result.DonationCount = int(moved)

	f.logger.Info("Campaign paid out",
		"campaign_id", camp.ID.String(),
		"total", total.String(),
		"withdrawal_id", result.WithdrawalID,
		"donations_processed", moved)

	result.Outcome = OutcomePayout
	return result, nil
}

// settleRefunds returns each claimed donation to its donor. A failed refund
// is logged and skipped so the remaining donors still get theirs; the
// skipped donation stays completed and is retried by a later pass once its
// claim goes stale.
func (f *Finalizer) settleRefunds(ctx context.Context, donations []*donation.Donation, result *Result) (*Result, error) {
	for _, d := range donations {
		destination := f.resolveRefundAddress(ctx, d)

		wd, err := f.gatewayClient.CreateWithdrawal(ctx, d.Currency, d.Amount, destination)
		if err != nil {
			f.logger.Error("Failed to refund donation",
				"donation_id", d.ID.String(),
				"campaign_id", d.CampaignID.String(),
				"error", err)
			result.RefundFailures++
			continue
		}

		refunded, err := f.donationRepo.MarkRefunded(ctx, d.ID, wd.WithdrawalID)
		if err != nil {
			f.logger.Error("Refund accepted but donation update failed",
				"donation_id", d.ID.String(),
				"withdrawal_id", wd.WithdrawalID,
				"error", err)
			result.RefundFailures++
			continue
		}
		if refunded {
			result.Refunded++
			f.recordSettlement(ctx, wd.WithdrawalID, payment.RecordKindRefund, d.CampaignID, d.ID, d.Amount, d.Currency, destination)
		}
	}

	f.logger.Info("Campaign refunds settled",
		"campaign_id", result.CampaignID.String(),
		"refunded", result.Refunded,
		"failures", result.RefundFailures)

	result.Outcome = OutcomeRefunds
	return result, nil
}

// resolvePayoutAddress prefers the address pinned on the campaign, falling
// back to the creator's wallet directory entry for the target currency.
func (f *Finalizer) resolvePayoutAddress(ctx context.Context, camp *campaign.Campaign) (string, error) {
	if camp.CreatorPayoutWalletAddress != "" {
		return camp.CreatorPayoutWalletAddress, nil
	}
	w, err := f.walletRepo.GetByUserAndCurrency(ctx, camp.CreatorID, camp.TargetCurrency)
	if err != nil {
		return "", err
	}
	if w == nil {
		return "", nil
	}
	return w.Address, nil
}

// resolveRefundAddress prefers the donor's registered wallet, falling back
// to the address the donation was paid from.
func (f *Finalizer) resolveRefundAddress(ctx context.Context, d *donation.Donation) string {
	w, err := f.walletRepo.GetByUserAndCurrency(ctx, d.UserID, d.Currency)
	if err != nil || w == nil {
		return d.PaymentAddress
	}
	return w.Address
}

// recordSettlement writes the audit document for an outbound withdrawal.
// Audit writes are best-effort; a Mongo outage must not block settlement.
func (f *Finalizer) recordSettlement(ctx context.Context, withdrawalID string, kind payment.RecordKind, campaignID, donationID uuid.UUID, amount decimal.Decimal, currency, destination string) {
	now := time.Now()
	record := &payment.Record{
		PaymentID:          withdrawalID,
		Kind:               kind,
		DonationID:         donationID,
		CampaignID:         campaignID,
		Amount:             amount.String(),
		Currency:           currency,
		Status:             "accepted",
		DestinationAddress: destination,
		Events: []payment.StatusEvent{
			{RawStatus: "accepted", Normalized: "pending", ReportedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.paymentRecords.Create(ctx, record); err != nil {
		f.logger.Warn("Failed to write settlement audit record",
			"withdrawal_id", withdrawalID,
			"kind", string(kind),
			"error", err)
	}
}
