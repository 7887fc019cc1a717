package finalize_poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cryptofund-settlement/internal/config"
	"github.com/cryptofund-settlement/internal/domain/campaign"
	"github.com/cryptofund-settlement/internal/settlement/finalizer"
)

// CampaignFinalizer settles a single ended campaign
type CampaignFinalizer interface {
	Finalize(ctx context.Context, campaignID uuid.UUID) (*finalizer.Result, error)
}

// Poller settles campaigns whose deadline has passed. Each tick it picks up
// ended campaigns that are still active, plus campaigns whose settlement was
// interrupted mid-way, and runs them through the finalizer.
type Poller struct {
	campaignRepo campaign.Repository
	finalizer    CampaignFinalizer
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
}

func NewPoller(
	cfg *config.PollerConfig,
	campaignRepo campaign.Repository,
	campaignFinalizer CampaignFinalizer,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		campaignRepo: campaignRepo,
		finalizer:    campaignFinalizer,
		logger:       logger,
		pollInterval: cfg.Interval,
		batchSize:    cfg.BatchSize,
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Finalize Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Finalize Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			p.logger.Debug("Finalize Poller tick: settling ended campaigns")
			if err := p.settleEndedCampaigns(ctx); err != nil {
				p.logger.Error("Error during batch settlement of ended campaigns", "error", err)
			}
		}
	}
}

func (p *Poller) settleEndedCampaigns(ctx context.Context) error {
	ended, err := p.campaignRepo.ListEndedActive(ctx, time.Now().UTC(), p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list ended campaigns: %w", err)
	}

	// Deactivated campaigns that still hold completed donations were
	// interrupted mid-settlement; feed them through the finalizer again.
	unsettled, err := p.campaignRepo.ListUnsettled(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list unsettled campaigns: %w", err)
	}

	batch := append(ended, unsettled...)
	if len(batch) == 0 {
		p.logger.Debug("No campaigns awaiting settlement.")
		return nil
	}

	p.logger.Info("Fetched campaigns for settlement",
		"ended", len(ended), "unsettled", len(unsettled))

	for _, camp := range batch {
		result, err := p.finalizer.Finalize(ctx, camp.ID)
		if err != nil {
			p.logger.Error("Failed to settle campaign",
				"campaign_id", camp.ID, "error", err,
			)
			// Campaign stays active (or mid-settlement), retried next tick.
			continue
		}
		p.logger.Info("Settled campaign",
			"campaign_id", camp.ID,
			"outcome", result.Outcome,
			"total_raised", result.TotalRaised.String(),
			"goal_met", result.GoalMet,
			"donation_count", result.DonationCount,
		)
	}
	return nil
}
