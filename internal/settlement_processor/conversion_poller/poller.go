package conversion_poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cryptofund-settlement/internal/config"
	"github.com/cryptofund-settlement/internal/domain/conversion"
)

// ExchangeDriver advances conversions against the payment gateway
type ExchangeDriver interface {
	RequestExchange(ctx context.Context, conv *conversion.Conversion) error
	RefreshByExchangeID(ctx context.Context, exchangeID string) (*conversion.Conversion, error)
}

// Poller drives currency conversions forward in the background. It retries
// exchange requests that were deferred at donation completion and refreshes
// conversions whose exchange is still running at the payment gateway.
type Poller struct {
	conversionRepo conversion.Repository
	tracker        ExchangeDriver
	logger         *slog.Logger
	pollInterval   time.Duration
	batchSize      int
}

func NewPoller(
	cfg *config.PollerConfig,
	conversionRepo conversion.Repository,
	conversionTracker ExchangeDriver,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		conversionRepo: conversionRepo,
		tracker:        conversionTracker,
		logger:         logger,
		pollInterval:   cfg.Interval,
		batchSize:      cfg.BatchSize,
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Conversion Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Conversion Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			p.logger.Debug("Conversion Poller tick: driving pending conversions")
			if err := p.requestPendingExchanges(ctx); err != nil {
				p.logger.Error("Error while retrying deferred exchange requests", "error", err)
			}
			if err := p.refreshInFlightExchanges(ctx); err != nil {
				p.logger.Error("Error while refreshing in-flight exchanges", "error", err)
			}
		}
	}
}

// requestPendingExchanges retries conversions whose exchange request never
// reached the gateway (e.g. the gateway was down when the donation completed).
func (p *Poller) requestPendingExchanges(ctx context.Context) error {
	pending, err := p.conversionRepo.ListAwaitingExchange(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list conversions awaiting exchange: %w", err)
	}

	if len(pending) == 0 {
		p.logger.Debug("No conversions awaiting an exchange request.")
		return nil
	}

	p.logger.Info("Fetched conversions awaiting exchange request", "count", len(pending))

	for _, conv := range pending {
		if err := p.tracker.RequestExchange(ctx, conv); err != nil {
			p.logger.Error("Failed to request exchange for conversion",
				"conversion_id", conv.ID, "donation_id", conv.DonationID, "error", err,
			)
			// Row stays PENDING with an empty exchange id, picked up next tick.
			continue
		}
		p.logger.Info("Requested exchange for conversion",
			"conversion_id", conv.ID, "donation_id", conv.DonationID,
		)
	}
	return nil
}

// refreshInFlightExchanges polls the gateway for conversions that have an
// exchange in progress and applies any status change.
func (p *Poller) refreshInFlightExchanges(ctx context.Context) error {
	inFlight, err := p.conversionRepo.ListInFlight(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list in-flight conversions: %w", err)
	}

	if len(inFlight) == 0 {
		p.logger.Debug("No in-flight conversions to refresh.")
		return nil
	}

	p.logger.Info("Fetched in-flight conversions", "count", len(inFlight))

	for _, conv := range inFlight {
		refreshed, err := p.tracker.RefreshByExchangeID(ctx, conv.ExchangeID)
		if err != nil {
			p.logger.Error("Failed to refresh conversion status",
				"conversion_id", conv.ID, "exchange_id", conv.ExchangeID, "error", err,
			)
			continue
		}
		if refreshed.Status != conv.Status {
			p.logger.Info("Conversion status advanced",
				"conversion_id", conv.ID, "exchange_id", conv.ExchangeID,
				"from", conv.Status, "to", refreshed.Status,
			)
		}
	}
	return nil
}
