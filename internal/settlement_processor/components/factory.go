package components

import (
	"log/slog"

	"github.com/cryptofund-settlement/internal/config"
	"github.com/cryptofund-settlement/internal/domain/campaign"
	"github.com/cryptofund-settlement/internal/domain/conversion"
	"github.com/cryptofund-settlement/internal/domain/donation"
	"github.com/cryptofund-settlement/internal/domain/payment"
	"github.com/cryptofund-settlement/internal/platform/persistence"
	"github.com/cryptofund-settlement/internal/settlement/tracker"
	"github.com/cryptofund-settlement/internal/settlement_processor/service"
)

// CreateReconcileService creates a new ReconcileService with all its dependencies.
func CreateReconcileService(
	pgDB *persistence.PostgresDB,
	donationRepo donation.Repository,
	campaignRepo campaign.Repository,
	conversionRepo conversion.Repository,
	paymentRecords payment.Repository,
	conversionTracker *tracker.Tracker,
	logger *slog.Logger,
	cfg *config.Config,
) service.ReconcileService {
	validator := NewCallbackValidator(donationRepo, logger)
	transitioner := NewDonationTransitioner(donationRepo, campaignRepo, conversionRepo, logger)
	recorder := NewPaymentRecorder(paymentRecords, logger)
	initiator := NewConversionInitiator(conversionTracker, logger)

	baseService := service.NewReconcileService(
		pgDB,
		validator,
		transitioner,
		recorder,
		initiator,
		donationRepo,
		logger,
	)

	workerPoolService, err := service.NewWorkerPoolReconcileService(
		baseService,
		service.WorkerPoolConfig{
			Size: cfg.WorkerPool.Size,
		},
		logger.With("component", "worker_pool"),
	)

	if err != nil {
		logger.Error("Failed to create worker pool service, falling back to base service", "error", err)
		return baseService
	}

	logger.Info("Created worker pool reconcile service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService
}
