package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cryptofund-settlement/internal/config"
	"github.com/cryptofund-settlement/internal/data/mongo"
	"github.com/cryptofund-settlement/internal/data/postgres"
	"github.com/cryptofund-settlement/internal/gateway"
	"github.com/cryptofund-settlement/internal/logger"
	"github.com/cryptofund-settlement/internal/platform/messaging/consumers"
	"github.com/cryptofund-settlement/internal/platform/messaging/producers"
	"github.com/cryptofund-settlement/internal/platform/persistence"
	"github.com/cryptofund-settlement/internal/settlement/finalizer"
	"github.com/cryptofund-settlement/internal/settlement/tracker"
	"github.com/cryptofund-settlement/internal/settlement_processor/components"
	"github.com/cryptofund-settlement/internal/settlement_processor/consumer"
	"github.com/cryptofund-settlement/internal/settlement_processor/conversion_poller"
	"github.com/cryptofund-settlement/internal/settlement_processor/finalize_poller"
	"github.com/cryptofund-settlement/internal/settlement_processor/service"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("settlement_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Settlement Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	campaignRepo := postgres.NewCampaignRepository(log, postgresDB)
	donationRepo := postgres.NewDonationRepository(log, postgresDB)
	conversionRepo := postgres.NewConversionRepository(log, postgresDB)
	payoutRepo := postgres.NewPayoutRepository(log, postgresDB)
	walletRepo := postgres.NewWalletRepository(log, postgresDB)
	paymentRecords := mongo.NewPaymentRecordRepository(log, mongoDB.Database())

	// Initialize payment gateway client
	gatewayClient := gateway.NewHTTPClient(&cfg.Gateway)

	// Initialize Kafka consumer
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// Initialize Kafka DLQ producer
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// dlqProducer might be nil if DLQTopic is not configured. Handler should be nil-safe.

	// Initialize the conversion tracker and reconcile service
	conversionTracker := tracker.NewTracker(log, postgresDB, conversionRepo, campaignRepo, gatewayClient, cfg.Gateway.SettlementAddress)

	reconcileService := components.CreateReconcileService(
		postgresDB,
		donationRepo,
		campaignRepo,
		conversionRepo,
		paymentRecords,
		conversionTracker,
		log,
		cfg,
	)

	// Initialize webhook event handler
	webhookEventHandler := consumer.NewWebhookEventHandler(
		log,
		reconcileService,
		dlqProducer,
	)

	// Initialize the background pollers
	conversionPoller := conversion_poller.NewPoller(
		&cfg.ConversionPoller,
		conversionRepo,
		conversionTracker,
		log,
	)

	campaignFinalizer := finalizer.NewFinalizer(log, postgresDB, campaignRepo, donationRepo, payoutRepo, walletRepo, paymentRecords, gatewayClient)
	finalizePoller := finalize_poller.NewPoller(
		&cfg.FinalizePoller,
		campaignRepo,
		campaignFinalizer,
		log,
	)

	// Create error channel for service errors
	errChan := make(chan error, 2)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start Kafka consumer in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.WebhookTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(appCtx, cfg.Kafka.WebhookTopic, cfg.Kafka.ConsumerGroup, webhookEventHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}()

	// Start conversion poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Conversion Poller",
			"interval", cfg.ConversionPoller.Interval.String(),
			"batch_size", cfg.ConversionPoller.BatchSize,
		)
		conversionPoller.Start(appCtx)
	}()

	// Start finalize poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Finalize Poller",
			"interval", cfg.FinalizePoller.Interval.String(),
			"batch_size", cfg.FinalizePoller.BatchSize,
		)
		finalizePoller.Start(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Shutdown the worker pool if it's a WorkerPoolReconcileService
	if wpService, ok := reconcileService.(*service.WorkerPoolReconcileService); ok {
		log.Info("Shutting down worker pool", "running_workers", wpService.Running())
		wpService.Shutdown()
	}

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Close DLQ Kafka producer
	if dlqProducer != nil { // dlqProducer can be nil if DLQTopic was not configured
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	// Close Kafka consumer
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Settlement Processor shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Settlement Processor shutdown completed with errors")
	} else {
		log.Info("Settlement Processor shutdown completed successfully")
	}
}
