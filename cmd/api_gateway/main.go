package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cryptofund-settlement/internal/api_gateway"
	"github.com/cryptofund-settlement/internal/api_gateway/service"
	"github.com/cryptofund-settlement/internal/config"
	"github.com/cryptofund-settlement/internal/data/mongo"
	"github.com/cryptofund-settlement/internal/data/postgres"
	"github.com/cryptofund-settlement/internal/gateway"
	"github.com/cryptofund-settlement/internal/logger"
	"github.com/cryptofund-settlement/internal/platform/messaging/producers"
	"github.com/cryptofund-settlement/internal/platform/persistence"
	"github.com/cryptofund-settlement/internal/settlement/finalizer"
	"github.com/cryptofund-settlement/internal/settlement/tracker"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

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

	// Initialize Kafka producer for the webhook ingress (publishes gateway
	// callbacks to the settlement processor's topic)
	kafkaProducer, err := producers.NewWebhookEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize webhook Kafka producer", "error", err)
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

	// The finalize endpoint settles campaigns synchronously; the tracker
	// backs the conversion read endpoint's gateway refresh.
	campaignFinalizer := finalizer.NewFinalizer(log, postgresDB, campaignRepo, donationRepo, payoutRepo, walletRepo, paymentRecords, gatewayClient)
	conversionTracker := tracker.NewTracker(log, postgresDB, conversionRepo, campaignRepo, gatewayClient, cfg.Gateway.SettlementAddress)

	// Initialize services
	campaignService := service.NewCampaignService(log, campaignRepo, campaignFinalizer)
	donationService := service.NewDonationService(log, donationRepo, campaignRepo, paymentRecords, gatewayClient)
	webhookService := service.NewWebhookService(log, kafkaProducer)
	conversionService := service.NewConversionService(log, conversionRepo, conversionTracker)
	walletService := service.NewWalletService(log, walletRepo)

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, campaignService, donationService, webhookService, conversionService, walletService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server before closing its dependencies
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	if err = kafkaProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
