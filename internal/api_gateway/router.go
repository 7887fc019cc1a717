package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cryptofund-settlement/internal/api_gateway/handler"
	"github.com/cryptofund-settlement/internal/api_gateway/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	campaignHandler *handler.CampaignHandler,
	donationHandler *handler.DonationHandler,
	webhookHandler *handler.WebhookHandler,
	conversionHandler *handler.ConversionHandler,
	walletHandler *handler.WalletHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Campaign operations
		campaigns := v1.Group("/campaigns")
		{
			campaigns.POST("", campaignHandler.Create)
			campaigns.GET("/:id", campaignHandler.GetByID)
			campaigns.GET("/:id/donations", donationHandler.GetByCampaignID)
			campaigns.POST("/:id/finalize", campaignHandler.Finalize)
		}

		// Donation operations
		donations := v1.Group("/donations")
		{
			donations.POST("", donationHandler.Create)
			donations.GET("/:id", donationHandler.GetByID)
		}

		// Gateway callback ingress
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/payment", webhookHandler.HandlePayment)
		}

		// Conversion status reads
		conversions := v1.Group("/conversions")
		{
			conversions.GET("/:exchange_id", conversionHandler.GetByExchangeID)
		}

		// Wallet directory
		wallets := v1.Group("/wallets")
		{
			wallets.POST("", walletHandler.Register)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
