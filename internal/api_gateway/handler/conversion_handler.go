package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/cryptofund-settlement/internal/api_gateway/service"
	"github.com/cryptofund-settlement/internal/domain/conversion"
)

// ConversionHandler handles HTTP requests for conversion status reads
type ConversionHandler struct {
	conversionService service.ConversionService
	logger            *slog.Logger
}

// NewConversionHandler creates a new conversion handler
func NewConversionHandler(logger *slog.Logger, conversionService service.ConversionService) *ConversionHandler {
	return &ConversionHandler{
		conversionService: conversionService,
		logger:            logger,
	}
}

// GetByExchangeID returns the current state of a currency conversion,
// refreshed from the gateway when it is reachable
func (h *ConversionHandler) GetByExchangeID(c *gin.Context) {
	exchangeID := c.Param("exchange_id")
	if exchangeID == "" {
		RespondBadRequest(c, "Missing exchange ID")
		return
	}

	conv, err := h.conversionService.GetConversionByExchangeID(c.Request.Context(), exchangeID)
	if err != nil {
		if errors.Is(err, conversion.ErrConversionNotFound{}) {
			RespondNotFound(c, "Conversion not found")
			return
		}
		h.logger.Error("Failed to get conversion", "exchange_id", exchangeID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapConversionToResponse(conv))
}

// mapConversionToResponse maps a conversion entity to a conversion response DTO
func mapConversionToResponse(conv *conversion.Conversion) ConversionResponse {
	resp := ConversionResponse{
		ExchangeID:   conv.ExchangeID,
		DonationID:   conv.DonationID.String(),
		CampaignID:   conv.CampaignID.String(),
		FromCurrency: conv.FromCurrency,
		ToCurrency:   conv.ToCurrency,
		FromAmount:   conv.FromAmount.String(),
		Status:       string(conv.Status),
		TxHash:       conv.TxHash,
	}
	if conv.ToAmount.Valid {
		resp.ToAmount = conv.ToAmount.Decimal.String()
	}
	return resp
}
