package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cryptofund-settlement/internal/domain/conversion"
	"github.com/cryptofund-settlement/internal/gateway"
)

// ConversionRefresher advances a conversion against the payment gateway
type ConversionRefresher interface {
	RefreshByExchangeID(ctx context.Context, exchangeID string) (*conversion.Conversion, error)
}

// ConversionServiceImpl implements the ConversionService interface
type ConversionServiceImpl struct {
	conversionRepo conversion.Repository
	refresher      ConversionRefresher
	logger         *slog.Logger
}

// NewConversionService creates a new conversion service
func NewConversionService(
	logger *slog.Logger,
	conversionRepo conversion.Repository,
	refresher ConversionRefresher,
) ConversionService {
	return &ConversionServiceImpl{
		conversionRepo: conversionRepo,
		refresher:      refresher,
		logger:         logger,
	}
}

// GetConversionByExchangeID refreshes the conversion from the gateway first,
// so callers see the newest status the provider will admit to. An unreachable
// gateway degrades to the last persisted state rather than an error.
func (s *ConversionServiceImpl) GetConversionByExchangeID(ctx context.Context, exchangeID string) (*conversion.Conversion, error) {
	conv, err := s.refresher.RefreshByExchangeID(ctx, exchangeID)
	if err == nil {
		return conv, nil
	}

	if errors.Is(err, gateway.ErrGatewayUnavailable) {
		s.logger.Warn("Gateway unreachable, serving stored conversion state",
			"exchange_id", exchangeID,
			"error", err,
		)
		return s.conversionRepo.GetByExchangeID(ctx, exchangeID)
	}

	return nil, err
}
