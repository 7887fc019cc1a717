package components

import (
	"context"
	"log/slog"

	"github.com/cryptofund-settlement/internal/domain/conversion"
	"github.com/cryptofund-settlement/internal/settlement_processor/service"
	"github.com/cryptofund-settlement/internal/settlement/tracker"
)

// ConversionInitiatorImpl hands freshly created conversions to the tracker
type ConversionInitiatorImpl struct {
	tracker *tracker.Tracker
	logger  *slog.Logger
}

func NewConversionInitiator(tr *tracker.Tracker, logger *slog.Logger) service.ConversionInitiator {
	return &ConversionInitiatorImpl{
		tracker: tr,
		logger:  logger,
	}
}

// Initiate requests the exchange for a pending conversion. A failure here
// is not fatal: the conversion row is already committed and the poller
// retries any row without an exchange id.
func (i *ConversionInitiatorImpl) Initiate(ctx context.Context, conv *conversion.Conversion) {
	if err := i.tracker.RequestExchange(ctx, conv); err != nil {
		i.logger.Warn("Exchange request deferred to poller",
			"conversion_id", conv.ID.String(),
			"error", err)
	}
}
