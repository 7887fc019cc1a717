// Package components contains the building blocks of the settlement
// processor's reconcile pipeline, each behind a small interface so the
// service can be tested in isolation.
package components

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cryptofund-settlement/internal/domain/donation"
	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/settlement_processor/service"
)

// CallbackValidatorImpl validates callbacks and resolves their donations
type CallbackValidatorImpl struct {
	donationRepo donation.Repository
	logger       *slog.Logger
}

func NewCallbackValidator(donationRepo donation.Repository, logger *slog.Logger) service.CallbackValidator {
	return &CallbackValidatorImpl{
		donationRepo: donationRepo,
		logger:       logger,
	}
}

// Validate checks the callback carries the fields reconciliation needs
func (v *CallbackValidatorImpl) Validate(callback *shared.PaymentCallback) error {
	return callback.Validate()
}

// ResolveDonation finds the donation a callback belongs to. Resolution is
// tried in order of confidence: the donation id echoed back in metadata,
// then the gateway payment id, then the payment address.
func (v *CallbackValidatorImpl) ResolveDonation(ctx context.Context, callback *shared.PaymentCallback) (*donation.Donation, error) {
	if donationID := callback.DonationID(); donationID != "" {
		id, err := uuid.Parse(donationID)
		if err != nil {
			v.logger.Warn("Callback metadata carries an unparseable donation id",
				"payment_id", callback.PaymentID,
				"donation_id", donationID)
		} else {
			d, err := v.donationRepo.GetByID(ctx, id)
			if err == nil {
				return d, nil
			}
			if !errors.Is(err, donation.ErrDonationNotFound{}) {
				return nil, err
			}
		}
	}

	d, err := v.donationRepo.GetByPaymentID(ctx, callback.PaymentID)
	if err != nil {
		return nil, err
	}
	if d != nil {
		return d, nil
	}

	if callback.Address != "" {
		return v.donationRepo.GetByPaymentAddress(ctx, callback.Address)
	}
	return nil, nil
}
