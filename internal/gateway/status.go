package gateway

import (
	"strings"

	"github.com/cryptofund-settlement/internal/domain/shared"
)

// paymentStates maps the provider's raw payment callback statuses to the
// internal donation-facing states. The provider vocabulary is wider than
// ours; several raw values collapse into one internal state.
var paymentStates = map[string]shared.PaymentState{
	"waiting":    shared.PaymentStatePending,
	"confirming": shared.PaymentStatePending,
	"sending":    shared.PaymentStatePending,
	"confirmed":  shared.PaymentStateCompleted,
	"completed":  shared.PaymentStateCompleted,
	"finished":   shared.PaymentStateCompleted,
	"canceled":   shared.PaymentStateFailed,
	"error":      shared.PaymentStateFailed,
	"expired":    shared.PaymentStateFailed,
	"failed":     shared.PaymentStateFailed,
	"rejected":   shared.PaymentStateFailed,
}

// NormalizePaymentStatus maps a raw provider payment status to an internal
// state. Unrecognized values normalize to pending: a status we have never
// seen must not terminate a donation.
func NormalizePaymentStatus(raw string) shared.PaymentState {
	if state, ok := paymentStates[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return state
	}
	return shared.PaymentStatePending
}

var exchangeStates = map[string]shared.ConversionStatus{
	"waiting":    shared.ConversionStatusProcessing,
	"exchanging": shared.ConversionStatusProcessing,
	"sending":    shared.ConversionStatusProcessing,
	"verifying":  shared.ConversionStatusProcessing,
	"finished":   shared.ConversionStatusCompleted,
	"failed":     shared.ConversionStatusFailed,
	"refunded":   shared.ConversionStatusFailed,
	"expired":    shared.ConversionStatusFailed,
}

// NormalizeExchangeStatus maps a raw provider exchange status to an internal
// conversion status. Unrecognized values stay in-flight so the poller keeps
// watching them rather than burying a live exchange.
func NormalizeExchangeStatus(raw string) shared.ConversionStatus {
	if status, ok := exchangeStates[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return shared.ConversionStatusProcessing
}
