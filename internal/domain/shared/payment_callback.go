package shared

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingPaymentID = errors.New("payment callback is missing payment_id")
	ErrMissingStatus    = errors.New("payment callback is missing status")
)

// PaymentCallback is the Kafka message carrying a payment gateway
// notification from the HTTP ingress to the settlement processor. Status is
// the provider's raw free-text status; normalization happens in the
// reconciler so the audit trail keeps the original vocabulary.
type PaymentCallback struct {
	PaymentID       string            `json:"payment_id"`
	Status          string            `json:"status"`
	Address         string            `json:"address,omitempty"`
	TransactionHash string            `json:"transaction_hash,omitempty"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency,omitempty"`
	USDEquivalent   decimal.Decimal   `json:"usd_equivalent"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CorrelationID   string            `json:"correlation_id,omitempty"`
	ReceivedAt      time.Time         `json:"received_at"`
}

// Validate checks the minimal fields every callback must carry before it is
// queued for reconciliation.
func (c *PaymentCallback) Validate() error {
	if c.PaymentID == "" {
		return ErrMissingPaymentID
	}
	if c.Status == "" {
		return ErrMissingStatus
	}
	return nil
}

// DonationID returns the donation correlation id the provider echoes back in
// metadata, or empty when absent.
func (c *PaymentCallback) DonationID() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata["donation_id"]
}
