package payment

import (
	"time"

	"github.com/google/uuid"
)

// RecordKind distinguishes what a gateway payment object settles
type RecordKind string

const (
	RecordKindDonation RecordKind = "donation"
	RecordKindPayout   RecordKind = "payout"
	RecordKindRefund   RecordKind = "refund"
)

// Record is the append-only audit document for one external payment object,
// keyed by the gateway's payment id. Every reported status is appended to
// Events; the (payment id, raw status) pairs in Events double as the webhook
// deduplication set.
type Record struct {
	PaymentID          string        `json:"payment_id" bson:"payment_id"`
	Kind               RecordKind    `json:"kind" bson:"kind"`
	DonationID         uuid.UUID     `json:"donation_id,omitempty" bson:"donation_id,omitempty"`
	CampaignID         uuid.UUID     `json:"campaign_id,omitempty" bson:"campaign_id,omitempty"`
	Amount             string        `json:"amount,omitempty" bson:"amount,omitempty"` // decimal as string, audit only
	Currency           string        `json:"currency,omitempty" bson:"currency,omitempty"`
	Status             string        `json:"status" bson:"status"`
	DestinationAddress string        `json:"destination_address,omitempty" bson:"destination_address,omitempty"`
	TransactionHash    string        `json:"transaction_hash,omitempty" bson:"transaction_hash,omitempty"`
	Events             []StatusEvent `json:"events" bson:"events"`
	CreatedAt          time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" bson:"updated_at"`
}

// StatusEvent is one provider report, kept verbatim for audit
type StatusEvent struct {
	RawStatus  string    `json:"raw_status" bson:"raw_status"`
	Normalized string    `json:"normalized" bson:"normalized"`
	TxHash     string    `json:"tx_hash,omitempty" bson:"tx_hash,omitempty"`
	ReportedAt time.Time `json:"reported_at" bson:"reported_at"`
}

// HasEvent reports whether the given raw status was already recorded
func (r *Record) HasEvent(rawStatus string) bool {
	for _, e := range r.Events {
		if e.RawStatus == rawStatus {
			return true
		}
	}
	return false
}
