package shared

// DonationStatus defines the settlement states of a donation.
// Transitions are monotonic: pending -> completed -> processed|refunded,
// or pending -> failed. Terminal states never transition again.
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusCompleted DonationStatus = "completed"
	DonationStatusFailed    DonationStatus = "failed"
	DonationStatusRefunded  DonationStatus = "refunded"
	DonationStatusProcessed DonationStatus = "processed"
)

// IsTerminal reports whether no further transition is permitted.
func (s DonationStatus) IsTerminal() bool {
	switch s {
	case DonationStatusFailed, DonationStatusRefunded, DonationStatusProcessed:
		return true
	}
	return false
}

// Settled reports whether a payment callback may no longer change this
// donation. A completed donation is settled with respect to callbacks even
// though the finalizer can still move it to processed or refunded.
func (s DonationStatus) Settled() bool {
	return s != DonationStatusPending
}

// CanTransitionTo enforces the monotonic donation state machine.
func (s DonationStatus) CanTransitionTo(next DonationStatus) bool {
	switch s {
	case DonationStatusPending:
		return next == DonationStatusCompleted || next == DonationStatusFailed
	case DonationStatusCompleted:
		return next == DonationStatusProcessed || next == DonationStatusRefunded
	}
	return false
}

// ConversionStatus defines currency exchange states. COMPLETED and FAILED
// are terminal.
type ConversionStatus string

const (
	ConversionStatusPending    ConversionStatus = "PENDING"
	ConversionStatusProcessing ConversionStatus = "PROCESSING"
	ConversionStatusCompleted  ConversionStatus = "COMPLETED"
	ConversionStatusFailed     ConversionStatus = "FAILED"
)

// IsTerminal reports whether the conversion can no longer progress.
func (s ConversionStatus) IsTerminal() bool {
	return s == ConversionStatusCompleted || s == ConversionStatusFailed
}

// PaymentState is the closed set a provider-reported payment status
// normalizes to. Unrecognized provider statuses map to PaymentStatePending,
// never to a terminal state.
type PaymentState string

const (
	PaymentStatePending   PaymentState = "pending"
	PaymentStateCompleted PaymentState = "completed"
	PaymentStateFailed    PaymentState = "failed"
)

// PayoutStatus defines campaign payout states.
type PayoutStatus string

const (
	// PayoutStatusPending marks a claimed payout whose withdrawal has not
	// been accepted by the gateway yet.
	PayoutStatusPending   PayoutStatus = "PENDING"
	PayoutStatusCompleted PayoutStatus = "COMPLETED"
)
