package campaign

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrInvalidGoal           = errors.New("goal amount must be positive")
	ErrInvalidCurrencyFormat = errors.New("target currency cannot be empty")
	ErrEndDateInPast         = errors.New("end date must be in the future")
)

// Campaign represents a time-boxed fundraising campaign. RaisedAmount is
// only mutated by a completed conversion or a direct same-currency completed
// donation; IsActive flips true->false exactly once, at finalization.
type Campaign struct {
	ID                         uuid.UUID       `json:"id"`
	CreatorID                  uuid.UUID       `json:"creator_id"`
	GoalAmount                 decimal.Decimal `json:"goal_amount"`
	TargetCurrency             string          `json:"target_currency"`
	RaisedAmount               decimal.Decimal `json:"raised_amount"`
	EndDate                    time.Time       `json:"end_date"`
	IsActive                   bool            `json:"is_active"`
	CreatorPayoutWalletAddress string          `json:"creator_payout_wallet_address,omitempty"`
	CreatedAt                  time.Time       `json:"created_at"`
	UpdatedAt                  time.Time       `json:"updated_at"`
}

// NewCampaign creates a new active campaign with the given parameters
func NewCampaign(creatorID uuid.UUID, goal decimal.Decimal, targetCurrency string, endDate time.Time, payoutAddress string) (*Campaign, error) {
	if !goal.IsPositive() {
		return nil, ErrInvalidGoal
	}
	if targetCurrency == "" {
		return nil, ErrInvalidCurrencyFormat
	}
	if !endDate.After(time.Now()) {
		return nil, ErrEndDateInPast
	}

	return &Campaign{
		ID:                         uuid.New(),
		CreatorID:                  creatorID,
		GoalAmount:                 goal,
		TargetCurrency:             targetCurrency,
		RaisedAmount:               decimal.Zero,
		EndDate:                    endDate,
		IsActive:                   true,
		CreatorPayoutWalletAddress: payoutAddress,
		CreatedAt:                  time.Now(),
		UpdatedAt:                  time.Now(),
	}, nil
}

// Ended reports whether the campaign deadline has passed
func (c *Campaign) Ended(now time.Time) bool {
	return !c.EndDate.After(now)
}

// AcceptsDonations reports whether the campaign can take a new donation
func (c *Campaign) AcceptsDonations(now time.Time) bool {
	return c.IsActive && !c.Ended(now)
}

// GoalMet reports whether the given raised total reaches the funding goal
func (c *Campaign) GoalMet(total decimal.Decimal) bool {
	return total.GreaterThanOrEqual(c.GoalAmount)
}
