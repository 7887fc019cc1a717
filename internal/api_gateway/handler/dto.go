package handler

import "github.com/shopspring/decimal"

// CreateCampaignRequest represents a request to create a new campaign
type CreateCampaignRequest struct {
	CreatorID      string          `json:"creator_id" binding:"required,uuid"`
	GoalAmount     decimal.Decimal `json:"goal_amount" binding:"required"`
	TargetCurrency string          `json:"target_currency" binding:"required"`
	EndDate        string          `json:"end_date" binding:"required"`
	PayoutAddress  string          `json:"payout_address,omitempty"`
}

// CampaignResponse represents a campaign in API responses
type CampaignResponse struct {
	ID             string `json:"id"`
	CreatorID      string `json:"creator_id"`
	GoalAmount     string `json:"goal_amount"`
	TargetCurrency string `json:"target_currency"`
	RaisedAmount   string `json:"raised_amount"`
	EndDate        string `json:"end_date"`
	IsActive       bool   `json:"is_active"`
	CreatedAt      string `json:"created_at"`
}

// FinalizeResponse represents the outcome of a finalization call
type FinalizeResponse struct {
	CampaignID     string `json:"campaign_id"`
	Outcome        string `json:"outcome"`
	TotalRaised    string `json:"total_raised"`
	GoalMet        bool   `json:"goal_met"`
	DonationCount  int    `json:"donation_count"`
	Refunded       int    `json:"refunded,omitempty"`
	RefundFailures int    `json:"refund_failures,omitempty"`
	WithdrawalID   string `json:"withdrawal_id,omitempty"`
}

// CreateDonationRequest represents a request to create a new donation
type CreateDonationRequest struct {
	CampaignID string          `json:"campaign_id" binding:"required,uuid"`
	UserID     string          `json:"user_id" binding:"required,uuid"`
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	Currency   string          `json:"currency" binding:"required"`
	Message    string          `json:"message,omitempty"`
	Anonymous  bool            `json:"anonymous,omitempty"`
}

// DonationResponse represents a donation in API responses
type DonationResponse struct {
	DonationID      string `json:"donation_id"`
	CampaignID      string `json:"campaign_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	PaymentAddress  string `json:"payment_address"`
	PaymentID       string `json:"payment_id,omitempty"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	Status          string `json:"status"`
	Refunded        bool   `json:"refunded"`
	CreatedAt       string `json:"created_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

// DonationListResponse represents a list of donations in API responses
type DonationListResponse struct {
	Donations []DonationResponse `json:"donations"`
}

// WebhookRequest represents an incoming payment gateway callback
type WebhookRequest struct {
	PaymentID       string            `json:"payment_id" binding:"required"`
	Status          string            `json:"status" binding:"required"`
	Address         string            `json:"address,omitempty"`
	TransactionHash string            `json:"transaction_hash,omitempty"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency,omitempty"`
	USDEquivalent   decimal.Decimal   `json:"usd_equivalent"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ConversionResponse represents a currency conversion in API responses
type ConversionResponse struct {
	ExchangeID   string `json:"exchange_id,omitempty"`
	DonationID   string `json:"donation_id"`
	CampaignID   string `json:"campaign_id"`
	FromCurrency string `json:"from_currency"`
	ToCurrency   string `json:"to_currency"`
	FromAmount   string `json:"from_amount"`
	ToAmount     string `json:"to_amount,omitempty"`
	Status       string `json:"status"`
	TxHash       string `json:"tx_hash,omitempty"`
}

// RegisterWalletRequest represents a request to register a wallet address
type RegisterWalletRequest struct {
	UserID   string `json:"user_id" binding:"required,uuid"`
	Currency string `json:"currency" binding:"required"`
	Address  string `json:"address" binding:"required"`
}

// WalletResponse represents a wallet in API responses
type WalletResponse struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Currency string `json:"currency"`
	Address  string `json:"address"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}
