package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cryptofund-settlement/internal/config"
	"github.com/cryptofund-settlement/internal/domain/shared"
)

// PaymentIntent is the provider's answer to a payment-address request.
type PaymentIntent struct {
	PaymentID string
	Address   string
}

// PaymentStatus is a point-in-time snapshot of a payment as the provider
// sees it, already normalized.
type PaymentStatus struct {
	PaymentID     string
	RawStatus     string
	State         shared.PaymentState
	Amount        decimal.Decimal
	Currency      string
	TxHash        string
	USDEquivalent decimal.Decimal
}

// ExchangeStatus is a point-in-time snapshot of a currency exchange.
type ExchangeStatus struct {
	ExchangeID string
	RawStatus  string
	Status     shared.ConversionStatus
	FromAmount decimal.Decimal
	ToAmount   decimal.Decimal
	TxHash     string
}

// Exchange is the provider's acknowledgement that an exchange was accepted.
type Exchange struct {
	ExchangeID    string
	EstCompletion string
}

// Withdrawal is the provider's acknowledgement of an outbound transfer.
type Withdrawal struct {
	WithdrawalID string
	Fee          decimal.Decimal
}

// Client is the payment provider surface the settlement pipeline depends on.
// Implementations must be safe for concurrent use.
type Client interface {
	CreatePaymentAddress(ctx context.Context, currency string, amount decimal.Decimal, metadata map[string]string) (*PaymentIntent, error)
	CheckPaymentStatus(ctx context.Context, paymentID string) (*PaymentStatus, error)
	CreateExchange(ctx context.Context, fromCurrency, toCurrency string, amount decimal.Decimal, destinationAddress string) (*Exchange, error)
	GetExchangeStatus(ctx context.Context, exchangeID string) (*ExchangeStatus, error)
	CreateWithdrawal(ctx context.Context, currency string, amount decimal.Decimal, destinationAddress string) (*Withdrawal, error)
}

// HTTPClient talks to the provider's REST API.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	callbackURL string
	httpClient  *http.Client
}

// NewHTTPClient creates a provider client from configuration. Every request
// carries the configured timeout so a slow provider cannot stall a worker.
func NewHTTPClient(cfg *config.GatewayConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		callbackURL: cfg.CallbackURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return &RejectedError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Message}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) CreatePaymentAddress(ctx context.Context, currency string, amount decimal.Decimal, metadata map[string]string) (*PaymentIntent, error) {
	reqBody := map[string]interface{}{
		"pay_currency": currency,
		"pay_amount":   amount.String(),
		"ipn_callback": c.callbackURL,
		"metadata":     metadata,
	}
	var respBody struct {
		PaymentID  string `json:"payment_id"`
		PayAddress string `json:"pay_address"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v1/payments", reqBody, &respBody); err != nil {
		return nil, err
	}
	if respBody.PaymentID == "" || respBody.PayAddress == "" {
		return nil, fmt.Errorf("%w: incomplete payment response", ErrGatewayUnavailable)
	}
	return &PaymentIntent{PaymentID: respBody.PaymentID, Address: respBody.PayAddress}, nil
}

func (c *HTTPClient) CheckPaymentStatus(ctx context.Context, paymentID string) (*PaymentStatus, error) {
	var respBody struct {
		PaymentID     string          `json:"payment_id"`
		Status        string          `json:"payment_status"`
		Amount        decimal.Decimal `json:"actually_paid"`
		Currency      string          `json:"pay_currency"`
		TxHash        string          `json:"payin_hash"`
		USDEquivalent decimal.Decimal `json:"usd_equivalent"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &respBody); err != nil {
		return nil, err
	}
	return &PaymentStatus{
		PaymentID:     respBody.PaymentID,
		RawStatus:     respBody.Status,
		State:         NormalizePaymentStatus(respBody.Status),
		Amount:        respBody.Amount,
		Currency:      respBody.Currency,
		TxHash:        respBody.TxHash,
		USDEquivalent: respBody.USDEquivalent,
	}, nil
}

func (c *HTTPClient) CreateExchange(ctx context.Context, fromCurrency, toCurrency string, amount decimal.Decimal, destinationAddress string) (*Exchange, error) {
	reqBody := map[string]interface{}{
		"from_currency": fromCurrency,
		"to_currency":   toCurrency,
		"from_amount":   amount.String(),
		"address":       destinationAddress,
	}
	var respBody struct {
		ExchangeID    string `json:"exchange_id"`
		EstCompletion string `json:"estimated_completion"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v1/exchanges", reqBody, &respBody); err != nil {
		return nil, err
	}
	if respBody.ExchangeID == "" {
		return nil, fmt.Errorf("%w: exchange accepted without id", ErrGatewayUnavailable)
	}
	return &Exchange{ExchangeID: respBody.ExchangeID, EstCompletion: respBody.EstCompletion}, nil
}

func (c *HTTPClient) GetExchangeStatus(ctx context.Context, exchangeID string) (*ExchangeStatus, error) {
	var respBody struct {
		ExchangeID string          `json:"exchange_id"`
		Status     string          `json:"status"`
		FromAmount decimal.Decimal `json:"from_amount"`
		ToAmount   decimal.Decimal `json:"to_amount"`
		TxHash     string          `json:"payout_hash"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/v1/exchanges/"+exchangeID, nil, &respBody); err != nil {
		return nil, err
	}
	return &ExchangeStatus{
		ExchangeID: respBody.ExchangeID,
		RawStatus:  respBody.Status,
		Status:     NormalizeExchangeStatus(respBody.Status),
		FromAmount: respBody.FromAmount,
		ToAmount:   respBody.ToAmount,
		TxHash:     respBody.TxHash,
	}, nil
}

func (c *HTTPClient) CreateWithdrawal(ctx context.Context, currency string, amount decimal.Decimal, destinationAddress string) (*Withdrawal, error) {
	reqBody := map[string]interface{}{
		"currency": currency,
		"amount":   amount.String(),
		"address":  destinationAddress,
	}
	var respBody struct {
		WithdrawalID string          `json:"withdrawal_id"`
		Fee          decimal.Decimal `json:"fee"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v1/withdrawals", reqBody, &respBody); err != nil {
		return nil, err
	}
	if respBody.WithdrawalID == "" {
		return nil, fmt.Errorf("%w: withdrawal accepted without id", ErrGatewayUnavailable)
	}
	return &Withdrawal{WithdrawalID: respBody.WithdrawalID, Fee: respBody.Fee}, nil
}
