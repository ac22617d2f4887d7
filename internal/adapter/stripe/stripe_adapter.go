package stripe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourorg/payment-gateway/internal/adapter"
	"github.com/yourorg/payment-gateway/internal/card"
)

const (
	BackendName      = "stripe"
	stripeAPIBaseURL = "https://api.stripe.com/v1"

	defaultRetryAttempts = 2
	defaultRetryDelay    = 500 * time.Millisecond
	defaultTimeout       = 10 * time.Second
	maxIdempotencyKeyLen = 255
)

// Currencies Stripe charges in whole units.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// StripeAdapter is a one-shot backend over the Stripe charges API.
type StripeAdapter struct {
	httpClient *http.Client
	apiBaseURL string
	apiKey     string
	retryDelay time.Duration
}

// NewStripeAdapter builds the adapter. A nil client gets a 10s timeout.
func NewStripeAdapter(apiKey string, client *http.Client) *StripeAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &StripeAdapter{
		httpClient: client,
		apiBaseURL: stripeAPIBaseURL,
		apiKey:     apiKey,
		retryDelay: defaultRetryDelay,
	}
}

// WithBaseURL points the adapter at another API host.
func (s *StripeAdapter) WithBaseURL(base string) *StripeAdapter {
	if base != "" {
		s.apiBaseURL = strings.TrimRight(base, "/")
	}
	return s
}

func (s *StripeAdapter) Name() string { return BackendName }

func (s *StripeAdapter) GenerateOrderID() string { return adapter.NewOrderID(BackendName) }

// generateIdempotencyKey keys the request on the order so every retry of the
// same attempt is deduplicated by Stripe.
func generateIdempotencyKey(orderID string) string {
	key := orderID
	if key == "" {
		key = uuid.NewString()
	}
	if len(key) > maxIdempotencyKeyLen {
		return key[:maxIdempotencyKeyLen]
	}
	return key
}

// minorUnits converts a decimal amount into the integer Stripe expects.
func minorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

func buildStripePayload(amount decimal.Decimal, c card.Card, opts adapter.Options) url.Values {
	currency := opts.Currency
	if currency == "" {
		currency = "USD"
	}

	payload := url.Values{}
	payload.Set("amount", strconv.FormatInt(minorUnits(amount, currency), 10))
	payload.Set("currency", strings.ToLower(currency))

	if opts.PaymentToken != "" {
		payload.Set("source", opts.PaymentToken)
	} else {
		payload.Set("source[object]", "card")
		payload.Set("source[number]", c.Number())
		payload.Set("source[exp_month]", strconv.Itoa(c.Month()))
		payload.Set("source[exp_year]", strconv.Itoa(c.Year()))
		payload.Set("source[cvc]", c.VerificationValue())
		payload.Set("source[name]", c.HolderName())
		setIfNotEmpty(payload, "source[address_line1]", opts.Address.Address1)
		setIfNotEmpty(payload, "source[address_line2]", opts.Address.Address2)
		setIfNotEmpty(payload, "source[address_city]", opts.Address.City)
		setIfNotEmpty(payload, "source[address_state]", opts.Address.State)
		setIfNotEmpty(payload, "source[address_zip]", opts.Address.Zip)
		setIfNotEmpty(payload, "source[address_country]", opts.Address.Country)
	}

	if opts.Description != "" {
		payload.Set("description", opts.Description)
	} else {
		payload.Set("description", fmt.Sprintf("Charge for order %s", opts.OrderID))
	}
	setIfNotEmpty(payload, "metadata[order_id]", opts.OrderID)
	setIfNotEmpty(payload, "receipt_email", opts.Email)
	return payload
}

func setIfNotEmpty(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

// StripeErrorResponse is the error body returned by the Stripe API.
type StripeErrorResponse struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		Message     string `json:"message"`
		DeclineCode string `json:"decline_code"`
	} `json:"error"`
}

type chargeResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// Purchase creates a charge. 429 and 5xx replies are retried; if every
// attempt fails that way, or the transport fails, an error is returned.
func (s *StripeAdapter) Purchase(ctx context.Context, amount decimal.Decimal, c card.Card, opts adapter.Options) (adapter.Response, error) {
	body := []byte(buildStripePayload(amount, c, opts).Encode())
	idempotencyKey := generateIdempotencyKey(opts.OrderID)

	var (
		status  int
		payload []byte
		lastErr error
	)
	for attempt := 0; attempt <= defaultRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return adapter.Response{}, fmt.Errorf("stripe: %w", ctx.Err())
			case <-time.After(s.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBaseURL+"/charges", bytes.NewReader(body))
		if err != nil {
			return adapter.Response{}, fmt.Errorf("stripe: failed to create http request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Idempotency-Key", idempotencyKey)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("stripe: http client error on attempt %d: %w", attempt+1, err)
			continue
		}
		payload, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("stripe: failed to read response body: %w", err)
			continue
		}
		status = resp.StatusCode
		if retryable(status) {
			lastErr = fmt.Errorf("stripe: API request failed after retries with HTTP %d", status)
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return adapter.Response{}, lastErr
	}

	if status >= 200 && status < 300 {
		var charge chargeResponse
		if err := json.Unmarshal(payload, &charge); err != nil {
			return adapter.Response{}, fmt.Errorf("stripe: failed to decode charge: %w", err)
		}
		return adapter.Response{
			Success:       true,
			Message:       "Transaction approved",
			TransactionID: charge.ID,
			Amount:        amount,
			Currency:      opts.Currency,
			Details: map[string]string{
				"provider_transaction_id": charge.ID,
				"stripe_status":           charge.Status,
			},
		}, nil
	}

	result := adapter.Response{Success: false, Details: map[string]string{}}
	var errorResponse StripeErrorResponse
	if err := json.Unmarshal(payload, &errorResponse); err == nil && errorResponse.Error.Message != "" {
		result.Message = errorResponse.Error.Message
		result.Details["stripe_error_type"] = errorResponse.Error.Type
		result.Details["error_code"] = errorResponse.Error.Code
		if errorResponse.Error.DeclineCode != "" {
			result.Details["error_code"] = errorResponse.Error.DeclineCode
		}
	} else {
		result.Message = fmt.Sprintf("Stripe API request failed with HTTP %d", status)
		result.Details["error_code"] = fmt.Sprintf("STRIPE_HTTP_%d", status)
	}
	return result, nil
}
