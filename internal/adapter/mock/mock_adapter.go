// Package mock provides the bogus backend: a processor that never leaves the
// process. It serves both shapes and every method can be overridden with a
// func field, so tests and local runs can script any processor reply.
package mock

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourorg/payment-gateway/internal/adapter"
	"github.com/yourorg/payment-gateway/internal/card"
)

// Card numbers with scripted default behavior.
const (
	DeclineNumber = "4000000000000002"
	FaultNumber   = "4000000000000119"
)

// CheckoutURL is where URLForToken points by default.
const CheckoutURL = "https://bogus.example/checkout"

var ErrProcessing = errors.New("bogus processor unavailable")

// Method names accepted by Calls.
const (
	MethodPurchase         = "purchase"
	MethodSetupPurchase    = "setup_purchase"
	MethodGetDetailsFor    = "get_details_for"
	MethodCompletePurchase = "complete_purchase"
)

// MockAdapter implements adapter.OneShotBackend and adapter.TwoPhaseBackend.
type MockAdapter struct {
	BackendName string

	PurchaseFunc         func(ctx context.Context, amount decimal.Decimal, c card.Card, opts adapter.Options) (adapter.Response, error)
	SetupPurchaseFunc    func(ctx context.Context, amount decimal.Decimal, opts adapter.Options) (adapter.Response, error)
	URLForTokenFunc      func(token string) string
	GetDetailsForFunc    func(ctx context.Context, token, payerID string) (adapter.Response, error)
	CompletePurchaseFunc func(ctx context.Context, c adapter.Completion) (adapter.Response, error)
	OrderIDFunc          func() string

	mu       sync.Mutex
	calls    map[string]int
	setups   map[string]setup
	lastOpts adapter.Options
}

// setup is what the fake processor remembers between the two phases.
type setup struct {
	amount   decimal.Decimal
	currency string
}

func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{
		BackendName: name,
		calls:       make(map[string]int),
		setups:      make(map[string]setup),
	}
}

func (m *MockAdapter) Name() string { return m.BackendName }

func (m *MockAdapter) GenerateOrderID() string {
	if m.OrderIDFunc != nil {
		return m.OrderIDFunc()
	}
	return adapter.NewOrderID(m.BackendName)
}

// Calls reports how many times method was invoked.
func (m *MockAdapter) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Pending reports how many set up purchases have not been completed yet.
func (m *MockAdapter) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.setups)
}

// LastOptions returns the options of the latest Purchase or SetupPurchase.
func (m *MockAdapter) LastOptions() adapter.Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOpts
}

func (m *MockAdapter) record(method string, opts *adapter.Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
	if opts != nil {
		m.lastOpts = *opts
	}
}

// Purchase succeeds unless the card number is one of the scripted ones.
func (m *MockAdapter) Purchase(ctx context.Context, amount decimal.Decimal, c card.Card, opts adapter.Options) (adapter.Response, error) {
	m.record(MethodPurchase, &opts)
	if m.PurchaseFunc != nil {
		return m.PurchaseFunc(ctx, amount, c, opts)
	}

	switch c.Number() {
	case DeclineNumber:
		return adapter.Response{Success: false, Message: "Card Declined"}, nil
	case FaultNumber:
		return adapter.Response{}, ErrProcessing
	}
	return adapter.Response{
		Success:       true,
		Message:       "Bogus Gateway: Forced success",
		TransactionID: uuid.NewString(),
		Amount:        amount,
		Currency:      opts.Currency,
		Details:       map[string]string{"mock_processed": "true"},
	}, nil
}

func (m *MockAdapter) SetupPurchase(ctx context.Context, amount decimal.Decimal, opts adapter.Options) (adapter.Response, error) {
	m.record(MethodSetupPurchase, &opts)
	if m.SetupPurchaseFunc != nil {
		return m.SetupPurchaseFunc(ctx, amount, opts)
	}

	token := "EC-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:17])
	m.mu.Lock()
	m.setups[token] = setup{amount: amount, currency: opts.Currency}
	m.mu.Unlock()

	return adapter.Response{Success: true, Token: token, Amount: amount, Currency: opts.Currency}, nil
}

func (m *MockAdapter) URLForToken(token string) string {
	if m.URLForTokenFunc != nil {
		return m.URLForTokenFunc(token)
	}
	return CheckoutURL + "?token=" + url.QueryEscape(token)
}

// GetDetailsFor recovers the amount registered by SetupPurchase.
func (m *MockAdapter) GetDetailsFor(ctx context.Context, token, payerID string) (adapter.Response, error) {
	m.record(MethodGetDetailsFor, nil)
	if m.GetDetailsForFunc != nil {
		return m.GetDetailsForFunc(ctx, token, payerID)
	}

	m.mu.Lock()
	s, ok := m.setups[token]
	m.mu.Unlock()
	if !ok {
		return adapter.Response{Success: false, Message: "Invalid token"}, nil
	}
	return adapter.Response{
		Success:  true,
		Token:    token,
		PayerID:  payerID,
		Amount:   s.amount,
		Currency: s.currency,
		Payer:    adapter.PayerInfo{Email: "buyer@bogus.example"},
	}, nil
}

// CompletePurchase forgets the token, so a finished purchase leaves nothing
// behind and the token cannot be looked up again.
func (m *MockAdapter) CompletePurchase(ctx context.Context, c adapter.Completion) (adapter.Response, error) {
	m.record(MethodCompletePurchase, nil)
	m.mu.Lock()
	delete(m.setups, c.Token)
	m.mu.Unlock()
	if m.CompletePurchaseFunc != nil {
		return m.CompletePurchaseFunc(ctx, c)
	}
	return adapter.Response{
		Success:       true,
		TransactionID: uuid.NewString(),
		Amount:        c.Amount,
		Currency:      c.Currency,
		PayerID:       c.PayerID,
	}, nil
}
