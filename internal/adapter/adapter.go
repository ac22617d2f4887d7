// Package adapter defines the contract every payment processor backend
// implements. Backends come in two shapes: one-shot backends charge a card in
// a single call, two-phase backends register the purchase, send the buyer to
// the processor and finish once the buyer comes back. A Gateway wraps one of
// the two so callers branch on an explicit tag instead of probing methods.
//
// Backends handle the processor specific work (serialization, retries,
// idempotency, error mapping) and normalize replies into a Response. A
// returned error means the call itself faulted; a Response with Success set
// to false means the processor answered and declined.
package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourorg/payment-gateway/internal/card"
	"github.com/yourorg/payment-gateway/internal/payment"
)

// OrderIDPrefix starts every generated order reference.
const OrderIDPrefix = "REF"

// Kind tags the shape of a backend.
type Kind int

const (
	KindOneShot Kind = iota + 1
	KindTwoPhase
)

func (k Kind) String() string {
	switch k {
	case KindOneShot:
		return "one_shot"
	case KindTwoPhase:
		return "two_phase"
	}
	return "unknown"
}

// PayerInfo is what a two-phase processor reports about the buyer.
type PayerInfo struct {
	Email     string
	FirstName string
	LastName  string
	Country   string
}

// Response is the normalized reply of a backend call.
type Response struct {
	Success       bool
	Message       string
	Token         string
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	PayerID       string
	Payer         PayerInfo
	Details       map[string]string
}

func (r Response) IsSuccess() bool { return r.Success }

// ErrorMessage returns the failure detail, with a fallback for processors
// that decline without saying why.
func (r Response) ErrorMessage() string {
	if r.Message == "" && !r.Success {
		return "transaction declined"
	}
	return r.Message
}

// Options travel with purchase and setup calls.
type Options struct {
	OrderID      string
	Description  string
	Currency     string
	Email        string
	PaymentToken string
	Address      payment.Address
	ReturnURL    string
	CancelURL    string
}

// Completion finalizes a two-phase purchase with the context recovered by
// GetDetailsFor.
type Completion struct {
	Token    string
	PayerID  string
	Amount   decimal.Decimal
	Currency string
}

// Backend is the part every processor shares.
type Backend interface {
	Name() string
	// GenerateOrderID returns a reference unique per attempt and namespaced by
	// backend so reconciliation can tell where it came from.
	GenerateOrderID() string
}

// OneShotBackend charges a card synchronously.
type OneShotBackend interface {
	Backend
	Purchase(ctx context.Context, amount decimal.Decimal, c card.Card, opts Options) (Response, error)
}

// TwoPhaseBackend drives a redirect based handshake.
type TwoPhaseBackend interface {
	Backend
	SetupPurchase(ctx context.Context, amount decimal.Decimal, opts Options) (Response, error)
	URLForToken(token string) string
	GetDetailsFor(ctx context.Context, token, payerID string) (Response, error)
	CompletePurchase(ctx context.Context, c Completion) (Response, error)
}

// Gateway is a resolved backend tagged with its shape.
type Gateway struct {
	kind     Kind
	oneShot  OneShotBackend
	twoPhase TwoPhaseBackend
}

func NewOneShot(b OneShotBackend) Gateway { return Gateway{kind: KindOneShot, oneShot: b} }

func NewTwoPhase(b TwoPhaseBackend) Gateway { return Gateway{kind: KindTwoPhase, twoPhase: b} }

func (g Gateway) Kind() Kind                { return g.kind }
func (g Gateway) OneShot() OneShotBackend   { return g.oneShot }
func (g Gateway) TwoPhase() TwoPhaseBackend { return g.twoPhase }

func (g Gateway) Name() string {
	switch g.kind {
	case KindOneShot:
		return g.oneShot.Name()
	case KindTwoPhase:
		return g.twoPhase.Name()
	}
	return ""
}

// Credentials are the secrets a backend is built with.
type Credentials struct {
	Login     string
	Password  string
	Signature string
	APIKey    string
}

// Config selects and configures one backend. It is read once when the backend
// is built.
type Config struct {
	Backend     string
	Credentials Credentials
	TestMode    bool
	ReturnURL   string
	CancelURL   string
	// Endpoint overrides the processor API base URL.
	Endpoint    string
	HTTPTimeout time.Duration
}

// NewOrderID builds a backend namespaced order reference such as
// REF-STRIPE-1f0c....
func NewOrderID(backend string) string {
	ns := strings.ToUpper(strings.NewReplacer("_", "", "-", "").Replace(backend))
	return fmt.Sprintf("%s-%s-%s", OrderIDPrefix, ns, strings.ReplaceAll(uuid.NewString(), "-", ""))
}
