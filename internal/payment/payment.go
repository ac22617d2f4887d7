// Package payment holds the caller-facing purchase types: the request, the
// normalized result and the outcome of a purchase call.
package payment

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/yourorg/payment-gateway/internal/card"
)

// DefaultCurrency is used when a request carries no currency.
const DefaultCurrency = "USD"

var ErrNonPositiveAmount = errors.New("amount must be greater than zero")

// Address is the billing or shipping address sent along with a purchase.
type Address struct {
	Name     string `json:"name,omitempty"`
	Address1 string `json:"address1,omitempty"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country,omitempty"`
	Zip      string `json:"zip,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Request is a purchase attempt. It is read-only to the orchestrator.
//
// Card takes precedence over CardFields. PaymentToken carries a processor
// side card token for backends that never see raw card data.
type Request struct {
	Amount       decimal.Decimal
	Currency     string
	Description  string
	Email        string
	Address      Address
	Card         *card.Card
	CardFields   *card.Fields
	PaymentToken string
}

// ValidateAmount rejects zero and negative amounts.
func (r Request) ValidateAmount() error {
	if !r.Amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return nil
}

// CurrencyOrDefault returns the request currency or DefaultCurrency.
func (r Request) CurrencyOrDefault() string {
	if r.Currency == "" {
		return DefaultCurrency
	}
	return r.Currency
}
