// Package mercadopago is a one-shot backend on the Mercado Pago payments
// API. Card data never reaches it; the buyer's browser tokenizes the card
// and the request carries that token.
package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/shopspring/decimal"

	"github.com/yourorg/payment-gateway/internal/adapter"
	"github.com/yourorg/payment-gateway/internal/card"
)

const BackendName = "mercadopago"

const statusApproved = "approved"

var ErrMissingAccessToken = errors.New("missing mercado pago access token")

// paymentCreator is the slice of the SDK client the adapter uses.
type paymentCreator interface {
	Create(ctx context.Context, request payment.Request) (*payment.Response, error)
}

type MercadoPagoAdapter struct {
	client paymentCreator
}

func NewMercadoPagoAdapter(accessToken string) (*MercadoPagoAdapter, error) {
	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: failed creating sdk config: %w", err)
	}
	return &MercadoPagoAdapter{client: payment.NewClient(cfg)}, nil
}

func (g *MercadoPagoAdapter) Name() string { return BackendName }

func (g *MercadoPagoAdapter) GenerateOrderID() string { return adapter.NewOrderID(BackendName) }

// paymentMethodID maps a card network onto Mercado Pago's identifiers.
func paymentMethodID(n card.Network) string {
	switch n {
	case card.Visa:
		return "visa"
	case card.Master:
		return "master"
	case card.Amex:
		return "amex"
	case card.DinersClub:
		return "diners"
	}
	return ""
}

func buildRequest(amount decimal.Decimal, c card.Card, opts adapter.Options) (payment.Request, error) {
	body := map[string]any{
		"transaction_amount": amount.InexactFloat64(),
		"token":              opts.PaymentToken,
		"installments":       1,
		"description":        opts.Description,
		"external_reference": opts.OrderID,
		"payer":              map[string]any{"email": opts.Email},
	}
	if id := paymentMethodID(c.Network()); id != "" {
		body["payment_method_id"] = id
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return payment.Request{}, err
	}
	var req payment.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return payment.Request{}, err
	}
	return req, nil
}

// Purchase creates an approved-or-not payment. Anything but "approved" is a
// decline carrying the status detail.
func (g *MercadoPagoAdapter) Purchase(ctx context.Context, amount decimal.Decimal, c card.Card, opts adapter.Options) (adapter.Response, error) {
	if opts.PaymentToken == "" {
		return adapter.Response{Success: false, Message: "mercadopago requires a card token"}, nil
	}

	req, err := buildRequest(amount, c, opts)
	if err != nil {
		return adapter.Response{}, fmt.Errorf("mercadopago: payload build failed: %w", err)
	}

	resp, err := g.client.Create(ctx, req)
	if err != nil {
		return adapter.Response{}, fmt.Errorf("mercadopago: sdk create failed: %w", err)
	}

	id := fmt.Sprintf("%d", resp.ID)
	out := adapter.Response{
		TransactionID: id,
		Amount:        amount,
		Currency:      opts.Currency,
		Details: map[string]string{
			"provider_payment_id": id,
			"provider_status":     resp.Status,
			"status_detail":       resp.StatusDetail,
		},
	}
	if strings.EqualFold(resp.Status, statusApproved) {
		out.Success = true
		out.Message = "Transaction approved"
		return out, nil
	}
	out.Message = fmt.Sprintf("payment %s: %s", resp.Status, resp.StatusDetail)
	return out, nil
}
