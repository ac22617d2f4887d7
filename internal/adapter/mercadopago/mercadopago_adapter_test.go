package mercadopago

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-gateway/internal/adapter"
	"github.com/yourorg/payment-gateway/internal/card"
)

var _ adapter.OneShotBackend = (*MercadoPagoAdapter)(nil)

type fakeCreator struct {
	got  payment.Request
	resp *payment.Response
	err  error
}

func (f *fakeCreator) Create(_ context.Context, req payment.Request) (*payment.Response, error) {
	f.got = req
	return f.resp, f.err
}

func masterCard(t *testing.T) card.Card {
	t.Helper()
	v := card.NewValidator(card.WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }))
	c, err := v.FromFields(card.Fields{
		FirstName: "Joao", LastName: "Silva", Number: "5555555555554444",
		Month: "11", Year: "2031", VerificationValue: "321",
	})
	require.NoError(t, err)
	return c
}

func TestNewMercadoPagoAdapter_MissingToken(t *testing.T) {
	_, err := NewMercadoPagoAdapter("")
	assert.ErrorIs(t, err, ErrMissingAccessToken)
}

func TestBuildRequest(t *testing.T) {
	req, err := buildRequest(decimal.RequireFromString("150.75"), masterCard(t), adapter.Options{
		OrderID: "REF-MERCADOPAGO-1", PaymentToken: "card-token", Description: "Order 1", Email: "joao@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 150.75, req.TransactionAmount)
	assert.Equal(t, "card-token", req.Token)
	assert.Equal(t, "master", req.PaymentMethodID)
	assert.Equal(t, "REF-MERCADOPAGO-1", req.ExternalReference)
	assert.Equal(t, 1, req.Installments)
}

func TestPurchase_Approved(t *testing.T) {
	fake := &fakeCreator{resp: &payment.Response{ID: 12345, Status: "approved", StatusDetail: "accredited"}}
	g := &MercadoPagoAdapter{client: fake}

	resp, err := g.Purchase(context.Background(), decimal.NewFromInt(10), masterCard(t), adapter.Options{PaymentToken: "tok", OrderID: "REF-1"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "12345", resp.TransactionID)
	assert.Equal(t, "accredited", resp.Details["status_detail"])
	assert.Equal(t, "REF-1", fake.got.ExternalReference)
}

func TestPurchase_Rejected(t *testing.T) {
	fake := &fakeCreator{resp: &payment.Response{ID: 7, Status: "rejected", StatusDetail: "cc_rejected_insufficient_amount"}}
	g := &MercadoPagoAdapter{client: fake}

	resp, err := g.Purchase(context.Background(), decimal.NewFromInt(10), masterCard(t), adapter.Options{PaymentToken: "tok"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "payment rejected: cc_rejected_insufficient_amount", resp.ErrorMessage())
}

func TestPurchase_SDKError(t *testing.T) {
	g := &MercadoPagoAdapter{client: &fakeCreator{err: errors.New("connection reset")}}

	_, err := g.Purchase(context.Background(), decimal.NewFromInt(10), masterCard(t), adapter.Options{PaymentToken: "tok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPurchase_MissingCardToken(t *testing.T) {
	fake := &fakeCreator{}
	g := &MercadoPagoAdapter{client: fake}

	resp, err := g.Purchase(context.Background(), decimal.NewFromInt(10), masterCard(t), adapter.Options{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, payment.Request{}, fake.got, "sdk must not be called")
}
