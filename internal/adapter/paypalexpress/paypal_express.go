// Package paypalexpress is a two-phase backend on the PayPal Express
// Checkout NVP API: SetExpressCheckout registers the purchase, the buyer
// approves it on PayPal, GetExpressCheckoutDetails and
// DoExpressCheckoutPayment finish it.
package paypalexpress

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/yourorg/payment-gateway/internal/adapter"
)

const (
	BackendName = "paypal_express"

	liveEndpoint    = "https://api-3t.paypal.com/nvp"
	sandboxEndpoint = "https://api-3t.sandbox.paypal.com/nvp"
	liveRedirect    = "https://www.paypal.com/cgi-bin/webscr"
	sandboxRedirect = "https://www.sandbox.paypal.com/cgi-bin/webscr"

	apiVersion    = "124.0"
	paymentAction = "Sale"
)

// Adapter is safe for concurrent use; all per-purchase state lives at PayPal.
type Adapter struct {
	client       *resty.Client
	endpoint     string
	redirectBase string
	creds        adapter.Credentials
}

// New builds the adapter. Test mode targets the sandbox.
func New(creds adapter.Credentials, testMode bool, client *resty.Client) *Adapter {
	if client == nil {
		client = resty.New()
	}
	a := &Adapter{client: client, creds: creds, endpoint: liveEndpoint, redirectBase: liveRedirect}
	if testMode {
		a.endpoint, a.redirectBase = sandboxEndpoint, sandboxRedirect
	}
	return a
}

// WithEndpoint points NVP calls at another URL.
func (a *Adapter) WithEndpoint(endpoint string) *Adapter {
	if endpoint != "" {
		a.endpoint = endpoint
	}
	return a
}

func (a *Adapter) Name() string { return BackendName }

func (a *Adapter) GenerateOrderID() string { return adapter.NewOrderID(BackendName) }

func (a *Adapter) URLForToken(token string) string {
	return a.redirectBase + "?cmd=_express-checkout&token=" + url.QueryEscape(token)
}

func (a *Adapter) SetupPurchase(ctx context.Context, amount decimal.Decimal, opts adapter.Options) (adapter.Response, error) {
	currency := currencyOrDefault(opts.Currency)
	params := url.Values{}
	params.Set("PAYMENTREQUEST_0_AMT", amount.StringFixed(2))
	params.Set("PAYMENTREQUEST_0_CURRENCYCODE", currency)
	params.Set("PAYMENTREQUEST_0_PAYMENTACTION", paymentAction)
	params.Set("RETURNURL", opts.ReturnURL)
	params.Set("CANCELURL", opts.CancelURL)
	setIfNotEmpty(params, "PAYMENTREQUEST_0_DESC", opts.Description)
	setIfNotEmpty(params, "PAYMENTREQUEST_0_INVNUM", opts.OrderID)
	setIfNotEmpty(params, "EMAIL", opts.Email)
	if addr := opts.Address; addr.Address1 != "" {
		params.Set("ADDROVERRIDE", "1")
		setIfNotEmpty(params, "PAYMENTREQUEST_0_SHIPTONAME", addr.Name)
		setIfNotEmpty(params, "PAYMENTREQUEST_0_SHIPTOSTREET", addr.Address1)
		setIfNotEmpty(params, "PAYMENTREQUEST_0_SHIPTOSTREET2", addr.Address2)
		setIfNotEmpty(params, "PAYMENTREQUEST_0_SHIPTOCITY", addr.City)
		setIfNotEmpty(params, "PAYMENTREQUEST_0_SHIPTOSTATE", addr.State)
		setIfNotEmpty(params, "PAYMENTREQUEST_0_SHIPTOZIP", addr.Zip)
		setIfNotEmpty(params, "PAYMENTREQUEST_0_SHIPTOCOUNTRYCODE", addr.Country)
		setIfNotEmpty(params, "PAYMENTREQUEST_0_SHIPTOPHONENUM", addr.Phone)
	}

	reply, err := a.call(ctx, "SetExpressCheckout", params)
	if err != nil {
		return adapter.Response{}, err
	}
	resp := toResponse(reply)
	resp.Token = reply.Get("TOKEN")
	resp.Amount = amount
	resp.Currency = currency
	return resp, nil
}

// GetDetailsFor recovers the amount and the buyer PayPal authorized.
func (a *Adapter) GetDetailsFor(ctx context.Context, token, payerID string) (adapter.Response, error) {
	params := url.Values{}
	params.Set("TOKEN", token)

	reply, err := a.call(ctx, "GetExpressCheckoutDetails", params)
	if err != nil {
		return adapter.Response{}, err
	}
	resp := toResponse(reply)
	resp.Token = token
	resp.PayerID = reply.Get("PAYERID")
	resp.Currency = reply.Get("PAYMENTREQUEST_0_CURRENCYCODE")
	resp.Payer = adapter.PayerInfo{
		Email:     reply.Get("EMAIL"),
		FirstName: reply.Get("FIRSTNAME"),
		LastName:  reply.Get("LASTNAME"),
		Country:   reply.Get("COUNTRYCODE"),
	}
	if !resp.Success {
		return resp, nil
	}

	amount, err := decimal.NewFromString(reply.Get("PAYMENTREQUEST_0_AMT"))
	if err != nil {
		return adapter.Response{}, fmt.Errorf("paypal_express: bad amount %q: %w", reply.Get("PAYMENTREQUEST_0_AMT"), err)
	}
	resp.Amount = amount
	if payerID != "" && resp.PayerID != "" && payerID != resp.PayerID {
		resp.Success = false
		resp.Message = "payer does not match the authorized checkout"
	}
	return resp, nil
}

func (a *Adapter) CompletePurchase(ctx context.Context, c adapter.Completion) (adapter.Response, error) {
	currency := currencyOrDefault(c.Currency)
	params := url.Values{}
	params.Set("TOKEN", c.Token)
	params.Set("PAYERID", c.PayerID)
	params.Set("PAYMENTREQUEST_0_AMT", c.Amount.StringFixed(2))
	params.Set("PAYMENTREQUEST_0_CURRENCYCODE", currency)
	params.Set("PAYMENTREQUEST_0_PAYMENTACTION", paymentAction)

	reply, err := a.call(ctx, "DoExpressCheckoutPayment", params)
	if err != nil {
		return adapter.Response{}, err
	}
	resp := toResponse(reply)
	resp.Token = c.Token
	resp.PayerID = c.PayerID
	resp.Amount = c.Amount
	resp.Currency = currency
	resp.TransactionID = reply.Get("PAYMENTINFO_0_TRANSACTIONID")
	return resp, nil
}

// call posts one NVP method and decodes the reply. Transport failures and non
// 200 replies are errors; an ACK=Failure reply is not.
func (a *Adapter) call(ctx context.Context, method string, params url.Values) (url.Values, error) {
	params.Set("METHOD", method)
	params.Set("VERSION", apiVersion)
	params.Set("USER", a.creds.Login)
	params.Set("PWD", a.creds.Password)
	params.Set("SIGNATURE", a.creds.Signature)

	resp, err := a.client.R().
		SetContext(ctx).
		SetFormDataFromValues(params).
		Post(a.endpoint)
	if err != nil {
		return nil, fmt.Errorf("paypal_express: %s call failed: %w", method, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("paypal_express: %s returned an error: %s", method, resp.Status())
	}

	reply, err := url.ParseQuery(string(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("paypal_express: failed to decode %s reply: %w", method, err)
	}
	return reply, nil
}

func toResponse(reply url.Values) adapter.Response {
	ack := reply.Get("ACK")
	resp := adapter.Response{
		Success: strings.EqualFold(ack, "Success") || strings.EqualFold(ack, "SuccessWithWarning"),
		Details: map[string]string{"ack": ack},
	}
	setDetail(resp.Details, "correlation_id", reply.Get("CORRELATIONID"))
	setDetail(resp.Details, "error_code", reply.Get("L_ERRORCODE0"))
	if resp.Success {
		resp.Message = "Success"
		return resp
	}
	resp.Message = reply.Get("L_LONGMESSAGE0")
	if resp.Message == "" {
		resp.Message = reply.Get("L_SHORTMESSAGE0")
	}
	return resp
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "USD"
	}
	return strings.ToUpper(c)
}

func setIfNotEmpty(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func setDetail(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}
