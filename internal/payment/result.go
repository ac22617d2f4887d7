package payment

import (
	"errors"
	"fmt"
)

// MsgInvalidCreditCard is the failure message for a card that did not pass
// validation.
const MsgInvalidCreditCard = "Invalid Credit Card"

// ErrorKind classifies a failed purchase.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindValidation
	KindGatewayRejected
	KindGatewayFault
	KindConfiguration
	KindPolicyRejected
	KindReplay
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindGatewayRejected:
		return "gateway_rejected"
	case KindGatewayFault:
		return "gateway_fault"
	case KindConfiguration:
		return "configuration_error"
	case KindPolicyRejected:
		return "policy_rejected"
	case KindReplay:
		return "replay_rejected"
	}
	return "none"
}

func (k ErrorKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Result is the terminal outcome of a purchase. It is never mutated after it
// is built.
type Result struct {
	Success       bool      `json:"success"`
	OrderID       string    `json:"order_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Backend       string    `json:"backend,omitempty"`
	Message       string    `json:"error,omitempty"`
	Kind          ErrorKind `json:"kind,omitempty"`
}

func Succeeded(orderID, transactionID, backend string) Result {
	return Result{Success: true, OrderID: orderID, TransactionID: transactionID, Backend: backend}
}

func Failed(kind ErrorKind, message, backend string) Result {
	return Result{Kind: kind, Message: message, Backend: backend}
}

// HasOrderID is false for a bare success, which happens when a two-phase
// purchase resumes without a signed order reference.
func (r Result) HasOrderID() bool { return r.OrderID != "" }

// Outcome is either a redirect the caller must perform or a completed result.
type Outcome struct {
	redirectURL string
	result      Result
}

// Redirect signals that the buyer has to be sent to url before the purchase
// can finish. No Result exists yet.
func Redirect(url string) Outcome { return Outcome{redirectURL: url} }

func Complete(r Result) Outcome { return Outcome{result: r} }

func (o Outcome) IsRedirect() bool    { return o.redirectURL != "" }
func (o Outcome) RedirectURL() string { return o.redirectURL }

// Result returns the completed result. ok is false for a redirect.
func (o Outcome) Result() (Result, bool) {
	if o.IsRedirect() {
		return Result{}, false
	}
	return o.result, true
}

// ErrConfiguration is matched by every *ConfigurationError.
var ErrConfiguration = errors.New("gateway configuration error")

// ConfigurationError reports a backend that cannot be built from its
// configuration. It is fatal at construction time.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigurationError) Unwrap() error { return e.Err }
