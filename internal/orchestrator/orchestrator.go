// Package orchestrator drives a purchase through the configured backend. A
// one-shot backend is charged directly; a two-phase backend is set up, the
// buyer is redirected, and the purchase completes when the buyer comes back
// carrying the processor token.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/adapter"
	"github.com/yourorg/payment-gateway/internal/card"
	"github.com/yourorg/payment-gateway/internal/circuitbreaker"
	gwcontext "github.com/yourorg/payment-gateway/internal/context"
	"github.com/yourorg/payment-gateway/internal/ledger"
	"github.com/yourorg/payment-gateway/internal/logger"
	"github.com/yourorg/payment-gateway/internal/metrics"
	"github.com/yourorg/payment-gateway/internal/payment"
	"github.com/yourorg/payment-gateway/internal/policy"
	"github.com/yourorg/payment-gateway/internal/registry"
	"github.com/yourorg/payment-gateway/internal/reporting"
	"github.com/yourorg/payment-gateway/internal/resume"
)

const tracerName = "orchestrator"

// Phases of a purchase, used for policy input, metrics and the journal.
const (
	PhasePurchase = "purchase"
	PhaseSetup    = "setup"
	PhaseComplete = "complete"
)

// Backend operations, used as span and metric labels.
const (
	OpPurchase         = "purchase"
	OpSetupPurchase    = "setup_purchase"
	OpGetDetailsFor    = "get_details_for"
	OpCompletePurchase = "complete_purchase"
)

// Failure messages produced by the orchestrator itself.
const (
	MsgCancelled        = "purchase cancelled by buyer"
	MsgCardRequired     = "card is required"
	MsgInvalidState     = "invalid resume state"
	MsgTokenConsumed    = "transaction token already consumed"
	MsgAmountMismatch   = "authorized amount does not match the initiated purchase"
	MsgCurrencyMismatch = "authorized currency does not match the initiated purchase"
	MsgNoToken          = "backend returned no transaction token"
	MsgNoAmount         = "backend returned no authorized amount"
	MsgNoReturnURL      = "no return URL: request origin unknown and none configured"
	msgPurchaseFailed   = "purchase failed"
	msgRedirectIssued   = "redirecting buyer to processor"
	msgPurchaseSettled  = "purchase completed"
)

var ErrCircuitOpen = errors.New("circuit open for backend")

// Orchestrator is immutable after New and safe for concurrent use.
type Orchestrator struct {
	cfg       adapter.Config
	gateway   adapter.Gateway
	registry  *registry.Registry
	validator *card.Validator
	logger    *zap.Logger
	tracer    trace.Tracer
	signer    *resume.Signer
	ledger    ledger.Ledger
	policy    *policy.Enforcer
	breaker   *circuitbreaker.CircuitBreaker
	journal   *reporting.Journal
	metrics   *metrics.Metrics
}

type Option func(*Orchestrator)

func WithRegistry(r *registry.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

func WithValidator(v *card.Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithSigner threads the order id through the redirect as signed state.
// Without it a two-phase purchase completes with a bare success.
func WithSigner(s *resume.Signer) Option {
	return func(o *Orchestrator) { o.signer = s }
}

// WithLedger rejects a token that was already used to complete a purchase.
func WithLedger(l ledger.Ledger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

func WithPolicy(p *policy.Enforcer) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(o *Orchestrator) { o.breaker = cb }
}

func WithJournal(j *reporting.Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New resolves the configured backend. A *payment.ConfigurationError aborts
// construction.
func New(cfg adapter.Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:       cfg,
		registry:  registry.Default(),
		validator: card.NewValidator(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.L()
	}

	gw, err := o.registry.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	o.gateway = gw
	o.logger = o.logger.With(zap.String("component", "orchestrator"), zap.String("backend", gw.Name()))
	return o, nil
}

// Backend is the resolved backend name.
func (o *Orchestrator) Backend() string { return o.gateway.Name() }

func (o *Orchestrator) Kind() adapter.Kind { return o.gateway.Kind() }

// attempt carries what is known about the purchase so far.
type attempt struct {
	phase    string
	orderID  string
	amount   decimal.Decimal
	currency string
}

// Purchase runs one step of the purchase state machine. It never returns a
// raw backend error: faults become failed Results.
func (o *Orchestrator) Purchase(ctx context.Context, rc gwcontext.RequestContext, req payment.Request) payment.Outcome {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Purchase", trace.WithAttributes(
		attribute.String("backend", o.gateway.Name()),
		attribute.String("kind", o.gateway.Kind().String()),
	))
	defer span.End()

	var out payment.Outcome
	switch o.gateway.Kind() {
	case adapter.KindTwoPhase:
		if rc.Cancelled() {
			out = o.fail(ctx, attempt{phase: PhaseComplete}, payment.KindValidation, MsgCancelled, nil)
			break
		}
		if token, payerID, ok := rc.ResumeEvidence(); ok {
			out = o.resume(ctx, rc, token, payerID)
			break
		}
		out = o.initiate(ctx, rc, req)
	default:
		out = o.purchaseOneShot(ctx, req)
	}

	if res, done := out.Result(); done {
		span.SetAttributes(attribute.Bool("success", res.Success))
		if res.OrderID != "" {
			span.SetAttributes(attribute.String("order_id", res.OrderID))
		}
		if !res.Success {
			span.SetStatus(codes.Error, res.Message)
		}
	} else {
		span.SetAttributes(attribute.Bool("redirect", true))
	}
	return out
}

func (o *Orchestrator) purchaseOneShot(ctx context.Context, req payment.Request) payment.Outcome {
	backend := o.gateway.OneShot()
	a := attempt{phase: PhasePurchase, amount: req.Amount, currency: req.CurrencyOrDefault()}

	if err := req.ValidateAmount(); err != nil {
		return o.fail(ctx, a, payment.KindValidation, err.Error(), nil)
	}
	if out, blocked := o.checkPolicy(ctx, a); blocked {
		return out
	}

	c, err := o.validateCard(req)
	if err != nil {
		return o.fail(ctx, a, payment.KindValidation, payment.MsgInvalidCreditCard, err)
	}

	a.orderID = backend.GenerateOrderID()
	opts := o.options(a, req)
	resp, err := o.call(ctx, OpPurchase, func(ctx context.Context) (adapter.Response, error) {
		return backend.Purchase(ctx, req.Amount, c, opts)
	})
	if err != nil {
		return o.fail(ctx, a, payment.KindGatewayFault, err.Error(), err)
	}
	if !resp.IsSuccess() {
		return o.fail(ctx, a, payment.KindGatewayRejected, resp.ErrorMessage(), nil)
	}
	return o.succeed(ctx, a, resp.TransactionID)
}

// validateCard never trusts a pre-built Card. A request with only a
// processor token and no card data is passed through with a zero Card.
func (o *Orchestrator) validateCard(req payment.Request) (card.Card, error) {
	switch {
	case req.Card != nil:
		return o.validator.Revalidate(*req.Card)
	case req.CardFields != nil:
		return o.validator.FromFields(*req.CardFields)
	case req.PaymentToken != "":
		return card.Card{}, nil
	}
	return card.Card{}, &card.Rejection{Reasons: []string{MsgCardRequired}}
}

func (o *Orchestrator) initiate(ctx context.Context, rc gwcontext.RequestContext, req payment.Request) payment.Outcome {
	backend := o.gateway.TwoPhase()
	a := attempt{phase: PhaseSetup, amount: req.Amount, currency: req.CurrencyOrDefault()}

	if err := req.ValidateAmount(); err != nil {
		return o.fail(ctx, a, payment.KindValidation, err.Error(), nil)
	}
	if out, blocked := o.checkPolicy(ctx, a); blocked {
		return out
	}

	a.orderID = backend.GenerateOrderID()

	var state string
	if o.signer != nil {
		signed, err := o.signer.Sign(resume.State{
			OrderID:  a.orderID,
			Backend:  backend.Name(),
			Amount:   a.amount.String(),
			Currency: a.currency,
		})
		if err != nil {
			return o.fail(ctx, a, payment.KindGatewayFault, err.Error(), err)
		}
		state = signed
	}

	returnURL, cancelURL, err := o.redirectTargets(rc, state)
	if err != nil {
		return o.fail(ctx, a, payment.KindConfiguration, err.Error(), err)
	}

	opts := o.options(a, req)
	opts.ReturnURL = returnURL
	opts.CancelURL = cancelURL
	resp, err := o.call(ctx, OpSetupPurchase, func(ctx context.Context) (adapter.Response, error) {
		return backend.SetupPurchase(ctx, req.Amount, opts)
	})
	if err != nil {
		return o.fail(ctx, a, payment.KindGatewayFault, err.Error(), err)
	}
	if !resp.IsSuccess() {
		return o.fail(ctx, a, payment.KindGatewayRejected, resp.ErrorMessage(), nil)
	}
	if resp.Token == "" {
		return o.fail(ctx, a, payment.KindGatewayFault, MsgNoToken, nil)
	}
	return o.redirect(ctx, a, backend.URLForToken(resp.Token))
}

func (o *Orchestrator) resume(ctx context.Context, rc gwcontext.RequestContext, token, payerID string) payment.Outcome {
	backend := o.gateway.TwoPhase()
	a := attempt{phase: PhaseComplete}

	var expected decimal.Decimal
	haveState := false
	if raw := rc.Param(gwcontext.ParamState); raw != "" && o.signer != nil {
		st, err := o.signer.Verify(raw)
		if err == nil && registry.Normalize(st.Backend) != backend.Name() {
			err = fmt.Errorf("%w: issued for backend %q", resume.ErrInvalidState, st.Backend)
		}
		if err == nil && st.Amount != "" {
			expected, err = decimal.NewFromString(st.Amount)
		}
		if err != nil {
			return o.fail(ctx, a, payment.KindValidation, MsgInvalidState, err)
		}
		haveState = true
		a.orderID = st.OrderID
		a.currency = st.Currency
		a.amount = expected
	}

	if o.ledger != nil {
		dup, err := o.ledger.Consume(ctx, backend.Name(), token)
		if err != nil {
			return o.fail(ctx, a, payment.KindGatewayFault, err.Error(), err)
		}
		if dup {
			return o.fail(ctx, a, payment.KindReplay, MsgTokenConsumed, nil)
		}
	}

	details, err := o.call(ctx, OpGetDetailsFor, func(ctx context.Context) (adapter.Response, error) {
		return backend.GetDetailsFor(ctx, token, payerID)
	})
	if err != nil {
		return o.fail(ctx, a, payment.KindGatewayFault, err.Error(), err)
	}
	if !details.IsSuccess() {
		return o.fail(ctx, a, payment.KindGatewayRejected, details.ErrorMessage(), nil)
	}

	amount := details.Amount
	switch {
	case amount.IsZero() && haveState && expected.IsPositive():
		amount = expected
	case amount.IsZero():
		return o.fail(ctx, a, payment.KindGatewayFault, MsgNoAmount, nil)
	case haveState && expected.IsPositive() && !amount.Equal(expected):
		a.amount = amount
		return o.fail(ctx, a, payment.KindGatewayRejected, MsgAmountMismatch, nil)
	}
	a.amount = amount
	if details.Currency != "" {
		if haveState && a.currency != "" && !strings.EqualFold(details.Currency, a.currency) {
			a.currency = details.Currency
			return o.fail(ctx, a, payment.KindGatewayRejected, MsgCurrencyMismatch, nil)
		}
		a.currency = details.Currency
	}
	if a.currency == "" {
		a.currency = payment.DefaultCurrency
	}
	if out, blocked := o.checkPolicy(ctx, a); blocked {
		return out
	}

	if details.PayerID != "" {
		payerID = details.PayerID
	}
	completion := adapter.Completion{Token: token, PayerID: payerID, Amount: a.amount, Currency: a.currency}
	resp, err := o.call(ctx, OpCompletePurchase, func(ctx context.Context) (adapter.Response, error) {
		return backend.CompletePurchase(ctx, completion)
	})
	if err != nil {
		return o.fail(ctx, a, payment.KindGatewayFault, err.Error(), err)
	}
	if !resp.IsSuccess() {
		return o.fail(ctx, a, payment.KindGatewayRejected, resp.ErrorMessage(), nil)
	}
	return o.succeed(ctx, a, resp.TransactionID)
}

// redirectTargets builds the URLs the processor sends the buyer back to. The
// return URL is the page the buyer is on; configuration only fills in when
// the origin is unknown. The cancel URL prefers configuration.
func (o *Orchestrator) redirectTargets(rc gwcontext.RequestContext, state string) (string, string, error) {
	base := rc.OriginURL()
	if base == "" {
		base = o.cfg.ReturnURL
	}
	if base == "" {
		return "", "", errors.New(MsgNoReturnURL)
	}

	set := map[string]string{}
	if state != "" {
		set[gwcontext.ParamState] = state
	}
	returnURL, err := rewriteQuery(base, set)
	if err != nil {
		return "", "", fmt.Errorf("build return URL: %w", err)
	}

	cancelURL := o.cfg.CancelURL
	if cancelURL == "" {
		set[gwcontext.ParamCancelled] = "true"
		if cancelURL, err = rewriteQuery(base, set); err != nil {
			return "", "", fmt.Errorf("build cancel URL: %w", err)
		}
	}
	return returnURL, cancelURL, nil
}

var resumeParams = []string{gwcontext.ParamToken, gwcontext.ParamPayerID, gwcontext.ParamState, gwcontext.ParamCancelled}

// rewriteQuery drops parameters left over from an earlier redirect and sets
// the given ones. base is returned untouched when there is nothing to do.
func rewriteQuery(base string, set map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	dirty := len(set) > 0
	for _, k := range resumeParams {
		if q.Has(k) {
			q.Del(k)
			dirty = true
		}
	}
	if !dirty {
		return base, nil
	}
	for k, v := range set {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (o *Orchestrator) options(a attempt, req payment.Request) adapter.Options {
	return adapter.Options{
		OrderID:      a.orderID,
		Description:  req.Description,
		Currency:     a.currency,
		Email:        req.Email,
		PaymentToken: req.PaymentToken,
		Address:      req.Address,
	}
}

func (o *Orchestrator) checkPolicy(ctx context.Context, a attempt) (payment.Outcome, bool) {
	if o.policy == nil {
		return payment.Outcome{}, false
	}
	d, err := o.policy.Evaluate(policy.Input{
		Amount:   a.amount,
		Currency: a.currency,
		Backend:  o.gateway.Name(),
		Phase:    a.phase,
	})
	if err != nil {
		return o.fail(ctx, a, payment.KindPolicyRejected, err.Error(), err), true
	}
	if !d.Allow {
		return o.fail(ctx, a, payment.KindPolicyRejected, d.Reason, nil), true
	}
	return payment.Outcome{}, false
}

// call guards a backend call with the circuit breaker, turns a panic into an
// error and records latency. Only errors count against the breaker; a
// declined payment is a healthy backend.
func (o *Orchestrator) call(ctx context.Context, op string, fn func(context.Context) (adapter.Response, error)) (resp adapter.Response, err error) {
	name := o.gateway.Name()
	if o.breaker != nil && !o.breaker.AllowRequest(name) {
		o.metrics.CircuitOpen(name)
		return adapter.Response{}, fmt.Errorf("%w %s", ErrCircuitOpen, name)
	}

	ctx, span := o.tracer.Start(ctx, "Backend."+op, trace.WithAttributes(attribute.String("backend", name)))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend %s panicked during %s: %v", name, op, r)
		}
		o.metrics.ObserveBackendCall(name, op, time.Since(start))
		if o.breaker != nil {
			if err != nil {
				o.breaker.RecordFailure(name)
			} else {
				o.breaker.RecordSuccess(name)
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return fn(ctx)
}

func (o *Orchestrator) log(ctx context.Context) *zap.Logger {
	return logger.FromCtx(ctx, o.logger)
}

func (o *Orchestrator) succeed(ctx context.Context, a attempt, txID string) payment.Outcome {
	res := payment.Succeeded(a.orderID, txID, o.gateway.Name())
	o.record(a, reporting.StatusSuccess, "", "")
	o.metrics.ObservePurchase(o.gateway.Name(), a.phase, reporting.StatusSuccess)
	o.log(ctx).Debug(msgPurchaseSettled,
		zap.String("phase", a.phase),
		zap.String("order_id", a.orderID),
		zap.String("transaction_id", txID),
	)
	return payment.Complete(res)
}

func (o *Orchestrator) redirect(ctx context.Context, a attempt, target string) payment.Outcome {
	o.record(a, reporting.StatusRedirect, "", "")
	o.metrics.ObservePurchase(o.gateway.Name(), a.phase, reporting.StatusRedirect)
	o.log(ctx).Debug(msgRedirectIssued, zap.String("order_id", a.orderID), zap.String("url", target))
	return payment.Redirect(target)
}

// fail is the only place a failure is logged, so each failed purchase
// produces exactly one log entry.
func (o *Orchestrator) fail(ctx context.Context, a attempt, kind payment.ErrorKind, msg string, cause error) payment.Outcome {
	fields := []zap.Field{
		zap.String("phase", a.phase),
		zap.String("kind", kind.String()),
		zap.String("reason", msg),
	}
	if a.orderID != "" {
		fields = append(fields, zap.String("order_id", a.orderID))
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	if kind == payment.KindGatewayFault || kind == payment.KindConfiguration {
		o.log(ctx).Error(msgPurchaseFailed, fields...)
	} else {
		o.log(ctx).Warn(msgPurchaseFailed, fields...)
	}

	o.record(a, reporting.StatusFailure, kind.String(), msg)
	o.metrics.ObservePurchase(o.gateway.Name(), a.phase, kind.String())
	return payment.Complete(payment.Failed(kind, msg, o.gateway.Name()))
}

func (o *Orchestrator) record(a attempt, status, kind, msg string) {
	o.journal.Record(reporting.Entry{
		OrderID:  a.orderID,
		Backend:  o.gateway.Name(),
		Phase:    a.phase,
		Status:   status,
		Kind:     kind,
		Amount:   a.amount,
		Currency: a.currency,
		Message:  msg,
	})
}
