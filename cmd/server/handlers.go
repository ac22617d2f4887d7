package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/adapter"
	"github.com/yourorg/payment-gateway/internal/card"
	gwcontext "github.com/yourorg/payment-gateway/internal/context"
	"github.com/yourorg/payment-gateway/internal/logger"
	"github.com/yourorg/payment-gateway/internal/monitor"
	"github.com/yourorg/payment-gateway/internal/payment"
)

// maxBodyBytes caps POST /purchase bodies.
const maxBodyBytes = 1 << 20

// purchaseBody is the JSON accepted by POST /purchase.
type purchaseBody struct {
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Description  string          `json:"description"`
	Email        string          `json:"email"`
	PaymentToken string          `json:"payment_token"`
	Address      payment.Address `json:"address"`
	CreditCard   *card.Fields    `json:"credit_card"`
}

func (b purchaseBody) request() payment.Request {
	return payment.Request{
		Amount:       b.Amount,
		Currency:     b.Currency,
		Description:  b.Description,
		Email:        b.Email,
		Address:      b.Address,
		CardFields:   b.CreditCard,
		PaymentToken: b.PaymentToken,
	}
}

// purchaseResponse is a completed result plus the trace it ran under.
type purchaseResponse struct {
	payment.Result
	TraceID string `json:"trace_id,omitempty"`
}

func (a *app) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(logger.RequestID())
	r.Use(logger.Logging(a.log))

	r.GET("/healthz", a.healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	r.GET("/reports/retrospective", a.retrospectiveHandler)

	purchases := r.Group("/purchase", a.limiter.Handler())
	purchases.POST("", a.purchaseHandler)
	purchases.GET("", a.resumeHandler)
	return r
}

func (a *app) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"backend": a.orc.Backend(),
		"kind":    a.orc.Kind().String(),
	})
}

func (a *app) retrospectiveHandler(c *gin.Context) {
	c.JSON(http.StatusOK, a.reporter.Generate(a.journal.Entries()))
}

func (a *app) purchaseHandler(c *gin.Context) {
	log := logger.FromCtx(c.Request.Context(), a.log)

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	valid, violations, err := a.monitor.Validate(raw)
	if err != nil {
		log.Debug("request body is not valid JSON", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": monitor.FormatErrors(violations)})
		return
	}

	var body purchaseBody
	if err := json.Unmarshal(raw, &body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	a.run(c, body.request())
}

// resumeHandler is where a two-phase processor sends the buyer back to,
// either with a token or through the cancel URL.
func (a *app) resumeHandler(c *gin.Context) {
	if a.orc.Kind() != adapter.KindTwoPhase {
		c.JSON(http.StatusBadRequest, gin.H{"error": "backend " + a.orc.Backend() + " does not redirect"})
		return
	}
	rc := a.builder.RequestContext(c.Request)
	if _, _, ok := rc.ResumeEvidence(); !ok && !rc.Cancelled() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + gwcontext.ParamToken + " parameter"})
		return
	}
	a.run(c, payment.Request{})
}

func (a *app) run(c *gin.Context, req payment.Request) {
	tc, rc := a.builder.BuildContexts(c.Request)
	outcome := a.orc.Purchase(tc.Context(), rc, req)

	if outcome.IsRedirect() {
		c.Header("Location", outcome.RedirectURL())
		c.JSON(http.StatusSeeOther, gin.H{"redirect_url": outcome.RedirectURL(), "trace_id": tc.TraceID})
		return
	}
	res, _ := outcome.Result()
	c.JSON(statusFor(res), purchaseResponse{Result: res, TraceID: tc.TraceID})
}

func statusFor(res payment.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Kind {
	case payment.KindGatewayFault, payment.KindConfiguration:
		return http.StatusBadGateway
	case payment.KindReplay:
		return http.StatusConflict
	}
	return http.StatusPaymentRequired
}
