package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/circuitbreaker"
	"github.com/yourorg/payment-gateway/internal/config"
	gwcontext "github.com/yourorg/payment-gateway/internal/context"
	"github.com/yourorg/payment-gateway/internal/ledger"
	"github.com/yourorg/payment-gateway/internal/metrics"
	"github.com/yourorg/payment-gateway/internal/middleware"
	"github.com/yourorg/payment-gateway/internal/monitor"
	"github.com/yourorg/payment-gateway/internal/orchestrator"
	"github.com/yourorg/payment-gateway/internal/policy"
	"github.com/yourorg/payment-gateway/internal/reporting"
	"github.com/yourorg/payment-gateway/internal/resume"
)

// app holds everything the HTTP layer needs.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	orc      *orchestrator.Orchestrator
	monitor  *monitor.ContractMonitor
	builder  *gwcontext.ContextBuilder
	journal  *reporting.Journal
	reporter *reporting.RetrospectiveReporter
	limiter  *middleware.Limiter
	registry *prometheus.Registry
	closers  []func() error
}

// newApp wires the orchestrator and its collaborators from cfg. Extra
// orchestrator options are applied last so tests can swap collaborators.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, extra ...orchestrator.Option) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      log,
		builder:  gwcontext.NewContextBuilder(cfg.TrustForwardedHeaders),
		journal:  reporting.NewJournal(0),
		reporter: reporting.NewRetrospectiveReporter(),
		limiter:  middleware.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var err error
	if cfg.SchemaPath != "" {
		a.monitor, err = monitor.NewContractMonitor(cfg.SchemaPath)
	} else {
		a.monitor, err = monitor.NewPurchaseMonitor()
	}
	if err != nil {
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithJournal(a.journal),
		orchestrator.WithMetrics(metrics.New(a.registry)),
		orchestrator.WithCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{})),
	}

	if cfg.StateSecret != "" {
		signer, err := resume.NewSigner(cfg.StateSecret, cfg.StateTTL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, orchestrator.WithSigner(signer))
	} else {
		log.Warn("RESUME_STATE_SECRET not set: two-phase purchases complete without an order id")
	}

	l, err := a.openLedger(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if l != nil {
		opts = append(opts, orchestrator.WithLedger(l))
	}

	if cfg.PolicyRules != "" {
		rules, err := policy.ParseRules([]byte(cfg.PolicyRules))
		if err != nil {
			a.Close()
			return nil, err
		}
		enforcer, err := policy.NewEnforcer(rules)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, orchestrator.WithPolicy(enforcer))
	}

	a.orc, err = orchestrator.New(cfg.Gateway, append(opts, extra...)...)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openLedger(ctx context.Context) (ledger.Ledger, error) {
	switch a.cfg.LedgerBackend {
	case config.LedgerNone:
		return nil, nil
	case config.LedgerPostgres:
		db, err := ledger.OpenPostgres(ctx, a.cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		pg := ledger.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ledger: ensure schema: %w", err)
		}
		return pg, nil
	case config.LedgerDynamo:
		client, err := ledger.NewDynamoClient(ctx, a.cfg.AWSRegion, a.cfg.DynamoEndpoint)
		if err != nil {
			return nil, err
		}
		return ledger.NewDynamo(client, a.cfg.DynamoTable), nil
	default:
		return ledger.NewMemory(ledger.WithTTL(a.cfg.StateTTL)), nil
	}
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
}
