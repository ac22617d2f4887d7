// Package registry maps configured backend names to the factories that build
// them. Names are resolved once, when the orchestrator is constructed; an
// unknown name or missing credentials is a configuration error.
package registry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/payment-gateway/internal/adapter"
	"github.com/yourorg/payment-gateway/internal/adapter/mercadopago"
	adaptermock "github.com/yourorg/payment-gateway/internal/adapter/mock"
	"github.com/yourorg/payment-gateway/internal/adapter/paypalexpress"
	"github.com/yourorg/payment-gateway/internal/adapter/stripe"
	"github.com/yourorg/payment-gateway/internal/payment"
)

// Credential option names a backend can declare.
const (
	OptLogin     = "login"
	OptPassword  = "password"
	OptSignature = "signature"
	OptAPIKey    = "api_key"
)

const defaultHTTPTimeout = 10 * time.Second

// Factory builds a backend from its configuration. Credentials reaching a
// factory are already filtered to the options it declared.
type Factory func(cfg adapter.Config) (adapter.Gateway, error)

// Registration describes one backend.
type Registration struct {
	Factory Factory
	// Credentials lists the options passed through to the factory. Nil
	// means login, password and signature.
	Credentials []string
	// Required options must be non-empty.
	Required []string
}

type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

func New() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Normalize is the canonical form of a backend name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds or replaces a backend.
func (r *Registry) Register(name string, reg Registration) {
	if reg.Factory == nil {
		panic("registry: nil factory for " + name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[Normalize(name)] = reg
}

// Names lists registered backends in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve builds the backend cfg names. Every failure is a
// *payment.ConfigurationError.
func (r *Registry) Resolve(cfg adapter.Config) (adapter.Gateway, error) {
	name := Normalize(cfg.Backend)
	if name == "" {
		return adapter.Gateway{}, &payment.ConfigurationError{Field: "backend", Reason: "no backend configured"}
	}

	r.mu.RLock()
	reg, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return adapter.Gateway{}, &payment.ConfigurationError{
			Field:  "backend",
			Reason: fmt.Sprintf("unknown backend %q (registered: %s)", cfg.Backend, strings.Join(r.Names(), ", ")),
		}
	}

	cfg.Backend = name
	cfg.Credentials = filterCredentials(cfg.Credentials, reg.Credentials)
	for _, opt := range reg.Required {
		if credential(cfg.Credentials, opt) == "" {
			return adapter.Gateway{}, &payment.ConfigurationError{
				Field:  "credentials." + opt,
				Reason: fmt.Sprintf("required by backend %s", name),
			}
		}
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}

	gw, err := reg.Factory(cfg)
	if err != nil {
		return adapter.Gateway{}, &payment.ConfigurationError{Field: "backend", Reason: "cannot build " + name, Err: err}
	}
	if gw.Kind() != adapter.KindOneShot && gw.Kind() != adapter.KindTwoPhase {
		return adapter.Gateway{}, &payment.ConfigurationError{Field: "backend", Reason: name + " factory returned an untagged gateway"}
	}
	return gw, nil
}

func credential(c adapter.Credentials, opt string) string {
	switch opt {
	case OptLogin:
		return c.Login
	case OptPassword:
		return c.Password
	case OptSignature:
		return c.Signature
	case OptAPIKey:
		return c.APIKey
	}
	return ""
}

// filterCredentials keeps only the declared options so a backend never sees
// secrets meant for another one.
func filterCredentials(c adapter.Credentials, declared []string) adapter.Credentials {
	if declared == nil {
		declared = []string{OptLogin, OptPassword, OptSignature}
	}
	var out adapter.Credentials
	for _, opt := range declared {
		switch opt {
		case OptLogin:
			out.Login = c.Login
		case OptPassword:
			out.Password = c.Password
		case OptSignature:
			out.Signature = c.Signature
		case OptAPIKey:
			out.APIKey = c.APIKey
		}
	}
	return out
}

// tracedTransport propagates the caller's span to the processor API.
func tracedTransport() http.RoundTripper {
	return otelhttp.NewTransport(http.DefaultTransport)
}

// Default returns a registry with every built-in backend.
func Default() *Registry {
	r := New()
	r.Register("bogus", Registration{
		Credentials: []string{},
		Factory: func(cfg adapter.Config) (adapter.Gateway, error) {
			return adapter.NewOneShot(adaptermock.NewMockAdapter("bogus")), nil
		},
	})
	r.Register("bogus_express", Registration{
		Credentials: []string{},
		Factory: func(cfg adapter.Config) (adapter.Gateway, error) {
			return adapter.NewTwoPhase(adaptermock.NewMockAdapter("bogus_express")), nil
		},
	})
	r.Register(stripe.BackendName, Registration{
		Credentials: []string{OptAPIKey},
		Required:    []string{OptAPIKey},
		Factory: func(cfg adapter.Config) (adapter.Gateway, error) {
			client := &http.Client{Timeout: cfg.HTTPTimeout, Transport: tracedTransport()}
			return adapter.NewOneShot(stripe.NewStripeAdapter(cfg.Credentials.APIKey, client).WithBaseURL(cfg.Endpoint)), nil
		},
	})
	r.Register(mercadopago.BackendName, Registration{
		Credentials: []string{OptAPIKey},
		Required:    []string{OptAPIKey},
		Factory: func(cfg adapter.Config) (adapter.Gateway, error) {
			g, err := mercadopago.NewMercadoPagoAdapter(cfg.Credentials.APIKey)
			if err != nil {
				return adapter.Gateway{}, err
			}
			return adapter.NewOneShot(g), nil
		},
	})
	r.Register(paypalexpress.BackendName, Registration{
		Required: []string{OptLogin, OptPassword, OptSignature},
		Factory: func(cfg adapter.Config) (adapter.Gateway, error) {
			client := resty.New().SetTimeout(cfg.HTTPTimeout).SetTransport(tracedTransport())
			return adapter.NewTwoPhase(paypalexpress.New(cfg.Credentials, cfg.TestMode, client).WithEndpoint(cfg.Endpoint)), nil
		},
	})
	return r
}
