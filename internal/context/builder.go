package context

import (
	"net"
	"net/http"
	"strings"
)

// ContextBuilder turns an inbound HTTP request into the contexts a purchase
// runs with.
type ContextBuilder struct {
	trustForwarded bool
}

// NewContextBuilder creates a builder. With trustForwarded set the
// X-Forwarded-Proto, X-Forwarded-Host and X-Forwarded-Port headers of a
// reverse proxy win over the connection values.
func NewContextBuilder(trustForwarded bool) *ContextBuilder {
	return &ContextBuilder{trustForwarded: trustForwarded}
}

// BuildContexts returns the trace context and the request context of r.
func (cb *ContextBuilder) BuildContexts(r *http.Request) (TraceContext, RequestContext) {
	return NewTraceContext(r.Context()), cb.RequestContext(r)
}

func (cb *ContextBuilder) RequestContext(r *http.Request) RequestContext {
	rc := RequestContext{
		Scheme:     "http",
		RequestURI: r.URL.RequestURI(),
		Params:     make(map[string]string),
	}
	if r.TLS != nil {
		rc.Scheme = "https"
	}
	rc.Host, rc.Port = splitHostPort(r.Host)

	if cb.trustForwarded {
		if proto := firstValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
			rc.Scheme = strings.ToLower(proto)
		}
		if host := firstValue(r.Header.Get("X-Forwarded-Host")); host != "" {
			var port string
			rc.Host, port = splitHostPort(host)
			rc.Port = port
		}
		if port := firstValue(r.Header.Get("X-Forwarded-Port")); port != "" {
			rc.Port = port
		}
	}

	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			rc.Params[key] = values[0]
		}
	}
	return rc
}

func splitHostPort(hostport string) (string, string) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]"), ""
	}
	return host, port
}

// firstValue takes the client-most entry of a comma separated proxy header.
func firstValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
