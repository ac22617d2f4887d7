package context

import (
	"net"
	"strings"
)

// Inbound parameter names a processor appends when it sends the buyer back.
const (
	ParamToken     = "token"
	ParamPayerID   = "PayerID"
	ParamState     = "state"
	ParamCancelled = "cancelled"
)

// RequestContext is the explicit view of the inbound request a purchase runs
// in: where the buyer currently is and what the redirect carried back.
type RequestContext struct {
	Scheme     string
	Host       string
	Port       string
	RequestURI string
	Params     map[string]string
}

func defaultPort(scheme string) string {
	switch strings.ToLower(scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

// OriginURL rebuilds the exact URL the buyer was on. The port is kept unless
// it is the default for the scheme. Empty when the host is unknown.
func (rc RequestContext) OriginURL() string {
	if rc.Host == "" {
		return ""
	}
	scheme := strings.ToLower(rc.Scheme)
	if scheme == "" {
		scheme = "http"
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	switch {
	case rc.Port != "" && rc.Port != defaultPort(scheme):
		b.WriteString(net.JoinHostPort(rc.Host, rc.Port))
	case strings.Contains(rc.Host, ":"):
		b.WriteString("[" + rc.Host + "]")
	default:
		b.WriteString(rc.Host)
	}
	uri := rc.RequestURI
	if uri == "" {
		uri = "/"
	} else if !strings.HasPrefix(uri, "/") {
		b.WriteString("/")
	}
	b.WriteString(uri)
	return b.String()
}

func (rc RequestContext) Param(key string) string {
	return rc.Params[key]
}

// ResumeEvidence reports the token and payer id a processor redirect carried
// back. ok is true when a token is present.
func (rc RequestContext) ResumeEvidence() (token, payerID string, ok bool) {
	token = rc.Param(ParamToken)
	return token, rc.Param(ParamPayerID), token != ""
}

// Cancelled is true when the buyer came back through the cancel URL.
func (rc RequestContext) Cancelled() bool {
	v := strings.ToLower(rc.Param(ParamCancelled))
	return v == "1" || v == "true"
}

