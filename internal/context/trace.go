package context

import (
	stdcontext "context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext carries only cross-cutting concerns needed for observability.
type TraceContext struct {
	TraceID string            // Globally unique ID for logs and spans
	SpanID  string            // Current span identifier
	Baggage map[string]string // Optional key-value flags (e.g., correlation data)

	ctx stdcontext.Context
}

// NewTraceContext takes its IDs from the OpenTelemetry span in ctx when there
// is one, otherwise it makes them up.
func NewTraceContext(ctx stdcontext.Context) TraceContext {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	tc := TraceContext{Baggage: make(map[string]string), ctx: ctx}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		tc.TraceID = sc.TraceID().String()
		tc.SpanID = sc.SpanID().String()
		return tc
	}
	tc.TraceID = uuid.NewString()
	tc.SpanID = uuid.NewString()
	return tc
}

// Context returns the standard context the trace was built from.
func (tc TraceContext) Context() stdcontext.Context {
	if tc.ctx == nil {
		return stdcontext.Background()
	}
	return tc.ctx
}
