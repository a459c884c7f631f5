package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey struct{}

// Envelope header keys.
const (
	HeaderCorrelationID = "correlation_id"
	HeaderTraceID       = "trace_id"
	HeaderSpanID        = "span_id"
)

// maxIDLen bounds ids accepted from callers; longer ones are replaced.
const maxIDLen = 128

func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// ContextWithCorrelationID stores id unless it is blank, oversized or
// contains control characters.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if !acceptable(id) {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// EnsureCorrelationID returns ctx with a correlation id, minting a ULID
// when none is present.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := ExtractCorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return context.WithValue(ctx, ctxKey{}, id), id
}

func acceptable(id string) bool {
	if id == "" || len(id) > maxIDLen {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}

// Headers captures the correlation and span identifiers carried by ctx.
func Headers(ctx context.Context) map[string]any {
	headers := map[string]any{}
	if cid := ExtractCorrelationID(ctx); cid != "" {
		headers[HeaderCorrelationID] = cid
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		headers[HeaderTraceID] = sc.TraceID().String()
		headers[HeaderSpanID] = sc.SpanID().String()
	}
	return headers
}

// ContextFromHeaders restores what Headers captured.
func ContextFromHeaders(ctx context.Context, headers map[string]any) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	if cid, ok := headers[HeaderCorrelationID].(string); ok {
		ctx = ContextWithCorrelationID(ctx, cid)
	}
	traceID, _ := headers[HeaderTraceID].(string)
	spanID, _ := headers[HeaderSpanID].(string)
	return ContextWithRemoteSpan(ctx, traceID, spanID)
}

// ContextWithRemoteSpan makes the given ids the remote parent of spans
// started from ctx. Malformed ids leave ctx unchanged.
func ContextWithRemoteSpan(ctx context.Context, traceIDHex, spanIDHex string) context.Context {
	traceID, terr := trace.TraceIDFromHex(traceIDHex)
	spanID, serr := trace.SpanIDFromHex(spanIDHex)
	if terr != nil || serr != nil {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
}
