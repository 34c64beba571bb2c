package core

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Trace carries the correlation values threaded through every stage.
type Trace struct {
	RequestID string
	TenantID  string
	FlowID    string
	DedupKey  string
}

type traceContextKey struct{}

func WithTrace(ctx context.Context, trace Trace) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey{}, trace)
}

func TraceFromContext(ctx context.Context) Trace {
	if ctx == nil {
		return Trace{}
	}
	trace, _ := ctx.Value(traceContextKey{}).(Trace)
	return trace
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	trace := TraceFromContext(ctx)
	trace.RequestID = strings.TrimSpace(requestID)
	return WithTrace(ctx, trace)
}

func WithTenantID(ctx context.Context, tenantID string) context.Context {
	trace := TraceFromContext(ctx)
	trace.TenantID = strings.TrimSpace(tenantID)
	return WithTrace(ctx, trace)
}

func WithFlowID(ctx context.Context, flowID string) context.Context {
	trace := TraceFromContext(ctx)
	trace.FlowID = strings.TrimSpace(flowID)
	return WithTrace(ctx, trace)
}

func WithDedupKey(ctx context.Context, dedupKey string) context.Context {
	trace := TraceFromContext(ctx)
	trace.DedupKey = strings.TrimSpace(dedupKey)
	return WithTrace(ctx, trace)
}

// EnsureRequestID returns ctx with a request id, generating one when absent.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	trace := TraceFromContext(ctx)
	if trace.RequestID != "" {
		return ctx, trace.RequestID
	}
	trace.RequestID = uuid.NewString()
	return WithTrace(ctx, trace), trace.RequestID
}

func (t Trace) Fields() map[string]any {
	fields := map[string]any{}
	if t.RequestID != "" {
		fields["request_id"] = t.RequestID
	}
	if t.TenantID != "" {
		fields["tenant_id"] = t.TenantID
	}
	if t.FlowID != "" {
		fields["flow_id"] = t.FlowID
	}
	if t.DedupKey != "" {
		fields["dedup_key"] = t.DedupKey
	}
	return fields
}
