// Package tenantctx carries the authenticated tenant and actor through the
// request context.
package tenantctx

import (
	"context"
	"strings"
)

type tenantKey struct{}
type actorKey struct{}
type traceKey struct{}

// WithTenant stores the tenant ID in the context.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, strings.TrimSpace(tenantID))
}

// TenantFromContext returns the tenant ID from context, if set.
func TenantFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	tenant, ok := ctx.Value(tenantKey{}).(string)
	if !ok || tenant == "" {
		return "", false
	}
	return tenant, true
}

// WithActor stores the authenticated subject in the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, strings.TrimSpace(actor))
}

// ActorFromContext returns the authenticated subject, or "unknown".
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "unknown"
}

// WithTraceID stores the request trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceIDFromContext returns the request trace ID, if set.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(traceKey{}).(string)
	return traceID
}
