// Package reqid carries the per-request correlation ID through
// context.Context so error envelopes and upstream calls can reference
// it without reaching back into the HTTP layer.
package reqid

import "context"

type ctxKey struct{}

// With returns a context carrying the request ID.
func With(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the request ID carried by ctx, or "".
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}
