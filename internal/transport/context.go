package transport

import (
	"context"

	"github.com/FallSteph/Syllabuksu/model"
)

// ctxKey namespaces values the middleware chain stores on a request.
type ctxKey int

const (
	correlationKey ctxKey = iota
	claimsKey
	capabilitiesKey
)

// CorrelationIDFrom returns the correlation ID assigned by Correlation.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// WithClaims stores verified token claims on ctx.
func WithClaims(ctx context.Context, claims map[string]any) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFrom returns the claims stored by WithClaims, or nil.
func ClaimsFrom(ctx context.Context) map[string]any {
	claims, _ := ctx.Value(claimsKey).(map[string]any)
	return claims
}

// WithCapabilities stores the caller's resolved capabilities on ctx.
func WithCapabilities(ctx context.Context, caps model.CapabilitySet) context.Context {
	return context.WithValue(ctx, capabilitiesKey, caps)
}

// CapabilitiesFrom returns the capabilities stored by WithCapabilities. A
// nil set grants nothing.
func CapabilitiesFrom(ctx context.Context) model.CapabilitySet {
	caps, _ := ctx.Value(capabilitiesKey).(model.CapabilitySet)
	return caps
}
