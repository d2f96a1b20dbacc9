package transport

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/FallSteph/Syllabuksu/internal/observability"
	"github.com/FallSteph/Syllabuksu/model"
)

// Default claim locations. identity.claim_paths overrides them per key.
var defaultClaimPaths = map[string]string{
	"subject_id": "sub",
	"email":      "email",
	"role":       "role",
}

// RequestIdentity turns the verified claims into a model.RequestContext.
// A token that does not name a subject and a known role is rejected with
// 401 before any handler runs.
func RequestIdentity(claimPaths map[string]string) func(http.Handler) http.Handler {
	paths := make(map[string]string, len(defaultClaimPaths))
	for key, def := range defaultClaimPaths {
		paths[key] = def
		if p := claimPaths[key]; p != "" {
			paths[key] = p
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claims := ClaimsFrom(ctx)
			rctx := &model.RequestContext{
				SubjectID:     extractClaimString(claims, paths["subject_id"]),
				Email:         extractClaimString(claims, paths["email"]),
				Role:          model.Role(strings.ToLower(extractClaimString(claims, paths["role"]))),
				Claims:        claims,
				CorrelationID: CorrelationIDFrom(ctx),
				TraceID:       observability.TraceIDFromContext(ctx),
				SpanID:        observability.SpanIDFromContext(ctx),
			}
			if err := rctx.Validate(); err != nil {
				WriteError(w, model.NewUnauthorizedError("Token does not identify a known user and role"))
				return
			}
			next.ServeHTTP(w, r.WithContext(model.WithRequestContext(ctx, rctx)))
		})
	}
}

// ResolveCapabilities looks up the caller's capabilities once per request.
// A resolver failure is logged and leaves the request with no
// capabilities, so RequireCapability answers 403.
func ResolveCapabilities(resolver model.CapabilityResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if resolver == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rctx := model.RequestContextFrom(r.Context())
			if rctx == nil {
				next.ServeHTTP(w, r)
				return
			}
			caps, err := resolver.Resolve(rctx)
			if err != nil {
				observability.RequestLogger(r.Context(), logger).Warn("capability resolution failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCapabilities(r.Context(), caps)))
		})
	}
}

// RequireCapability answers 403 unless the caller holds at least one of
// caps.
func RequireCapability(caps ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if CapabilitiesFrom(r.Context()).HasAny(caps...) {
				next.ServeHTTP(w, r)
				return
			}
			WriteForbidden(w, "You do not have permission to perform this action")
		})
	}
}

// lookupClaim follows a dot-separated path through nested claim objects.
func lookupClaim(claims map[string]any, path string) any {
	var cur any = claims
	for part := range strings.SplitSeq(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[part]
	}
	return cur
}

func extractClaimString(claims map[string]any, path string) string {
	switch v := lookupClaim(claims, path).(type) {
	case string:
		return v
	case []any:
		// Some providers issue the role as a one-element array.
		if len(v) > 0 {
			s, _ := v[0].(string)
			return s
		}
	}
	return ""
}
