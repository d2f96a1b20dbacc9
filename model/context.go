package model

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoSubject means the token named no user.
	ErrNoSubject = errors.New("request has no subject")
	// ErrUnknownRole means the token carried a role outside the workflow.
	ErrUnknownRole = errors.New("request role is not recognised")
)

// RequestContext is the authenticated caller of one request, built from the
// verified token. Treat it as read-only once attached to a context.
type RequestContext struct {
	SubjectID string
	Email     string
	Role      Role
	Claims    map[string]any

	CorrelationID string
	TraceID       string
	SpanID        string
}

// Validate reports every reason the caller cannot be identified. The
// returned error matches ErrNoSubject and ErrUnknownRole with errors.Is.
func (rc *RequestContext) Validate() error {
	var errs []error
	if rc.SubjectID == "" {
		errs = append(errs, ErrNoSubject)
	}
	if !rc.Role.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownRole, rc.Role))
	}
	return errors.Join(errs...)
}

// Principal identifies the caller for caches keyed by both user and role,
// so a role change in the token never reuses another role's entry.
func (rc *RequestContext) Principal() string {
	return rc.SubjectID + ":" + string(rc.Role)
}

type requestContextKey struct{}

// WithRequestContext returns a copy of ctx carrying rctx.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rctx)
}

// RequestContextFrom returns the caller attached by WithRequestContext, or
// nil for unauthenticated requests.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rctx
}
