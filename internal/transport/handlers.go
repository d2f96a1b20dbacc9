package transport

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/FallSteph/Syllabuksu/internal/directory"
	"github.com/FallSteph/Syllabuksu/internal/idempotency"
	"github.com/FallSteph/Syllabuksu/internal/notification"
	"github.com/FallSteph/Syllabuksu/internal/observability"
	"github.com/FallSteph/Syllabuksu/internal/workflow"
	"github.com/FallSteph/Syllabuksu/model"
)

type handlers struct {
	engine         *workflow.Engine
	users          directory.UserStore
	notifications  notification.Store
	idem           idempotency.Store
	idemTTL        time.Duration
	submitOnUpload bool
	resolver       model.CapabilityResolver
	logger         *zap.Logger
	metrics        *observability.Metrics
}

// requestContext returns the caller's RequestContext, writing a 401 when it
// is missing.
func requestContext(w http.ResponseWriter, r *http.Request) (*model.RequestContext, bool) {
	rctx := model.RequestContextFrom(r.Context())
	if rctx == nil {
		WriteError(w, model.NewUnauthorizedError("missing request context"))
		return nil, false
	}
	return rctx, true
}

// fail writes err and logs infrastructure failures.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if StatusFor(err) >= http.StatusInternalServerError {
		observability.LoggerFrom(r.Context(), h.logger).Error("request failed", zap.Error(err))
	}
	WriteError(w, err)
}

// queryInt returns the integer query parameter key, or def when it is
// missing or malformed.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// queryBool returns true for "true", "1" and "yes".
func queryBool(r *http.Request, key string) bool {
	switch r.URL.Query().Get(key) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	rctx, ok := requestContext(w, r)
	if !ok {
		return
	}
	u, err := h.users.GetUser(r.Context(), rctx.SubjectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"user":         u,
		"capabilities": CapabilitiesFrom(r.Context()).List(),
	})
}
