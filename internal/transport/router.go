package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/FallSteph/Syllabuksu/internal/config"
	"github.com/FallSteph/Syllabuksu/internal/directory"
	"github.com/FallSteph/Syllabuksu/internal/idempotency"
	"github.com/FallSteph/Syllabuksu/internal/notification"
	"github.com/FallSteph/Syllabuksu/internal/observability"
	"github.com/FallSteph/Syllabuksu/internal/workflow"
	"github.com/FallSteph/Syllabuksu/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config             *config.Config
	Logger             *zap.Logger
	Metrics            *observability.Metrics
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver

	Engine        *workflow.Engine
	Users         directory.UserStore
	Notifications notification.Store

	// Idempotency is optional. When nil, X-Idempotency-Key is ignored.
	Idempotency idempotency.Store

	Readiness      observability.ReadinessChecks
	MetricsHandler http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(Correlation)
	r.Use(SecurityHeaders)
	if deps.Config.Observability.Tracing.Enabled {
		r.Use(observability.TracingMiddleware)
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	// Public routes bypass authentication.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		h := deps.MetricsHandler
		if h == nil {
			h = observability.Handler()
		}
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, h)
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	h := &handlers{
		engine:         deps.Engine,
		users:          deps.Users,
		notifications:  deps.Notifications,
		idem:           deps.Idempotency,
		idemTTL:        deps.Config.Idempotency.Store.DefaultTTL,
		submitOnUpload: deps.Config.Workflow.SubmitOnUpload,
		resolver:       deps.CapabilityResolver,
		logger:         logger,
		metrics:        deps.Metrics,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth)
		r.Use(RequestIdentity(deps.Config.Identity.ClaimPaths))
		r.Use(ResolveCapabilities(deps.CapabilityResolver, logger))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		r.Get("/me", h.me)
		r.Get("/workflow/stages", h.stages)

		r.Route("/syllabi", func(r chi.Router) {
			r.With(RequireCapability(model.CapSyllabusRead)).Get("/", h.listSyllabi)
			r.With(RequireCapability(model.CapSyllabusUpload)).Post("/", h.uploadSyllabus)
			r.With(RequireCapability(model.CapSyllabusRead)).Get("/{id}", h.getSyllabus)
			r.With(RequireCapability(model.CapSyllabusRead)).Get("/{id}/history", h.syllabusHistory)
			r.With(RequireCapability(model.CapSyllabusUpload, model.CapSyllabusReview)).
				Post("/{id}/transitions", h.transition)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(RequireCapability(model.CapNotificationsRead))
			r.Get("/", h.listNotifications)
			r.Get("/unread-count", h.unreadCount)
			r.Post("/read-all", h.markAllRead)
			r.Post("/{id}/read", h.markRead)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(RequireCapability(model.CapUsersManage))
			r.Get("/", h.listUsers)
			r.Post("/", h.createUser)
			r.Patch("/{id}", h.updateUser)
			r.Post("/{id}/archive", h.setUserStatus(model.UserArchived))
			r.Post("/{id}/unarchive", h.setUserStatus(model.UserActive))
		})
	})

	return r
}
