package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Build metadata, set from main via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

var startedAt = time.Now()

// Overall readiness states.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ReadinessResponse is the /ready body.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult reports one dependency. Critical checks that fail make the
// service not ready; the others only degrade it.
type CheckResult struct {
	Status    string `json:"status"`
	Critical  bool   `json:"critical"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// ReadinessChecks lists what /ready probes. Nil checkers are skipped.
// PolicyLoaded is always evaluated: a server without a capability policy
// would reject every request.
type ReadinessChecks struct {
	PolicyLoaded     func() bool
	Database         HealthChecker
	IdempotencyStore HealthChecker

	// Mailer is non-critical: with email down, reviewers still get in-app
	// notifications.
	Mailer HealthChecker
}

const checkTimeout = 2 * time.Second

type namedCheck struct {
	name     string
	critical bool
	checker  HealthChecker
}

func (c ReadinessChecks) list() []namedCheck {
	policy := HealthCheckFunc(func(context.Context) error {
		if c.PolicyLoaded == nil || !c.PolicyLoaded() {
			return errNoPolicy
		}
		return nil
	})
	all := []namedCheck{
		{"policy", true, policy},
		{"database", true, c.Database},
		{"idempotency_store", true, c.IdempotencyStore},
		{"mailer", false, c.Mailer},
	}
	out := all[:0]
	for _, nc := range all {
		if nc.checker != nil {
			out = append(out, nc)
		}
	}
	return out
}

type readinessError string

func (e readinessError) Error() string { return string(e) }

const errNoPolicy = readinessError("no capability policy loaded")

// HandleHealth serves liveness: the process is up.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeHealthJSON(w, http.StatusOK, HealthResponse{
			Status:        "ok",
			Version:       Version,
			Commit:        Commit,
			UptimeSeconds: int64(time.Since(startedAt).Seconds()),
		})
	}
}

// HandleReady serves readiness. Checks run concurrently, each bounded by a
// two second timeout. Any failed critical check answers 503; a failed
// non-critical check answers 200 with status "degraded".
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := checks.list()
		results := make(map[string]CheckResult, len(list))
		var mu sync.Mutex
		var wg sync.WaitGroup

		for _, nc := range list {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := runCheck(r.Context(), nc.checker)
				res.Critical = nc.critical
				mu.Lock()
				results[nc.name] = res
				mu.Unlock()
			}()
		}
		wg.Wait()

		status, code := StatusReady, http.StatusOK
		for _, res := range results {
			if res.Status == "ok" {
				continue
			}
			if res.Critical {
				status, code = StatusNotReady, http.StatusServiceUnavailable
				break
			}
			status = StatusDegraded
		}
		writeHealthJSON(w, code, ReadinessResponse{Status: status, Checks: results})
	}
}

func runCheck(parent context.Context, checker HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := checker.HealthCheck(ctx)
	res := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	return res
}

func writeHealthJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
