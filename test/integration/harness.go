// Package integration provides a reusable test harness for end-to-end
// integration testing of the Syllabuksu server. It starts a full HTTP server
// with in-memory stores, a seeded user directory, a recording mailer, and a
// test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/FallSteph/Syllabuksu/internal/capability"
	"github.com/FallSteph/Syllabuksu/internal/config"
	"github.com/FallSteph/Syllabuksu/internal/directory"
	"github.com/FallSteph/Syllabuksu/internal/idempotency"
	"github.com/FallSteph/Syllabuksu/internal/notification"
	"github.com/FallSteph/Syllabuksu/internal/observability"
	"github.com/FallSteph/Syllabuksu/internal/transport"
	"github.com/FallSteph/Syllabuksu/internal/workflow"
	"github.com/FallSteph/Syllabuksu/model"
)

// TestHarness encapsulates a fully wired server instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *identityProvider

	// Internal components exposed for advanced test scenarios.
	Users            *directory.MemoryUserStore
	Syllabi          *workflow.MemorySyllabusStore
	Notifications    *notification.MemoryStore
	IdempotencyStore *idempotency.MemoryStore
	Dispatcher       *notification.Dispatcher
	Engine           *workflow.Engine
	CapResolver      *capability.Resolver
	Mailer           *RecordingMailer
	Metrics          *observability.Metrics
	Registry         *prometheus.Registry
	Logs             *observer.ObservedLogs

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	users             []model.User
	citlDirectApprove bool
	submitOnUpload    bool
	handlerTimeout    time.Duration
}

// WithUsers replaces the default directory seed.
func WithUsers(users ...model.User) HarnessOption {
	return func(c *harnessConfig) {
		c.users = users
	}
}

// WithCITLDirectApprove lets CITL approve without forwarding to the VPAA.
func WithCITLDirectApprove() HarnessOption {
	return func(c *harnessConfig) {
		c.citlDirectApprove = true
	}
}

// WithSubmitOnUpload submits uploads that do not say otherwise.
func WithSubmitOnUpload() HarnessOption {
	return func(c *harnessConfig) {
		c.submitOnUpload = true
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// RecordingMailer captures outgoing email.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []notification.Email
}

// Send records msg.
func (m *RecordingMailer) Send(_ context.Context, msg notification.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Name identifies the channel.
func (m *RecordingMailer) Name() string { return "recording" }

// SentTo returns the emails addressed to address.
func (m *RecordingMailer) SentTo(address string) []notification.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.Email
	for _, e := range m.sent {
		if e.ToAddress == address {
			out = append(out, e)
		}
	}
	return out
}

// NewTestHarness creates and starts a full test instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		users:          DefaultUsers(),
		handlerTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	h := &TestHarness{
		t:    t,
		Logs: logs,
	}

	// Step 1: Build in-memory stores.
	h.Users = directory.NewMemoryUserStore(hc.users...)
	h.Syllabi = workflow.NewMemorySyllabusStore()
	h.Notifications = notification.NewMemoryStore()
	h.IdempotencyStore = idempotency.NewMemoryStore()

	// Step 2: Metrics on a private registry.
	h.Registry = prometheus.NewRegistry()
	h.Metrics = observability.InitMetrics(h.Registry)

	// Step 3: Build capability resolver.
	evaluator, err := capability.NewStaticPolicyEvaluator("")
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	h.CapResolver = capability.NewResolver(evaluator, 0).WithMetrics(h.Metrics) // no caching in tests

	// Step 4: Notifications and the workflow engine.
	h.Mailer = &RecordingMailer{}
	h.Dispatcher = notification.NewDispatcher(h.Notifications, h.Users, h.Mailer,
		notification.WithLogger(logger),
		notification.WithMetrics(h.Metrics),
		notification.WithSubjectPrefix("[Syllabuksu] "),
	)
	h.Engine = workflow.NewEngine(
		workflow.NewTable(workflow.TableOptions{CITLDirectApprove: hc.citlDirectApprove}),
		h.Syllabi, h.Users, h.Dispatcher,
		workflow.WithLogger(logger),
		workflow.WithMetrics(h.Metrics),
	)

	// Step 5: Start the identity provider.
	h.issuer = newIdentityProvider(t)

	// Step 6: Build config.
	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:5173"}
	h.cfg.Identity.Issuer = h.issuer.Issuer()
	h.cfg.Identity.Audience = h.issuer.Audience()
	h.cfg.Identity.JWKSURL = h.issuer.JWKSURL()
	h.cfg.Workflow.CITLDirectApprove = hc.citlDirectApprove
	h.cfg.Workflow.SubmitOnUpload = hc.submitOnUpload

	// Step 7: Build router with full middleware chain.
	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), 1*time.Hour).WithLogger(logger)

	router := transport.NewRouter(transport.Dependencies{
		Config:             h.cfg,
		Logger:             logger,
		Metrics:            h.Metrics,
		Authenticate:       transport.JWTAuthenticator(h.cfg.Identity, jwks),
		CapabilityResolver: h.CapResolver,
		Engine:             h.Engine,
		Users:              h.Users,
		Notifications:      h.Notifications,
		Idempotency:        h.IdempotencyStore,
		Readiness:          observability.ReadinessChecks{PolicyLoaded: evaluator.Loaded},
		MetricsHandler:     observability.HandlerFor(h.Registry),
	})

	// Step 8: Start test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// TokenFor creates a valid token for a seeded user.
func (h *TestHarness) TokenFor(userID string) string {
	h.t.Helper()
	u, err := h.Users.GetUser(context.Background(), userID)
	if err != nil {
		h.t.Fatalf("token for %s: %v", userID, err)
	}
	return h.GenerateToken(TestClaims{SubjectID: u.ID, Email: u.Email, Role: string(u.Role)})
}

// WaitForEmail blocks until queued email deliveries finish.
func (h *TestHarness) WaitForEmail() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Dispatcher.Wait(ctx); err != nil {
		h.t.Fatalf("waiting for email: %v", err)
	}
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// POSTWithHeaders performs an authenticated POST request with additional headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, headers)
}

// PATCH performs an authenticated PATCH request with a JSON body.
func (h *TestHarness) PATCH(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("PATCH", path, body, token, nil)
}

// Do performs a request with full control over headers.
func (h *TestHarness) Do(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest(method, path, body, token, headers)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// AssertError checks the status and the envelope code of an error response.
func (h *TestHarness) AssertError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.AssertJSON(t, resp, status, &body)
	if body.Error.Code != code {
		t.Errorf("error code = %q, want %q (message %q)", body.Error.Code, code, body.Error.Message)
	}
}

// --- Workflow helpers ---

// Upload creates a syllabus as userID and returns it.
func (h *TestHarness) Upload(t *testing.T, userID, courseCode string, submit bool) model.Syllabus {
	t.Helper()
	var syl model.Syllabus
	resp := h.POST("/api/v1/syllabi", UploadBody(courseCode, submit), h.TokenFor(userID))
	h.AssertJSON(t, resp, http.StatusCreated, &syl)
	return syl
}

// Transition applies action to a syllabus as userID and returns the response.
func (h *TestHarness) Transition(syllabusID, userID string, body map[string]any) *http.Response {
	h.t.Helper()
	return h.POST("/api/v1/syllabi/"+syllabusID+"/transitions", body, h.TokenFor(userID))
}

// MustTransition applies action and fails the test unless it succeeds.
func (h *TestHarness) MustTransition(t *testing.T, syllabusID, userID string, body map[string]any) model.Syllabus {
	t.Helper()
	var syl model.Syllabus
	h.AssertJSON(t, h.Transition(syllabusID, userID, body), http.StatusOK, &syl)
	return syl
}

// Inbox returns the titles of userID's notifications, newest first.
func (h *TestHarness) Inbox(t *testing.T, userID string) []string {
	t.Helper()
	var body struct {
		Data []model.Notification `json:"data"`
	}
	h.AssertJSON(t, h.GET("/api/v1/notifications", h.TokenFor(userID)), http.StatusOK, &body)
	titles := make([]string, len(body.Data))
	for i, n := range body.Data {
		titles[i] = n.Title
	}
	return titles
}

// --- Fixtures ---

// DefaultUsers is the seeded directory: one College of Technology IT
// department with a full reviewer chain, a second faculty member in another
// department, and an administrator.
func DefaultUsers() []model.User {
	mk := func(id, first, last string, role model.Role, college, dept string) model.User {
		return model.User{
			ID:                   id,
			FirstName:            first,
			LastName:             last,
			Email:                id + "@buksu.edu.ph",
			Role:                 role,
			College:              college,
			Department:           dept,
			NotificationsEnabled: true,
		}
	}
	return []model.User{
		mk("fac-it", "Ana", "Reyes", model.RoleFaculty, "COT", "IT"),
		mk("fac-emc", "Ben", "Cruz", model.RoleFaculty, "COT", "EMC"),
		mk("dh-it", "Carla", "Santos", model.RoleDeptHead, "COT", "IT"),
		mk("dh-emc", "Cesar", "Ramos", model.RoleDeptHead, "COT", "EMC"),
		mk("dean-cot", "Dario", "Lim", model.RoleDean, "COT", "IT"),
		mk("dean-cas", "Diana", "Sy", model.RoleDean, "CAS", "BIO"),
		mk("citl-1", "Elena", "Tan", model.RoleCITL, "", ""),
		mk("vpaa-1", "Fidel", "Go", model.RoleVPAA, "", ""),
		mk("admin-1", "Gina", "Uy", model.RoleAdmin, "", ""),
	}
}

// UploadBody returns a valid upload request.
func UploadBody(courseCode string, submit bool) map[string]any {
	return map[string]any{
		"course_code":      courseCode,
		"course_title":     "Course " + courseCode,
		"semester_period":  "1st Semester 2025-2026",
		"file_ref":         fmt.Sprintf("syllabi/%s.pdf", strings.ReplaceAll(courseCode, " ", "")),
		"form17_link":      "https://drive.example.edu/form17",
		"compliance_score": 92.5,
		"submit":           submit,
	}
}

// Forward, Approve and Return build transition bodies.
func Forward() map[string]any { return map[string]any{"action": "forward"} }

func Approve(signature string) map[string]any {
	return map[string]any{"action": "approve", "signature": signature}
}

func Return(comment string) map[string]any {
	return map[string]any{"action": "return", "comment": comment}
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
