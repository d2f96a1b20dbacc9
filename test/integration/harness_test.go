package integration

import (
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/FallSteph/Syllabuksu/model"
)

func TestHarness_Startup(t *testing.T) {
	h := NewTestHarness(t, WithCITLDirectApprove())

	// Verify the server is running.
	resp := h.GET("/health", "")
	h.AssertStatus(t, resp, http.StatusOK)
}

func TestHarness_HealthEndpoints(t *testing.T) {
	h := NewTestHarness(t)

	t.Run("health", func(t *testing.T) {
		resp := h.GET("/health", "")
		var body map[string]string
		h.AssertJSON(t, resp, http.StatusOK, &body)
		if body["status"] != "ok" {
			t.Errorf("health status = %q, want ok", body["status"])
		}
	})

	t.Run("ready", func(t *testing.T) {
		resp := h.GET("/ready", "")
		h.AssertStatus(t, resp, http.StatusOK)
	})
}

func TestHarness_MetricsEndpoint(t *testing.T) {
	h := NewTestHarness(t)
	h.Upload(t, "fac-it", "IT 901", true)

	resp := h.GET("/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := string(h.ReadBody(resp))
	for _, name := range []string{
		"syllabuksu_http_requests_total",
		"syllabuksu_uploads_total",
		"syllabuksu_notifications_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
	if got := testutil.ToFloat64(h.Metrics.UploadsTotal.WithLabelValues("submit")); got != 1 {
		t.Errorf("submit uploads = %v, want 1", got)
	}
}

func TestHarness_Me(t *testing.T) {
	h := NewTestHarness(t)

	var body struct {
		User         model.User `json:"user"`
		Capabilities []string   `json:"capabilities"`
	}
	h.AssertJSON(t, h.GET("/api/v1/me", h.TokenFor("dh-it")), http.StatusOK, &body)

	if body.User.Role != model.RoleDeptHead || body.User.Department != "IT" {
		t.Errorf("user = %s", FormatJSON(body.User))
	}
	want := []string{model.CapNotificationsRead, model.CapSyllabusRead, model.CapSyllabusReview}
	if strings.Join(body.Capabilities, ",") != strings.Join(want, ",") {
		t.Errorf("capabilities = %v, want %v", body.Capabilities, want)
	}
}

func TestHarness_ListSyllabiByRole(t *testing.T) {
	h := NewTestHarness(t)
	a := h.Upload(t, "fac-it", "IT 902", true)
	h.Upload(t, "fac-it", "IT 903", false)
	h.Upload(t, "fac-emc", "EMC 101", true)
	h.MustTransition(t, a.ID, "dh-it", Forward())

	count := func(user, query string) int {
		t.Helper()
		var body struct {
			Data []model.SyllabusSummary `json:"data"`
		}
		h.AssertJSON(t, h.GET("/api/v1/syllabi"+query, h.TokenFor(user)), http.StatusOK, &body)
		return len(body.Data)
	}

	tests := []struct {
		user  string
		query string
		want  int
	}{
		{"fac-it", "", 2},
		{"fac-it", "?status=draft", 1},
		{"fac-emc", "", 1},
		{"dh-it", "", 0},
		{"dh-emc", "", 1},
		{"dean-cot", "", 1},
		{"citl-1", "", 0},
		{"admin-1", "", 3},
		{"admin-1", "?status=under_review_dept_head,under_review_dean", 2},
		{"admin-1", "?limit=1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.user+tt.query, func(t *testing.T) {
			if got := count(tt.user, tt.query); got != tt.want {
				t.Errorf("count = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHarness_NotificationInbox(t *testing.T) {
	h := NewTestHarness(t)
	syl := h.Upload(t, "fac-it", "IT 904", true)
	h.MustTransition(t, syl.ID, "dh-it", Return(revisionNote))

	token := h.TokenFor("fac-it")
	var unread map[string]int
	h.AssertJSON(t, h.GET("/api/v1/notifications/unread-count", token), http.StatusOK, &unread)
	if unread["unread"] != 2 {
		t.Fatalf("unread = %d, want 2", unread["unread"])
	}

	var updated map[string]int
	h.AssertJSON(t, h.POST("/api/v1/notifications/read-all", nil, token), http.StatusOK, &updated)
	if updated["updated"] != 2 {
		t.Errorf("updated = %d, want 2", updated["updated"])
	}

	var list struct {
		Data []model.Notification `json:"data"`
	}
	h.AssertJSON(t, h.GET("/api/v1/notifications?unread=true", token), http.StatusOK, &list)
	if len(list.Data) != 0 {
		t.Errorf("unread after read-all = %d", len(list.Data))
	}
	h.AssertJSON(t, h.GET("/api/v1/notifications", token), http.StatusOK, &list)
	if len(list.Data) != 2 || !list.Data[0].IsRead {
		t.Errorf("notifications are kept after being read: %s", FormatJSON(list.Data))
	}
}

func TestHarness_UserAdministration(t *testing.T) {
	h := NewTestHarness(t)
	admin := h.TokenFor("admin-1")

	var created model.User
	h.AssertJSON(t, h.POST("/api/v1/users", map[string]any{
		"id":         "dh-cas",
		"first_name": "Irene",
		"last_name":  "Bautista",
		"email":      "Irene.Bautista@buksu.edu.ph",
		"role":       "dept_head",
		"college":    "CAS",
		"department": "BIO",
	}, admin), http.StatusCreated, &created)
	if created.Email != "irene.bautista@buksu.edu.ph" || created.Status != model.UserActive {
		t.Errorf("created = %s", FormatJSON(created))
	}

	// The new account can sign in immediately.
	h.AssertStatus(t, h.GET("/api/v1/me", h.TokenFor("dh-cas")), http.StatusOK)

	var patched model.User
	h.AssertJSON(t, h.PATCH("/api/v1/users/dh-cas", map[string]any{"role": "dean"}, admin), http.StatusOK, &patched)
	if patched.Role != model.RoleDean {
		t.Errorf("role = %q, want dean", patched.Role)
	}

	h.AssertError(t, h.POST("/api/v1/users/admin-1/archive", nil, admin), http.StatusBadRequest, model.ErrBadRequest)
	h.AssertError(t, h.PATCH("/api/v1/users/ghost", map[string]any{"first_name": "X"}, admin), http.StatusNotFound, model.ErrNotFound)
}

func TestHarness_ValidationErrors(t *testing.T) {
	h := NewTestHarness(t)

	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.AssertJSON(t, h.POST("/api/v1/syllabi", map[string]any{
		"course_code":      "",
		"course_title":     "Title",
		"semester_period":  "1st",
		"file_ref":         "f.pdf",
		"compliance_score": -1,
	}, h.TokenFor("fac-it")), http.StatusUnprocessableEntity, &body)

	fields := map[string]bool{}
	for _, d := range body.Error.Details {
		fields[d.Field] = true
	}
	if !fields["course_code"] || !fields["compliance_score"] {
		t.Errorf("details = %s", FormatJSON(body.Error.Details))
	}
}
