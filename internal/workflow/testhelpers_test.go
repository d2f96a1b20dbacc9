package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/FallSteph/Syllabuksu/model"
)

// --- Test helpers ---

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func testUsers() []model.User {
	return []model.User{
		{ID: "fac-1", FirstName: "Ana", LastName: "Cruz", Email: "ana@buksu.edu.ph", Role: model.RoleFaculty, College: "COT", Department: "IT", Status: model.UserActive},
		{ID: "fac-2", FirstName: "Ben", LastName: "Reyes", Email: "ben@buksu.edu.ph", Role: model.RoleFaculty, College: "COT", Department: "EMC", Status: model.UserActive},
		{ID: "dh-it", FirstName: "Dina", LastName: "Lim", Email: "dina@buksu.edu.ph", Role: model.RoleDeptHead, College: "COT", Department: "IT", Status: model.UserActive},
		{ID: "dh-emc", FirstName: "Eli", LastName: "Santos", Email: "eli@buksu.edu.ph", Role: model.RoleDeptHead, College: "COT", Department: "EMC", Status: model.UserActive},
		{ID: "dean-cot", FirstName: "Fe", LastName: "Garcia", Email: "fe@buksu.edu.ph", Role: model.RoleDean, College: "COT", Department: "IT", Status: model.UserActive},
		{ID: "dean-cas", FirstName: "Gil", LastName: "Tan", Email: "gil@buksu.edu.ph", Role: model.RoleDean, College: "CAS", Department: "Math", Status: model.UserActive},
		{ID: "citl-1", FirstName: "Hana", LastName: "Uy", Email: "hana@buksu.edu.ph", Role: model.RoleCITL, Status: model.UserActive},
		{ID: "vpaa-1", FirstName: "Ivan", LastName: "Go", Email: "ivan@buksu.edu.ph", Role: model.RoleVPAA, Status: model.UserActive},
		{ID: "admin-1", FirstName: "Jo", LastName: "Ramos", Email: "jo@buksu.edu.ph", Role: model.RoleAdmin, Status: model.UserActive},
	}
}

// fakeDirectory serves users from a fixed list.
type fakeDirectory struct {
	mu      sync.Mutex
	users   map[string]model.User
	findErr error
}

func newFakeDirectory(users ...model.User) *fakeDirectory {
	d := &fakeDirectory{users: make(map[string]model.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) GetUser(_ context.Context, id string) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return model.User{}, model.NewNotFoundError(fmt.Sprintf("user %q not found", id))
	}
	return u, nil
}

func (d *fakeDirectory) FindActiveUserByRole(_ context.Context, role model.Role, scope model.Scope) (model.User, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findErr != nil {
		return model.User{}, false, d.findErr
	}
	var ids []string
	for id := range d.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		u := d.users[id]
		if u.Role == role && u.IsActive() && scope.Matches(u) {
			return u, true, nil
		}
	}
	return model.User{}, false, nil
}

func (d *fakeDirectory) archive(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.users[id]
	u.Status = model.UserArchived
	d.users[id] = u
}

type sentNotification struct {
	UserID     string
	Title      string
	Message    string
	SyllabusID string
}

// recordingNotifier records every notification and optionally fails.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, userID, title, message, syllabusID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Title: title, Message: message, SyllabusID: syllabusID})
	return n.err
}

func (n *recordingNotifier) to(userID string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

func rctxFor(userID string) *model.RequestContext {
	return &model.RequestContext{SubjectID: userID, CorrelationID: "corr-1"}
}

func userByID(id string) model.User {
	for _, u := range testUsers() {
		if u.ID == id {
			return u
		}
	}
	panic("unknown test user " + id)
}

func testSyllabus(status model.SyllabusStatus) model.Syllabus {
	return model.Syllabus{
		ID:             "syl-1",
		CourseCode:     "IT 101",
		CourseTitle:    "Introduction to Computing",
		SemesterPeriod: "1st Semester 2025-2026",
		College:        "COT",
		Department:     "IT",
		FacultyID:      "fac-1",
		FacultyName:    "Ana Cruz",
		FileRef:        "uploads/it101.pdf",
		Status:         status,
		ReviewHistory:  []model.ReviewAction{},
		Version:        1,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
}

func longComment() string {
	return strings.Repeat("Please revise CLOs. ", 2)
}

func errorCode(err error) string {
	if ee, ok := model.AsEnvelope(err); ok {
		return ee.Code
	}
	return ""
}
