package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FallSteph/Syllabuksu/internal/observability"
	"github.com/FallSteph/Syllabuksu/model"
)

// Directory resolves users for actor checks and next-reviewer routing.
type Directory interface {
	GetUser(ctx context.Context, id string) (model.User, error)

	// FindActiveUserByRole returns an active user holding role inside scope.
	// The boolean is false when nobody matches.
	FindActiveUserByRole(ctx context.Context, role model.Role, scope model.Scope) (model.User, bool, error)
}

// Notifier delivers in-app notifications. Delivery is the notifier's
// concern; the engine only logs failures.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message, syllabusID string) error
}

// UploadInput describes a newly uploaded syllabus.
type UploadInput struct {
	CourseCode      string
	CourseTitle     string
	SemesterPeriod  string
	FileRef         string
	Form17Link      string
	Form18Link      string
	ComplianceScore *float64

	// Submit sends the syllabus to the department head immediately instead
	// of keeping it as a draft.
	Submit bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's fallback logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records transition and upload metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides syllabus and review action ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// Engine loads syllabi, applies transitions through the table and persists
// the result. It holds no per-syllabus state between calls.
type Engine struct {
	table     *Table
	store     SyllabusStore
	directory Directory
	notifier  Notifier
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	newID     func() string
}

// NewEngine creates a new workflow engine.
func NewEngine(table *Table, store SyllabusStore, directory Directory, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		table:     table,
		store:     store,
		directory: directory,
		notifier:  notifier,
		logger:    zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Table returns the transition table the engine enforces.
func (e *Engine) Table() *Table {
	return e.table
}

// Upload creates a syllabus owned by the calling faculty member. It is
// stored as a draft unless in.Submit is set, in which case it is submitted
// in the same step.
func (e *Engine) Upload(ctx context.Context, rctx *model.RequestContext, in UploadInput) (_ model.Syllabus, err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.upload",
		observability.AttrSubmitted.Bool(in.Submit),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	// 1. Resolve the uploader.
	actor, err := e.actor(ctx, rctx)
	if err != nil {
		return model.Syllabus{}, err
	}

	// 2. Only faculty upload syllabi.
	if actor.Role != model.RoleFaculty {
		return model.Syllabus{}, model.NewRoleMismatchError(model.RoleFaculty, actor.Role)
	}

	// 3. Build the draft. Affiliation comes from the directory, not the request.
	now := e.now()
	syl := model.Syllabus{
		ID:              e.newID(),
		CourseCode:      strings.TrimSpace(in.CourseCode),
		CourseTitle:     strings.TrimSpace(in.CourseTitle),
		SemesterPeriod:  strings.TrimSpace(in.SemesterPeriod),
		College:         actor.College,
		Department:      actor.Department,
		FacultyID:       actor.ID,
		FacultyName:     actor.DisplayName(),
		FileRef:         in.FileRef,
		Form17Link:      in.Form17Link,
		Form18Link:      in.Form18Link,
		ComplianceScore: in.ComplianceScore,
		Status:          model.StatusDraft,
		ReviewHistory:   []model.ReviewAction{},
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// 4. Submit in the same step when asked.
	var outcome *Outcome
	if in.Submit {
		out, err := ApplyTransition(e.table, syl, actor, Request{Action: model.ActionSubmit}, now, e.newID)
		if err != nil {
			return model.Syllabus{}, err
		}
		syl = out.Syllabus
		outcome = &out
	}

	// 5. Persist.
	if err := e.store.Create(ctx, syl); err != nil {
		return model.Syllabus{}, err
	}

	mode := "draft"
	if in.Submit {
		mode = "submit"
	}
	e.metrics.RecordUpload(mode)
	span.SetAttributes(
		observability.AttrSyllabusID.String(syl.ID),
		observability.AttrToStatus.String(string(syl.Status)),
	)
	observability.RequestLogger(ctx, e.logger).Info("syllabus uploaded",
		zap.String("syllabus_id", syl.ID),
		zap.String("course_code", syl.CourseCode),
		zap.String("status", string(syl.Status)),
	)

	// 6. Route the submission.
	if outcome != nil {
		e.notify(ctx, *outcome)
	}
	return syl, nil
}

// Transition applies req to the syllabus identified by id on behalf of the
// caller and returns the saved syllabus.
func (e *Engine) Transition(ctx context.Context, rctx *model.RequestContext, id string, req Request) (_ model.Syllabus, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "workflow.transition",
		observability.AttrSyllabusID.String(id),
		observability.AttrAction.String(string(req.Action)),
	)
	defer func() {
		e.metrics.RecordTransition(string(req.Action), resultLabel(err), time.Since(start))
		observability.EndSpanWithError(span, err)
	}()

	// 1. Resolve the actor from the directory.
	actor, err := e.actor(ctx, rctx)
	if err != nil {
		return model.Syllabus{}, err
	}

	span.SetAttributes(observability.AttrActorRole.String(string(actor.Role)))

	// 2. Load syllabus.
	syl, err := e.store.Get(ctx, id)
	if err != nil {
		return model.Syllabus{}, err
	}

	// 3. Compute the transition.
	out, err := ApplyTransition(e.table, syl, actor, req, e.now(), e.newID)
	if err != nil {
		return model.Syllabus{}, err
	}

	// 4. Persist with optimistic locking on version and status.
	saved, err := e.store.Save(ctx, out.Syllabus, out.Previous)
	if err != nil {
		return model.Syllabus{}, err
	}
	out.Syllabus = saved

	span.SetAttributes(
		observability.AttrFromStatus.String(string(out.Previous)),
		observability.AttrToStatus.String(string(saved.Status)),
	)
	observability.RequestLogger(ctx, e.logger).Info("syllabus transitioned",
		zap.String("syllabus_id", saved.ID),
		zap.String("action", string(req.Action)),
		zap.String("from", string(out.Previous)),
		zap.String("to", string(saved.Status)),
		zap.Int("version", saved.Version),
	)

	// 5. Notify the next responsible party.
	e.notify(ctx, out)
	return saved, nil
}

// Get returns a syllabus the caller is allowed to see.
func (e *Engine) Get(ctx context.Context, rctx *model.RequestContext, id string) (model.Syllabus, error) {
	actor, err := e.actor(ctx, rctx)
	if err != nil {
		return model.Syllabus{}, err
	}
	syl, err := e.store.Get(ctx, id)
	if err != nil {
		return model.Syllabus{}, err
	}
	if !canView(actor, syl) {
		return model.Syllabus{}, model.NewForbiddenError("You do not have access to this syllabus")
	}
	return syl, nil
}

// History returns the review history of a syllabus, oldest first.
func (e *Engine) History(ctx context.Context, rctx *model.RequestContext, id string) ([]model.ReviewAction, error) {
	syl, err := e.Get(ctx, rctx, id)
	if err != nil {
		return nil, err
	}
	return syl.ReviewHistory, nil
}

// List returns the syllabi visible to the caller's role, narrowed by
// filters. Faculty see their own uploads; department heads and deans see
// their unit's syllabi awaiting them or returned; CITL and VPAA see their
// stage and returned syllabi; administrators see everything.
func (e *Engine) List(ctx context.Context, rctx *model.RequestContext, filters model.SyllabusFilters) ([]model.SyllabusSummary, error) {
	actor, err := e.actor(ctx, rctx)
	if err != nil {
		return nil, err
	}
	scoped, ok := scopeFilters(actor, filters)
	if !ok {
		return []model.SyllabusSummary{}, nil
	}
	return e.store.List(ctx, scoped)
}

// Stages returns the workflow timeline.
func (e *Engine) Stages() []Stage {
	return e.table.Stages()
}

func (e *Engine) actor(ctx context.Context, rctx *model.RequestContext) (model.User, error) {
	if rctx == nil || rctx.SubjectID == "" {
		return model.User{}, model.NewUnauthorizedError("Authentication required")
	}
	u, err := e.directory.GetUser(ctx, rctx.SubjectID)
	if err != nil {
		if model.IsCode(err, model.ErrNotFound) {
			return model.User{}, model.NewNotFoundError(fmt.Sprintf("user %q not found", rctx.SubjectID))
		}
		return model.User{}, fmt.Errorf("resolve actor: %w", err)
	}
	if !u.IsActive() {
		return model.User{}, model.NewForbiddenError("This account has been archived")
	}
	return u, nil
}

func (e *Engine) notify(ctx context.Context, out Outcome) {
	ctx, span := observability.StartSpan(ctx, "notification.dispatch",
		observability.AttrSyllabusID.String(out.Syllabus.ID),
	)
	defer span.End()

	logger := observability.RequestLogger(ctx, e.logger)
	s := out.Syllabus

	if out.Notify.Owner {
		e.send(ctx, logger, out.Notify.UserID, OwnerMessage(s), s.ID)
		return
	}

	reviewer, found, err := e.directory.FindActiveUserByRole(ctx, out.Notify.Role, out.Notify.Scope)
	if err != nil {
		logger.Error("next reviewer lookup failed",
			zap.String("syllabus_id", s.ID),
			zap.String("role", string(out.Notify.Role)),
			zap.Error(err),
		)
		return
	}
	if !found {
		logger.Warn("no active reviewer for next stage, notification skipped",
			zap.String("syllabus_id", s.ID),
			zap.String("role", string(out.Notify.Role)),
			zap.String("college", out.Notify.Scope.College),
			zap.String("department", out.Notify.Scope.Department),
		)
		e.metrics.RecordMissingReviewer(string(out.Notify.Role))
		return
	}

	e.send(ctx, logger, reviewer.ID, ReviewerMessage(s.Status, s), s.ID)
	if out.Rule.OwnerOnly() {
		e.send(ctx, logger, s.FacultyID, SubmittedMessage(s, reviewer), s.ID)
	}
}

func (e *Engine) send(ctx context.Context, logger *zap.Logger, userID string, msg Message, syllabusID string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, userID, msg.Title, msg.Body, syllabusID); err != nil {
		logger.Warn("notification failed",
			zap.String("user_id", userID),
			zap.String("syllabus_id", syllabusID),
			zap.Error(err),
		)
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if ee, ok := model.AsEnvelope(err); ok {
		return strings.ToLower(ee.Code)
	}
	return "error"
}

func canView(actor model.User, s model.Syllabus) bool {
	switch actor.Role {
	case model.RoleAdmin, model.RoleCITL, model.RoleVPAA:
		return true
	case model.RoleFaculty:
		return s.FacultyID == actor.ID
	case model.RoleDeptHead:
		return strings.EqualFold(actor.College, s.College) && strings.EqualFold(actor.Department, s.Department)
	case model.RoleDean:
		return strings.EqualFold(actor.College, s.College)
	}
	return false
}

// scopeFilters narrows f to what actor may list. It reports false when the
// requested statuses fall entirely outside the actor's view.
func scopeFilters(actor model.User, f model.SyllabusFilters) (model.SyllabusFilters, bool) {
	var allowed []model.SyllabusStatus
	switch actor.Role {
	case model.RoleAdmin:
		return f, true
	case model.RoleFaculty:
		f.FacultyID = actor.ID
		return f, true
	case model.RoleDeptHead:
		f.College = actor.College
		f.Department = actor.Department
		allowed = []model.SyllabusStatus{model.StatusUnderReviewDeptHead, model.StatusReturned}
	case model.RoleDean:
		f.College = actor.College
		allowed = []model.SyllabusStatus{model.StatusUnderReviewDean, model.StatusReturned}
	case model.RoleCITL:
		allowed = []model.SyllabusStatus{model.StatusUnderReviewCITL, model.StatusReturned}
	case model.RoleVPAA:
		allowed = []model.SyllabusStatus{model.StatusUnderReviewVPAA, model.StatusReturned}
	default:
		return f, false
	}

	if len(f.Statuses) == 0 {
		f.Statuses = allowed
		return f, true
	}
	var kept []model.SyllabusStatus
	for _, st := range f.Statuses {
		if slices.Contains(allowed, st) {
			kept = append(kept, st)
		}
	}
	f.Statuses = kept
	return f, len(kept) > 0
}
