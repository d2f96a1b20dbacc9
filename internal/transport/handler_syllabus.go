package transport

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/FallSteph/Syllabuksu/internal/idempotency"
	"github.com/FallSteph/Syllabuksu/internal/observability"
	"github.com/FallSteph/Syllabuksu/internal/validation"
	"github.com/FallSteph/Syllabuksu/internal/workflow"
	"github.com/FallSteph/Syllabuksu/model"
)

const (
	headerIdempotencyKey   = "X-Idempotency-Key"
	headerIdempotentReplay = "X-Idempotent-Replay"
)

type uploadRequest struct {
	CourseCode      string   `json:"course_code" validate:"notblank,max=32"`
	CourseTitle     string   `json:"course_title" validate:"notblank,max=255"`
	SemesterPeriod  string   `json:"semester_period" validate:"notblank,max=64"`
	FileRef         string   `json:"file_ref" validate:"notblank,max=1024"`
	Form17Link      string   `json:"form17_link" validate:"omitempty,url"`
	Form18Link      string   `json:"form18_link" validate:"omitempty,url"`
	ComplianceScore *float64 `json:"compliance_score" validate:"omitempty,gte=0,lte=100"`
	Submit          *bool    `json:"submit"`
}

type transitionRequest struct {
	Action         string `json:"action" validate:"required,action"`
	Comment        string `json:"comment" validate:"max=5000"`
	Signature      string `json:"signature" validate:"max=8192"`
	ExpectedStatus string `json:"expected_status" validate:"omitempty,status"`
}

func (h *handlers) uploadSyllabus(w http.ResponseWriter, r *http.Request) {
	rctx, ok := requestContext(w, r)
	if !ok {
		return
	}

	var body uploadRequest
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	if err := validation.Struct(body); err != nil {
		WriteError(w, err)
		return
	}

	submit := h.submitOnUpload
	if body.Submit != nil {
		submit = *body.Submit
	}

	syl, err := h.engine.Upload(r.Context(), rctx, workflow.UploadInput{
		CourseCode:      strings.TrimSpace(body.CourseCode),
		CourseTitle:     strings.TrimSpace(body.CourseTitle),
		SemesterPeriod:  strings.TrimSpace(body.SemesterPeriod),
		FileRef:         body.FileRef,
		Form17Link:      body.Form17Link,
		Form18Link:      body.Form18Link,
		ComplianceScore: body.ComplianceScore,
		Submit:          submit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, syl)
}

func (h *handlers) listSyllabi(w http.ResponseWriter, r *http.Request) {
	rctx, ok := requestContext(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filters := model.SyllabusFilters{
		Semester: q.Get("semester"),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}
	if filters.Limit > 200 {
		filters.Limit = 200
	}
	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			status := model.SyllabusStatus(strings.TrimSpace(s))
			if status == "" {
				continue
			}
			if !status.Valid() {
				WriteValidationError(w, []model.FieldError{{
					Field:   "status",
					Code:    "STATUS",
					Message: "status must be a valid syllabus status",
				}})
				return
			}
			filters.Statuses = append(filters.Statuses, status)
		}
	}

	summaries, err := h.engine.List(r.Context(), rctx, filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"data":   summaries,
		"limit":  filters.Limit,
		"offset": filters.Offset,
	})
}

func (h *handlers) getSyllabus(w http.ResponseWriter, r *http.Request) {
	rctx, ok := requestContext(w, r)
	if !ok {
		return
	}
	syl, err := h.engine.Get(r.Context(), rctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"syllabus":        syl,
		"stage":           workflow.StageOf(syl.Status),
		"allowed_actions": h.engine.Table().AllowedActions(syl.Status),
	})
}

func (h *handlers) syllabusHistory(w http.ResponseWriter, r *http.Request) {
	rctx, ok := requestContext(w, r)
	if !ok {
		return
	}
	history, err := h.engine.History(r.Context(), rctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": history})
}

func (h *handlers) transition(w http.ResponseWriter, r *http.Request) {
	rctx, ok := requestContext(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	logger := observability.LoggerFrom(r.Context(), h.logger)

	var body transitionRequest
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	if err := validation.Struct(body); err != nil {
		WriteError(w, err)
		return
	}
	logger.Debug("transition request",
		zap.String("syllabus_id", id),
		zap.Any("body", observability.Redact(map[string]any{
			"action":          body.Action,
			"comment":         body.Comment,
			"signature":       body.Signature,
			"expected_status": body.ExpectedStatus,
		})),
	)

	// Step 1: Replay a stored response for a repeated idempotency key.
	var idemKey, hash string
	if key := r.Header.Get(headerIdempotencyKey); key != "" && h.idem != nil {
		idemKey = idempotency.FormatKey(rctx.SubjectID, id, key)
		hash = idempotency.HashRequest(body.Action, body.Comment, body.Signature, body.ExpectedStatus)

		cached, found, err := h.idem.Check(r.Context(), idemKey, hash)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if found && cached != nil {
			h.metrics.RecordIdempotencyReplay()
			w.Header().Set(headerIdempotentReplay, "true")
			WriteJSON(w, cached.StatusCode, cached.Body)
			return
		}
	}

	// Step 2: Apply the transition.
	syl, err := h.engine.Transition(r.Context(), rctx, id, workflow.Request{
		Action:         model.Action(body.Action),
		Comment:        body.Comment,
		Signature:      body.Signature,
		ExpectedStatus: model.SyllabusStatus(body.ExpectedStatus),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// Step 3: Remember the successful response.
	if idemKey != "" {
		if raw, err := json.Marshal(syl); err == nil {
			resp := idempotency.Response{StatusCode: http.StatusOK, Body: raw}
			if err := h.idem.Store(r.Context(), idemKey, hash, resp, h.idemTTL); err != nil {
				logger.Warn("idempotency store failed", zap.Error(err))
			}
		}
	}

	WriteJSON(w, http.StatusOK, syl)
}

func (h *handlers) stages(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"data": h.engine.Stages()})
}
