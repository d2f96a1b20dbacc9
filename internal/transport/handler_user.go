package transport

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/FallSteph/Syllabuksu/internal/observability"
	"github.com/FallSteph/Syllabuksu/internal/validation"
	"github.com/FallSteph/Syllabuksu/model"
)

type createUserRequest struct {
	// ID is the subject identifier issued by the identity provider.
	ID                   string `json:"id" validate:"omitempty,max=128"`
	EmployeeID           string `json:"employee_id" validate:"max=64"`
	FirstName            string `json:"first_name" validate:"notblank,max=100"`
	LastName             string `json:"last_name" validate:"notblank,max=100"`
	Email                string `json:"email" validate:"required,email"`
	Role                 string `json:"role" validate:"required,role"`
	College              string `json:"college" validate:"max=100"`
	Department           string `json:"department" validate:"max=100"`
	NotificationsEnabled *bool  `json:"notifications_enabled"`
}

type updateUserRequest struct {
	FirstName            *string `json:"first_name" validate:"omitempty,notblank,max=100"`
	LastName             *string `json:"last_name" validate:"omitempty,notblank,max=100"`
	Role                 *string `json:"role" validate:"omitempty,role"`
	College              *string `json:"college" validate:"omitempty,max=100"`
	Department           *string `json:"department" validate:"omitempty,max=100"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
}

func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := model.UserFilters{
		Role:       model.Role(q.Get("role")),
		College:    q.Get("college"),
		Department: q.Get("department"),
		Status:     model.UserStatus(q.Get("status")),
	}
	users, err := h.users.List(r.Context(), filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": users})
}

func (h *handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var body createUserRequest
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	if err := validation.Struct(body); err != nil {
		WriteError(w, err)
		return
	}

	notify := true
	if body.NotificationsEnabled != nil {
		notify = *body.NotificationsEnabled
	}
	u, err := h.users.Create(r.Context(), model.User{
		ID:                   strings.TrimSpace(body.ID),
		EmployeeID:           strings.TrimSpace(body.EmployeeID),
		FirstName:            body.FirstName,
		LastName:             body.LastName,
		Email:                body.Email,
		Role:                 model.Role(body.Role),
		College:              body.College,
		Department:           body.Department,
		NotificationsEnabled: notify,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	observability.LoggerFrom(r.Context(), h.logger).Info("user created",
		zap.String("user_id", u.ID),
		zap.String("user_role", string(u.Role)),
	)
	WriteJSON(w, http.StatusCreated, u)
}

func (h *handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body updateUserRequest
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	if err := validation.Struct(body); err != nil {
		WriteError(w, err)
		return
	}

	patch := model.UserPatch{
		FirstName:            body.FirstName,
		LastName:             body.LastName,
		College:              body.College,
		Department:           body.Department,
		NotificationsEnabled: body.NotificationsEnabled,
	}
	if body.Role != nil {
		role := model.Role(*body.Role)
		patch.Role = &role
	}

	u, err := h.users.Update(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(id)
	WriteJSON(w, http.StatusOK, u)
}

func (h *handlers) setUserStatus(status model.UserStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx, ok := requestContext(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		if status == model.UserArchived && id == rctx.SubjectID {
			WriteError(w, model.NewBadRequestError("You cannot archive your own account"))
			return
		}

		u, err := h.users.SetStatus(r.Context(), id, status)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.invalidate(id)

		observability.LoggerFrom(r.Context(), h.logger).Info("user status changed",
			zap.String("user_id", id),
			zap.String("status", string(status)),
		)
		WriteJSON(w, http.StatusOK, u)
	}
}

func (h *handlers) invalidate(userID string) {
	if h.resolver != nil {
		h.resolver.Invalidate(userID)
	}
}
