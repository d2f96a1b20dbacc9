package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	rctx, ok := requestContext(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 50)
	if limit > 200 {
		limit = 200
	}
	items, err := h.notifications.ListForUser(r.Context(), rctx.SubjectID, queryBool(r, "unread"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *handlers) unreadCount(w http.ResponseWriter, r *http.Request) {
	rctx, ok := requestContext(w, r)
	if !ok {
		return
	}
	n, err := h.notifications.UnreadCount(r.Context(), rctx.SubjectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *handlers) markRead(w http.ResponseWriter, r *http.Request) {
	rctx, ok := requestContext(w, r)
	if !ok {
		return
	}
	n, err := h.notifications.MarkRead(r.Context(), rctx.SubjectID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

func (h *handlers) markAllRead(w http.ResponseWriter, r *http.Request) {
	rctx, ok := requestContext(w, r)
	if !ok {
		return
	}
	n, err := h.notifications.MarkAllRead(r.Context(), rctx.SubjectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"updated": n})
}
