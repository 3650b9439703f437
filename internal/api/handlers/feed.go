// feed.go — уведомления и комментарии.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/journivo/internal/domain/model"
)

// commentRequest — тело создания и изменения комментария.
type commentRequest struct {
	Text   string `json:"text"`
	Parent string `json:"parent"`
}

// ListNotifications — GET /api/notifications.
func (h *APIHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	h.writeNotifications(w, r, false)
}

// UnreadNotifications — GET /api/notifications/unread.
func (h *APIHandler) UnreadNotifications(w http.ResponseWriter, r *http.Request) {
	h.writeNotifications(w, r, true)
}

func (h *APIHandler) writeNotifications(w http.ResponseWriter, r *http.Request, unreadOnly bool) {
	items, err := h.feed.Notifications(r.Context(), unreadOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, items)
}

// MarkNotificationRead — PATCH /api/notifications/{id}/read.
func (h *APIHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllNotificationsRead — PATCH /api/notifications/mark-all-read.
func (h *APIHandler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.MarkAllRead(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListComments — GET /api/publications/{id}/comments.
func (h *APIHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	items, err := h.feed.Comments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []model.Comment{}
	}
	writeJSON(w, http.StatusOK, items)
}

// AddComment — POST /api/publications/{id}/comments.
func (h *APIHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.feed.AddComment(r.Context(), chi.URLParam(r, "id"), req.Text, req.Parent)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// EditComment — PATCH /api/publications/{id}/comments/{cid}.
// Допускается в течение 20 минут после создания.
func (h *APIHandler) EditComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.feed.EditComment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "cid"), req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteComment — DELETE /api/publications/{id}/comments/{cid}.
func (h *APIHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.DeleteComment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "cid")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CommentTyping — POST /api/publications/{id}/comments/typing.
// Приостанавливает опрос комментариев этого пользователя на окно паузы.
func (h *APIHandler) CommentTyping(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	h.typing.Touch(s.UserID(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
