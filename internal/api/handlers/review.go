package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/journivo/internal/api/errors"
	"github.com/bigkaa/journivo/internal/domain/lifecycle"
	"github.com/bigkaa/journivo/internal/domain/model"
)

// reviewRequest — тело PATCH /api/publications/{id}/review.
type reviewRequest struct {
	Action        string `json:"action"`
	RejectionNote string `json:"rejection_note"`
}

// annotateRequest — тело PATCH /api/publications/{id}/annotate.
type annotateRequest struct {
	EditorComments []model.Highlight `json:"editor_comments"`
}

// ReviewPublication — решение редактора: under_review, approve или reject.
func (h *APIHandler) ReviewPublication(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	action, err := lifecycle.ParseReviewAction(req.Action)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	pub, err := h.review.Review(r.Context(), s, chi.URLParam(r, "id"), action, req.RejectionNote)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pub)
}

// AnnotatePublication — сохраняет аннотации редактора целиком.
func (h *APIHandler) AnnotatePublication(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var req annotateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EditorComments == nil {
		req.EditorComments = []model.Highlight{}
	}

	records, err := h.review.Annotate(r.Context(), s, chi.URLParam(r, "id"), req.EditorComments)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, annotateRequest{EditorComments: records})
}

// RejectionNote — GET /api/publications/{id}/rejection-note.
func (h *APIHandler) RejectionNote(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	note, err := h.review.RejectionNote(r.Context(), s, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rejection_note": note})
}

// reactionRequest — тело POST /api/publications/{id}/reaction.
type reactionRequest struct {
	Action model.Reaction `json:"action"`
}

// React — лайк или дизлайк публикации.
func (h *APIHandler) React(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	state, err := h.reactions.React(r.Context(), chi.URLParam(r, "id"), req.Action)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// CurrentReaction — реакция текущего пользователя и счётчики.
func (h *APIHandler) CurrentReaction(w http.ResponseWriter, r *http.Request) {
	state, err := h.reactions.Current(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
