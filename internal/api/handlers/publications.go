// publications.go — публикации автора: список, создание, черновик,
// отправка и переотправка.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/journivo/internal/api/errors"
	"github.com/bigkaa/journivo/internal/backend"
)

// maxUploadSize — предельный размер multipart-формы публикации (файл, видео, обложка).
const maxUploadSize = 200 << 20

// paymentReferenceRequest — тело запросов с платёжным reference.
type paymentReferenceRequest struct {
	Reference string `json:"reference"`
}

// ListPublications — GET /api/publications?page=&search=.
func (h *APIHandler) ListPublications(w http.ResponseWriter, r *http.Request) {
	page := 0
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			apierrors.ValidationError(w, "Параметр page должен быть положительным числом")
			return
		}
		page = n
	}

	result, err := h.submissions.List(r.Context(), page, strings.TrimSpace(r.URL.Query().Get("search")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetPublication — GET /api/publications/{id}.
func (h *APIHandler) GetPublication(w http.ResponseWriter, r *http.Request) {
	pub, err := h.submissions.Publication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pub)
}

// CreatePublication — POST /api/publications (multipart/form-data).
// Ответ 201 содержит итог: submitted, payment_required или draft.
func (h *APIHandler) CreatePublication(w http.ResponseWriter, r *http.Request) {
	s, ok := h.confirmedSession(w, r)
	if !ok {
		return
	}
	if !parseMultipart(w, r) {
		return
	}
	defer cleanupMultipart(r)

	form := &backend.CreateForm{
		Title:     r.FormValue("title"),
		Abstract:  r.FormValue("abstract"),
		Content:   r.FormValue("content"),
		Category:  r.FormValue("category"),
		Keywords:  r.FormValue("keywords"),
		CoAuthors: r.FormValue("co_authors"),
		Volume:    r.FormValue("volume"),
		File:      formUpload(r, "file"),
		Video:     formUpload(r, "video_file"),
		Cover:     formUpload(r, "cover_image"),
	}

	outcome, err := h.submissions.Create(r.Context(), s.UserID(), form)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

// SaveDraft — PATCH /api/publications/{id}/draft (multipart/form-data).
func (h *APIHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.confirmedSession(w, r); !ok {
		return
	}
	if !parseMultipart(w, r) {
		return
	}
	defer cleanupMultipart(r)

	pub, err := h.submissions.SaveDraft(r.Context(), chi.URLParam(r, "id"), draftForm(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pub)
}

// SubmitPublication — POST /api/publications/{id}/submit.
// Тело {"reference": "..."} необязательно: без него используется
// бесплатная рецензия или открывается платёж publication_fee.
func (h *APIHandler) SubmitPublication(w http.ResponseWriter, r *http.Request) {
	s, ok := h.confirmedSession(w, r)
	if !ok {
		return
	}
	var req paymentReferenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	outcome, err := h.submissions.Submit(r.Context(), s.UserID(), chi.URLParam(r, "id"), strings.TrimSpace(req.Reference))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// ResubmitPublication — POST /api/publications/{id}/resubmit (multipart/form-data).
func (h *APIHandler) ResubmitPublication(w http.ResponseWriter, r *http.Request) {
	s, ok := h.confirmedSession(w, r)
	if !ok {
		return
	}
	if !parseMultipart(w, r) {
		return
	}
	defer cleanupMultipart(r)

	outcome, err := h.submissions.Resubmit(r.Context(), s.UserID(), chi.URLParam(r, "id"), draftForm(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// CompleteResubmission — POST /api/publications/{id}/resubmit/complete.
// Тело {"reference": "..."} обязательно.
func (h *APIHandler) CompleteResubmission(w http.ResponseWriter, r *http.Request) {
	s, ok := h.confirmedSession(w, r)
	if !ok {
		return
	}
	var req paymentReferenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ref := strings.TrimSpace(req.Reference)
	if ref == "" {
		apierrors.ValidationError(w, "Поле reference обязательно")
		return
	}

	outcome, err := h.submissions.CompleteResubmission(r.Context(), s.UserID(), chi.URLParam(r, "id"), ref)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// --- multipart ---

func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.WriteError(w, http.StatusRequestEntityTooLarge, apierrors.CodeValidationError,
				"Размер формы превышает допустимый")
			return false
		}
		apierrors.ValidationError(w, "Ожидается multipart/form-data")
		return false
	}
	return true
}

func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// formUpload возвращает файл поля формы или nil, если файл не передан.
func formUpload(r *http.Request, field string) *backend.Upload {
	if r.MultipartForm == nil {
		return nil
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 || headers[0].Filename == "" {
		return nil
	}
	fh := headers[0]
	return &backend.Upload{
		FileName: fh.Filename,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func draftForm(r *http.Request) *backend.DraftForm {
	removeCover, _ := strconv.ParseBool(r.FormValue("remove_cover"))
	return &backend.DraftForm{
		Title:       r.FormValue("title"),
		Abstract:    r.FormValue("abstract"),
		Content:     r.FormValue("content"),
		Keywords:    r.FormValue("keywords"),
		CoAuthors:   r.FormValue("co_authors"),
		Volume:      r.FormValue("volume"),
		Cover:       formUpload(r, "cover_image"),
		RemoveCover: removeCover,
	}
}
