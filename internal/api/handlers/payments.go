package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/journivo/internal/domain/model"
)

// initializePaymentRequest — тело POST /api/payments/initialize.
type initializePaymentRequest struct {
	PublicationID string            `json:"publication_id"`
	PaymentType   model.PaymentType `json:"payment_type"`
}

// InitializePayment открывает платёж. Ответ содержит authorization_url и reference.
func (h *APIHandler) InitializePayment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.confirmedSession(w, r)
	if !ok {
		return
	}
	var req initializePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	payment, err := h.payments.Initialize(r.Context(), s.UserID(), strings.TrimSpace(req.PublicationID), req.PaymentType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// VerifyPayment проверяет платёж по reference. Повторная проверка
// подтверждённого платежа не обращается к backend.
func (h *APIHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var req paymentReferenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := h.payments.Verify(r.Context(), s.UserID(), req.Reference)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// PaymentHistory — GET /api/payments/history.
func (h *APIHandler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	items, err := h.payments.History(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []model.Payment{}
	}
	writeJSON(w, http.StatusOK, items)
}

// PaymentDetails — GET /api/payments/{reference}.
func (h *APIHandler) PaymentDetails(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Details(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RequestRefund — POST /api/payments/refund.
func (h *APIHandler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.confirmedSession(w, r); !ok {
		return
	}
	var req model.RefundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	raw, err := h.payments.Refund(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(raw) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "requested"})
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

// FreeReviewStatus — GET /api/free-review-status.
func (h *APIHandler) FreeReviewStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.payments.FreeReviewStatus(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Subscription — GET /api/subscription.
func (h *APIHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.payments.Subscription(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
