// handler.go — основной обработчик API Journivo Gateway.
// Объединяет health и бизнес-обработчики; все ошибки сервисного слоя
// проходят через единый обработчик fail.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/bigkaa/journivo/internal/api/errors"
	"github.com/bigkaa/journivo/internal/api/middleware"
	"github.com/bigkaa/journivo/internal/backend"
	"github.com/bigkaa/journivo/internal/domain/lifecycle"
	"github.com/bigkaa/journivo/internal/domain/validation"
	"github.com/bigkaa/journivo/internal/service"
	"github.com/bigkaa/journivo/internal/session"
)

// maxJSONBody — предельный размер JSON-тела запроса.
const maxJSONBody = 1 << 20

// Dependencies — сервисы, которые использует APIHandler.
type Dependencies struct {
	Health      *HealthHandler
	Backend     *backend.Client
	Gate        *session.Gate
	Cookies     *session.CookieManager
	Submissions *service.SubmissionService
	Payments    *service.PaymentService
	Review      *service.ReviewService
	Reactions   *service.ReactionService
	Feed        *service.FeedService
	Typing      *service.TypingTracker
	// PollInterval — интервал опроса для SSE-потоков.
	PollInterval time.Duration
}

// APIHandler — основной обработчик API Journivo Gateway.
type APIHandler struct {
	health       *HealthHandler
	backend      *backend.Client
	gate         *session.Gate
	cookies      *session.CookieManager
	submissions  *service.SubmissionService
	payments     *service.PaymentService
	review       *service.ReviewService
	reactions    *service.ReactionService
	feed         *service.FeedService
	typing       *service.TypingTracker
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(deps Dependencies, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health:       deps.Health,
		backend:      deps.Backend,
		gate:         deps.Gate,
		cookies:      deps.Cookies,
		submissions:  deps.Submissions,
		payments:     deps.Payments,
		review:       deps.Review,
		reactions:    deps.Reactions,
		feed:         deps.Feed,
		typing:       deps.Typing,
		pollInterval: deps.PollInterval,
		logger:       logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Обработка ошибок ---

// fail преобразует ошибку сервисного слоя в HTTP-ответ.
// Это единственное место, где 401 от backend превращается в завершение сессии:
// cookie очищаются, профиль удаляется из кэша, клиент уходит на страницу входа.
// Повторная попытка запроса не выполняется.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		fieldErrs  validation.Errors
		transition *lifecycle.TransitionError
		gateErr    *service.GateError
		statusErr  *backend.StatusError
	)

	switch {
	case errors.Is(err, context.Canceled):
		// Клиент отключился, отвечать некому
		return

	case errors.Is(err, backend.ErrUnauthorized), errors.Is(err, session.ErrUnauthenticated):
		h.endSession(w, r)
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
			return
		}
		apierrors.UnauthorizedRedirect(w, "Сессия истекла, выполните вход", middleware.LoginPath)

	case errors.As(err, &fieldErrs):
		apierrors.FieldErrors(w, fieldErrs)

	case errors.As(err, &transition):
		switch transition.Code {
		case lifecycle.CodeForbidden:
			apierrors.Forbidden(w, transition.Message)
		case lifecycle.CodeNoteRequired, lifecycle.CodeValidationRequired:
			apierrors.ValidationError(w, transition.Message)
		case lifecycle.CodeGateRequired:
			apierrors.WriteError(w, http.StatusPaymentRequired, apierrors.CodePaymentRequired, transition.Message)
		default:
			apierrors.WriteError(w, http.StatusConflict, transition.Code, transition.Message)
		}

	case errors.Is(err, session.ErrForbidden), errors.Is(err, backend.ErrForbidden):
		apierrors.Forbidden(w, "Недостаточно прав для операции")

	case errors.Is(err, service.ErrSubmitInProgress):
		apierrors.Conflict(w, "Операция с публикацией уже выполняется")

	case errors.Is(err, service.ErrReferenceConsumed):
		apierrors.Conflict(w, "Платёж уже использован")

	case errors.Is(err, service.ErrReferenceMismatch):
		apierrors.Conflict(w, "Платёж не относится к этой операции")

	case errors.Is(err, service.ErrPaymentNotVerified):
		apierrors.WriteError(w, http.StatusPaymentRequired, apierrors.CodePaymentRequired, "Платёж не подтверждён")

	case errors.Is(err, service.ErrCommentLocked):
		apierrors.Forbidden(w, "Комментарий можно изменить только в течение 20 минут")

	case errors.As(err, &gateErr):
		h.logger.Warn("Сбой платёжного шлюза",
			slog.String("op", gateErr.Op),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, backend.ErrUnavailable) {
			apierrors.BackendUnavailable(w, "Платёжный шлюз недоступен, попробуйте позже")
			return
		}
		apierrors.GateError(w, "Платёжный шлюз отклонил операцию")

	case errors.Is(err, service.ErrNotFound), errors.Is(err, backend.ErrNotFound):
		apierrors.NotFound(w, "Ресурс не найден")

	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())

	case errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500:
		apierrors.WriteError(w, statusErr.StatusCode, apierrors.CodeValidationError, "Backend отклонил запрос")

	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.BackendUnavailable(w, "Сервис временно недоступен, попробуйте позже")
	}
}

// endSession очищает cookie и кэш профиля текущей сессии.
func (h *APIHandler) endSession(w http.ResponseWriter, r *http.Request) {
	if s := session.FromContext(r.Context()); s != nil {
		h.gate.Forget(s.AccessToken)
	}
	h.cookies.Clear(w)
}

// currentSession возвращает аутентифицированную сессию или пишет 401.
func (h *APIHandler) currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s := session.FromContext(r.Context())
	if !s.Authenticated() {
		h.fail(w, r, session.ErrUnauthenticated)
		return nil, false
	}
	return s, true
}

// confirmedSession перепроверяет сессию через /me/ перед изменяющей операцией.
func (h *APIHandler) confirmedSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return nil, false
	}
	if !s.Stale {
		return s, true
	}
	fresh, err := h.gate.Revalidate(r.Context(), s)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return fresh, true
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeRaw записывает готовое JSON-тело.
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// decodeJSON разбирает JSON-тело запроса. Пустое тело допустимо.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	apierrors.ValidationError(w, "Некорректное JSON-тело запроса")
	return false
}
