package handlers

import (
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/journivo/internal/api/errors"
	"github.com/bigkaa/journivo/internal/domain/model"
	"github.com/bigkaa/journivo/internal/session"
)

// sessionResponse — ответ GET /api/auth/session.
type sessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	User          *model.Profile `json:"user,omitempty"`
	Role          string         `json:"role,omitempty"`
}

// Login — POST /api/login. Учётные данные передаются backend без изменений,
// статус и тело ответа возвращаются клиенту как есть. При успехе токены
// сохраняются в HttpOnly cookie.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	credentials, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	result, err := h.backend.Login(r.Context(), credentials)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if result.StatusCode >= 200 && result.StatusCode <= 299 {
		tokens := session.Tokens{
			Access:  result.Tokens.AccessValue(),
			Refresh: result.Tokens.RefreshValue(),
		}
		// Backend может выдать токены только в Set-Cookie
		for _, c := range result.Cookies {
			switch c.Name {
			case session.AccessCookieName:
				if tokens.Access == "" {
					tokens.Access = c.Value
				}
			case session.RefreshCookieName:
				if tokens.Refresh == "" {
					tokens.Refresh = c.Value
				}
			}
		}

		if tokens.Access != "" {
			h.cookies.SetAccess(w, tokens.Access)
		}
		if tokens.Refresh != "" {
			h.cookies.SetRefresh(w, tokens.Refresh)
		}
		if s := h.gate.Resolve(r.Context(), tokens); s.Authenticated() {
			h.cookies.SetRole(w, s.Role)
			h.logger.Info("Пользователь вошёл",
				slog.String("user_id", s.UserID()),
				slog.String("role", s.Role),
			)
		}
	}

	writeRaw(w, result.StatusCode, result.Body)
}

// Logout — POST /api/logout. Ошибка backend не мешает завершить сессию локально.
func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if s != nil {
		if err := h.backend.Logout(r.Context(), s.RefreshToken); err != nil {
			h.logger.Warn("Backend не подтвердил выход",
				slog.String("user_id", s.UserID()),
				slog.String("error", err.Error()),
			)
		}
	}
	h.endSession(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AuthSession — GET /api/auth/session. Доступен без аутентификации.
func (h *APIHandler) AuthSession(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if !s.Authenticated() {
		writeJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		User:          s.Profile,
		Role:          s.Role,
	})
}

// Me — GET /api/me. Профиль перепроверяется через backend, если взят из кэша.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	s, ok := h.confirmedSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Profile)
}

// Categories — GET /api/categories. Список категорий backend; при сбое
// возвращается встроенный справочник.
func (h *APIHandler) Categories(w http.ResponseWriter, r *http.Request) {
	raw, err := h.backend.Categories(r.Context())
	if err != nil {
		h.logger.Warn("Не удалось получить категории от backend",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, model.Categories)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}
