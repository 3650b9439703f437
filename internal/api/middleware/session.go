// session.go — middleware шлюза сессий.
//
// Session проверяет cookie каждого запроса через session.Gate и кладёт
// результат в контекст. RequireAuth закрывает API для неаутентифицированных
// запросов, PageGuard перенаправляет страницы.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/journivo/internal/api/errors"
	"github.com/bigkaa/journivo/internal/session"
)

// LoginPath и DashboardPath — цели перенаправлений.
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// ProtectedPages — префиксы страниц, доступных только после входа.
var ProtectedPages = []string{
	"/dashboard",
	"/publication/list",
	"/messages",
	"/publications/create",
	"/notifications",
	"/tasks",
}

// authPages — страницы входа, с которых аутентифицированный пользователь уходит в кабинет.
var authPages = map[string]bool{
	"/login":    true,
	"/register": true,
}

// Resolver — проверка сессии по токенам (session.Gate).
type Resolver interface {
	Resolve(ctx context.Context, tokens session.Tokens) *session.Session
}

// Session возвращает middleware проверки сессии.
// Новый access token после refresh и подтверждённая роль записываются в cookie;
// если токены были, но сессия не подтвердилась, cookie очищаются.
func Session(resolver Resolver, cookies *session.CookieManager, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "session_middleware"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokens := cookies.Tokens(r)

			var s *session.Session
			if tokens.Access == "" && tokens.Refresh == "" {
				s = &session.Session{State: session.StateUnauthenticated}
			} else {
				s = resolver.Resolve(r.Context(), tokens)
				if s.Authenticated() {
					cookies.Persist(w, s)
				} else {
					logger.Debug("Сессия не подтверждена, cookie очищены",
						slog.String("path", r.URL.Path),
					)
					cookies.Clear(w)
				}
			}

			rememberSession(r.Context(), s)
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

// RequireAuth отвечает 401 с перенаправлением на /login, если сессия не аутентифицирована.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !session.FromContext(r.Context()).Authenticated() {
			apierrors.UnauthorizedRedirect(w, "Требуется вход в систему", LoginPath)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PageGuard перенаправляет неаутентифицированные запросы защищённых страниц
// на /login, а аутентифицированные запросы /login и /register — в кабинет.
func PageGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authenticated := session.FromContext(r.Context()).Authenticated()
		path := r.URL.Path

		switch {
		case !authenticated && isProtectedPage(path):
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		case authenticated && authPages[path]:
			http.Redirect(w, r, DashboardPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isProtectedPage(path string) bool {
	for _, prefix := range ProtectedPages {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
