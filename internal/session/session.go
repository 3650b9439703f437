// Пакет session — шлюз сессий Journivo.
// Проверяет access token через backend (/me/), выполняет не более одного
// обновления через refresh token и помещает результат в контекст запроса.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/bigkaa/journivo/internal/domain/model"
	"github.com/bigkaa/journivo/internal/domain/rbac"
)

// Ошибки шлюза сессий.
var (
	// ErrUnauthenticated — сессия отсутствует или недействительна.
	ErrUnauthenticated = errors.New("сессия не аутентифицирована")
	// ErrForbidden — роль сессии не подходит для операции.
	ErrForbidden = errors.New("недостаточно прав")
)

// State — состояние проверки сессии в рамках одного запроса.
type State string

const (
	StateUnknown         State = "unknown"
	StateChecking        State = "checking"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// Tokens — учётные данные из cookie запроса.
type Tokens struct {
	Access  string
	Refresh string
}

// Session — результат проверки сессии, передаваемый через контекст запроса.
type Session struct {
	State   State
	Profile *model.Profile
	// Role — нормализованная роль профиля.
	Role string
	// AccessToken — действующий access token (после refresh — новый).
	AccessToken  string
	RefreshToken string
	// Refreshed — access token обновлён в этом запросе; HTTP-слой сохраняет его в cookie.
	Refreshed bool
	// Stale — профиль взят из кэша без обращения к backend.
	// Перед изменяющими операциями сессию нужно перепроверить (Gate.Revalidate).
	Stale bool
}

// Authenticated сообщает, что сессия прошла проверку.
func (s *Session) Authenticated() bool {
	return s != nil && s.State == StateAuthenticated && s.Profile != nil
}

// UserID возвращает ID пользователя или пустую строку.
func (s *Session) UserID() string {
	if !s.Authenticated() {
		return ""
	}
	return s.Profile.ID
}

// HasRole проверяет роль без учёта регистра и пробелов.
func (s *Session) HasRole(expected string) bool {
	return s.Authenticated() && rbac.Matches(s.Role, expected)
}

func unauthenticated(tokens Tokens) *Session {
	return &Session{State: StateUnauthenticated, RefreshToken: tokens.Refresh}
}

func authenticated(profile *model.Profile, access, refresh string) *Session {
	return &Session{
		State:        StateAuthenticated,
		Profile:      profile,
		Role:         rbac.Normalize(profile.Role),
		AccessToken:  access,
		RefreshToken: refresh,
	}
}

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const contextKeySession contextKey = "journivo_session"

// WithSession помещает сессию в контекст.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKeySession, s)
}

// FromContext извлекает сессию из контекста.
// Возвращает nil если сессия не найдена (запрос не прошёл через middleware).
func FromContext(ctx context.Context) *Session {
	s, ok := ctx.Value(contextKeySession).(*Session)
	if !ok {
		return nil
	}
	return s
}

// AccessToken возвращает access token сессии из контекста.
// Используется как источник учётных данных backend-клиента;
// для анонимного запроса возвращает пустую строку.
func AccessToken(ctx context.Context) (string, error) {
	s := FromContext(ctx)
	if s == nil {
		return "", nil
	}
	return strings.TrimSpace(s.AccessToken), nil
}
