package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/journivo/internal/backend"
	"github.com/bigkaa/journivo/internal/domain/model"
	"github.com/bigkaa/journivo/internal/domain/rbac"
)

// Prometheus-метрики шлюза сессий.
var sessionResolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jv_session_resolve_total",
	Help: "Результаты проверки сессий (authenticated, cached, refreshed, unauthenticated).",
}, []string{"result"})

// Identity — операции backend, нужные шлюзу сессий.
type Identity interface {
	Me(ctx context.Context, accessToken string) (*model.Profile, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// Gate — шлюз сессий.
type Gate struct {
	identity  Identity
	inspector *TokenInspector
	cache     *ProfileCache
	logger    *slog.Logger
}

// NewGate создаёт шлюз сессий. inspector и cache могут быть nil.
func NewGate(identity Identity, inspector *TokenInspector, cache *ProfileCache, logger *slog.Logger) *Gate {
	logger = logger.With(slog.String("component", "session_gate"))
	if inspector == nil {
		inspector = newTokenInspector(nil, logger)
	}
	return &Gate{
		identity:  identity,
		inspector: inspector,
		cache:     cache,
		logger:    logger,
	}
}

// Resolve проверяет сессию и никогда не возвращает ошибку:
// любой сбой сети или авторизации даёт неаутентифицированную сессию.
//
// Порядок: локальная проверка exp/подписи → кэш профилей → /me/ с текущим токеном → ровно один refresh → /me/ с новым токеном.
func (g *Gate) Resolve(ctx context.Context, tokens Tokens) *Session {
	if g.inspector.Usable(ctx, tokens.Access) {
		if profile, ok := g.cache.Get(tokens.Access); ok {
			s := authenticated(profile, tokens.Access, tokens.Refresh)
			s.Stale = true
			sessionResolveTotal.WithLabelValues("cached").Inc()
			return s
		}

		profile, err := g.identity.Me(ctx, tokens.Access)
		if err == nil {
			g.cache.Set(tokens.Access, profile)
			sessionResolveTotal.WithLabelValues("authenticated").Inc()
			return authenticated(profile, tokens.Access, tokens.Refresh)
		}
		g.logger.Debug("Access token отклонён backend",
			slog.String("error", err.Error()),
		)
	}

	if tokens.Refresh == "" {
		sessionResolveTotal.WithLabelValues("unauthenticated").Inc()
		return unauthenticated(tokens)
	}

	access, err := g.identity.Refresh(ctx, tokens.Refresh)
	if err != nil {
		g.logger.Debug("Обновление access token не удалось",
			slog.String("error", err.Error()),
		)
		sessionResolveTotal.WithLabelValues("unauthenticated").Inc()
		return unauthenticated(tokens)
	}

	profile, err := g.identity.Me(ctx, access)
	if err != nil {
		g.logger.Warn("Новый access token отклонён backend",
			slog.String("error", err.Error()),
		)
		sessionResolveTotal.WithLabelValues("unauthenticated").Inc()
		return unauthenticated(tokens)
	}

	g.cache.Set(access, profile)
	s := authenticated(profile, access, tokens.Refresh)
	s.Refreshed = true
	sessionResolveTotal.WithLabelValues("refreshed").Inc()
	g.logger.Debug("Сессия обновлена через refresh token",
		slog.String("user_id", profile.ID),
	)
	return s
}

// Revalidate подтверждает сессию свежим запросом /me/, минуя кэш.
// Вызывается перед изменяющими операциями и проверкой роли редактора.
func (g *Gate) Revalidate(ctx context.Context, s *Session) (*Session, error) {
	if !s.Authenticated() {
		return nil, ErrUnauthenticated
	}

	profile, err := g.identity.Me(ctx, s.AccessToken)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			g.cache.Delete(s.AccessToken)
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("перепроверка сессии: %w", err)
	}

	g.cache.Set(s.AccessToken, profile)
	fresh := authenticated(profile, s.AccessToken, s.RefreshToken)
	fresh.Refreshed = s.Refreshed
	return fresh, nil
}

// RequireRole проверяет сессию и роль. Роль берётся из подтверждённого backend
// профиля: сессия из кэша перепроверяется.
func (g *Gate) RequireRole(ctx context.Context, s *Session, expected string) (*Session, error) {
	if !s.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if s.Stale {
		var err error
		s, err = g.Revalidate(ctx, s)
		if err != nil {
			return nil, err
		}
	}
	if !rbac.Matches(s.Role, expected) {
		g.logger.Info("Доступ отклонён: роль не подходит",
			slog.String("user_id", s.UserID()),
			slog.String("role", s.Role),
			slog.String("expected", expected),
		)
		return s, ErrForbidden
	}
	return s, nil
}

// Forget удаляет профиль токена из кэша (выход или 401 от backend).
func (g *Gate) Forget(accessToken string) {
	if accessToken != "" {
		g.cache.Delete(accessToken)
	}
}
