package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/journivo/internal/backend"
	"github.com/bigkaa/journivo/internal/domain/model"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockIdentity — управляемая реализация Identity.
type mockIdentity struct {
	mu        sync.Mutex
	profiles  map[string]*model.Profile
	refreshed map[string]string
	meErr     error
	meCalls   int
	refCalls  int
}

func newMockIdentity() *mockIdentity {
	return &mockIdentity{
		profiles:  map[string]*model.Profile{},
		refreshed: map[string]string{},
	}
}

func (m *mockIdentity) Me(_ context.Context, token string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meCalls++
	if m.meErr != nil {
		return nil, m.meErr
	}
	p, ok := m.profiles[token]
	if !ok {
		return nil, &backend.StatusError{Operation: "me", StatusCode: 401}
	}
	return p, nil
}

func (m *mockIdentity) Refresh(_ context.Context, refresh string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refCalls++
	access, ok := m.refreshed[refresh]
	if !ok {
		return "", &backend.StatusError{Operation: "token_refresh", StatusCode: 401}
	}
	return access, nil
}

func TestResolve_ValidAccessToken(t *testing.T) {
	id := newMockIdentity()
	id.profiles["at"] = &model.Profile{ID: "u1", Role: " Editor "}

	g := NewGate(id, nil, nil, testLogger())
	s := g.Resolve(context.Background(), Tokens{Access: "at", Refresh: "rt"})

	if !s.Authenticated() {
		t.Fatal("ожидалась аутентифицированная сессия")
	}
	if s.Refreshed || s.Stale {
		t.Errorf("Refreshed=%v Stale=%v, ожидается false/false", s.Refreshed, s.Stale)
	}
	if s.Role != "editor" {
		t.Errorf("Role = %q, ожидается нормализованная editor", s.Role)
	}
	if id.refCalls != 0 {
		t.Errorf("refresh не должен вызываться, вызван %d раз", id.refCalls)
	}
}

func TestResolve_RefreshExactlyOnce(t *testing.T) {
	id := newMockIdentity()
	id.refreshed["rt"] = "new-at"
	id.profiles["new-at"] = &model.Profile{ID: "u1", Role: "publisher"}

	g := NewGate(id, nil, nil, testLogger())
	s := g.Resolve(context.Background(), Tokens{Access: "expired", Refresh: "rt"})

	if !s.Authenticated() || !s.Refreshed {
		t.Fatalf("ожидалась обновлённая сессия, получено %+v", s)
	}
	if s.AccessToken != "new-at" {
		t.Errorf("AccessToken = %q, ожидается new-at", s.AccessToken)
	}
	if id.refCalls != 1 {
		t.Errorf("refresh вызван %d раз, ожидается 1", id.refCalls)
	}
	if id.meCalls != 2 {
		t.Errorf("/me/ вызван %d раз, ожидается 2", id.meCalls)
	}
}

func TestResolve_Unauthenticated(t *testing.T) {
	tests := []struct {
		name   string
		tokens Tokens
		setup  func(*mockIdentity)
		wantRe int
	}{
		{"без токенов", Tokens{}, nil, 0},
		{"только невалидный access", Tokens{Access: "bad"}, nil, 0},
		{"refresh отклонён", Tokens{Access: "bad", Refresh: "bad-rt"}, nil, 1},
		{"новый токен отклонён /me/", Tokens{Refresh: "rt"}, func(m *mockIdentity) {
			m.refreshed["rt"] = "orphan"
		}, 1},
		{"backend недоступен", Tokens{Access: "at", Refresh: "rt"}, func(m *mockIdentity) {
			m.meErr = backend.ErrUnavailable
			m.refreshed["rt"] = "at2"
		}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := newMockIdentity()
			if tt.setup != nil {
				tt.setup(id)
			}
			g := NewGate(id, nil, nil, testLogger())
			s := g.Resolve(context.Background(), tt.tokens)

			if s == nil {
				t.Fatal("Resolve не должен возвращать nil")
			}
			if s.Authenticated() {
				t.Error("ожидалась неаутентифицированная сессия")
			}
			if s.State != StateUnauthenticated {
				t.Errorf("State = %q", s.State)
			}
			if id.refCalls != tt.wantRe {
				t.Errorf("refresh вызван %d раз, ожидается %d", id.refCalls, tt.wantRe)
			}
		})
	}
}

func TestResolve_CachedSessionIsStale(t *testing.T) {
	id := newMockIdentity()
	id.profiles["at"] = &model.Profile{ID: "u1", Role: "editor"}
	cache := NewProfileCache(10, time.Minute)

	g := NewGate(id, nil, cache, testLogger())
	first := g.Resolve(context.Background(), Tokens{Access: "at"})
	second := g.Resolve(context.Background(), Tokens{Access: "at"})

	if first.Stale {
		t.Error("первая проверка не должна быть из кэша")
	}
	if !second.Stale {
		t.Error("повторная проверка должна быть помечена Stale")
	}
	if id.meCalls != 1 {
		t.Errorf("/me/ вызван %d раз, ожидается 1", id.meCalls)
	}
}

func TestRevalidate(t *testing.T) {
	id := newMockIdentity()
	id.profiles["at"] = &model.Profile{ID: "u1", Role: "editor"}
	cache := NewProfileCache(10, time.Minute)
	g := NewGate(id, nil, cache, testLogger())

	g.Resolve(context.Background(), Tokens{Access: "at"})
	stale := g.Resolve(context.Background(), Tokens{Access: "at"})

	fresh, err := g.Revalidate(context.Background(), stale)
	if err != nil {
		t.Fatalf("Ошибка Revalidate: %v", err)
	}
	if fresh.Stale {
		t.Error("после Revalidate Stale должен быть false")
	}
	if id.meCalls != 2 {
		t.Errorf("/me/ вызван %d раз, ожидается 2", id.meCalls)
	}

	// Токен отозван на стороне backend
	delete(id.profiles, "at")
	_, err = g.Revalidate(context.Background(), stale)
	if !errors.Is(err, ErrUnauthenticated) || !errors.Is(err, backend.ErrUnauthorized) {
		t.Errorf("ожидалась ErrUnauthenticated+ErrUnauthorized, получена %v", err)
	}
	if cache.Len() != 0 {
		t.Error("профиль отозванного токена должен быть удалён из кэша")
	}
}

func TestRequireRole(t *testing.T) {
	id := newMockIdentity()
	id.profiles["editor-at"] = &model.Profile{ID: "e1", Role: "EDITOR"}
	id.profiles["author-at"] = &model.Profile{ID: "a1", Role: "publisher"}
	id.profiles["norole-at"] = &model.Profile{ID: "n1"}
	g := NewGate(id, nil, nil, testLogger())
	ctx := context.Background()

	tests := []struct {
		token   string
		wantErr error
	}{
		{"editor-at", nil},
		{"author-at", ErrForbidden},
		{"norole-at", ErrForbidden},
		{"missing", ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			s := g.Resolve(ctx, Tokens{Access: tt.token})
			_, err := g.RequireRole(ctx, s, "editor")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ошибка = %v, ожидается %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequireRole_RevalidatesStaleSession(t *testing.T) {
	id := newMockIdentity()
	id.profiles["at"] = &model.Profile{ID: "e1", Role: "editor"}
	g := NewGate(id, nil, NewProfileCache(10, time.Minute), testLogger())
	ctx := context.Background()

	g.Resolve(ctx, Tokens{Access: "at"})
	stale := g.Resolve(ctx, Tokens{Access: "at"})

	// Роль понижена на backend после кэширования
	id.profiles["at"] = &model.Profile{ID: "e1", Role: "reader"}

	if _, err := g.RequireRole(ctx, stale, "editor"); !errors.Is(err, ErrForbidden) {
		t.Errorf("ожидалась ErrForbidden после перепроверки, получена %v", err)
	}
}

func TestAccessTokenFromContext(t *testing.T) {
	if tok, err := AccessToken(context.Background()); err != nil || tok != "" {
		t.Errorf("без сессии ожидается пустой токен, получено %q, %v", tok, err)
	}
	ctx := WithSession(context.Background(), &Session{State: StateAuthenticated, AccessToken: "at"})
	if tok, _ := AccessToken(ctx); tok != "at" {
		t.Errorf("AccessToken = %q, ожидается at", tok)
	}
}
