package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenInspector — локальная предварительная проверка access token.
// Просроченный токен (или токен с неверной подписью при настроенном JWKS)
// не отправляется в /me/: шлюз сразу переходит к refresh.
type TokenInspector struct {
	jwks   keyfunc.Keyfunc
	now    func() time.Time
	logger *slog.Logger
}

// NewTokenInspector создаёт инспектор токенов.
// jwksURL — опциональный JWKS endpoint; пустая строка — проверяется только exp.
func NewTokenInspector(
	jwksURL string,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	logger *slog.Logger,
) (*TokenInspector, error) {
	logger = logger.With(slog.String("component", "token_inspector"))
	if jwksURL == "" {
		return newTokenInspector(nil, logger), nil
	}

	// NoErrorReturnFirstHTTPReq — стартуем даже если JWKS ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: jwksClientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	logger.Info("Локальная проверка подписи access token включена",
		slog.String("jwks_url", jwksURL),
	)
	return newTokenInspector(k, logger), nil
}

func newTokenInspector(jwks keyfunc.Keyfunc, logger *slog.Logger) *TokenInspector {
	return &TokenInspector{
		jwks:   jwks,
		now:    time.Now,
		logger: logger,
	}
}

// Usable сообщает, имеет ли смысл проверять токен через backend.
// Непрозрачный (не JWT) токен считается пригодным: решение принимает backend.
func (ti *TokenInspector) Usable(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}

	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(ti.now()) {
		ti.logger.Debug("Access token просрочен, проверка через backend пропущена")
		return false
	}

	if ti.jwks == nil {
		return true
	}

	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, ti.jwks.KeyfuncCtx(ctx),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		ti.logger.Debug("Подпись access token не прошла проверку",
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}
