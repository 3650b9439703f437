package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bigkaa/journivo/internal/domain/model"
)

// LoginResult — ответ backend на POST /login/, передаваемый клиенту как есть.
type LoginResult struct {
	StatusCode int
	Body       []byte
	// Cookies — cookie из Set-Cookie ответа backend.
	Cookies []*http.Cookie
	// Tokens — токены из тела ответа (если есть).
	Tokens model.TokenPair
}

// Me возвращает профиль владельца accessToken (GET /me/).
func (c *Client) Me(ctx context.Context, accessToken string) (*model.Profile, error) {
	var profile model.Profile
	err := c.do(ctx, request{
		operation:   "me",
		method:      http.MethodGet,
		path:        "/me/",
		accessToken: accessToken,
	}, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Refresh обменивает refresh token на новый access token (POST /token/refresh/).
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	body, err := jsonBody(map[string]string{"refresh": refreshToken})
	if err != nil {
		return "", err
	}

	var pair model.TokenPair
	err = c.do(ctx, request{
		operation:   "token_refresh",
		method:      http.MethodPost,
		path:        "/token/refresh/",
		body:        body,
		contentType: "application/json",
		anonymous:   true,
		cookies:     []*http.Cookie{{Name: "refresh_token", Value: refreshToken}},
	}, &pair)
	if err != nil {
		return "", err
	}

	access := pair.AccessValue()
	if access == "" {
		return "", fmt.Errorf("ответ token_refresh не содержит access token")
	}
	return access, nil
}

// Login передаёт учётные данные в POST /login/ без интерпретации статуса:
// ошибки входа (400/401) возвращаются клиенту как есть.
func (c *Client) Login(ctx context.Context, credentials []byte) (*LoginResult, error) {
	resp, err := c.send(ctx, request{
		operation:   "login",
		method:      http.MethodPost,
		path:        "/login/",
		body:        bytes.NewReader(credentials),
		contentType: "application/json",
		anonymous:   true,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("чтение ответа login: %w", err)
	}

	result := &LoginResult{
		StatusCode: resp.StatusCode,
		Body:       body,
		Cookies:    resp.Cookies(),
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		// Тело может не содержать токенов, если backend выдаёт их только в Set-Cookie.
		_ = json.Unmarshal(body, &result.Tokens)
	}
	return result, nil
}

// Logout завершает сессию на стороне backend (POST /logout/).
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	var cookies []*http.Cookie
	if refreshToken != "" {
		cookies = append(cookies, &http.Cookie{Name: "refresh_token", Value: refreshToken})
	}
	return c.do(ctx, request{
		operation: "logout",
		method:    http.MethodPost,
		path:      "/logout/",
		cookies:   cookies,
	}, nil)
}

// Categories возвращает список категорий публикаций (GET /categories/).
func (c *Client) Categories(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{
		operation: "categories",
		method:    http.MethodGet,
		path:      "/categories/",
	}, &raw)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
