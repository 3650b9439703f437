// Пакет backend — HTTP-клиент REST API Journivo.
//
// Все обращения к backend проходят через Client.do, который:
//   - передаёт учётные данные пользователя (Bearer + cookie access_token);
//   - переводит 401 в ErrUnauthorized (единая точка перехвата, без повторов);
//   - переводит сетевые ошибки и 5xx в ErrUnavailable.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ошибки backend.
var (
	// ErrUnauthorized — backend ответил 401: сессия недействительна.
	ErrUnauthorized = errors.New("backend: требуется аутентификация")
	// ErrForbidden — backend ответил 403.
	ErrForbidden = errors.New("backend: доступ запрещён")
	// ErrNotFound — backend ответил 404.
	ErrNotFound = errors.New("backend: ресурс не найден")
	// ErrUnavailable — backend недоступен (сеть, таймаут, 5xx).
	ErrUnavailable = errors.New("backend недоступен")
)

// Prometheus-метрики обращений к backend.
var (
	backendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jv_backend_requests_total",
		Help: "Количество запросов к backend по операциям и статусам",
	}, []string{"operation", "status"})

	backendUnauthorizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jv_backend_unauthorized_total",
		Help: "Количество ответов 401 от backend (перехваченных клиентом)",
	})

	backendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jv_backend_request_duration_seconds",
		Help:    "Длительность запросов к backend в секундах",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// StatusError — неуспешный HTTP-статус backend.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend вернул статус %d для %s: %s", e.StatusCode, e.Operation, e.Body)
}

// Unwrap сопоставляет статус с ошибками пакета для errors.Is.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode >= 500:
		return ErrUnavailable
	default:
		return nil
	}
}

// TokenProvider — функция получения access token текущего пользователя из контекста запроса.
type TokenProvider func(ctx context.Context) (string, error)

// Client — HTTP-клиент backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider
	logger     *slog.Logger
}

// New создаёт клиент backend.
// baseURL — базовый URL API (например, https://panel.example.com/api).
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// tokens — источник access token пользователя; nil — запросы без учётных данных.
func New(
	baseURL string,
	caCertPath string,
	timeout time.Duration,
	tokens TokenProvider,
	logger *slog.Logger,
) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата backend: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат backend добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		logger:     logger.With(slog.String("component", "backend_client")),
	}, nil
}

// BaseURL возвращает базовый URL backend.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Transport возвращает транспорт клиента (с CA-сертификатом, если он задан).
// Используется сквозным прокси к тому же backend.
func (c *Client) Transport() http.RoundTripper {
	if c.httpClient.Transport != nil {
		return c.httpClient.Transport
	}
	return http.DefaultTransport
}

// request описывает один вызов backend.
type request struct {
	operation   string
	method      string
	path        string
	body        io.Reader
	contentType string
	// accessToken — явный токен; если пуст, используется TokenProvider.
	accessToken string
	// cookies — дополнительные cookie (например, refresh_token).
	cookies []*http.Cookie
	// anonymous — не передавать учётные данные.
	anonymous bool
}

// do выполняет запрос и декодирует JSON-ответ в out (если out != nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(r, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("декодирование ответа %s: %w", r.operation, err)
	}
	return nil
}

// send отправляет запрос и возвращает сырой ответ; статус не проверяется.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса %s: %w", r.operation, err)
	}
	if r.body == nil {
		req.Body = http.NoBody
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")

	if !r.anonymous {
		token := r.accessToken
		if token == "" && c.tokens != nil {
			token, err = c.tokens(ctx)
			if err != nil {
				return nil, fmt.Errorf("получение токена для %s: %w", r.operation, err)
			}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
			req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
		}
	}
	for _, ck := range r.cookies {
		req.AddCookie(ck)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:gosec // URL из конфигурации
	backendRequestDuration.WithLabelValues(r.operation).Observe(time.Since(start).Seconds())
	if err != nil {
		backendRequestsTotal.WithLabelValues(r.operation, "error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("запрос %s прерван: %w", r.operation, ctxErr)
		}
		return nil, fmt.Errorf("%w: запрос %s к %s: %v", ErrUnavailable, r.operation, c.baseURL, err)
	}
	backendRequestsTotal.WithLabelValues(r.operation, strconv.Itoa(resp.StatusCode)).Inc()

	return resp, nil
}

// statusError читает тело неуспешного ответа и формирует StatusError.
func (c *Client) statusError(r request, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusUnauthorized {
		backendUnauthorizedTotal.Inc()
		c.logger.Warn("Backend отклонил учётные данные",
			slog.String("operation", r.operation),
		)
	}

	return &StatusError{
		Operation:  r.operation,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

// jsonBody сериализует v в JSON для тела запроса.
func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("сериализация тела запроса: %w", err)
	}
	return bytes.NewReader(data), nil
}

// decodeList разбирает ответ, который backend отдаёт либо массивом,
// либо страницей DRF вида {"results": [...]}.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}
