// proxy.go — сквозное проксирование запросов к backend и frontend.
//
// Логика:
//   - Префикс (например, /api/proxy/) отрезается, остаток пути добавляется к пути цели
//   - Метод, заголовки (кроме Host), query и тело передаются без изменений;
//     hop-by-hop заголовки (Connection, Upgrade и т.п.) net/http не передаёт
//   - Статус, заголовки и тело ответа возвращаются клиенту как есть
//   - Ошибка соединения с целью → 502 Bad Gateway
package proxy

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/journivo/internal/api/errors"
)

// forwardedHeaders — заголовки клиента, которые ReverseProxy в режиме Rewrite
// удаляет из исходящего запроса; прокси возвращает их без изменений.
var forwardedHeaders = []string{"Forwarded", "X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

var proxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jv_proxy_requests_total",
	Help: "Количество проксированных запросов по целям и статусам.",
}, []string{"target", "status"})

// Proxy — сквозной reverse proxy к одной цели.
type Proxy struct {
	name   string
	target *url.URL
	prefix string
	rp     *httputil.ReverseProxy
	logger *slog.Logger
}

// New создаёт прокси.
//
// Параметры:
//   - name: имя цели для логов и метрик (backend, frontend)
//   - targetURL: базовый URL цели; его путь сохраняется
//   - prefix: отрезаемый префикс входящего пути ("" — путь без изменений)
//   - transport: транспорт (nil — http.DefaultTransport)
//   - logger: логгер
func New(name, targetURL, prefix string, transport http.RoundTripper, logger *slog.Logger) (*Proxy, error) {
	target, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("некорректный URL цели прокси %s: %w", name, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("URL цели прокси %s должен содержать схему и хост: %q", name, targetURL)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}

	p := &Proxy{
		name:   name,
		target: target,
		prefix: prefix,
		logger: logger.With(slog.String("component", "proxy"), slog.String("target", name)),
	}

	p.rp = &httputil.ReverseProxy{
		Rewrite:   p.rewrite,
		Transport: transport,
		ModifyResponse: func(resp *http.Response) error {
			proxyRequestsTotal.WithLabelValues(p.name, strconv.Itoa(resp.StatusCode)).Inc()
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			proxyRequestsTotal.WithLabelValues(p.name, "error").Inc()
			p.logger.Error("Ошибка проксирования",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			apierrors.BackendUnavailable(w, "Сервис временно недоступен")
		},
	}
	return p, nil
}

// rewrite переписывает входящий запрос на цель.
// X-Forwarded-* не добавляются: цель видит заголовки клиента как есть.
func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	out := pr.Out
	rest := strings.TrimPrefix(pr.In.URL.Path, strings.TrimSuffix(p.prefix, "/"))

	out.URL.Scheme = p.target.Scheme
	out.URL.Host = p.target.Host
	out.URL.Path = joinPath(p.target.Path, rest)
	out.URL.RawPath = ""
	out.Host = p.target.Host

	for _, name := range forwardedHeaders {
		if values, ok := pr.In.Header[name]; ok {
			out.Header[name] = values
		}
	}

	p.logger.Debug("Проксирование запроса",
		slog.String("method", out.Method),
		slog.String("path", out.URL.Path),
	)
}

// ServeHTTP реализует http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}

// joinPath склеивает путь цели и остаток пути запроса одним слешем.
func joinPath(base, rest string) string {
	switch {
	case rest == "":
		if base == "" {
			return "/"
		}
		return base
	case !strings.HasPrefix(rest, "/"):
		rest = "/" + rest
	}
	return strings.TrimSuffix(base, "/") + rest
}
