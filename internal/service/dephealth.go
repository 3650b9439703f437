// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Journivo мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//   - backend — HTTP checker к публичному endpoint категорий (critical)
//   - frontend — HTTP checker, если настроен JV_FRONTEND_URL (non-critical)
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// DephealthTargets — адреса проверяемых зависимостей.
type DephealthTargets struct {
	// PostgresURL — URL PostgreSQL для лейблов метрик (не для подключения).
	PostgresURL string
	BackendURL  string
	// FrontendURL — опционально.
	FrontendURL string
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(
	serviceID string,
	group string,
	db *sql.DB,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, db, targets, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	db *sql.DB,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, db, targets, checkInterval, logger,
		dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID string,
	group string,
	db *sql.DB,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	pgDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(targets.PostgresURL),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(true),
	}

	opts := make([]dephealth.Option, 0, 4+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)), pgDepOpts...),
		dephealth.HTTP("backend", httpDepOpts(targets.BackendURL, backendHealthPath(targets.BackendURL), checkInterval, true)...),
	)
	if targets.FrontendURL != "" {
		opts = append(opts, dephealth.HTTP("frontend",
			httpDepOpts(targets.FrontendURL, "/", checkInterval, false)...))
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

func httpDepOpts(rawURL, healthPath string, checkInterval time.Duration, critical bool) []dephealth.DependencyOption {
	opts := []dephealth.DependencyOption{
		dephealth.FromURL(rawURL),
		dephealth.WithHTTPHealthPath(healthPath),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(critical),
	}
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Scheme == "https" {
		opts = append(opts, dephealth.WithHTTPTLSSkipVerify(false))
	}
	return opts
}

// backendHealthPath возвращает путь публичного endpoint категорий
// с учётом префикса API в URL backend (например, /api/categories/).
func backendHealthPath(backendURL string) string {
	parsed, err := url.Parse(backendURL)
	if err != nil {
		return "/categories/"
	}
	return strings.TrimRight(parsed.Path, "/") + "/categories/"
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL + backend)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// CheckReady сводит состояние зависимостей для readiness probe.
// Недоступный backend или frontend не делает сервис неготовым: статус degraded.
func (ds *DephealthService) CheckReady() (status, message string) {
	health := ds.Health()
	if len(health) == 0 {
		return "ok", "проверки ещё не выполнялись"
	}

	var down []string
	for name, ok := range health {
		if !ok {
			down = append(down, name)
		}
	}
	if len(down) == 0 {
		return "ok", "все зависимости доступны"
	}
	sort.Strings(down)
	return "degraded", "недоступны: " + strings.Join(down, ", ")
}
