// Точка входа Journivo Gateway — BFF-шлюз между браузером и REST API Journivo.
// Загружает конфигурацию, применяет миграции и подключается к PostgreSQL
// (журнал платежей и заявки на бесплатные рецензии), создаёт backend-клиент,
// шлюз сессий, сервисный слой и API handlers, запускает topologymetrics
// и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/bigkaa/journivo/internal/api/handlers"
	"github.com/bigkaa/journivo/internal/api/middleware"
	"github.com/bigkaa/journivo/internal/backend"
	"github.com/bigkaa/journivo/internal/config"
	"github.com/bigkaa/journivo/internal/database"
	"github.com/bigkaa/journivo/internal/proxy"
	"github.com/bigkaa/journivo/internal/repository"
	"github.com/bigkaa/journivo/internal/server"
	"github.com/bigkaa/journivo/internal/service"
	"github.com/bigkaa/journivo/internal/session"
)

func main() {
	// 0. Переменные окружения из .env (если файл есть)
	envErr := godotenv.Load()

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Journivo Gateway запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("backend_url", cfg.BackendURL),
	)
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn("Ошибка чтения .env", slog.String("error", envErr.Error()))
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Backend-клиент. Учётные данные берутся из сессии запроса.
	backendClient, err := backend.New(
		cfg.BackendURL,
		cfg.BackendCACertPath,
		cfg.BackendTimeout,
		session.AccessToken,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания backend-клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Шлюз сессий: локальная проверка токена (опционально), кэш /me/, cookie
	inspector, err := session.NewTokenInspector(cfg.JWTJWKSURL, cfg.BackendTimeout, cfg.JWKSRefreshInterval, logger)
	if err != nil {
		logger.Error("Ошибка создания проверки токенов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	profileCache := session.NewProfileCache(cfg.ProfileCacheSize, cfg.ProfileCacheTTL)
	gate := session.NewGate(backendClient, inspector, profileCache, logger)
	cookies := session.NewCookieManager(cfg.CookieSecure, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// 7. Repositories
	ledgerRepo := repository.NewPaymentLedgerRepository(pool)
	claimRepo := repository.NewFreeReviewClaimRepository(pool, cfg.FreeReviewClaimTTL)

	// 8. Services
	paymentSvc := service.NewPaymentService(backendClient, ledgerRepo, cfg.PaymentCallbackURL, logger)
	submissionSvc := service.NewSubmissionService(
		backendClient, paymentSvc, claimRepo,
		service.NewInFlightGuard(),
		cfg.FreeReviewCap,
		logger,
	)
	reviewSvc := service.NewReviewService(backendClient, gate, logger)
	reactionSvc := service.NewReactionService(backendClient, logger)
	feedSvc := service.NewFeedService(backendClient, logger)
	typing := service.NewTypingTracker(cfg.TypingPause)

	// 9. topologymetrics — мониторинг зависимостей (PostgreSQL + backend + frontend)
	var depsChecker handlers.ReadinessChecker
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"journivo-gateway",
		cfg.DephealthGroup,
		pgDB,
		service.DephealthTargets{
			PostgresURL: cfg.DatabaseURL(),
			BackendURL:  cfg.BackendURL,
			FrontendURL: cfg.FrontendURL,
		},
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			depsChecker = dephealthSvc
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 10. API handler
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), depsChecker)
	apiHandler := handlers.NewAPIHandler(handlers.Dependencies{
		Health:       healthHandler,
		Backend:      backendClient,
		Gate:         gate,
		Cookies:      cookies,
		Submissions:  submissionSvc,
		Payments:     paymentSvc,
		Review:       reviewSvc,
		Reactions:    reactionSvc,
		Feed:         feedSvc,
		Typing:       typing,
		PollInterval: cfg.PollInterval,
	}, logger)

	// 11. Прокси: сквозной к backend и страницы к frontend
	backendProxy, err := proxy.New("backend", cfg.BackendURL, cfg.ProxyPrefix, backendClient.Transport(), logger)
	if err != nil {
		logger.Error("Ошибка создания прокси backend", slog.String("error", err.Error()))
		os.Exit(1)
	}
	var frontendProxy http.Handler
	if cfg.FrontendURL != "" {
		fp, err := proxy.New("frontend", cfg.FrontendURL, "", nil, logger)
		if err != nil {
			logger.Error("Ошибка создания прокси frontend", slog.String("error", err.Error()))
			os.Exit(1)
		}
		frontendProxy = fp
		logger.Info("Страницы проксируются во frontend", slog.String("url", cfg.FrontendURL))
	}

	// 12. Ограничение частоты платёжных запросов
	paymentLimiter := middleware.NewRateLimiter(rate.Limit(cfg.PaymentRateLimit), cfg.PaymentRateBurst)
	defer paymentLimiter.Stop()

	// 13. HTTP-сервер
	srv := server.New(cfg, logger,
		server.Routes{
			API:            apiHandler,
			BackendProxy:   backendProxy,
			ProxyPrefix:    cfg.ProxyPrefix,
			FrontendProxy:  frontendProxy,
			PaymentLimiter: paymentLimiter.Middleware,
		},
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
		middleware.Session(gate, cookies, logger),
	)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Остановка фоновых задач
	if dephealthErr == nil {
		dephealthSvc.Stop()
	}

	logger.Info("Journivo Gateway остановлен")
}
