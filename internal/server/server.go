// Пакет server — HTTP-сервер Journivo Gateway с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/journivo/internal/api/handlers"
	"github.com/bigkaa/journivo/internal/api/middleware"
	"github.com/bigkaa/journivo/internal/config"
)

// Routes — обработчики, подключаемые к маршрутизатору.
type Routes struct {
	API *handlers.APIHandler
	// BackendProxy — сквозной прокси к backend на ProxyPrefix.
	BackendProxy http.Handler
	// ProxyPrefix — префикс сквозного прокси, например /api/proxy/.
	ProxyPrefix string
	// FrontendProxy — прокси страниц к frontend (может быть nil).
	FrontendProxy http.Handler
	// PaymentLimiter — ограничение частоты платёжных запросов (может быть nil).
	PaymentLimiter func(http.Handler) http.Handler
}

// Server — HTTP-сервер Journivo Gateway.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// middlewares — общие middleware (logging, metrics, session), добавляются в порядке переданного среза.
func New(cfg *config.Config, logger *slog.Logger, routes Routes, middlewares ...func(http.Handler) http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(routes, middlewares...),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты Journivo Gateway.
func NewRouter(routes Routes, middlewares ...func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()

	// Применяем переданные middleware
	for _, mw := range middlewares {
		router.Use(mw)
	}

	h := routes.API
	limited := routes.PaymentLimiter
	if limited == nil {
		limited = func(next http.Handler) http.Handler { return next }
	}

	// --- Health ---
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	// --- Публичные маршруты ---
	router.Post("/api/login", h.Login)
	router.Post("/api/logout", h.Logout)
	router.Get("/api/auth/session", h.AuthSession)
	router.Get("/api/categories", h.Categories)
	router.Get("/api/publications", h.ListPublications)
	router.Get("/api/publications/{id}", h.GetPublication)
	router.Get("/api/publications/{id}/comments", h.ListComments)

	// --- Маршруты, требующие сессии ---
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Get("/api/me", h.Me)

		r.Post("/api/publications", h.CreatePublication)
		r.Patch("/api/publications/{id}/draft", h.SaveDraft)
		r.Post("/api/publications/{id}/submit", h.SubmitPublication)
		r.Post("/api/publications/{id}/resubmit", h.ResubmitPublication)
		r.Post("/api/publications/{id}/resubmit/complete", h.CompleteResubmission)

		r.Patch("/api/publications/{id}/review", h.ReviewPublication)
		r.Patch("/api/publications/{id}/annotate", h.AnnotatePublication)
		r.Get("/api/publications/{id}/rejection-note", h.RejectionNote)

		r.Post("/api/publications/{id}/reaction", h.React)
		r.Get("/api/publications/{id}/reaction", h.CurrentReaction)

		r.Post("/api/publications/{id}/comments", h.AddComment)
		r.Patch("/api/publications/{id}/comments/{cid}", h.EditComment)
		r.Delete("/api/publications/{id}/comments/{cid}", h.DeleteComment)
		r.Get("/api/publications/{id}/comments/stream", h.CommentsStream)
		r.Post("/api/publications/{id}/comments/typing", h.CommentTyping)

		r.With(limited).Post("/api/payments/initialize", h.InitializePayment)
		r.With(limited).Post("/api/payments/verify", h.VerifyPayment)
		r.Get("/api/payments/history", h.PaymentHistory)
		r.Post("/api/payments/refund", h.RequestRefund)
		r.Get("/api/payments/{reference}", h.PaymentDetails)
		r.Get("/api/free-review-status", h.FreeReviewStatus)
		r.Get("/api/subscription", h.Subscription)

		r.Get("/api/notifications", h.ListNotifications)
		r.Get("/api/notifications/unread", h.UnreadNotifications)
		r.Get("/api/notifications/stream", h.NotificationsStream)
		r.Patch("/api/notifications/mark-all-read", h.MarkAllNotificationsRead)
		r.Patch("/api/notifications/{id}/read", h.MarkNotificationRead)
	})

	// --- Сквозной прокси к backend ---
	if routes.BackendProxy != nil && routes.ProxyPrefix != "" {
		router.Handle(strings.TrimSuffix(routes.ProxyPrefix, "/")+"/*", routes.BackendProxy)
	}

	// --- Страницы frontend ---
	if routes.FrontendProxy != nil {
		router.NotFound(middleware.PageGuard(routes.FrontendProxy).ServeHTTP)
	}

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
