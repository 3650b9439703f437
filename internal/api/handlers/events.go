// events.go — SSE (Server-Sent Events) потоки уведомлений и комментариев.
// Каждый подписчик получает собственный Poller, привязанный к контексту
// запроса: отключение клиента останавливает опрос backend.
// Событие отправляется только при изменении данных.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/journivo/internal/domain/model"
	"github.com/bigkaa/journivo/internal/service"
)

// keepAliveInterval — период SSE-комментария, удерживающего соединение через прокси.
const keepAliveInterval = 30 * time.Second

// NotificationsStream — GET /api/notifications/stream.
// Формат: event: notifications\ndata: [...]\n\n (непрочитанные уведомления).
func (h *APIHandler) NotificationsStream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}

	poller := service.NewPoller[[]model.Notification]("notifications", h.pollInterval,
		func(ctx context.Context) ([]model.Notification, error) {
			return h.feed.Notifications(ctx, true)
		}, nil, h.logger)

	serveStream(h, w, r, s.UserID(), "notifications", poller)
}

// CommentsStream — GET /api/publications/{id}/comments/stream.
// Пока пользователь набирает комментарий, опрос приостановлен.
func (h *APIHandler) CommentsStream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	publicationID := chi.URLParam(r, "id")
	userID := s.UserID()

	poller := service.NewPoller[[]model.Comment]("comments", h.pollInterval,
		func(ctx context.Context) ([]model.Comment, error) {
			return h.feed.Comments(ctx, publicationID)
		},
		func() bool { return h.typing.IsTyping(userID, publicationID) },
		h.logger)

	serveStream(h, w, r, userID, "comments", poller)
}

// serveStream передаёт результаты опроса клиенту до его отключения.
func serveStream[T any](h *APIHandler, w http.ResponseWriter, r *http.Request, userID, event string, poller *service.Poller[T]) {
	// Настраиваем заголовки SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Отключаем буферизацию Nginx

	// ResponseController находит http.Flusher через Unwrap() обёрток middleware
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}
	// Поток живёт дольше WriteTimeout сервера
	_ = rc.SetWriteDeadline(time.Time{})

	ctx := r.Context()
	updates := poller.Start(ctx)
	defer poller.Stop()

	h.logger.Debug("SSE клиент подключён",
		slog.String("stream", event),
		slog.String("user_id", userID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	var last []byte
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE клиент отключён",
				slog.String("stream", event),
				slog.String("user_id", userID),
			)
			return

		case v, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(v)
			if err != nil {
				h.logger.Error("Ошибка сериализации SSE-события",
					slog.String("stream", event),
					slog.String("error", err.Error()),
				)
				continue
			}
			if bytes.Equal(data, last) {
				continue
			}
			last = data

			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}

		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
