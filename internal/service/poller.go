// poller.go — периодический опрос backend для SSE-подписчиков.
//
// Каждый подписчик владеет собственным Poller, привязанным к контексту
// запроса: отключение клиента останавливает опрос. Новый тик отменяет
// выборку, которая ещё не завершилась. Ошибки выборки логируются и не
// останавливают тикер. Пока пользователь набирает текст, тики пропускаются.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollerFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jv_poller_fetches_total",
		Help: "Выборки фонового опроса по источникам и результатам.",
	}, []string{"poller", "result"}) // result: ok, error, cancelled, paused

	activePollers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jv_active_pollers",
		Help: "Количество активных опросов (SSE-подписчиков).",
	}, []string{"poller"})
)

// FetchFunc — одна выборка данных.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Poller — опрос с интервалом и отменяемой выборкой.
type Poller[T any] struct {
	name     string
	interval time.Duration
	fetch    FetchFunc[T]
	paused   func() bool
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller создаёт опрос. paused может быть nil.
func NewPoller[T any](name string, interval time.Duration, fetch FetchFunc[T], paused func() bool, logger *slog.Logger) *Poller[T] {
	return &Poller[T]{
		name:     name,
		interval: interval,
		fetch:    fetch,
		paused:   paused,
		logger:   logger.With(slog.String("component", "poller"), slog.String("poller", name)),
	}
}

// Start запускает опрос: первая выборка сразу, далее по тикеру.
// Канал результатов закрывается после остановки.
func (p *Poller[T]) Start(ctx context.Context) <-chan T {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	out := make(chan T, 1)

	go func() {
		defer close(p.done)
		defer close(out)

		var wg sync.WaitGroup
		defer wg.Wait()

		cancelFetch := context.CancelFunc(func() {})
		defer func() { cancelFetch() }()

		activePollers.WithLabelValues(p.name).Inc()
		defer activePollers.WithLabelValues(p.name).Dec()

		tick := func() {
			if p.paused != nil && p.paused() {
				pollerFetchesTotal.WithLabelValues(p.name, "paused").Inc()
				return
			}

			// Незавершённая выборка предыдущего тика больше не нужна
			cancelFetch()
			var fetchCtx context.Context
			fetchCtx, cancelFetch = context.WithCancel(ctx)

			wg.Add(1)
			go func() {
				defer wg.Done()
				p.runFetch(fetchCtx, out)
			}()
		}

		tick()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick()
			}
		}
	}()

	return out
}

func (p *Poller[T]) runFetch(ctx context.Context, out chan<- T) {
	v, err := p.fetch(ctx)
	if ctx.Err() != nil {
		pollerFetchesTotal.WithLabelValues(p.name, "cancelled").Inc()
		return
	}
	if err != nil {
		pollerFetchesTotal.WithLabelValues(p.name, "error").Inc()
		p.logger.Warn("Ошибка фонового опроса", slog.String("error", err.Error()))
		return
	}
	pollerFetchesTotal.WithLabelValues(p.name, "ok").Inc()

	select {
	case out <- v:
	case <-ctx.Done():
	}
}

// Stop останавливает опрос и ждёт завершения выборок.
func (p *Poller[T]) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}
}

// TypingTracker — отметки набора текста. Пока отметка свежая,
// опрос комментариев приостановлен.
type TypingTracker struct {
	mu    sync.Mutex
	until map[string]time.Time
	pause time.Duration
	now   func() time.Time
}

// NewTypingTracker создаёт трекер с окном паузы pause.
func NewTypingTracker(pause time.Duration) *TypingTracker {
	return &TypingTracker{
		until: make(map[string]time.Time),
		pause: pause,
		now:   time.Now,
	}
}

// Touch отмечает набор текста пользователем в публикации.
func (t *TypingTracker) Touch(userID, publicationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.until[typingKey(userID, publicationID)] = now.Add(t.pause)

	// Устаревшие отметки удаляются при росте карты
	if len(t.until) > 1024 {
		for k, deadline := range t.until {
			if now.After(deadline) {
				delete(t.until, k)
			}
		}
	}
}

// IsTyping сообщает, набирает ли пользователь текст сейчас.
func (t *TypingTracker) IsTyping(userID, publicationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey(userID, publicationID)
	deadline, ok := t.until[key]
	if !ok {
		return false
	}
	if t.now().After(deadline) {
		delete(t.until, key)
		return false
	}
	return true
}

func typingKey(userID, publicationID string) string {
	return userID + "|" + publicationID
}
