// ratelimit.go — ограничение частоты платёжных запросов на пользователя.
// Token bucket (golang.org/x/time/rate) на каждого пользователя; неактивные
// записи удаляются фоновой очисткой.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	apierrors "github.com/bigkaa/journivo/internal/api/errors"
	"github.com/bigkaa/journivo/internal/session"
)

var rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "jv_rate_limited_total",
	Help: "Количество запросов, отклонённых ограничителем частоты.",
})

// visitorTTL — время жизни записи без запросов.
const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// RateLimiter — ограничитель частоты по пользователю.
type RateLimiter struct {
	visitors sync.Map
	rate     rate.Limit
	burst    int
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter создаёт ограничитель r запросов в секунду с запасом burst
// и запускает фоновую очистку.
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	rl := &RateLimiter{
		rate:  r,
		burst: burst,
		done:  make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := rl.visitors.Load(key); ok {
		vis := v.(*visitor)
		vis.lastSeen.Store(now)
		return vis.limiter
	}
	vis := &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
	vis.lastSeen.Store(now)
	actual, _ := rl.visitors.LoadOrStore(key, vis)
	return actual.(*visitor).limiter
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(visitorTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.evict(time.Now().Add(-visitorTTL))
		case <-rl.done:
			return
		}
	}
}

// evict удаляет записи, не использованные после before.
func (rl *RateLimiter) evict(before time.Time) {
	rl.visitors.Range(func(key, value any) bool {
		if value.(*visitor).lastSeen.Load() < before.UnixNano() {
			rl.visitors.Delete(key)
		}
		return true
	})
}

// Stop останавливает фоновую очистку.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// Middleware ограничивает частоту запросов. Ключ — ID пользователя сессии,
// для анонимных запросов — адрес клиента.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if s := session.FromContext(r.Context()); s.Authenticated() {
			key = "user:" + s.UserID()
		}

		if !rl.getLimiter(key).Allow() {
			rateLimitedTotal.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			apierrors.TooManyRequests(w, "Слишком много платёжных запросов, повторите позже")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfter — секунды до появления следующего токена.
func (rl *RateLimiter) retryAfter() int {
	if rl.rate <= 0 {
		return 60
	}
	return int(math.Ceil(1 / float64(rl.rate)))
}
