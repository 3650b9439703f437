package service

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var inFlightRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jv_inflight_rejected_total",
	Help: "Количество отклонённых повторных операций (уже выполняется такая же).",
}, []string{"operation"})

// InFlightGuard — не более одной операции на ключ (пользователь, операция, публикация).
// Повторный вызов, пока первый не завершён, получает ErrSubmitInProgress
// и не доходит до backend.
type InFlightGuard struct {
	active sync.Map
}

// NewInFlightGuard создаёт guard.
func NewInFlightGuard() *InFlightGuard {
	return &InFlightGuard{}
}

// Acquire занимает ключ. release нужно вызвать по завершении операции.
func (g *InFlightGuard) Acquire(userID, operation, publicationID string) (release func(), err error) {
	key := userID + "|" + operation + "|" + publicationID
	if _, loaded := g.active.LoadOrStore(key, struct{}{}); loaded {
		inFlightRejectedTotal.WithLabelValues(operation).Inc()
		return nil, ErrSubmitInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() { g.active.Delete(key) })
	}, nil
}
