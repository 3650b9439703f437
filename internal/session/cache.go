package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/journivo/internal/domain/model"
)

// Prometheus-метрики кэша профилей.
var (
	profileCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jv_profile_cache_hits_total",
		Help: "Общее количество попаданий в кэш профилей.",
	})
	profileCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jv_profile_cache_misses_total",
		Help: "Общее количество промахов кэша профилей.",
	})
)

// ProfileCache — LRU-кэш профилей /me/ с TTL.
// Ключ — SHA-256 от access token: сами токены в памяти не хранятся.
type ProfileCache struct {
	cache *expirable.LRU[string, *model.Profile]
}

// NewProfileCache создаёт кэш. maxSize <= 0 отключает кэширование.
func NewProfileCache(maxSize int, ttl time.Duration) *ProfileCache {
	if maxSize <= 0 {
		return &ProfileCache{}
	}
	return &ProfileCache{cache: expirable.NewLRU[string, *model.Profile](maxSize, nil, ttl)}
}

// Get возвращает профиль по access token.
func (c *ProfileCache) Get(accessToken string) (*model.Profile, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	p, ok := c.cache.Get(tokenKey(accessToken))
	if ok {
		profileCacheHitsTotal.Inc()
		return p, true
	}
	profileCacheMissesTotal.Inc()
	return nil, false
}

// Set сохраняет профиль, подтверждённый backend.
func (c *ProfileCache) Set(accessToken string, p *model.Profile) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Add(tokenKey(accessToken), p)
}

// Delete удаляет профиль (например, после 401 от backend).
func (c *ProfileCache) Delete(accessToken string) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Remove(tokenKey(accessToken))
}

// Len возвращает количество записей.
func (c *ProfileCache) Len() int {
	if c == nil || c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
