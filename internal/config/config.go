// Пакет config — загрузка и валидация конфигурации Journivo Gateway
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Journivo Gateway.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL (реестр платёжных референсов и free-review claims) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Backend (REST API Journivo) ---

	// Базовый URL backend, включая префикс /api (например, https://panel.example.com/api)
	BackendURL string
	// Таймаут HTTP-запросов к backend
	BackendTimeout time.Duration
	// Путь к CA-сертификату backend (опционально)
	BackendCACertPath string
	// URL фронтенда для проксирования защищённых страниц (опционально)
	FrontendURL string
	// Префикс pass-through прокси к backend
	ProxyPrefix string

	// --- Сессия ---

	// Время жизни cookie access_token после refresh
	AccessTokenTTL time.Duration
	// Время жизни cookie refresh_token после login
	RefreshTokenTTL time.Duration
	// Secure flag для cookies
	CookieSecure bool
	// Размер кэша профилей /me/
	ProfileCacheSize int
	// TTL записи кэша профилей
	ProfileCacheTTL time.Duration
	// URL JWKS для локальной проверки подписи access token (опционально)
	JWTJWKSURL string
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration

	// --- Публикации и платежи ---

	// Количество бесплатных рецензий на автора
	FreeReviewCap int
	// Через сколько незавершённая заявка на бесплатную рецензию перестаёт учитываться
	FreeReviewClaimTTL time.Duration
	// Лимит инициализаций платежа на пользователя (запросов в секунду)
	PaymentRateLimit float64
	// Burst для лимита инициализаций платежа
	PaymentRateBurst int
	// URL возврата после оплаты (передаётся в backend, опционально)
	PaymentCallbackURL string

	// --- Лента уведомлений и комментариев ---

	// Интервал опроса уведомлений и комментариев
	PollInterval time.Duration
	// Окно паузы опроса после сигнала «пользователь печатает»
	TypingPause time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// JV_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("JV_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("JV_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("JV_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("JV_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("JV_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("JV_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("JV_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("JV_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("JV_HTTP_READ_TIMEOUT: %w", err)
	}
	// Запись длиннее обычного: SSE-потоки уведомлений держат соединение открытым.
	cfg.HTTPWriteTimeout, err = getEnvDuration("JV_HTTP_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("JV_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("JV_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("JV_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("JV_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("JV_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("JV_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("JV_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("JV_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("JV_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("JV_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("JV_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Backend ---

	// JV_BACKEND_URL — обязательный
	cfg.BackendURL, err = getEnvRequired("JV_BACKEND_URL")
	if err != nil {
		return nil, err
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	if err := validateURL(cfg.BackendURL); err != nil {
		return nil, fmt.Errorf("JV_BACKEND_URL: %w", err)
	}

	cfg.BackendTimeout, err = getEnvDuration("JV_BACKEND_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("JV_BACKEND_TIMEOUT: %w", err)
	}
	cfg.BackendCACertPath = getEnvDefault("JV_BACKEND_CA_CERT_PATH", "")

	cfg.FrontendURL = strings.TrimRight(getEnvDefault("JV_FRONTEND_URL", ""), "/")
	if cfg.FrontendURL != "" {
		if err := validateURL(cfg.FrontendURL); err != nil {
			return nil, fmt.Errorf("JV_FRONTEND_URL: %w", err)
		}
	}

	cfg.ProxyPrefix = getEnvDefault("JV_PROXY_PREFIX", "/api/proxy/")
	if !strings.HasPrefix(cfg.ProxyPrefix, "/") || !strings.HasSuffix(cfg.ProxyPrefix, "/") {
		return nil, fmt.Errorf("JV_PROXY_PREFIX: префикс %q должен начинаться и заканчиваться на /", cfg.ProxyPrefix)
	}

	// --- Сессия ---

	// JV_ACCESS_TOKEN_TTL — время жизни access_token после refresh (по умолчанию 24h)
	cfg.AccessTokenTTL, err = getEnvDuration("JV_ACCESS_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JV_ACCESS_TOKEN_TTL: %w", err)
	}
	cfg.RefreshTokenTTL, err = getEnvDuration("JV_REFRESH_TOKEN_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JV_REFRESH_TOKEN_TTL: %w", err)
	}
	cfg.CookieSecure, err = getEnvBool("JV_COOKIE_SECURE", true)
	if err != nil {
		return nil, fmt.Errorf("JV_COOKIE_SECURE: %w", err)
	}

	cfg.ProfileCacheSize, err = getEnvInt("JV_PROFILE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("JV_PROFILE_CACHE_SIZE: %w", err)
	}
	if cfg.ProfileCacheSize < 1 {
		return nil, fmt.Errorf("JV_PROFILE_CACHE_SIZE: значение должно быть > 0")
	}
	cfg.ProfileCacheTTL, err = getEnvDuration("JV_PROFILE_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("JV_PROFILE_CACHE_TTL: %w", err)
	}

	cfg.JWTJWKSURL = getEnvDefault("JV_JWT_JWKS_URL", "")
	cfg.JWKSRefreshInterval, err = getEnvDuration("JV_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("JV_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// --- Публикации и платежи ---

	cfg.FreeReviewCap, err = getEnvInt("JV_FREE_REVIEW_CAP", 2)
	if err != nil {
		return nil, fmt.Errorf("JV_FREE_REVIEW_CAP: %w", err)
	}
	if cfg.FreeReviewCap < 0 {
		return nil, fmt.Errorf("JV_FREE_REVIEW_CAP: значение не может быть отрицательным")
	}
	cfg.FreeReviewClaimTTL, err = getEnvDurationPositive("JV_FREE_REVIEW_CLAIM_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("JV_FREE_REVIEW_CLAIM_TTL: %w", err)
	}

	cfg.PaymentRateLimit, err = getEnvFloat("JV_PAYMENT_RATE_LIMIT", 0.2)
	if err != nil {
		return nil, fmt.Errorf("JV_PAYMENT_RATE_LIMIT: %w", err)
	}
	cfg.PaymentRateBurst, err = getEnvInt("JV_PAYMENT_RATE_BURST", 3)
	if err != nil {
		return nil, fmt.Errorf("JV_PAYMENT_RATE_BURST: %w", err)
	}
	cfg.PaymentCallbackURL = getEnvDefault("JV_PAYMENT_CALLBACK_URL", "")

	// --- Лента ---

	// JV_POLL_INTERVAL — интервал опроса (по умолчанию 10s)
	cfg.PollInterval, err = getEnvDurationPositive("JV_POLL_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("JV_POLL_INTERVAL: %w", err)
	}
	cfg.TypingPause, err = getEnvDuration("JV_TYPING_PAUSE", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("JV_TYPING_PAUSE: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("JV_DEPHEALTH_GROUP", "journivo")
	cfg.DephealthCheckInterval, err = getEnvDuration("JV_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("JV_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("JV_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("JV_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	if f <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvDurationPositive — как getEnvDuration, но значение обязано быть > 0.
func getEnvDurationPositive(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// validateURL проверяет, что строка — абсолютный http(s) URL.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("некорректный URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("недопустимая схема %q, допустимые: http, https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("в URL %q отсутствует хост", raw)
	}
	return nil
}
