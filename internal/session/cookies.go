package session

import (
	"net/http"
	"time"
)

// Имена cookie сессии.
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
	// RoleCookieName — подсказка роли для клиентского UI; решения о доступе по ней не принимаются.
	RoleCookieName = "user_role"
)

// CookieManager — запись и очистка cookie сессии.
type CookieManager struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCookieManager создаёт менеджер cookie.
func NewCookieManager(secure bool, accessTTL, refreshTTL time.Duration) *CookieManager {
	return &CookieManager{
		secure:     secure,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Tokens извлекает токены из cookie запроса.
func (cm *CookieManager) Tokens(r *http.Request) Tokens {
	var t Tokens
	if c, err := r.Cookie(AccessCookieName); err == nil {
		t.Access = c.Value
	}
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		t.Refresh = c.Value
	}
	return t
}

// SetAccess сохраняет access token в HttpOnly cookie.
func (cm *CookieManager) SetAccess(w http.ResponseWriter, token string) {
	cm.set(w, AccessCookieName, token, cm.accessTTL, true)
}

// SetRefresh сохраняет refresh token в HttpOnly cookie.
func (cm *CookieManager) SetRefresh(w http.ResponseWriter, token string) {
	cm.set(w, RefreshCookieName, token, cm.refreshTTL, true)
}

// SetRole сохраняет подсказку роли. Вызывается только для сессий,
// подтверждённых backend (не из кэша).
func (cm *CookieManager) SetRole(w http.ResponseWriter, role string) {
	cm.set(w, RoleCookieName, role, cm.accessTTL, false)
}

// Persist записывает изменения сессии после проверки: новый access token
// после refresh и подсказку роли для подтверждённой сессии.
func (cm *CookieManager) Persist(w http.ResponseWriter, s *Session) {
	if !s.Authenticated() {
		return
	}
	if s.Refreshed {
		cm.SetAccess(w, s.AccessToken)
	}
	if !s.Stale && s.Role != "" {
		cm.SetRole(w, s.Role)
	}
}

// Clear удаляет все cookie сессии.
func (cm *CookieManager) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName, RoleCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name != RoleCookieName,
			Secure:   cm.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (cm *CookieManager) set(w http.ResponseWriter, name, value string, ttl time.Duration, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: httpOnly,
		Secure:   cm.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
