package model

// Profile — профиль пользователя из GET /me/.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// TokenPair — пара токенов из POST /login/ или POST /token/refresh/.
// Backend отдаёт access либо access_token в зависимости от версии.
type TokenPair struct {
	Access       string `json:"access"`
	AccessToken  string `json:"access_token"`
	Refresh      string `json:"refresh"`
	RefreshToken string `json:"refresh_token"`
}

// AccessValue возвращает access token из любого из двух полей.
func (t TokenPair) AccessValue() string {
	if t.Access != "" {
		return t.Access
	}
	return t.AccessToken
}

// RefreshValue возвращает refresh token из любого из двух полей.
func (t TokenPair) RefreshValue() string {
	if t.Refresh != "" {
		return t.Refresh
	}
	return t.RefreshToken
}
