// Пакет rbac — роли пользователей Journivo и их сравнение.
// Роль приходит из /me/ backend; кэшированная копия на клиенте не авторитетна.
// Любое расхождение трактуется как отказ (fail closed).
package rbac

import "strings"

// Роли платформы.
const (
	RoleEditor      = "editor"
	RolePublisher   = "publisher"
	RoleReader      = "reader"
	RoleAdmin       = "admin"
	RoleParticipant = "participant"
)

// knownRoles — множество допустимых ролей.
var knownRoles = map[string]bool{
	RoleEditor:      true,
	RolePublisher:   true,
	RoleReader:      true,
	RoleAdmin:       true,
	RoleParticipant: true,
}

// Normalize приводит роль к каноническому виду: без пробелов по краям, в нижнем регистре.
func Normalize(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// IsValidRole проверяет, является ли строка допустимой ролью (после нормализации).
func IsValidRole(role string) bool {
	return knownRoles[Normalize(role)]
}

// Matches сравнивает фактическую роль с ожидаемой без учёта регистра и пробелов.
// Пустая или неизвестная роль не совпадает ни с чем.
func Matches(actual, expected string) bool {
	a := Normalize(actual)
	if a == "" || !knownRoles[a] {
		return false
	}
	return a == Normalize(expected)
}

// MatchesAny — Matches хотя бы для одной из ожидаемых ролей.
func MatchesAny(actual string, expected ...string) bool {
	for _, e := range expected {
		if Matches(actual, e) {
			return true
		}
	}
	return false
}

// CanReview — редакторские переходы доступны только роли editor.
func CanReview(role string) bool {
	return Matches(role, RoleEditor)
}
