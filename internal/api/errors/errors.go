// Пакет errors — конструкторы ответов с ошибками Journivo Gateway.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Ошибки валидации дополнительно несут поле "fields" с ошибками по полям.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodePaymentRequired    = "PAYMENT_REQUIRED"
	CodeGateError          = "GATE_ERROR"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error    errorDetail `json:"error"`
	Redirect string      `json:"redirect,omitempty"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	write(w, statusCode, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func write(w http.ResponseWriter, statusCode int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// FieldErrors — 400 с ошибками по полям формы.
func FieldErrors(w http.ResponseWriter, fields map[string]string) {
	write(w, http.StatusBadRequest, errorBody{Error: errorDetail{
		Code:    CodeValidationError,
		Message: "Проверьте поля формы",
		Fields:  fields,
	}})
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// UnauthorizedRedirect — 401 с указанием, куда перенаправить пользователя.
func UnauthorizedRedirect(w http.ResponseWriter, message, redirect string) {
	write(w, http.StatusUnauthorized, errorBody{
		Error:    errorDetail{Code: CodeUnauthorized, Message: message},
		Redirect: redirect,
	})
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 конфликт состояния.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// GateError — 402 ошибка платёжного шлюза; состояние публикации не изменено.
func GateError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusPaymentRequired, CodeGateError, message)
}

// TooManyRequests — 429 превышен лимит запросов.
func TooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeTooManyRequests, message)
}

// BackendUnavailable — 502 backend недоступен или ответил неожиданно.
func BackendUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeBackendUnavailable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
