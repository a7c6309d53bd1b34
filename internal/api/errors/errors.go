// Пакет errors — ответы с ошибками в формате Neptunium.
// Единый формат: {"success": false, "message": "...", "code": "...", "timestamp": "..."}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
	"time"
)

// Машиночитаемые коды ошибок.
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeInvalidAPIKey        = "INVALID_API_KEY"
	CodeForbidden            = "FORBIDDEN"
	CodeEmailNotVerified     = "EMAIL_NOT_VERIFIED"
	CodeNotFound             = "NOT_FOUND"
	CodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	CodeConflict             = "CONFLICT"
	CodeGone                 = "GONE"
	CodeCodeInvalid          = "CODE_INVALID"
	CodeCodeExpired          = "CODE_EXPIRED"
	CodeCodeMismatch         = "CODE_MISMATCH"
	CodeCodeAttemptsExceeded = "CODE_ATTEMPTS_EXCEEDED"
	CodeRegistrationExpired  = "REGISTRATION_EXPIRED"
	CodeKeyLimitExceeded     = "KEY_LIMIT_EXCEEDED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInternalError        = "INTERNAL_ERROR"
	CodeDependencyTimeout    = "DEPENDENCY_TIMEOUT"
	CodeIDSpaceExhausted     = "ID_SPACE_EXHAUSTED"
)

// errorBody — тело ответа ошибки.
type errorBody struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// code — машиночитаемый код ошибки, message показывается пользователю.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Success:   false,
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// InvalidAPIKey — 401 недействительный API-ключ.
func InvalidAPIKey(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeInvalidAPIKey, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// MethodNotAllowed — 405 метод не поддерживается.
func MethodNotAllowed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, message)
}

// Conflict — 409 ресурс уже существует.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// Gone — 410 срок действия файла истёк.
func Gone(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGone, CodeGone, message)
}

// RateLimited — 429 превышен лимит запросов.
func RateLimited(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// DependencyTimeout — 503 внешняя зависимость не ответила вовремя.
func DependencyTimeout(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeDependencyTimeout, message)
}
