package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bigkaa/neptunium/internal/service"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"валидация", fmt.Errorf("%w: пароль слишком короткий", service.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR", "пароль слишком короткий"},
		{"неверные учётные данные", service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", service.ErrInvalidCredentials.Error()},
		{"невалидный ключ", service.ErrInvalidAPIKey, http.StatusUnauthorized, "INVALID_API_KEY", ""},
		{"не аутентифицирован", service.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", ""},
		{"email не подтверждён", service.ErrEmailNotVerified, http.StatusForbidden, "EMAIL_NOT_VERIFIED", ""},
		{"доступ запрещён", service.ErrForbidden, http.StatusForbidden, "FORBIDDEN", ""},
		{"не найдено", fmt.Errorf("%w: API-ключ не найден", service.ErrNotFound), http.StatusNotFound, "NOT_FOUND", service.ErrNotFound.Error()},
		{"конфликт", service.ErrConflict, http.StatusConflict, "CONFLICT", ""},
		{"файл истёк", service.ErrGone, http.StatusGone, "GONE", ""},
		{"код недействителен", service.ErrCodeInvalid, http.StatusBadRequest, "CODE_INVALID", ""},
		{"код истёк", service.ErrCodeExpired, http.StatusBadRequest, "CODE_EXPIRED", ""},
		{"код не совпал", service.ErrCodeMismatch, http.StatusBadRequest, "CODE_MISMATCH", ""},
		{"попытки исчерпаны", service.ErrCodeAttemptsExceeded, http.StatusBadRequest, "CODE_ATTEMPTS_EXCEEDED", ""},
		{"регистрация истекла", service.ErrRegistrationExpired, http.StatusBadRequest, "REGISTRATION_EXPIRED", ""},
		{"лимит ключей", service.ErrKeyLimitExceeded, http.StatusBadRequest, "KEY_LIMIT_EXCEEDED", ""},
		{"лимит частоты", service.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", ""},
		{"пространство id", service.ErrIDSpaceExhausted, http.StatusServiceUnavailable, "ID_SPACE_EXHAUSTED", ""},
		{"таймаут зависимости", fmt.Errorf("%w: postgres: %w", service.ErrDependencyTimeout, context.DeadlineExceeded), http.StatusServiceUnavailable, "DEPENDENCY_TIMEOUT", service.ErrDependencyTimeout.Error()},
		{"отказ зависимости", fmt.Errorf("%w: postgres: connection refused 10.0.0.5", service.ErrDependency), http.StatusInternalServerError, "INTERNAL_ERROR", genericMessage},
		{"неизвестная ошибка", fmt.Errorf("что-то сломалось"), http.StatusInternalServerError, "INTERNAL_ERROR", genericMessage},
	}

	h := testHandler(nil, nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидался %d", rec.Code, tt.wantStatus)
			}
			env := decodeEnvelope(t, rec)
			if env.Success {
				t.Error("success должен быть false")
			}
			if env.Code != tt.wantCode {
				t.Errorf("code = %q, ожидался %q", env.Code, tt.wantCode)
			}
			if tt.wantMsg != "" && env.Message != tt.wantMsg {
				t.Errorf("message = %q, ожидалось %q", env.Message, tt.wantMsg)
			}
			if strings.Contains(env.Message, "10.0.0.5") || strings.Contains(env.Message, "postgres") {
				t.Errorf("детали инфраструктуры в ответе: %q", env.Message)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"валидный JSON", `{"email":"a@b.c"}`, ""},
		{"пустое тело", ``, "пустое"},
		{"мусор", `{email`, "некорректный JSON"},
		{"слишком большое тело", `{"email":"` + strings.Repeat("a", maxJSONBody) + `"}`, "больше"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst loginRequest
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ошибка: %v", err)
				}
				if dst.Email != "a@b.c" {
					t.Errorf("email = %q", dst.Email)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ошибка = %v, ожидалась содержащая %q", err, tt.wantErr)
			}
		})
	}
}
