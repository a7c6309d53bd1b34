// handler.go — основной обработчик API Neptunium.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/neptunium/internal/api/errors"
	"github.com/bigkaa/neptunium/internal/domain/model"
	"github.com/bigkaa/neptunium/internal/service"
)

// maxJSONBody — предельный размер JSON-тела запроса.
const maxJSONBody = 1 << 20

// AuthUseCase — регистрация, верификация email и вход.
type AuthUseCase interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.RegisterResult, error)
	VerifyEmail(ctx context.Context, in service.VerifyInput) (*service.AuthResult, error)
	Login(ctx context.Context, in service.LoginInput) (*service.AuthResult, error)
}

// APIKeyUseCase — управление API-ключами пользователя.
type APIKeyUseCase interface {
	Create(ctx context.Context, userID string, in service.CreateKeyInput, meta service.RequestMeta) (*service.CreatedKey, error)
	List(ctx context.Context, userID string) ([]*model.APIKey, error)
	Deactivate(ctx context.Context, userID, keyID string, meta service.RequestMeta) error
}

// FileUseCase — загрузка, выдача и история файлов проекций.
type FileUseCase interface {
	CreateUpload(ctx context.Context, in service.UploadInput, requester service.Requester, meta service.RequestMeta) (*service.UploadResult, error)
	UploadDirect(ctx context.Context, in service.DirectUploadInput, requester service.Requester, meta service.RequestMeta) (*model.ProjectionFile, error)
	Projection(ctx context.Context, fileID, action string, requester service.Requester, meta service.RequestMeta) (*service.ProjectionResult, error)
	History(ctx context.Context, userID string, q service.HistoryQuery) (*service.HistoryResult, error)
}

// DashboardUseCase — агрегированная статистика.
type DashboardUseCase interface {
	Stats(ctx context.Context, userID string, meta service.RequestMeta) (*service.DashboardStats, error)
}

// APIHandler — основной обработчик API Neptunium.
type APIHandler struct {
	auth      AuthUseCase
	keys      APIKeyUseCase
	files     FileUseCase
	dashboard DashboardUseCase
	// maxUploadSize — предельный размер тела multipart-загрузки
	maxUploadSize int64
	logger        *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	auth AuthUseCase,
	keys APIKeyUseCase,
	files FileUseCase,
	dashboard DashboardUseCase,
	maxUploadSize int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		auth:          auth,
		keys:          keys,
		files:         files,
		dashboard:     dashboard,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// --- Вспомогательные функции ---

// envelope — тело успешного ответа.
type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeSuccess записывает успешный ответ в стандартном конверте.
func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// errorMapping — соответствие ошибки сервиса HTTP-ответу.
type errorMapping struct {
	kind   error
	status int
	code   string
}

// serviceErrors — порядок важен: первая совпавшая ошибка определяет ответ.
var serviceErrors = []errorMapping{
	{service.ErrValidation, http.StatusBadRequest, apierrors.CodeValidationError},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, apierrors.CodeInvalidCredentials},
	{service.ErrInvalidAPIKey, http.StatusUnauthorized, apierrors.CodeInvalidAPIKey},
	{service.ErrUnauthorized, http.StatusUnauthorized, apierrors.CodeUnauthorized},
	{service.ErrEmailNotVerified, http.StatusForbidden, apierrors.CodeEmailNotVerified},
	{service.ErrForbidden, http.StatusForbidden, apierrors.CodeForbidden},
	{service.ErrNotFound, http.StatusNotFound, apierrors.CodeNotFound},
	{service.ErrConflict, http.StatusConflict, apierrors.CodeConflict},
	{service.ErrGone, http.StatusGone, apierrors.CodeGone},
	{service.ErrCodeInvalid, http.StatusBadRequest, apierrors.CodeCodeInvalid},
	{service.ErrCodeExpired, http.StatusBadRequest, apierrors.CodeCodeExpired},
	{service.ErrCodeMismatch, http.StatusBadRequest, apierrors.CodeCodeMismatch},
	{service.ErrCodeAttemptsExceeded, http.StatusBadRequest, apierrors.CodeCodeAttemptsExceeded},
	{service.ErrRegistrationExpired, http.StatusBadRequest, apierrors.CodeRegistrationExpired},
	{service.ErrKeyLimitExceeded, http.StatusBadRequest, apierrors.CodeKeyLimitExceeded},
	{service.ErrRateLimited, http.StatusTooManyRequests, apierrors.CodeRateLimited},
	{service.ErrIDSpaceExhausted, http.StatusServiceUnavailable, apierrors.CodeIDSpaceExhausted},
}

// genericMessage — ответ на ошибки инфраструктуры без деталей.
const genericMessage = "Внутренняя ошибка сервера"

// writeServiceError отображает ошибку сервисного слоя в HTTP-ответ.
// Ошибки инфраструктуры логируются целиком, клиент получает общее сообщение.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.kind) {
			apierrors.WriteError(w, m.status, m.code, service.PublicMessage(err, m.kind))
			return
		}
	}

	if errors.Is(err, service.ErrDependencyTimeout) {
		h.logger.ErrorContext(r.Context(), "Таймаут внешней зависимости",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.DependencyTimeout(w, service.ErrDependencyTimeout.Error())
		return
	}

	h.logger.ErrorContext(r.Context(), "Ошибка обработки запроса",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	apierrors.InternalError(w, genericMessage)
}

// decodeJSON читает JSON-тело запроса в dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("тело запроса больше %d байт", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("тело запроса пустое")
		default:
			return errors.New("некорректный JSON в теле запроса")
		}
	}
	return nil
}
