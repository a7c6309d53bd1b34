// audit.go — best-effort запись системного журнала и журнала доступа к файлам.
// Ошибки записи логируются и никогда не прерывают основной запрос.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/bigkaa/neptunium/internal/domain/model"
	"github.com/bigkaa/neptunium/internal/repository"
)

// auditTimeout — таймаут одной записи в журнал.
const auditTimeout = 3 * time.Second

// RequestMeta — сведения о клиенте, передаваемые из HTTP-слоя.
type RequestMeta struct {
	IP             string
	UserAgent      string
	RequestID      string
	AcceptLanguage string
}

// Auditor пишет журналы в отдельном контексте, не зависящем от отмены запроса.
type Auditor struct {
	repo   repository.AuditRepository
	logger *slog.Logger
}

// NewAuditor создаёт Auditor.
func NewAuditor(repo repository.AuditRepository, logger *slog.Logger) *Auditor {
	return &Auditor{repo: repo, logger: logger.With(slog.String("component", "audit"))}
}

// System записывает событие в system_logs.
func (a *Auditor) System(ctx context.Context, level, message string, userID *string, meta RequestMeta, details map[string]any) {
	if a == nil || a.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	err := a.repo.CreateSystemLog(ctx, &model.SystemLog{
		Level:     level,
		Message:   message,
		Context:   details,
		UserID:    userID,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
	})
	if err != nil {
		a.logger.Warn("Не удалось записать системный журнал",
			slog.String("message", message),
			slog.String("error", err.Error()),
		)
	}
}

// Access записывает обращение к файлу в file_access_logs.
func (a *Auditor) Access(ctx context.Context, f *model.ProjectionFile, accessType string, requester Requester, meta RequestMeta, accessErr error) {
	if a == nil || a.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	entry := &model.FileAccessLog{
		FileID:           f.FileID,
		ProjectionFileID: f.ID,
		AccessType:       accessType,
		UserID:           requester.userIDPtr(),
		APIKeyID:         requester.apiKeyIDPtr(),
		IPAddress:        meta.IP,
		UserAgent:        meta.UserAgent,
		Success:          accessErr == nil,
	}
	if accessErr != nil {
		msg := accessErr.Error()
		entry.ErrorMessage = &msg
	}

	if err := a.repo.CreateAccessLog(ctx, entry); err != nil {
		a.logger.Warn("Не удалось записать журнал доступа",
			slog.String("file_id", f.FileID),
			slog.String("access_type", accessType),
			slog.String("error", err.Error()),
		)
	}
}
