package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bigkaa/neptunium/internal/domain/model"
)

// AuditRepository — append-only журналы system_logs и file_access_logs.
type AuditRepository interface {
	CreateSystemLog(ctx context.Context, l *model.SystemLog) error
	CreateAccessLog(ctx context.Context, l *model.FileAccessLog) error
	// CountAccessSince считает успешные обращения типа accessType начиная с since.
	CountAccessSince(ctx context.Context, accessType string, since time.Time) (int64, error)
}

type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журналов.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) CreateSystemLog(ctx context.Context, l *model.SystemLog) error {
	query := `
		INSERT INTO system_logs (level, message, context, user_id, ip_address, user_agent, request_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		l.Level, l.Message, jsonMap(l.Context), l.UserID, l.IPAddress, l.UserAgent, l.RequestID,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи системного журнала: %w", err)
	}
	return nil
}

func (r *auditRepo) CreateAccessLog(ctx context.Context, l *model.FileAccessLog) error {
	query := `
		INSERT INTO file_access_logs (file_id, projection_file_id, access_type, user_id, api_key_id,
			ip_address, user_agent, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		l.FileID, l.ProjectionFileID, l.AccessType, l.UserID, l.APIKeyID,
		l.IPAddress, l.UserAgent, l.Success, l.ErrorMessage,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи журнала доступа: %w", err)
	}
	return nil
}

func (r *auditRepo) CountAccessSince(ctx context.Context, accessType string, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM file_access_logs WHERE access_type = $1 AND success AND created_at >= $2`,
		accessType, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта обращений: %w", err)
	}
	return count, nil
}
