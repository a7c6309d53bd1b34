package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/neptunium/internal/domain/model"
)

// SessionRepository — журнал выданных сессий (user_sessions).
type SessionRepository interface {
	Create(ctx context.Context, s *model.Session) error
	// DeleteExpired удаляет истёкшие сессии и возвращает их количество.
	DeleteExpired(ctx context.Context) (int64, error)
}

type sessionRepo struct {
	db DBTX
}

// NewSessionRepository создаёт репозиторий сессий.
func NewSessionRepository(db DBTX) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, s *model.Session) error {
	query := `
		INSERT INTO user_sessions (user_id, token_hash, ip_address, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		s.UserID, s.TokenHash, s.IPAddress, s.UserAgent, s.ExpiresAt,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: сессия уже зарегистрирована", ErrConflict)
		}
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления истёкших сессий: %w", err)
	}
	return tag.RowsAffected(), nil
}
