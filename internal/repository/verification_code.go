package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/neptunium/internal/domain/model"
)

// VerificationCodeRepository — доступ к таблице verification_codes.
type VerificationCodeRepository interface {
	Create(ctx context.Context, c *model.VerificationCode) error
	// GetLatest возвращает самый свежий код для email и типа (использованный тоже).
	GetLatest(ctx context.Context, email, codeType string) (*model.VerificationCode, error)
	// IncrementAttempts увеличивает счётчик попыток и возвращает новое значение.
	IncrementAttempts(ctx context.Context, id string) (int, error)
	// MarkUsed помечает код использованным. Повторная пометка — ErrNotFound.
	MarkUsed(ctx context.Context, id string) error
	// DeleteExpired удаляет просроченные коды и возвращает их количество.
	DeleteExpired(ctx context.Context) (int64, error)
}

type verificationCodeRepo struct {
	db DBTX
}

// NewVerificationCodeRepository создаёт репозиторий кодов подтверждения.
func NewVerificationCodeRepository(db DBTX) VerificationCodeRepository {
	return &verificationCodeRepo{db: db}
}

func (r *verificationCodeRepo) Create(ctx context.Context, c *model.VerificationCode) error {
	query := `
		INSERT INTO verification_codes (email, code, type, max_attempts, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, attempts, created_at`

	err := r.db.QueryRow(ctx, query, c.Email, c.Code, c.Type, c.MaxAttempts, c.ExpiresAt).
		Scan(&c.ID, &c.Attempts, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания кода подтверждения: %w", err)
	}
	return nil
}

func (r *verificationCodeRepo) GetLatest(ctx context.Context, email, codeType string) (*model.VerificationCode, error) {
	query := `
		SELECT id, email, code, type, attempts, max_attempts, expires_at, used_at, created_at
		FROM verification_codes
		WHERE email = $1 AND type = $2
		ORDER BY created_at DESC
		LIMIT 1`

	c := &model.VerificationCode{}
	err := r.db.QueryRow(ctx, query, email, codeType).Scan(
		&c.ID, &c.Email, &c.Code, &c.Type, &c.Attempts, &c.MaxAttempts,
		&c.ExpiresAt, &c.UsedAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения кода подтверждения: %w", err)
	}
	return c, nil
}

func (r *verificationCodeRepo) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx,
		`UPDATE verification_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`, id).
		Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка увеличения счётчика попыток: %w", err)
	}
	return attempts, nil
}

func (r *verificationCodeRepo) MarkUsed(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE verification_codes SET used_at = now() WHERE id = $1 AND used_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("ошибка пометки кода: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *verificationCodeRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM verification_codes WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления просроченных кодов: %w", err)
	}
	return tag.RowsAffected(), nil
}
