package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/neptunium/internal/domain/model"
)

// APIKeyRepository — доступ к таблице api_keys.
type APIKeyRepository interface {
	Create(ctx context.Context, k *model.APIKey) error
	// ListByUser возвращает ключи пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string) ([]*model.APIKey, error)
	CountActiveByUser(ctx context.Context, userID string) (int, error)
	// GetByHash ищет активный ключ по SHA-256 секрета.
	GetByHash(ctx context.Context, keyHash string) (*model.APIKey, error)
	// Deactivate выключает ключ владельца; чужой или отсутствующий ключ — ErrNotFound.
	Deactivate(ctx context.Context, userID, id string) error
	// TouchUsage увеличивает usage_count и обновляет last_used_at.
	TouchUsage(ctx context.Context, id string, at time.Time) error
	// CountActive считает все активные ключи (для dashboard).
	CountActive(ctx context.Context) (int64, error)
}

const apiKeyColumns = `id, user_id, key_hash, key_prefix, name, description, permissions,
	is_active, usage_count, rate_limit, last_used_at, expires_at, created_at`

type apiKeyRepo struct {
	db DBTX
}

// NewAPIKeyRepository создаёт репозиторий API-ключей.
func NewAPIKeyRepository(db DBTX) APIKeyRepository {
	return &apiKeyRepo{db: db}
}

func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	k := &model.APIKey{}
	err := row.Scan(
		&k.ID, &k.UserID, &k.KeyHash, &k.KeyPrefix, &k.Name, &k.Description, &k.Permissions,
		&k.IsActive, &k.UsageCount, &k.RateLimit, &k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (r *apiKeyRepo) Create(ctx context.Context, k *model.APIKey) error {
	query := `
		INSERT INTO api_keys (user_id, key_hash, key_prefix, name, description, permissions,
			rate_limit, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, is_active, usage_count, created_at`

	err := r.db.QueryRow(ctx, query,
		k.UserID, k.KeyHash, k.KeyPrefix, k.Name, k.Description, k.Permissions,
		k.RateLimit, k.ExpiresAt,
	).Scan(&k.ID, &k.IsActive, &k.UsageCount, &k.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ключ с таким хэшем уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания API-ключа: %w", err)
	}
	return nil
}

func (r *apiKeyRepo) ListByUser(ctx context.Context, userID string) ([]*model.APIKey, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения API-ключей: %w", err)
	}
	defer rows.Close()

	var result []*model.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования API-ключа: %w", err)
		}
		result = append(result, k)
	}
	return result, rows.Err()
}

func (r *apiKeyRepo) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM api_keys WHERE user_id = $1 AND is_active`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта API-ключей: %w", err)
	}
	return count, nil
}

func (r *apiKeyRepo) GetByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	k, err := scanAPIKey(r.db.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1 AND is_active`, keyHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска API-ключа: %w", err)
	}
	return k, nil
}

func (r *apiKeyRepo) Deactivate(ctx context.Context, userID, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE api_keys SET is_active = FALSE WHERE id = $1 AND user_id = $2 AND is_active`, id, userID)
	if err != nil {
		return fmt.Errorf("ошибка деактивации API-ключа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *apiKeyRepo) TouchUsage(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("ошибка обновления статистики API-ключа: %w", err)
	}
	return nil
}

func (r *apiKeyRepo) CountActive(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys WHERE is_active`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта активных API-ключей: %w", err)
	}
	return count, nil
}
