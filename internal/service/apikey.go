// apikey.go — выпуск, просмотр, отзыв и проверка API-ключей пользователей.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/neptunium/internal/cache"
	"github.com/bigkaa/neptunium/internal/domain/ident"
	"github.com/bigkaa/neptunium/internal/domain/model"
	"github.com/bigkaa/neptunium/internal/domain/validation"
	"github.com/bigkaa/neptunium/internal/repository"
)

// Ограничения API-ключей.
const (
	DefaultKeyRateLimit = 1000
	MinKeyRateLimit     = 1
	MaxKeyRateLimit     = 100000
	// keyBudgetWindow — окно часового бюджета запросов
	keyBudgetWindow = time.Hour
	// usageTouchTimeout — таймаут фонового обновления статистики ключа
	usageTouchTimeout = 2 * time.Second
)

var allowedPermissions = map[string]bool{
	model.PermissionRead:     true,
	model.PermissionWrite:    true,
	model.PermissionUpload:   true,
	model.PermissionDownload: true,
}

// APIKeyService управляет API-ключами.
type APIKeyService struct {
	keys    repository.APIKeyRepository
	store   cache.Store
	audit   *Auditor
	maxKeys int
	now     func() time.Time
	logger  *slog.Logger
}

// NewAPIKeyService создаёт сервис API-ключей. maxKeys — лимит активных ключей пользователя.
func NewAPIKeyService(keys repository.APIKeyRepository, store cache.Store, audit *Auditor, maxKeys int, logger *slog.Logger) *APIKeyService {
	return &APIKeyService{
		keys:    keys,
		store:   store,
		audit:   audit,
		maxKeys: maxKeys,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "apikey_service")),
	}
}

// CreateKeyInput — параметры нового ключа.
type CreateKeyInput struct {
	Name        string
	Description *string
	Permissions []string
	// RateLimit — запросов в час, 0 означает значение по умолчанию
	RateLimit int
	// ExpiresInDays — срок действия в днях, nil для бессрочного ключа
	ExpiresInDays *int
}

// CreatedKey — выпущенный ключ. Secret возвращается клиенту единственный раз.
type CreatedKey struct {
	Key    *model.APIKey
	Secret string
}

// Create выпускает новый ключ пользователя.
func (s *APIKeyService) Create(ctx context.Context, userID string, in CreateKeyInput, meta RequestMeta) (*CreatedKey, error) {
	name := strings.TrimSpace(in.Name)
	if r := validation.APIKeyName(name); !r.IsValid {
		return nil, validationError(r.Message)
	}

	perms, err := normalizePermissions(in.Permissions)
	if err != nil {
		return nil, err
	}

	rateLimit := in.RateLimit
	if rateLimit == 0 {
		rateLimit = DefaultKeyRateLimit
	}
	if rateLimit < MinKeyRateLimit || rateLimit > MaxKeyRateLimit {
		return nil, validationError(fmt.Sprintf("лимит запросов должен быть от %d до %d", MinKeyRateLimit, MaxKeyRateLimit))
	}

	var expiresAt *time.Time
	if in.ExpiresInDays != nil {
		if *in.ExpiresInDays < 1 || *in.ExpiresInDays > 3650 {
			return nil, validationError("срок действия ключа должен быть от 1 до 3650 дней")
		}
		t := s.now().Add(time.Duration(*in.ExpiresInDays) * 24 * time.Hour)
		expiresAt = &t
	}

	active, err := s.keys.CountActiveByUser(ctx, userID)
	if err != nil {
		return nil, dependencyError("подсчёт API-ключей", err)
	}
	if active >= s.maxKeys {
		return nil, fmt.Errorf("%w: не более %d активных ключей", ErrKeyLimitExceeded, s.maxKeys)
	}

	secret, err := ident.APIKeySecret()
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации ключа: %w", err)
	}

	key := &model.APIKey{
		UserID:      userID,
		KeyHash:     ident.HashSecret(secret),
		KeyPrefix:   ident.KeyPrefix(secret),
		Name:        name,
		Description: in.Description,
		Permissions: perms,
		RateLimit:   rateLimit,
		ExpiresAt:   expiresAt,
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, dependencyError("сохранение API-ключа", err)
	}

	s.logger.Info("API-ключ создан",
		slog.String("user_id", userID),
		slog.String("key_id", key.ID),
		slog.String("prefix", key.KeyPrefix),
	)
	s.audit.System(ctx, model.LogLevelInfo, "Создан API-ключ", &userID, meta,
		map[string]any{"keyId": key.ID, "name": name, "permissions": perms})

	return &CreatedKey{Key: key, Secret: secret}, nil
}

// normalizePermissions проверяет разрешения и убирает дубликаты.
func normalizePermissions(perms []string) ([]string, error) {
	if len(perms) == 0 {
		return []string{model.PermissionRead}, nil
	}
	seen := make(map[string]bool, len(perms))
	result := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if !allowedPermissions[p] {
			return nil, validationError(fmt.Sprintf("недопустимое разрешение %q: допустимые — read, write, upload, download", p))
		}
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result, nil
}

// List возвращает ключи пользователя без хэшей и секретов.
func (s *APIKeyService) List(ctx context.Context, userID string) ([]*model.APIKey, error) {
	keys, err := s.keys.ListByUser(ctx, userID)
	if err != nil {
		return nil, dependencyError("получение API-ключей", err)
	}
	for _, k := range keys {
		k.KeyHash = ""
	}
	return keys, nil
}

// Deactivate отзывает собственный ключ пользователя.
func (s *APIKeyService) Deactivate(ctx context.Context, userID, keyID string, meta RequestMeta) error {
	if strings.TrimSpace(keyID) == "" {
		return validationError("не указан id ключа")
	}
	if err := s.keys.Deactivate(ctx, userID, keyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: API-ключ не найден", ErrNotFound)
		}
		return dependencyError("деактивация API-ключа", err)
	}

	s.logger.Info("API-ключ деактивирован", slog.String("user_id", userID), slog.String("key_id", keyID))
	s.audit.System(ctx, model.LogLevelInfo, "Деактивирован API-ключ", &userID, meta, map[string]any{"keyId": keyID})
	return nil
}

// Authenticate проверяет предъявленный ключ и списывает запрос из часового бюджета.
func (s *APIKeyService) Authenticate(ctx context.Context, secret string) (*model.APIKey, error) {
	if !strings.HasPrefix(secret, ident.APIKeyPrefix) {
		return nil, ErrInvalidAPIKey
	}

	key, err := s.keys.GetByHash(ctx, ident.HashSecret(secret))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, dependencyError("поиск API-ключа", err)
	}
	if !key.IsActive || key.IsExpired(s.now()) {
		return nil, ErrInvalidAPIKey
	}

	used, err := s.store.Incr(ctx, cache.APIKeyBudgetKey(key.ID), keyBudgetWindow)
	if err != nil {
		return nil, dependencyError("бюджет API-ключа", err)
	}
	if used > int64(key.RateLimit) {
		return nil, fmt.Errorf("%w: исчерпан часовой лимит API-ключа (%d)", ErrRateLimited, key.RateLimit)
	}

	go s.touchUsage(context.WithoutCancel(ctx), key.ID)

	key.KeyHash = ""
	return key, nil
}

// touchUsage обновляет usage_count и last_used_at, не блокируя запрос.
func (s *APIKeyService) touchUsage(ctx context.Context, keyID string) {
	ctx, cancel := context.WithTimeout(ctx, usageTouchTimeout)
	defer cancel()

	if err := s.keys.TouchUsage(ctx, keyID, s.now()); err != nil {
		s.logger.Warn("Не удалось обновить статистику API-ключа",
			slog.String("key_id", keyID),
			slog.String("error", err.Error()),
		)
	}
}
