// Пакет cache — эфемерное хранилище с TTL: лимиты частоты, cooldown
// повторной отправки кода и временные данные регистрации.
// Реализации: Redis (go-redis) и in-process (для dev и тестов).
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/neptunium/internal/config"
)

// ErrMiss — ключ отсутствует или истёк.
var ErrMiss = errors.New("ключ не найден в кэше")

// Store — эфемерное key-value хранилище с TTL.
type Store interface {
	// Get возвращает значение; отсутствующий ключ — ErrMiss.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX записывает значение, только если ключа нет. Возвращает true при записи.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Incr атомарно увеличивает счётчик. TTL выставляется при создании ключа.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Delete(ctx context.Context, key string) error
	// CheckReady проверяет доступность хранилища ("ok" / "fail").
	CheckReady() (status string, message string)
	Close() error
}

// Ключи эфемерного хранилища.

// RegisterIPKey — счётчик регистраций с одного IP.
func RegisterIPKey(ip string) string { return "rate_limit:register:" + ip }

// CooldownKey — cooldown повторной отправки кода на email.
func CooldownKey(email string) string { return "rate_limit:" + email }

// TempRegisterKey — данные регистрации до подтверждения email.
func TempRegisterKey(email string) string { return "temp_register:" + email }

// APIKeyBudgetKey — часовой счётчик запросов API-ключа.
func APIKeyBudgetKey(keyID string) string { return "rate_limit:api_key:" + keyID }

// New создаёт хранилище согласно NP_CACHE_DRIVER.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.CacheDriver {
	case config.CacheDriverRedis:
		return NewRedisStore(ctx, cfg.RedisURL, cfg.RedisTimeout, logger)
	case config.CacheDriverMemory:
		logger.Warn("Используется in-process кэш: данные не разделяются между экземплярами")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("неизвестный драйвер кэша: %q", cfg.CacheDriver)
	}
}
