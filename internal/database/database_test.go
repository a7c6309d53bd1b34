package database

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/neptunium/internal/config"
)

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers
// и возвращает конфигурацию для подключения к нему.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("neptunium_test"),
		postgres.WithUsername("neptunium"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("NP_DB_HOST", host)
	t.Setenv("NP_DB_PORT", port.Port())
	t.Setenv("NP_DB_NAME", "neptunium_test")
	t.Setenv("NP_DB_USER", "neptunium")
	t.Setenv("NP_DB_PASSWORD", "test-password")
	t.Setenv("NP_CACHE_DRIVER", "memory")
	t.Setenv("NP_S3_ENDPOINT", "localhost:9000")
	t.Setenv("NP_S3_ACCESS_KEY", "test")
	t.Setenv("NP_S3_SECRET_KEY", "test")
	t.Setenv("NP_RESEND_API_KEY", "re_test")
	t.Setenv("NP_JWT_SECRET", strings.Repeat("k", 32))

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// TestConnect проверяет подключение и серверный statement_timeout.
func TestConnect(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()

	pool, err := Connect(ctx, cfg, testLogger())
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	var timeout string
	if err := pool.QueryRow(ctx, "SHOW statement_timeout").Scan(&timeout); err != nil {
		t.Fatalf("SHOW statement_timeout: %v", err)
	}
	if timeout != "5s" {
		t.Errorf("statement_timeout = %q, хотели 5s", timeout)
	}

	status, _ := NewReadinessChecker(pool).CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() = %q, хотели ok", status)
	}
}

// TestMigrate проверяет применение миграций и идемпотентность повторного запуска.
func TestMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	logger := testLogger()

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	tables := []string{
		"users",
		"projection_files",
		"api_keys",
		"verification_codes",
		"user_sessions",
		"system_logs",
		"file_access_logs",
		"system_stats",
	}
	for _, table := range tables {
		var exists bool
		err := pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", table,
		).Scan(&exists)
		if err != nil {
			t.Fatalf("Проверка таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Таблица %s не создана", table)
		}
	}

	// Анонимный приватный файл запрещён ограничением схемы
	_, err = pool.Exec(ctx, `
		INSERT INTO projection_files (file_id, filename, original_filename, file_size, file_type, storage_path, is_public)
		VALUES ('123456', 'a.nbt', 'a.nbt', 10, '.nbt', 'projections/12/123456.nbt', FALSE)`)
	if err == nil {
		t.Error("INSERT анонимного приватного файла должен нарушать CHECK")
	}
}

func TestCheckSchemaState(t *testing.T) {
	tests := []struct {
		name    string
		version uint
		dirty   bool
		err     error
		wantErr bool
	}{
		{name: "пустая база", err: migrate.ErrNilVersion},
		{name: "чистая схема", version: 1},
		{name: "dirty после прерванной миграции", version: 1, dirty: true, wantErr: true},
		{name: "ошибка чтения версии", err: context.DeadlineExceeded, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSchemaState(tt.version, tt.dirty, tt.err)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkSchemaState() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
