package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
)

// newTestDephealth создаёт сервис с недоступным PostgreSQL и заданным хранилищем.
func newTestDephealth(t *testing.T, serviceID, storageURL string) *DephealthService {
	t.Helper()

	// sql.Open не устанавливает соединение
	db, err := sql.Open("pgx", "postgres://np@127.0.0.1:1/neptunium?connect_timeout=1")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ds, err := NewDephealthServiceWithRegisterer(
		serviceID,
		"neptunium",
		DephealthTargets{
			DB:                db,
			PostgresURL:       "postgres://np@127.0.0.1:1/neptunium",
			StorageURL:        storageURL,
			StorageHealthPath: "/minio/health/live",
		},
		1*time.Second,
		logger,
		prometheus.NewRegistry(),
	)
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}
	return ds
}

func TestDephealthService_StorageHealthy(t *testing.T) {
	var gotPath string
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer storage.Close()

	ds := newTestDephealth(t, "np-test-01", storage.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска: %v", err)
	}
	defer ds.Stop()

	time.Sleep(3 * time.Second)

	healthy, known := ds.DependencyHealthy(DepStorage)
	if !known {
		t.Fatalf("нет записи %s в Health(): %v", DepStorage, ds.Health())
	}
	if !healthy {
		t.Errorf("%s health = false, ожидалось true", DepStorage)
	}
	if gotPath != "/minio/health/live" {
		t.Errorf("путь проверки = %q, ожидался /minio/health/live", gotPath)
	}

	if healthy, _ := ds.DependencyHealthy(DepPostgres); healthy {
		t.Error("postgresql health = true для недоступного адреса")
	}
}

func TestDephealthService_StorageUnhealthy(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer storage.Close()

	ds := newTestDephealth(t, "np-test-02", storage.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска: %v", err)
	}
	defer ds.Stop()

	time.Sleep(3 * time.Second)

	healthy, known := ds.DependencyHealthy(DepStorage)
	if known && healthy {
		t.Errorf("%s health = true, ожидалось false (сервер 503)", DepStorage)
	}
}
