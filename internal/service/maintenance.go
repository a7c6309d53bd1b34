package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"github.com/bigkaa/neptunium/internal/domain/model"
	"github.com/bigkaa/neptunium/internal/repository"
)

// jobTimeout — предельное время одного прогона фоновой задачи.
const jobTimeout = 2 * time.Minute

var maintenanceRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "np_maintenance_runs_total",
	Help: "Количество прогонов фоновых задач.",
}, []string{"job", "result"})

// StatsSnapshotter строит и сохраняет дневной срез статистики.
type StatsSnapshotter interface {
	Snapshot(ctx context.Context) (*model.DailyStats, error)
}

// Maintenance выполняет периодические задачи: очистку просроченных
// кодов и сессий и дневной срез статистики.
type Maintenance struct {
	codes    repository.VerificationCodeRepository
	sessions repository.SessionRepository
	stats    StatsSnapshotter
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewMaintenance создаёт планировщик фоновых задач.
func NewMaintenance(
	codes repository.VerificationCodeRepository,
	sessions repository.SessionRepository,
	stats StatsSnapshotter,
	logger *slog.Logger,
) *Maintenance {
	return &Maintenance{
		codes:    codes,
		sessions: sessions,
		stats:    stats,
		cron:     cron.New(),
		logger:   logger.With(slog.String("component", "maintenance")),
	}
}

// Start регистрирует задачи по расписаниям cron и запускает планировщик.
func (m *Maintenance) Start(cleanupSchedule, statsSchedule string) error {
	if _, err := m.cron.AddFunc(cleanupSchedule, m.runJob("cleanup", m.CleanupVerificationCodes)); err != nil {
		return fmt.Errorf("расписание очистки %q: %w", cleanupSchedule, err)
	}
	if _, err := m.cron.AddFunc(statsSchedule, m.runJob("stats_snapshot", m.SnapshotDailyStats)); err != nil {
		return fmt.Errorf("расписание статистики %q: %w", statsSchedule, err)
	}
	m.cron.Start()
	m.logger.Info("Фоновые задачи запущены",
		slog.String("cleanup_schedule", cleanupSchedule),
		slog.String("stats_schedule", statsSchedule),
	)
	return nil
}

// Stop останавливает планировщик и ждёт завершения текущих задач.
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info("Фоновые задачи остановлены")
}

func (m *Maintenance) runJob(name string, job func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if err := job(ctx); err != nil {
			maintenanceRuns.WithLabelValues(name, "error").Inc()
			m.logger.Error("Ошибка фоновой задачи",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
			return
		}
		maintenanceRuns.WithLabelValues(name, "success").Inc()
	}
}

// CleanupVerificationCodes удаляет просроченные коды подтверждения и сессии.
func (m *Maintenance) CleanupVerificationCodes(ctx context.Context) error {
	codes, err := m.codes.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("удаление просроченных кодов: %w", err)
	}
	sessions, err := m.sessions.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("удаление просроченных сессий: %w", err)
	}
	if codes > 0 || sessions > 0 {
		m.logger.Info("Очистка выполнена",
			slog.Int64("codes_deleted", codes),
			slog.Int64("sessions_deleted", sessions),
		)
	}
	return nil
}

// SnapshotDailyStats обновляет строку system_stats за сегодня.
func (m *Maintenance) SnapshotDailyStats(ctx context.Context) error {
	snap, err := m.stats.Snapshot(ctx)
	if err != nil {
		return err
	}
	m.logger.Debug("Дневной срез статистики обновлён",
		slog.String("date", snap.StatDate.Format(time.DateOnly)),
		slog.Int64("total_files", snap.TotalFiles),
	)
	return nil
}
