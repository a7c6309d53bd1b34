// dashboard.go — сводная статистика системы для панели пользователя.
package service

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/bigkaa/neptunium/internal/domain/model"
	"github.com/bigkaa/neptunium/internal/domain/validation"
	"github.com/bigkaa/neptunium/internal/repository"
)

// trendDays — глубина ряда trends.daily.
const trendDays = 7

// DashboardStats — ответ dashboard-stats.
type DashboardStats struct {
	TotalFiles   int64            `json:"totalFiles"`
	TotalUsers   int64            `json:"totalUsers"`
	TotalAPIKeys int64            `json:"totalApiKeys"`
	TodayUploads int64            `json:"todayUploads"`
	Users        UserSummary      `json:"users"`
	Files        FileSummary      `json:"files"`
	Downloads    DownloadSummary  `json:"downloads"`
	Trends       Trends           `json:"trends"`
	FileTypes    map[string]int64 `json:"fileTypes"`
	System       SystemSummary    `json:"system"`
}

// UserSummary — статистика пользователей.
type UserSummary struct {
	Total              int64 `json:"total"`
	Verified           int64 `json:"verified"`
	TodayRegistrations int64 `json:"todayRegistrations"`
	VerificationRate   int64 `json:"verificationRate"`
	Trend              int64 `json:"trend"`
}

// FileSummary — статистика файлов.
type FileSummary struct {
	Total              int64  `json:"total"`
	TotalSize          int64  `json:"totalSize"`
	TotalSizeFormatted string `json:"totalSizeFormatted"`
	TotalDownloads     int64  `json:"totalDownloads"`
	TodayUploads       int64  `json:"todayUploads"`
	AnonymousUploads   int64  `json:"anonymousUploads"`
	AverageSize        int64  `json:"averageSize"`
	Trend              int64  `json:"trend"`
}

// DownloadSummary — статистика скачиваний.
type DownloadSummary struct {
	Total int64 `json:"total"`
	Today int64 `json:"today"`
	Trend int64 `json:"trend"`
}

// Trends — дневной ряд из system_stats.
type Trends struct {
	Daily []DailyPoint `json:"daily"`
}

// DailyPoint — точка дневного ряда.
type DailyPoint struct {
	Date      string `json:"date"`
	Users     int64  `json:"users"`
	Files     int64  `json:"files"`
	Downloads int64  `json:"downloads"`
	Uploads   int64  `json:"uploads"`
}

// SystemSummary — состояние экземпляра.
type SystemSummary struct {
	Status      string  `json:"status"`
	Uptime      float64 `json:"uptime"`
	LastUpdated string  `json:"lastUpdated"`
}

// Trend — изменение в процентах относительно prev (100 при росте с нуля).
func Trend(cur, prev int64) int64 {
	if prev == 0 {
		if cur > 0 {
			return 100
		}
		return 0
	}
	return int64(math.Round(float64(cur-prev) / float64(prev) * 100))
}

// percent возвращает округлённую долю part от total в процентах.
func percent(part, total int64) int64 {
	if total == 0 {
		return 0
	}
	return int64(math.Round(float64(part) / float64(total) * 100))
}

// startOfDay возвращает начало суток t в UTC.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DashboardService собирает статистику из живых агрегатов и дневных срезов.
type DashboardService struct {
	users     repository.UserRepository
	files     repository.ProjectionFileRepository
	keys      repository.APIKeyRepository
	accessLog repository.AuditRepository
	snapshots repository.SystemStatsRepository
	audit     *Auditor
	startedAt time.Time
	now       func() time.Time
	logger    *slog.Logger
}

// NewDashboardService создаёт сервис статистики.
func NewDashboardService(
	users repository.UserRepository,
	files repository.ProjectionFileRepository,
	keys repository.APIKeyRepository,
	accessLog repository.AuditRepository,
	snapshots repository.SystemStatsRepository,
	audit *Auditor,
	logger *slog.Logger,
) *DashboardService {
	return &DashboardService{
		users:     users,
		files:     files,
		keys:      keys,
		accessLog: accessLog,
		snapshots: snapshots,
		audit:     audit,
		startedAt: time.Now(),
		now:       time.Now,
		logger:    logger.With(slog.String("component", "dashboard_service")),
	}
}

// Stats возвращает сводную статистику. userID — запросивший пользователь (для журнала).
func (s *DashboardService) Stats(ctx context.Context, userID string, meta RequestMeta) (*DashboardStats, error) {
	now := s.now()

	userStats, err := s.users.Stats(ctx)
	if err != nil {
		return nil, dependencyError("статистика пользователей", err)
	}
	fileStats, err := s.files.Stats(ctx, nil)
	if err != nil {
		return nil, dependencyError("статистика файлов", err)
	}
	activeKeys, err := s.keys.CountActive(ctx)
	if err != nil {
		return nil, dependencyError("статистика API-ключей", err)
	}
	todayDownloads, err := s.accessLog.CountAccessSince(ctx, model.AccessDownload, startOfDay(now))
	if err != nil {
		return nil, dependencyError("статистика скачиваний", err)
	}
	recent, err := s.snapshots.ListRecent(ctx, trendDays)
	if err != nil {
		return nil, dependencyError("дневная статистика", err)
	}

	// Вчерашний срез — база для трендов
	var yesterday *model.DailyStats
	yesterdayDate := startOfDay(now).AddDate(0, 0, -1).Format(time.DateOnly)
	daily := make([]DailyPoint, 0, len(recent))
	for _, snap := range recent {
		date := snap.StatDate.Format(time.DateOnly)
		if date == yesterdayDate {
			yesterday = snap
		}
		daily = append(daily, DailyPoint{
			Date:      date,
			Users:     snap.TotalUsers,
			Files:     snap.TotalFiles,
			Downloads: snap.TotalDownloads,
			Uploads:   snap.StatInt("dailyUploads"),
		})
	}

	var usersTrend, filesTrend, downloadsTrend int64
	if yesterday != nil {
		usersTrend = Trend(userStats.Total, yesterday.TotalUsers)
		filesTrend = Trend(fileStats.Total, yesterday.TotalFiles)
		downloadsTrend = Trend(todayDownloads, yesterday.StatInt("todayDownloads"))
	}

	var averageSize int64
	if fileStats.Total > 0 {
		averageSize = int64(math.Round(float64(fileStats.TotalSize) / float64(fileStats.Total)))
	}

	result := &DashboardStats{
		TotalFiles:   fileStats.Total,
		TotalUsers:   userStats.Total,
		TotalAPIKeys: activeKeys,
		TodayUploads: fileStats.TodayUploads,
		Users: UserSummary{
			Total:              userStats.Total,
			Verified:           userStats.Verified,
			TodayRegistrations: userStats.TodayRegistrations,
			VerificationRate:   percent(userStats.Verified, userStats.Total),
			Trend:              usersTrend,
		},
		Files: FileSummary{
			Total:              fileStats.Total,
			TotalSize:          fileStats.TotalSize,
			TotalSizeFormatted: validation.FormatBytes(fileStats.TotalSize),
			TotalDownloads:     fileStats.TotalDownloads,
			TodayUploads:       fileStats.TodayUploads,
			AnonymousUploads:   fileStats.Anonymous,
			AverageSize:        averageSize,
			Trend:              filesTrend,
		},
		Downloads: DownloadSummary{
			Total: fileStats.TotalDownloads,
			Today: todayDownloads,
			Trend: downloadsTrend,
		},
		Trends:    Trends{Daily: daily},
		FileTypes: fileStats.FileTypes,
		System: SystemSummary{
			Status:      "healthy",
			Uptime:      math.Round(now.Sub(s.startedAt).Seconds()),
			LastUpdated: now.UTC().Format(time.RFC3339),
		},
	}

	s.audit.System(ctx, model.LogLevelInfo, "Запрошена статистика dashboard", &userID, meta,
		map[string]any{"totalFiles": result.TotalFiles, "totalUsers": result.TotalUsers})

	return result, nil
}

// Snapshot собирает дневной срез статистики на момент now.
func (s *DashboardService) Snapshot(ctx context.Context) (*model.DailyStats, error) {
	now := s.now()
	since := startOfDay(now)

	userStats, err := s.users.Stats(ctx)
	if err != nil {
		return nil, dependencyError("статистика пользователей", err)
	}
	fileStats, err := s.files.Stats(ctx, nil)
	if err != nil {
		return nil, dependencyError("статистика файлов", err)
	}

	counts := make(map[string]int64, 3)
	for _, access := range []string{model.AccessUpload, model.AccessView, model.AccessDownload} {
		n, err := s.accessLog.CountAccessSince(ctx, access, since)
		if err != nil {
			return nil, dependencyError("статистика обращений", err)
		}
		counts[access] = n
	}

	snap := &model.DailyStats{
		StatDate:         since,
		TotalUsers:       userStats.Total,
		VerifiedUsers:    userStats.Verified,
		TotalFiles:       fileStats.Total,
		TotalFileSize:    fileStats.TotalSize,
		TotalDownloads:   fileStats.TotalDownloads,
		APIRequests:      counts[model.AccessUpload] + counts[model.AccessView] + counts[model.AccessDownload],
		AnonymousUploads: fileStats.Anonymous,
		StatsData: map[string]any{
			"dailyUploads":       fileStats.TodayUploads,
			"todayDownloads":     counts[model.AccessDownload],
			"todayRegistrations": userStats.TodayRegistrations,
		},
	}
	if err := s.snapshots.Upsert(ctx, snap); err != nil {
		return nil, dependencyError("запись дневной статистики", err)
	}
	return snap, nil
}
