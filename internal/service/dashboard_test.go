package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/neptunium/internal/domain/model"
)

func TestTrend(t *testing.T) {
	tests := []struct {
		name      string
		cur, prev int64
		want      int64
	}{
		{"рост с нуля", 5, 0, 100},
		{"ноль к нулю", 0, 0, 0},
		{"рост на половину", 15, 10, 50},
		{"падение", 5, 10, -50},
		{"без изменений", 7, 7, 0},
		{"округление", 4, 3, 33},
		{"округление вверх", 5, 3, 67},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Trend(tt.cur, tt.prev); got != tt.want {
				t.Errorf("Trend(%d, %d) = %d, ожидалось %d", tt.cur, tt.prev, got, tt.want)
			}
		})
	}
}

// dashboardFixture собирает DashboardService с фиксированным временем.
func dashboardFixture(now time.Time, snapshots []*model.DailyStats, stats *mockStatsRepo) (*DashboardService, *mockAuditRepo) {
	users := &mockUserRepo{
		statsFn: func(_ context.Context) (*model.UserStats, error) {
			return &model.UserStats{Total: 10, Verified: 7, TodayRegistrations: 2}, nil
		},
	}
	files := &mockFileRepo{
		statsFn: func(_ context.Context, userID *string) (*model.FileStats, error) {
			if userID != nil {
				return nil, errors.New("ожидалась глобальная статистика")
			}
			return &model.FileStats{
				Total: 15, TotalSize: 3000, TotalDownloads: 40, TodayUploads: 3, Anonymous: 4,
				FileTypes: map[string]int64{".litematic": 10, ".schem": 5},
			}, nil
		},
	}
	keys := &mockAPIKeyRepo{
		countActiveFn: func(_ context.Context) (int64, error) { return 6, nil },
	}
	audit := &mockAuditRepo{
		countAccessFn: func(_ context.Context, accessType string, since time.Time) (int64, error) {
			if !since.Equal(startOfDay(now)) {
				return 0, errors.New("ожидалось начало суток")
			}
			switch accessType {
			case model.AccessDownload:
				return 6, nil
			case model.AccessView:
				return 20, nil
			default:
				return 3, nil
			}
		},
	}
	if stats == nil {
		stats = &mockStatsRepo{}
	}
	stats.listRecentFn = func(_ context.Context, days int) ([]*model.DailyStats, error) {
		if days != 7 {
			return nil, errors.New("ожидалось 7 дней")
		}
		return snapshots, nil
	}

	svc := NewDashboardService(users, files, keys, audit, stats, NewAuditor(audit, testLogger()), testLogger())
	svc.now = func() time.Time { return now }
	svc.startedAt = now.Add(-90 * time.Second)
	return svc, audit
}

func TestDashboardService_Stats(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	snapshots := []*model.DailyStats{
		{
			StatDate: time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), TotalUsers: 4, TotalFiles: 8, TotalDownloads: 20,
			StatsData: map[string]any{"dailyUploads": float64(1), "todayDownloads": float64(2)},
		},
		{
			StatDate: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), TotalUsers: 5, TotalFiles: 10, TotalDownloads: 30,
			StatsData: map[string]any{"dailyUploads": float64(2), "todayDownloads": float64(4)},
		},
	}
	svc, audit := dashboardFixture(now, snapshots, nil)

	got, err := svc.Stats(context.Background(), "user-1", RequestMeta{})
	if err != nil {
		t.Fatalf("Stats ошибка: %v", err)
	}

	if got.TotalFiles != 15 || got.TotalUsers != 10 || got.TotalAPIKeys != 6 || got.TodayUploads != 3 {
		t.Errorf("итоги = %d/%d/%d/%d", got.TotalFiles, got.TotalUsers, got.TotalAPIKeys, got.TodayUploads)
	}
	if got.Users.VerificationRate != 70 || got.Users.Trend != 100 {
		t.Errorf("users = %+v, ожидались verificationRate=70 trend=100", got.Users)
	}
	if got.Files.Trend != 50 || got.Files.AverageSize != 200 || got.Files.TotalSizeFormatted != "2.93 KB" {
		t.Errorf("files = %+v", got.Files)
	}
	if got.Files.AnonymousUploads != 4 {
		t.Errorf("anonymousUploads = %d, ожидалось 4", got.Files.AnonymousUploads)
	}
	if got.Downloads.Today != 6 || got.Downloads.Total != 40 || got.Downloads.Trend != 50 {
		t.Errorf("downloads = %+v, ожидались today=6 total=40 trend=50", got.Downloads)
	}
	if len(got.Trends.Daily) != 2 || got.Trends.Daily[0].Date != "2026-03-08" || got.Trends.Daily[1].Uploads != 2 {
		t.Errorf("trends.daily = %+v", got.Trends.Daily)
	}
	if got.FileTypes[".litematic"] != 10 {
		t.Errorf("fileTypes = %v", got.FileTypes)
	}
	if got.System.Status != "healthy" || got.System.Uptime != 90 {
		t.Errorf("system = %+v", got.System)
	}
	if len(audit.systemLogs) != 1 {
		t.Errorf("системных записей = %d, ожидалась 1", len(audit.systemLogs))
	}
}

func TestDashboardService_Stats_NoYesterdaySnapshot(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	svc, _ := dashboardFixture(now, nil, nil)

	got, err := svc.Stats(context.Background(), "user-1", RequestMeta{})
	if err != nil {
		t.Fatalf("Stats ошибка: %v", err)
	}
	if got.Users.Trend != 0 || got.Files.Trend != 0 || got.Downloads.Trend != 0 {
		t.Errorf("тренды без вчерашнего среза должны быть 0: %d/%d/%d",
			got.Users.Trend, got.Files.Trend, got.Downloads.Trend)
	}
	if got.Trends.Daily == nil || len(got.Trends.Daily) != 0 {
		t.Errorf("trends.daily = %v, ожидался пустой ряд", got.Trends.Daily)
	}
}

func TestDashboardService_Snapshot(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	var saved *model.DailyStats
	stats := &mockStatsRepo{
		upsertFn: func(_ context.Context, s *model.DailyStats) error {
			saved = s
			return nil
		},
	}
	svc, _ := dashboardFixture(now, nil, stats)

	if _, err := svc.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot ошибка: %v", err)
	}
	if saved == nil {
		t.Fatal("срез не сохранён")
	}
	if !saved.StatDate.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StatDate = %v", saved.StatDate)
	}
	if saved.TotalUsers != 10 || saved.VerifiedUsers != 7 || saved.TotalFiles != 15 || saved.AnonymousUploads != 4 {
		t.Errorf("срез = %+v", saved)
	}
	if saved.APIRequests != 29 {
		t.Errorf("APIRequests = %d, ожидалось 29 (upload+view+download)", saved.APIRequests)
	}
	if saved.StatInt("todayDownloads") != 6 || saved.StatInt("dailyUploads") != 3 {
		t.Errorf("stats_data = %v", saved.StatsData)
	}
}
