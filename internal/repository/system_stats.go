package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/neptunium/internal/domain/model"
)

// SystemStatsRepository — дневные срезы статистики (system_stats).
type SystemStatsRepository interface {
	// Upsert записывает срез за s.StatDate, перезаписывая существующий.
	Upsert(ctx context.Context, s *model.DailyStats) error
	// ListRecent возвращает срезы за последние days дней, от старых к новым.
	ListRecent(ctx context.Context, days int) ([]*model.DailyStats, error)
}

type systemStatsRepo struct {
	db DBTX
}

// NewSystemStatsRepository создаёт репозиторий статистики.
func NewSystemStatsRepository(db DBTX) SystemStatsRepository {
	return &systemStatsRepo{db: db}
}

func (r *systemStatsRepo) Upsert(ctx context.Context, s *model.DailyStats) error {
	query := `
		INSERT INTO system_stats (stat_date, total_users, verified_users, total_files, total_file_size,
			total_downloads, api_requests, anonymous_uploads, stats_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (stat_date) DO UPDATE SET
			total_users = EXCLUDED.total_users,
			verified_users = EXCLUDED.verified_users,
			total_files = EXCLUDED.total_files,
			total_file_size = EXCLUDED.total_file_size,
			total_downloads = EXCLUDED.total_downloads,
			api_requests = EXCLUDED.api_requests,
			anonymous_uploads = EXCLUDED.anonymous_uploads,
			stats_data = EXCLUDED.stats_data`

	_, err := r.db.Exec(ctx, query,
		s.StatDate, s.TotalUsers, s.VerifiedUsers, s.TotalFiles, s.TotalFileSize,
		s.TotalDownloads, s.APIRequests, s.AnonymousUploads, jsonMap(s.StatsData),
	)
	if err != nil {
		return fmt.Errorf("ошибка записи статистики: %w", err)
	}
	return nil
}

func (r *systemStatsRepo) ListRecent(ctx context.Context, days int) ([]*model.DailyStats, error) {
	query := `
		SELECT stat_date, total_users, verified_users, total_files, total_file_size,
			total_downloads, api_requests, anonymous_uploads, stats_data
		FROM system_stats
		WHERE stat_date > CURRENT_DATE - $1::INT
		ORDER BY stat_date`

	rows, err := r.db.Query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики: %w", err)
	}
	defer rows.Close()

	var result []*model.DailyStats
	for rows.Next() {
		s := &model.DailyStats{}
		if err := rows.Scan(
			&s.StatDate, &s.TotalUsers, &s.VerifiedUsers, &s.TotalFiles, &s.TotalFileSize,
			&s.TotalDownloads, &s.APIRequests, &s.AnonymousUploads, &s.StatsData,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статистики: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
