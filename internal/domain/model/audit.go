package model

import "time"

// Уровни системного журнала.
const (
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Типы доступа к файлу.
const (
	AccessUpload   = "upload"
	AccessView     = "view"
	AccessDownload = "download"
)

// SystemLog — запись системного журнала (append-only).
type SystemLog struct {
	ID        string
	Level     string
	Message   string
	Context   map[string]any
	UserID    *string
	IPAddress string
	UserAgent string
	RequestID string
	CreatedAt time.Time
}

// FileAccessLog — запись журнала доступа к файлу (append-only).
type FileAccessLog struct {
	ID               string
	FileID           string
	ProjectionFileID string
	AccessType       string
	UserID           *string
	APIKeyID         *string
	IPAddress        string
	UserAgent        string
	Success          bool
	ErrorMessage     *string
	CreatedAt        time.Time
}

// DailyStats — срез статистики за календарный день (system_stats).
type DailyStats struct {
	StatDate         time.Time
	TotalUsers       int64
	VerifiedUsers    int64
	TotalFiles       int64
	TotalFileSize    int64
	TotalDownloads   int64
	APIRequests      int64
	AnonymousUploads int64
	// StatsData — dailyUploads, todayDownloads
	StatsData map[string]any
}

// StatInt извлекает целое значение из StatsData (JSON numbers декодируются как float64).
func (s *DailyStats) StatInt(key string) int64 {
	switch v := s.StatsData[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
