package model

import "time"

// ProjectionFile — загруженный файл проекции.
// Хранится в таблице projection_files, ключ для внешнего мира — FileID.
type ProjectionFile struct {
	// ID — внутренний UUID записи
	ID string
	// FileID — публичный 6-значный идентификатор
	FileID string
	// UserID — владелец, nil для анонимной загрузки
	UserID *string
	// Filename — санитизированное имя
	Filename string
	// OriginalFilename — имя, переданное клиентом
	OriginalFilename string
	// FileSize — размер в байтах
	FileSize int64
	// FileType — расширение с точкой (.litematic, .schem, ...)
	FileType string
	// MimeType — MIME-тип, с которым объект лежит в хранилище
	MimeType string
	// StoragePath — ключ объекта в бакете
	StoragePath string
	// Checksum — SHA-256 (опционально)
	Checksum *string
	// UploadIP — IP загрузившего
	UploadIP string
	// DownloadCount — счётчик скачиваний
	DownloadCount int64
	// Metadata — произвольные метаданные (userAgent, uploadMethod, requestId)
	Metadata map[string]any
	// IsPublic — доступен ли файл не-владельцам
	IsPublic bool
	// ExpiresAt — время истечения (проверяется при чтении)
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAnonymous возвращает true для загрузок без владельца.
func (f *ProjectionFile) IsAnonymous() bool {
	return f.UserID == nil
}

// IsOwnedBy проверяет, принадлежит ли файл пользователю userID.
func (f *ProjectionFile) IsOwnedBy(userID string) bool {
	return userID != "" && f.UserID != nil && *f.UserID == userID
}

// IsExpired проверяет истечение срока файла на момент now.
func (f *ProjectionFile) IsExpired(now time.Time) bool {
	return f.ExpiresAt != nil && now.After(*f.ExpiresAt)
}

// FileStats — агрегаты по файлам (глобальные или по пользователю).
type FileStats struct {
	Total          int64
	TotalSize      int64
	TotalDownloads int64
	TodayUploads   int64
	Anonymous      int64
	// FileTypes — распределение по расширениям
	FileTypes map[string]int64
}
