package model

import "time"

// Разрешения API-ключей.
const (
	PermissionRead     = "read"
	PermissionWrite    = "write"
	PermissionUpload   = "upload"
	PermissionDownload = "download"
)

// APIKey — долгоживущий ключ пользователя для внешних инструментов.
// Исходный секрет не хранится: только SHA-256 и префикс для отображения.
type APIKey struct {
	ID          string
	UserID      string
	KeyHash     string
	KeyPrefix   string
	Name        string
	Description *string
	Permissions []string
	IsActive    bool
	UsageCount  int64
	// RateLimit — бюджет запросов в час
	RateLimit  int
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// HasPermission проверяет наличие разрешения.
func (k *APIKey) HasPermission(p string) bool {
	for _, perm := range k.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}

// IsExpired проверяет истечение срока ключа на момент now.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}
