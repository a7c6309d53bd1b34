// views.go — JSON-представления доменных объектов.
package handlers

import (
	"time"

	"github.com/bigkaa/neptunium/internal/domain/model"
	"github.com/bigkaa/neptunium/internal/domain/validation"
)

// userView — пользователь без пароля и служебных данных.
type userView struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	IsVerified  bool       `json:"is_verified"`
	IsAdmin     bool       `json:"is_admin"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

func newUserView(u *model.User) userView {
	return userView{
		ID:          u.ID,
		Email:       u.Email,
		IsVerified:  u.IsVerified,
		IsAdmin:     u.IsAdmin,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

// apiKeyView — ключ в списке: без секрета и хэша.
type apiKeyView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	KeyPrefix   string     `json:"key_prefix"`
	Permissions []string   `json:"permissions"`
	IsActive    bool       `json:"is_active"`
	UsageCount  int64      `json:"usage_count"`
	RateLimit   int        `json:"rate_limit"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newAPIKeyView(k *model.APIKey) apiKeyView {
	return apiKeyView{
		ID:          k.ID,
		Name:        k.Name,
		Description: k.Description,
		KeyPrefix:   k.KeyPrefix,
		Permissions: k.Permissions,
		IsActive:    k.IsActive,
		UsageCount:  k.UsageCount,
		RateLimit:   k.RateLimit,
		LastUsedAt:  k.LastUsedAt,
		ExpiresAt:   k.ExpiresAt,
		CreatedAt:   k.CreatedAt,
	}
}

// createdKeyView — только что выпущенный ключ, единственный ответ с секретом.
type createdKeyView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	Key         string     `json:"key"`
	KeyPrefix   string     `json:"key_prefix"`
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rate_limit"`
	ExpiresAt   *time.Time `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// publicFileView — сведения о файле, видимые любому клиенту.
type publicFileView struct {
	ID               string     `json:"id"`
	FileID           string     `json:"file_id"`
	Filename         string     `json:"filename"`
	OriginalFilename string     `json:"original_filename"`
	FileSize         int64      `json:"file_size"`
	FileType         string     `json:"file_type"`
	DownloadCount    int64      `json:"download_count"`
	IsPublic         bool       `json:"is_public"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        *time.Time `json:"expires_at"`
}

// ownerFileView — полные сведения для владельца.
type ownerFileView struct {
	publicFileView
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path"`
	Checksum    *string        `json:"checksum"`
	Metadata    map[string]any `json:"metadata"`
}

func newPublicFileView(f *model.ProjectionFile) publicFileView {
	return publicFileView{
		ID:               f.ID,
		FileID:           f.FileID,
		Filename:         f.Filename,
		OriginalFilename: f.OriginalFilename,
		FileSize:         f.FileSize,
		FileType:         f.FileType,
		DownloadCount:    f.DownloadCount,
		IsPublic:         f.IsPublic,
		CreatedAt:        f.CreatedAt,
		ExpiresAt:        f.ExpiresAt,
	}
}

// fileView выбирает представление по праву владения.
func fileView(f *model.ProjectionFile, isOwner bool) any {
	if !isOwner {
		return newPublicFileView(f)
	}
	return ownerFileView{
		publicFileView: newPublicFileView(f),
		MimeType:       f.MimeType,
		StoragePath:    f.StoragePath,
		Checksum:       f.Checksum,
		Metadata:       f.Metadata,
	}
}

// historyMetadata — метаданные, показываемые в истории.
type historyMetadata struct {
	UploadMethod string `json:"uploadMethod,omitempty"`
	UserAgent    string `json:"userAgent,omitempty"`
}

// historyFileView — строка истории загрузок.
type historyFileView struct {
	ID                string          `json:"id"`
	FileID            string          `json:"file_id"`
	Filename          string          `json:"filename"`
	OriginalFilename  string          `json:"original_filename"`
	FileSize          int64           `json:"file_size"`
	FileSizeFormatted string          `json:"file_size_formatted"`
	FileType          string          `json:"file_type"`
	MimeType          string          `json:"mime_type"`
	DownloadCount     int64           `json:"download_count"`
	IsPublic          bool            `json:"is_public"`
	ExpiresAt         *time.Time      `json:"expires_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Metadata          historyMetadata `json:"metadata"`
}

func metadataString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func newHistoryFileView(f *model.ProjectionFile) historyFileView {
	return historyFileView{
		ID:                f.ID,
		FileID:            f.FileID,
		Filename:          f.Filename,
		OriginalFilename:  f.OriginalFilename,
		FileSize:          f.FileSize,
		FileSizeFormatted: validation.FormatBytes(f.FileSize),
		FileType:          f.FileType,
		MimeType:          f.MimeType,
		DownloadCount:     f.DownloadCount,
		IsPublic:          f.IsPublic,
		ExpiresAt:         f.ExpiresAt,
		CreatedAt:         f.CreatedAt,
		UpdatedAt:         f.UpdatedAt,
		Metadata: historyMetadata{
			UploadMethod: metadataString(f.Metadata, "uploadMethod"),
			UserAgent:    metadataString(f.Metadata, "userAgent"),
		},
	}
}
