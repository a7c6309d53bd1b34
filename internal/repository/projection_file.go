package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/neptunium/internal/domain/model"
)

// ProjectionFileRepository — доступ к таблице projection_files.
type ProjectionFileRepository interface {
	// Create вставляет запись; занятый file_id — ErrConflict.
	Create(ctx context.Context, f *model.ProjectionFile) error
	GetByFileID(ctx context.Context, fileID string) (*model.ProjectionFile, error)
	ExistsByFileID(ctx context.Context, fileID string) (bool, error)
	// Delete удаляет запись, для которой так и не был записан объект.
	Delete(ctx context.Context, fileID string) error
	// IncrementDownloads атомарно увеличивает счётчик и возвращает новое значение.
	IncrementDownloads(ctx context.Context, fileID string) (int64, error)
	// List возвращает страницу файлов пользователя с фильтрацией и сортировкой.
	List(ctx context.Context, filter FileFilter, limit, offset int) ([]*model.ProjectionFile, error)
	Count(ctx context.Context, filter FileFilter) (int64, error)
	// Stats считает агрегаты по всем файлам (userID == nil) или по файлам пользователя.
	Stats(ctx context.Context, userID *string) (*model.FileStats, error)
}

// FileFilter — фильтры списка файлов.
type FileFilter struct {
	UserID   *string
	FileType *string
	// Search — подстрока для ILIKE по filename, original_filename, file_id
	Search *string
	// SortBy — колонка сортировки (см. fileSortColumns)
	SortBy string
	// SortAsc — порядок сортировки
	SortAsc bool
}

// fileSortColumns — допустимые колонки сортировки (защита от SQL-инъекций).
var fileSortColumns = map[string]string{
	"created_at":     "created_at",
	"file_size":      "file_size",
	"download_count": "download_count",
	"filename":       "filename",
}

// IsValidFileSort проверяет допустимость колонки сортировки.
func IsValidFileSort(col string) bool {
	_, ok := fileSortColumns[col]
	return ok
}

const projectionFileColumns = `id, file_id, user_id, filename, original_filename, file_size,
	file_type, mime_type, storage_path, checksum, upload_ip, download_count, metadata,
	is_public, expires_at, created_at, updated_at`

type projectionFileRepo struct {
	db DBTX
}

// NewProjectionFileRepository создаёт репозиторий файлов проекций.
func NewProjectionFileRepository(db DBTX) ProjectionFileRepository {
	return &projectionFileRepo{db: db}
}

func scanProjectionFile(row pgx.Row) (*model.ProjectionFile, error) {
	f := &model.ProjectionFile{}
	err := row.Scan(
		&f.ID, &f.FileID, &f.UserID, &f.Filename, &f.OriginalFilename, &f.FileSize,
		&f.FileType, &f.MimeType, &f.StoragePath, &f.Checksum, &f.UploadIP, &f.DownloadCount,
		&f.Metadata, &f.IsPublic, &f.ExpiresAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *projectionFileRepo) Create(ctx context.Context, f *model.ProjectionFile) error {
	query := `
		INSERT INTO projection_files (file_id, user_id, filename, original_filename, file_size,
			file_type, mime_type, storage_path, checksum, upload_ip, metadata, is_public, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, download_count, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		f.FileID, f.UserID, f.Filename, f.OriginalFilename, f.FileSize,
		f.FileType, f.MimeType, f.StoragePath, f.Checksum, f.UploadIP, jsonMap(f.Metadata),
		f.IsPublic, f.ExpiresAt,
	).Scan(&f.ID, &f.DownloadCount, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: file_id %s уже занят", ErrConflict, f.FileID)
		}
		return fmt.Errorf("ошибка создания записи файла: %w", err)
	}
	return nil
}

func (r *projectionFileRepo) GetByFileID(ctx context.Context, fileID string) (*model.ProjectionFile, error) {
	f, err := scanProjectionFile(r.db.QueryRow(ctx,
		`SELECT `+projectionFileColumns+` FROM projection_files WHERE file_id = $1`, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

func (r *projectionFileRepo) ExistsByFileID(ctx context.Context, fileID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM projection_files WHERE file_id = $1)`, fileID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки file_id: %w", err)
	}
	return exists, nil
}

func (r *projectionFileRepo) Delete(ctx context.Context, fileID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM projection_files WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *projectionFileRepo) IncrementDownloads(ctx context.Context, fileID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		UPDATE projection_files
		SET download_count = download_count + 1, updated_at = now()
		WHERE file_id = $1
		RETURNING download_count`, fileID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка увеличения счётчика скачиваний: %w", err)
	}
	return count, nil
}

// buildFileWhere строит WHERE-условие и аргументы для фильтрации файлов.
func buildFileWhere(filter FileFilter, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argNum))
		args = append(args, *filter.UserID)
		argNum++
	}
	if filter.FileType != nil {
		conditions = append(conditions, fmt.Sprintf("file_type = $%d", argNum))
		args = append(args, *filter.FileType)
		argNum++
	}
	if filter.Search != nil && *filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(filename ILIKE $%[1]d OR original_filename ILIKE $%[1]d OR file_id LIKE $%[1]d)", argNum))
		args = append(args, "%"+escapeLike(*filter.Search)+"%")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// escapeLike экранирует спецсимволы LIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *projectionFileRepo) List(ctx context.Context, filter FileFilter, limit, offset int) ([]*model.ProjectionFile, error) {
	where, args := buildFileWhere(filter, 1)
	argNum := len(args) + 1

	sortCol, ok := fileSortColumns[filter.SortBy]
	if !ok {
		sortCol = "created_at"
	}
	order := "DESC"
	if filter.SortAsc {
		order = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM projection_files
		%s
		ORDER BY %s %s, id
		LIMIT $%d OFFSET $%d`, projectionFileColumns, where, sortCol, order, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.ProjectionFile
	for rows.Next() {
		f, err := scanProjectionFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *projectionFileRepo) Count(ctx context.Context, filter FileFilter) (int64, error) {
	where, args := buildFileWhere(filter, 1)

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM projection_files "+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта файлов: %w", err)
	}
	return total, nil
}

func (r *projectionFileRepo) Stats(ctx context.Context, userID *string) (*model.FileStats, error) {
	where, args := buildFileWhere(FileFilter{UserID: userID}, 1)

	query := `
		SELECT COUNT(*),
			COALESCE(SUM(file_size), 0)::BIGINT,
			COALESCE(SUM(download_count), 0)::BIGINT,
			COUNT(*) FILTER (WHERE created_at >= date_trunc('day', now())),
			COUNT(*) FILTER (WHERE user_id IS NULL)
		FROM projection_files ` + where

	s := &model.FileStats{FileTypes: map[string]int64{}}
	if err := r.db.QueryRow(ctx, query, args...).Scan(
		&s.Total, &s.TotalSize, &s.TotalDownloads, &s.TodayUploads, &s.Anonymous,
	); err != nil {
		return nil, fmt.Errorf("ошибка получения статистики файлов: %w", err)
	}

	rows, err := r.db.Query(ctx,
		"SELECT file_type, COUNT(*) FROM projection_files "+where+" GROUP BY file_type", args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения распределения типов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fileType string
		var count int64
		if err := rows.Scan(&fileType, &count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования распределения типов: %w", err)
		}
		s.FileTypes[fileType] = count
	}
	return s, rows.Err()
}
