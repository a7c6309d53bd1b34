// file.go — загрузка файлов проекций, выдача информации и ссылок на скачивание,
// история загрузок пользователя.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/neptunium/internal/domain/model"
	"github.com/bigkaa/neptunium/internal/domain/validation"
	"github.com/bigkaa/neptunium/internal/objectstore"
	"github.com/bigkaa/neptunium/internal/repository"
)

// Prometheus-метрики файлов.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "np_uploads_total",
		Help: "Загрузки файлов проекций по способу и наличию владельца.",
	}, []string{"method", "owner"})
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "np_downloads_total",
		Help: "Выданные ссылки на скачивание по результату.",
	}, []string{"result"})
)

// Действия над проекцией.
const (
	ActionInfo     = "info"
	ActionDownload = "download"
)

// Способы загрузки (metadata.uploadMethod).
const (
	UploadMethodWeb    = "web"
	UploadMethodDirect = "direct"
)

// ObjectStorage — объектное хранилище файлов.
type ObjectStorage interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Requester — необязательная личность клиента: пользователь по Bearer
// или владелец API-ключа.
type Requester struct {
	UserID   string
	APIKeyID string
}

// IsAnonymous возвращает true, если клиент не аутентифицирован.
func (r Requester) IsAnonymous() bool {
	return r.UserID == ""
}

func (r Requester) userIDPtr() *string {
	if r.UserID == "" {
		return nil
	}
	id := r.UserID
	return &id
}

func (r Requester) apiKeyIDPtr() *string {
	if r.APIKeyID == "" {
		return nil
	}
	id := r.APIKeyID
	return &id
}

// FileSettings — ограничения загрузки и время жизни ссылок.
type FileSettings struct {
	MaxFileSize       int64
	AllowedExtensions []string
	UploadURLTTL      time.Duration
	DownloadURLTTL    time.Duration
}

// FileService — операции с файлами проекций.
type FileService struct {
	files     repository.ProjectionFileRepository
	allocator *FileIDAllocator
	storage   ObjectStorage
	cache     *FileCache
	audit     *Auditor
	settings  FileSettings
	now       func() time.Time
	logger    *slog.Logger
}

// NewFileService создаёт сервис файлов.
func NewFileService(
	files repository.ProjectionFileRepository,
	allocator *FileIDAllocator,
	storage ObjectStorage,
	cache *FileCache,
	audit *Auditor,
	settings FileSettings,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		files:     files,
		allocator: allocator,
		storage:   storage,
		cache:     cache,
		audit:     audit,
		settings:  settings,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "file_service")),
	}
}

// StoragePath возвращает ключ объекта: projections/{id[0:2]}/{id}{ext}.
func StoragePath(fileID, ext string) string {
	return fmt.Sprintf("projections/%s/%s%s", fileID[:2], fileID, ext)
}

// UploadInput — параметры загрузки.
type UploadInput struct {
	Filename string
	FileSize int64
	// IsPublic учитывается только для аутентифицированных загрузок
	IsPublic      *bool
	ExpiresInDays *int
}

// UploadResult — ответ на запрос pre-signed загрузки.
type UploadResult struct {
	FileID    string
	UploadURL string
	ExpiresIn int
	File      *model.ProjectionFile
}

// validateUpload проверяет имя, тип и размер файла.
func (s *FileService) validateUpload(in UploadInput) error {
	if strings.TrimSpace(in.Filename) == "" {
		return validationError("имя файла обязательно")
	}
	if r := validation.FileType(in.Filename, s.settings.AllowedExtensions); !r.IsValid {
		return validationError(r.Message)
	}
	if r := validation.FileSize(in.FileSize, s.settings.MaxFileSize); !r.IsValid {
		return validationError(r.Message)
	}
	if in.ExpiresInDays != nil && (*in.ExpiresInDays < 1 || *in.ExpiresInDays > 3650) {
		return validationError("срок хранения должен быть от 1 до 3650 дней")
	}
	return nil
}

// newRecord собирает запись файла до выделения ID.
func (s *FileService) newRecord(in UploadInput, requester Requester, meta RequestMeta, method string) *model.ProjectionFile {
	isPublic := true
	if !requester.IsAnonymous() && in.IsPublic != nil {
		isPublic = *in.IsPublic
	}

	var expiresAt *time.Time
	if in.ExpiresInDays != nil {
		t := s.now().Add(time.Duration(*in.ExpiresInDays) * 24 * time.Hour)
		expiresAt = &t
	}

	return &model.ProjectionFile{
		UserID:           requester.userIDPtr(),
		Filename:         validation.SanitizeFilename(in.Filename),
		OriginalFilename: in.Filename,
		FileSize:         in.FileSize,
		FileType:         validation.Extension(in.Filename),
		MimeType:         objectstore.DefaultContentType,
		UploadIP:         meta.IP,
		IsPublic:         isPublic,
		ExpiresAt:        expiresAt,
		Metadata: map[string]any{
			"userAgent":    meta.UserAgent,
			"uploadMethod": method,
			"requestId":    meta.RequestID,
		},
	}
}

// reserve выделяет ID и вставляет запись, занимая его.
func (s *FileService) reserve(ctx context.Context, f *model.ProjectionFile) error {
	_, err := s.allocator.Allocate(ctx, func(id string) error {
		f.FileID = id
		f.StoragePath = StoragePath(id, f.FileType)
		return s.files.Create(ctx, f)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrIDSpaceExhausted) || errors.Is(err, ErrDependency) || errors.Is(err, ErrDependencyTimeout) {
		s.logger.Error("Не удалось выделить ID файла", slog.String("error", err.Error()))
		return err
	}
	return dependencyError("сохранение записи файла", err)
}

// CreateUpload регистрирует файл и выдаёт pre-signed URL для загрузки методом PUT.
// Запись создаётся до передачи байтов.
func (s *FileService) CreateUpload(ctx context.Context, in UploadInput, requester Requester, meta RequestMeta) (*UploadResult, error) {
	if err := s.validateUpload(in); err != nil {
		return nil, err
	}

	f := s.newRecord(in, requester, meta, UploadMethodWeb)
	if err := s.reserve(ctx, f); err != nil {
		return nil, err
	}

	uploadURL, err := s.storage.PresignPut(ctx, f.StoragePath, s.settings.UploadURLTTL)
	if err != nil {
		return nil, dependencyError("подпись URL загрузки", err)
	}

	s.afterUpload(ctx, f, requester, meta, UploadMethodWeb)

	return &UploadResult{
		FileID:    f.FileID,
		UploadURL: uploadURL,
		ExpiresIn: int(s.settings.UploadURLTTL.Seconds()),
		File:      f,
	}, nil
}

// DirectUploadInput — загрузка с содержимым в теле запроса.
type DirectUploadInput struct {
	UploadInput
	// Content — содержимое; Seek нужен для двух проходов (контрольная сумма и запись)
	Content io.ReadSeeker
}

// UploadDirect принимает содержимое файла, считает SHA-256 и записывает
// объект в хранилище. Если запись объекта не удалась, запись файла удаляется.
func (s *FileService) UploadDirect(ctx context.Context, in DirectUploadInput, requester Requester, meta RequestMeta) (*model.ProjectionFile, error) {
	if err := s.validateUpload(in.UploadInput); err != nil {
		return nil, err
	}
	if in.Content == nil {
		return nil, validationError("содержимое файла обязательно")
	}

	hasher := sha256.New()
	n, err := io.Copy(hasher, in.Content)
	if err != nil {
		return nil, validationError("не удалось прочитать содержимое файла")
	}
	if n != in.FileSize {
		return nil, validationError(fmt.Sprintf("размер содержимого %d не совпадает с заявленным %d", n, in.FileSize))
	}
	if _, err := in.Content.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("ошибка перемотки содержимого: %w", err)
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))

	f := s.newRecord(in.UploadInput, requester, meta, UploadMethodDirect)
	f.Checksum = &checksum
	if err := s.reserve(ctx, f); err != nil {
		return nil, err
	}

	if err := s.storage.Put(ctx, f.StoragePath, in.Content, in.FileSize, f.MimeType); err != nil {
		if delErr := s.files.Delete(context.WithoutCancel(ctx), f.FileID); delErr != nil {
			s.logger.Error("Не удалось удалить запись файла без объекта",
				slog.String("file_id", f.FileID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, dependencyError("запись объекта", err)
	}

	s.afterUpload(ctx, f, requester, meta, UploadMethodDirect)
	return f, nil
}

// afterUpload пишет метрики и журналы загрузки.
func (s *FileService) afterUpload(ctx context.Context, f *model.ProjectionFile, requester Requester, meta RequestMeta, method string) {
	owner := "user"
	if requester.IsAnonymous() {
		owner = "anonymous"
	}
	uploadsTotal.WithLabelValues(method, owner).Inc()

	s.logger.Info("Файл зарегистрирован",
		slog.String("file_id", f.FileID),
		slog.String("file_type", f.FileType),
		slog.Int64("size", f.FileSize),
		slog.String("method", method),
		slog.Bool("anonymous", requester.IsAnonymous()),
	)

	s.audit.Access(ctx, f, model.AccessUpload, requester, meta, nil)
	s.audit.System(ctx, model.LogLevelInfo, "Загружен файл проекции", requester.userIDPtr(), meta,
		map[string]any{"fileId": f.FileID, "fileSize": f.FileSize, "fileType": f.FileType, "uploadMethod": method})
}

// ProjectionInfo — сведения о проекции. IsOwner определяет полноту представления.
type ProjectionInfo struct {
	File    *model.ProjectionFile
	IsOwner bool
}

// DownloadLink — выданная ссылка на скачивание.
type DownloadLink struct {
	URL       string
	ExpiresIn int
	Filename  string
	FileSize  int64
}

// ProjectionResult — результат Projection: заполнено одно из полей.
type ProjectionResult struct {
	Info     *ProjectionInfo
	Download *DownloadLink
}

// getFile читает запись через кэш.
func (s *FileService) getFile(ctx context.Context, fileID string) (*model.ProjectionFile, error) {
	if f, ok := s.cache.Get(fileID); ok {
		return f, nil
	}

	f, err := s.files.GetByFileID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: проекция %s не найдена", ErrNotFound, fileID)
		}
		return nil, dependencyError("получение файла", err)
	}
	s.cache.Set(fileID, f)
	return f, nil
}

// Projection выдаёт информацию о файле (action=info) или ссылку на скачивание
// (action=download). Приватный файл доступен только владельцу.
func (s *FileService) Projection(ctx context.Context, fileID, action string, requester Requester, meta RequestMeta) (*ProjectionResult, error) {
	if !validation.SixDigitCode(fileID) {
		return nil, validationError("ID проекции должен состоять из 6 цифр")
	}
	if action == "" {
		action = ActionInfo
	}
	if action != ActionInfo && action != ActionDownload {
		return nil, validationError(fmt.Sprintf("недопустимое действие %q: допустимые — info, download", action))
	}

	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if f.IsExpired(s.now()) {
		return nil, fmt.Errorf("%w: проекция %s больше недоступна", ErrGone, fileID)
	}

	isOwner := f.IsOwnedBy(requester.UserID)
	if !f.IsPublic && !isOwner {
		s.logger.Warn("Попытка доступа к приватному файлу",
			slog.String("file_id", fileID),
			slog.String("user_id", requester.UserID),
			slog.String("request_id", meta.RequestID),
		)
		return nil, fmt.Errorf("%w: файл приватный", ErrForbidden)
	}

	if action == ActionInfo {
		s.audit.Access(ctx, f, model.AccessView, requester, meta, nil)
		return &ProjectionResult{Info: &ProjectionInfo{File: f, IsOwner: isOwner}}, nil
	}

	link, err := s.download(ctx, f, requester, meta)
	if err != nil {
		return nil, err
	}
	return &ProjectionResult{Download: link}, nil
}

// download подписывает GET URL и увеличивает счётчик скачиваний (best-effort).
func (s *FileService) download(ctx context.Context, f *model.ProjectionFile, requester Requester, meta RequestMeta) (*DownloadLink, error) {
	downloadURL, err := s.storage.PresignGet(ctx, f.StoragePath, f.OriginalFilename, s.settings.DownloadURLTTL)
	if err != nil {
		downloadsTotal.WithLabelValues("error").Inc()
		s.audit.Access(ctx, f, model.AccessDownload, requester, meta, err)
		return nil, dependencyError("подпись URL скачивания", err)
	}

	if _, err := s.files.IncrementDownloads(ctx, f.FileID); err != nil {
		s.logger.Warn("Не удалось увеличить счётчик скачиваний",
			slog.String("file_id", f.FileID),
			slog.String("error", err.Error()),
		)
	}
	s.cache.Delete(f.FileID)

	downloadsTotal.WithLabelValues("ok").Inc()
	s.audit.Access(ctx, f, model.AccessDownload, requester, meta, nil)

	return &DownloadLink{
		URL:       downloadURL,
		ExpiresIn: int(s.settings.DownloadURLTTL.Seconds()),
		Filename:  f.OriginalFilename,
		FileSize:  f.FileSize,
	}, nil
}

// Параметры истории загрузок.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// HistoryQuery — параметры запроса истории.
type HistoryQuery struct {
	Page      int
	Limit     int
	FileType  string
	Search    string
	SortBy    string
	SortOrder string
}

// normalize применяет значения по умолчанию и ограничения.
func (q *HistoryQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	if !repository.IsValidFileSort(q.SortBy) {
		q.SortBy = "created_at"
	}
	q.SortOrder = strings.ToLower(q.SortOrder)
	if q.SortOrder != "asc" {
		q.SortOrder = "desc"
	}
}

// HistoryResult — страница истории и агрегаты по всем файлам пользователя.
type HistoryResult struct {
	Files      []*model.ProjectionFile
	Query      HistoryQuery
	Total      int64
	TotalPages int
	Stats      *model.FileStats
}

// HasNext — есть ли следующая страница.
func (r *HistoryResult) HasNext() bool { return r.Query.Page < r.TotalPages }

// HasPrev — есть ли предыдущая страница.
func (r *HistoryResult) HasPrev() bool { return r.Query.Page > 1 }

// History возвращает файлы пользователя с фильтрацией, сортировкой и пагинацией.
func (s *FileService) History(ctx context.Context, userID string, q HistoryQuery) (*HistoryResult, error) {
	q.normalize()

	filter := repository.FileFilter{
		UserID:  &userID,
		SortBy:  q.SortBy,
		SortAsc: q.SortOrder == "asc",
	}
	if q.FileType != "" {
		ft := strings.ToLower(q.FileType)
		if !strings.HasPrefix(ft, ".") {
			ft = "." + ft
		}
		filter.FileType = &ft
	}
	if q.Search != "" {
		search := q.Search
		filter.Search = &search
	}

	files, err := s.files.List(ctx, filter, q.Limit, (q.Page-1)*q.Limit)
	if err != nil {
		return nil, dependencyError("получение истории", err)
	}
	total, err := s.files.Count(ctx, filter)
	if err != nil {
		return nil, dependencyError("подсчёт истории", err)
	}
	stats, err := s.files.Stats(ctx, &userID)
	if err != nil {
		return nil, dependencyError("статистика файлов пользователя", err)
	}

	if files == nil {
		files = []*model.ProjectionFile{}
	}
	return &HistoryResult{
		Files:      files,
		Query:      q,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(q.Limit))),
		Stats:      stats,
	}, nil
}
