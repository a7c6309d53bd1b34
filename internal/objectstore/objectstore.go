// Пакет objectstore — S3-совместимое объектное хранилище файлов проекций
// (Cloudflare R2, MinIO, AWS S3) поверх minio-go.
// Выдаёт pre-signed URL для прямой загрузки и скачивания клиентом.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bigkaa/neptunium/internal/config"
)

// DefaultContentType — MIME-тип файлов проекций в хранилище.
const DefaultContentType = "application/octet-stream"

// Store — клиент бакета проекций.
type Store struct {
	client  *minio.Client
	bucket  string
	timeout time.Duration
	logger  *slog.Logger
}

// New создаёт клиент хранилища. Регион задаётся явно, поэтому
// подпись URL не требует сетевых запросов к хранилищу.
func New(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента S3: %w", err)
	}

	return &Store{
		client:  client,
		bucket:  cfg.S3Bucket,
		timeout: cfg.ExternalTimeout,
		logger:  logger.With(slog.String("component", "objectstore")),
	}, nil
}

// PresignPut выдаёт URL для загрузки объекта методом PUT.
func (s *Store) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи PUT URL для %s: %w", key, err)
	}
	return u.String(), nil
}

// PresignGet выдаёт URL для скачивания объекта. Ответ хранилища
// содержит Content-Disposition: attachment с именем filename.
func (s *Store) PresignGet(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": filename}))

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи GET URL для %s: %w", key, err)
	}
	return u.String(), nil
}

// Put записывает объект из r. Операция ограничена таймаутом внешних вызовов.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = DefaultContentType
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("ошибка записи объекта %s: %w", key, err)
	}

	s.logger.Debug("Объект записан в хранилище",
		slog.String("key", key),
		slog.Int64("size", info.Size),
	)
	return nil
}

// CheckReady проверяет доступность бакета.
func (s *Store) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return "fail", fmt.Sprintf("хранилище недоступно: %v", err)
	}
	if !exists {
		return "fail", fmt.Sprintf("бакет %s не найден", s.bucket)
	}
	return "ok", "хранилище доступно"
}
