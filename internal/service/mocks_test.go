package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bigkaa/neptunium/internal/domain/model"
	"github.com/bigkaa/neptunium/internal/repository"
)

// testLogger — логгер для тестов, выводит только ошибки.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

// --- Пользователи ---

type mockUserRepo struct {
	createFn          func(ctx context.Context, u *model.User) error
	getByIDFn         func(ctx context.Context, id string) (*model.User, error)
	getByEmailFn      func(ctx context.Context, email string) (*model.User, error)
	existsByEmailFn   func(ctx context.Context, email string) (bool, error)
	updateLastLoginFn func(ctx context.Context, id string, at time.Time) error
	statsFn           func(ctx context.Context) (*model.UserStats, error)
}

func (m *mockUserRepo) Create(ctx context.Context, u *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, u)
	}
	u.ID = "user-1"
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if m.existsByEmailFn != nil {
		return m.existsByEmailFn(ctx, email)
	}
	return false, nil
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.updateLastLoginFn != nil {
		return m.updateLastLoginFn(ctx, id, at)
	}
	return nil
}

func (m *mockUserRepo) Stats(ctx context.Context) (*model.UserStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &model.UserStats{}, nil
}

// --- Коды подтверждения ---

type mockCodeRepo struct {
	createFn            func(ctx context.Context, c *model.VerificationCode) error
	getLatestFn         func(ctx context.Context, email, codeType string) (*model.VerificationCode, error)
	incrementAttemptsFn func(ctx context.Context, id string) (int, error)
	markUsedFn          func(ctx context.Context, id string) error
	deleteExpiredFn     func(ctx context.Context) (int64, error)
}

func (m *mockCodeRepo) Create(ctx context.Context, c *model.VerificationCode) error {
	if m.createFn != nil {
		return m.createFn(ctx, c)
	}
	return nil
}

func (m *mockCodeRepo) GetLatest(ctx context.Context, email, codeType string) (*model.VerificationCode, error) {
	if m.getLatestFn != nil {
		return m.getLatestFn(ctx, email, codeType)
	}
	return nil, repository.ErrNotFound
}

func (m *mockCodeRepo) IncrementAttempts(ctx context.Context, id string) (int, error) {
	if m.incrementAttemptsFn != nil {
		return m.incrementAttemptsFn(ctx, id)
	}
	return 1, nil
}

func (m *mockCodeRepo) MarkUsed(ctx context.Context, id string) error {
	if m.markUsedFn != nil {
		return m.markUsedFn(ctx, id)
	}
	return nil
}

func (m *mockCodeRepo) DeleteExpired(ctx context.Context) (int64, error) {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx)
	}
	return 0, nil
}

// --- Сессии ---

type mockSessionRepo struct {
	createFn        func(ctx context.Context, s *model.Session) error
	deleteExpiredFn func(ctx context.Context) (int64, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, s *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, s)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx)
	}
	return 0, nil
}

// mockUnitOfWork вызывает fn с переданными репозиториями без транзакции.
type mockUnitOfWork struct {
	users repository.UserRepository
	codes repository.VerificationCodeRepository
}

func (m *mockUnitOfWork) Do(_ context.Context, fn func(users repository.UserRepository, codes repository.VerificationCodeRepository) error) error {
	return fn(m.users, m.codes)
}

// --- Файлы ---

type mockFileRepo struct {
	createFn             func(ctx context.Context, f *model.ProjectionFile) error
	getByFileIDFn        func(ctx context.Context, fileID string) (*model.ProjectionFile, error)
	existsByFileIDFn     func(ctx context.Context, fileID string) (bool, error)
	deleteFn             func(ctx context.Context, fileID string) error
	incrementDownloadsFn func(ctx context.Context, fileID string) (int64, error)
	listFn               func(ctx context.Context, filter repository.FileFilter, limit, offset int) ([]*model.ProjectionFile, error)
	countFn              func(ctx context.Context, filter repository.FileFilter) (int64, error)
	statsFn              func(ctx context.Context, userID *string) (*model.FileStats, error)
}

func (m *mockFileRepo) Create(ctx context.Context, f *model.ProjectionFile) error {
	if m.createFn != nil {
		return m.createFn(ctx, f)
	}
	f.ID = "pf-" + f.FileID
	return nil
}

func (m *mockFileRepo) GetByFileID(ctx context.Context, fileID string) (*model.ProjectionFile, error) {
	if m.getByFileIDFn != nil {
		return m.getByFileIDFn(ctx, fileID)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) ExistsByFileID(ctx context.Context, fileID string) (bool, error) {
	if m.existsByFileIDFn != nil {
		return m.existsByFileIDFn(ctx, fileID)
	}
	return false, nil
}

func (m *mockFileRepo) Delete(ctx context.Context, fileID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, fileID)
	}
	return nil
}

func (m *mockFileRepo) IncrementDownloads(ctx context.Context, fileID string) (int64, error) {
	if m.incrementDownloadsFn != nil {
		return m.incrementDownloadsFn(ctx, fileID)
	}
	return 1, nil
}

func (m *mockFileRepo) List(ctx context.Context, filter repository.FileFilter, limit, offset int) ([]*model.ProjectionFile, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter, limit, offset)
	}
	return nil, nil
}

func (m *mockFileRepo) Count(ctx context.Context, filter repository.FileFilter) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, filter)
	}
	return 0, nil
}

func (m *mockFileRepo) Stats(ctx context.Context, userID *string) (*model.FileStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, userID)
	}
	return &model.FileStats{FileTypes: map[string]int64{}}, nil
}

// --- API-ключи ---

type mockAPIKeyRepo struct {
	createFn            func(ctx context.Context, k *model.APIKey) error
	listByUserFn        func(ctx context.Context, userID string) ([]*model.APIKey, error)
	countActiveByUserFn func(ctx context.Context, userID string) (int, error)
	getByHashFn         func(ctx context.Context, keyHash string) (*model.APIKey, error)
	deactivateFn        func(ctx context.Context, userID, id string) error
	touchUsageFn        func(ctx context.Context, id string, at time.Time) error
	countActiveFn       func(ctx context.Context) (int64, error)
}

func (m *mockAPIKeyRepo) Create(ctx context.Context, k *model.APIKey) error {
	if m.createFn != nil {
		return m.createFn(ctx, k)
	}
	k.ID = "key-1"
	k.IsActive = true
	return nil
}

func (m *mockAPIKeyRepo) ListByUser(ctx context.Context, userID string) ([]*model.APIKey, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockAPIKeyRepo) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	if m.countActiveByUserFn != nil {
		return m.countActiveByUserFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockAPIKeyRepo) GetByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	if m.getByHashFn != nil {
		return m.getByHashFn(ctx, keyHash)
	}
	return nil, repository.ErrNotFound
}

func (m *mockAPIKeyRepo) Deactivate(ctx context.Context, userID, id string) error {
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, userID, id)
	}
	return nil
}

func (m *mockAPIKeyRepo) TouchUsage(ctx context.Context, id string, at time.Time) error {
	if m.touchUsageFn != nil {
		return m.touchUsageFn(ctx, id, at)
	}
	return nil
}

func (m *mockAPIKeyRepo) CountActive(ctx context.Context) (int64, error) {
	if m.countActiveFn != nil {
		return m.countActiveFn(ctx)
	}
	return 0, nil
}

// --- Журналы ---

// mockAuditRepo запоминает записанные журналы.
type mockAuditRepo struct {
	mu              sync.Mutex
	systemLogs      []*model.SystemLog
	accessLogs      []*model.FileAccessLog
	countAccessFn   func(ctx context.Context, accessType string, since time.Time) (int64, error)
	createSystemErr error
}

func (m *mockAuditRepo) CreateSystemLog(_ context.Context, l *model.SystemLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createSystemErr != nil {
		return m.createSystemErr
	}
	m.systemLogs = append(m.systemLogs, l)
	return nil
}

func (m *mockAuditRepo) CreateAccessLog(_ context.Context, l *model.FileAccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessLogs = append(m.accessLogs, l)
	return nil
}

func (m *mockAuditRepo) CountAccessSince(ctx context.Context, accessType string, since time.Time) (int64, error) {
	if m.countAccessFn != nil {
		return m.countAccessFn(ctx, accessType, since)
	}
	return 0, nil
}

func (m *mockAuditRepo) accessTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.accessLogs))
	for _, l := range m.accessLogs {
		types = append(types, l.AccessType)
	}
	return types
}

// --- Дневная статистика ---

type mockStatsRepo struct {
	upsertFn     func(ctx context.Context, s *model.DailyStats) error
	listRecentFn func(ctx context.Context, days int) ([]*model.DailyStats, error)
}

func (m *mockStatsRepo) Upsert(ctx context.Context, s *model.DailyStats) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, s)
	}
	return nil
}

func (m *mockStatsRepo) ListRecent(ctx context.Context, days int) ([]*model.DailyStats, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, days)
	}
	return nil, nil
}

// --- Внешние адаптеры ---

// mockStorage — мок ObjectStorage.
type mockStorage struct {
	presignPutFn func(ctx context.Context, key string, ttl time.Duration) (string, error)
	presignGetFn func(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
	putFn        func(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

func (m *mockStorage) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.presignPutFn != nil {
		return m.presignPutFn(ctx, key, ttl)
	}
	return "https://storage.test/" + key + "?X-Amz-Signature=put", nil
}

func (m *mockStorage) PresignGet(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	if m.presignGetFn != nil {
		return m.presignGetFn(ctx, key, filename, ttl)
	}
	return "https://storage.test/" + key + "?X-Amz-Signature=get", nil
}

func (m *mockStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.putFn != nil {
		return m.putFn(ctx, key, r, size, contentType)
	}
	_, err := io.Copy(io.Discard, r)
	return err
}

// mockMailer запоминает отправленные коды.
type mockMailer struct {
	mu          sync.Mutex
	codes       map[string]string
	welcomed    []string
	sendCodeErr error
}

func (m *mockMailer) SendVerificationCode(_ context.Context, to, code, _ string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendCodeErr != nil {
		return m.sendCodeErr
	}
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[to] = code
	return nil
}

func (m *mockMailer) SendWelcome(_ context.Context, to, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomed = append(m.welcomed, to)
	return nil
}

func (m *mockMailer) codeFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}
