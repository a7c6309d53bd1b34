package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/bigkaa/neptunium/internal/api/middleware"
	"github.com/bigkaa/neptunium/internal/domain/model"
	"github.com/bigkaa/neptunium/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockAuth — мок для AuthUseCase.
type mockAuth struct {
	registerFn func(ctx context.Context, in service.RegisterInput) (*service.RegisterResult, error)
	verifyFn   func(ctx context.Context, in service.VerifyInput) (*service.AuthResult, error)
	loginFn    func(ctx context.Context, in service.LoginInput) (*service.AuthResult, error)
}

func (m *mockAuth) Register(ctx context.Context, in service.RegisterInput) (*service.RegisterResult, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return &service.RegisterResult{Message: "Код отправлен", Email: in.Email, ExpiresIn: 600}, nil
}

func (m *mockAuth) VerifyEmail(ctx context.Context, in service.VerifyInput) (*service.AuthResult, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, in)
	}
	return nil, service.ErrCodeInvalid
}

func (m *mockAuth) Login(ctx context.Context, in service.LoginInput) (*service.AuthResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, in)
	}
	return nil, service.ErrInvalidCredentials
}

// mockKeys — мок для APIKeyUseCase.
type mockKeys struct {
	createFn     func(ctx context.Context, userID string, in service.CreateKeyInput) (*service.CreatedKey, error)
	listFn       func(ctx context.Context, userID string) ([]*model.APIKey, error)
	deactivateFn func(ctx context.Context, userID, keyID string) error
}

func (m *mockKeys) Create(ctx context.Context, userID string, in service.CreateKeyInput, _ service.RequestMeta) (*service.CreatedKey, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return nil, service.ErrKeyLimitExceeded
}

func (m *mockKeys) List(ctx context.Context, userID string) ([]*model.APIKey, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockKeys) Deactivate(ctx context.Context, userID, keyID string, _ service.RequestMeta) error {
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, userID, keyID)
	}
	return nil
}

// mockFiles — мок для FileUseCase.
type mockFiles struct {
	createUploadFn func(ctx context.Context, in service.UploadInput, requester service.Requester) (*service.UploadResult, error)
	uploadDirectFn func(ctx context.Context, in service.DirectUploadInput, requester service.Requester) (*model.ProjectionFile, error)
	projectionFn   func(ctx context.Context, fileID, action string, requester service.Requester) (*service.ProjectionResult, error)
	historyFn      func(ctx context.Context, userID string, q service.HistoryQuery) (*service.HistoryResult, error)
}

func (m *mockFiles) CreateUpload(ctx context.Context, in service.UploadInput, requester service.Requester, _ service.RequestMeta) (*service.UploadResult, error) {
	if m.createUploadFn != nil {
		return m.createUploadFn(ctx, in, requester)
	}
	return nil, service.ErrIDSpaceExhausted
}

func (m *mockFiles) UploadDirect(ctx context.Context, in service.DirectUploadInput, requester service.Requester, _ service.RequestMeta) (*model.ProjectionFile, error) {
	if m.uploadDirectFn != nil {
		return m.uploadDirectFn(ctx, in, requester)
	}
	return nil, service.ErrIDSpaceExhausted
}

func (m *mockFiles) Projection(ctx context.Context, fileID, action string, requester service.Requester, _ service.RequestMeta) (*service.ProjectionResult, error) {
	if m.projectionFn != nil {
		return m.projectionFn(ctx, fileID, action, requester)
	}
	return nil, service.ErrNotFound
}

func (m *mockFiles) History(ctx context.Context, userID string, q service.HistoryQuery) (*service.HistoryResult, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID, q)
	}
	return &service.HistoryResult{Query: q}, nil
}

// mockDashboard — мок для DashboardUseCase.
type mockDashboard struct {
	statsFn func(ctx context.Context, userID string) (*service.DashboardStats, error)
}

func (m *mockDashboard) Stats(ctx context.Context, userID string, _ service.RequestMeta) (*service.DashboardStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, userID)
	}
	return &service.DashboardStats{}, nil
}

// stubChecker — фиксированный результат проверки готовности.
type stubChecker struct {
	status  string
	message string
}

func (s stubChecker) CheckReady() (string, string) { return s.status, s.message }

// testHandler собирает APIHandler с моками; nil-аргументы заменяются пустыми моками.
func testHandler(auth *mockAuth, keys *mockKeys, files *mockFiles, dashboard *mockDashboard) *APIHandler {
	if auth == nil {
		auth = &mockAuth{}
	}
	if keys == nil {
		keys = &mockKeys{}
	}
	if files == nil {
		files = &mockFiles{}
	}
	if dashboard == nil {
		dashboard = &mockDashboard{}
	}
	return NewAPIHandler(auth, keys, files, dashboard, 1024, testLogger())
}

// asUser помещает личность пользователя в контекст запроса.
func asUser(r *http.Request, requester service.Requester) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.ContextKeyRequester, requester)
	return r.WithContext(ctx)
}

// testEnvelope — разобранный ответ.
type testEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("ответ не JSON: %v (%s)", err, rec.Body.String())
	}
	return env
}

func decodeData(t *testing.T, env testEnvelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("data не разбирается: %v (%s)", err, string(env.Data))
	}
}
