package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/neptunium/internal/api/handlers"
	"github.com/bigkaa/neptunium/internal/api/middleware"
	"github.com/bigkaa/neptunium/internal/domain/model"
	"github.com/bigkaa/neptunium/internal/service"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubAuth отвечает на вход фиксированным пользователем и считает вызовы.
type stubAuth struct {
	logins int
}

func (s *stubAuth) Register(_ context.Context, in service.RegisterInput) (*service.RegisterResult, error) {
	return &service.RegisterResult{Message: "ok", Email: in.Email, ExpiresIn: 600}, nil
}

func (s *stubAuth) VerifyEmail(context.Context, service.VerifyInput) (*service.AuthResult, error) {
	return nil, service.ErrCodeInvalid
}

func (s *stubAuth) Login(_ context.Context, in service.LoginInput) (*service.AuthResult, error) {
	s.logins++
	return &service.AuthResult{User: &model.User{ID: "user-1", Email: in.Email, IsVerified: true}, Token: "t", ExpiresIn: 86400}, nil
}

type stubKeys struct{}

func (stubKeys) Create(context.Context, string, service.CreateKeyInput, service.RequestMeta) (*service.CreatedKey, error) {
	return nil, service.ErrKeyLimitExceeded
}

func (stubKeys) List(context.Context, string) ([]*model.APIKey, error) { return nil, nil }

func (stubKeys) Deactivate(context.Context, string, string, service.RequestMeta) error { return nil }

type stubFiles struct{}

func (stubFiles) CreateUpload(context.Context, service.UploadInput, service.Requester, service.RequestMeta) (*service.UploadResult, error) {
	return nil, service.ErrIDSpaceExhausted
}

func (stubFiles) UploadDirect(context.Context, service.DirectUploadInput, service.Requester, service.RequestMeta) (*model.ProjectionFile, error) {
	return nil, service.ErrIDSpaceExhausted
}

func (stubFiles) Projection(context.Context, string, string, service.Requester, service.RequestMeta) (*service.ProjectionResult, error) {
	return nil, service.ErrNotFound
}

func (stubFiles) History(_ context.Context, _ string, q service.HistoryQuery) (*service.HistoryResult, error) {
	return &service.HistoryResult{Query: q}, nil
}

type stubDashboard struct{}

func (stubDashboard) Stats(context.Context, string, service.RequestMeta) (*service.DashboardStats, error) {
	return &service.DashboardStats{}, nil
}

type okChecker struct{}

func (okChecker) CheckReady() (string, string) { return "ok", "ok" }

func testRouter(t *testing.T) (chi.Router, *stubAuth, *service.TokenIssuer) {
	t.Helper()
	auth := &stubAuth{}
	tokens := service.NewTokenIssuer(testSecret, "neptunium", time.Hour)
	api := handlers.NewAPIHandler(auth, stubKeys{}, stubFiles{}, stubDashboard{}, 1024, testLogger())
	health := handlers.NewHealthHandler(handlers.HealthCheckers{
		Database: okChecker{}, Cache: okChecker{}, Storage: okChecker{}, Email: okChecker{},
	}, testLogger())

	router := NewRouter(RouterDeps{
		API:         api,
		Health:      health,
		Auth:        middleware.NewAuth(tokens, nil, testLogger()),
		CORSOrigins: []string{"*"},
		Logger:      testLogger(),
	})
	return router, auth, tokens
}

func TestRouter_LoginAliases(t *testing.T) {
	router, auth, _ := testRouter(t)

	paths := []string{
		"/auth/login",
		"/auth-login",
		"/api/auth/login",
		"/.netlify/functions/auth-login",
		"/.netlify/functions/auth/login",
	}
	for _, path := range paths {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"email":"a@b.co","password":"x"}`))
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, ожидался 200", path, rec.Code)
		}
	}
	if auth.logins != len(paths) {
		t.Errorf("logins = %d, ожидалось %d", auth.logins, len(paths))
	}
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	router, _, tokens := testRouter(t)
	token, _, err := tokens.Issue(&model.User{ID: "user-1", Email: "a@b.co"})
	if err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"/api-key", "/files-history", "/dashboard-stats", "/.netlify/functions/api-key", "/api/dashboard-stats"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("без токена: status = %d, ожидался 401", rec.Code)
			}

			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("с токеном: status = %d, ожидался 200 (%s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRouter_PublicRoutes(t *testing.T) {
	router, _, _ := testRouter(t)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/projection?id=123456", http.StatusNotFound},
		{http.MethodGet, "/.netlify/functions/projection?id=123456", http.StatusNotFound},
		{http.MethodPost, "/upload-file", http.StatusBadRequest},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/health/live", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/openapi.yaml", http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.wantStatus {
			t.Errorf("%s %s: status = %d, ожидался %d", tt.method, tt.path, rec.Code, tt.wantStatus)
		}
	}
}

func TestRouter_ErrorsUseEnvelope(t *testing.T) {
	router, _, _ := testRouter(t)

	tests := []struct {
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{http.MethodPut, "/api-key", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{http.MethodGet, "/auth/login", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{http.MethodGet, "/unknown", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.wantStatus {
			t.Errorf("%s %s: status = %d, ожидался %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			continue
		}
		var body struct {
			Success bool   `json:"success"`
			Code    string `json:"code"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Success || body.Code != tt.wantCode {
			t.Errorf("%s %s: тело = %s", tt.method, tt.path, rec.Body.String())
		}
	}
}

func TestRouter_CORSAndRequestID(t *testing.T) {
	router, _, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/upload-file", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, X-API-Key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, ожидался *", got)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Header().Get(middleware.HeaderRequestID) == "" {
		t.Error("ожидался заголовок X-Request-ID")
	}
}
