// Пакет server — HTTP-сервер Neptunium с graceful shutdown.
// Функции доступны по каноническим путям и под префиксами /api и
// /.netlify/functions для существующих клиентов и плагинов.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	apierrors "github.com/bigkaa/neptunium/internal/api/errors"
	"github.com/bigkaa/neptunium/internal/api/handlers"
	"github.com/bigkaa/neptunium/internal/api/middleware"
	"github.com/bigkaa/neptunium/internal/api/openapi"
	"github.com/bigkaa/neptunium/internal/config"
)

// aliasPrefixes — префиксы, под которыми дублируются маршруты функций.
var aliasPrefixes = []string{"", "/api", "/.netlify/functions"}

// Server — HTTP-сервер Neptunium.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// RouterDeps — обработчики и middleware, из которых собирается роутер.
type RouterDeps struct {
	API         *handlers.APIHandler
	Health      *handlers.HealthHandler
	Auth        *middleware.Auth
	CORSOrigins []string
	Logger      *slog.Logger

	// Доверенные прокси для определения адреса клиента
	TrustedProxies []netip.Prefix
}

// NewRouter собирает chi-роутер со всеми маршрутами и middleware.
func NewRouter(deps RouterDeps) chi.Router {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.Recoverer)
	router.Use(middleware.RequestID())
	router.Use(middleware.RealIP(deps.TrustedProxies))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.HeaderAPIKey, middleware.HeaderRequestID},
		ExposedHeaders: []string{middleware.HeaderRequestID},
		MaxAge:         300,
	}))

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "Маршрут не найден")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.MethodNotAllowed(w, "Метод не поддерживается")
	})

	// Пробы и метрики проверяются напрямую, без алиасов.
	router.Get("/health/live", deps.Health.HealthLive)
	router.Get("/health/ready", deps.Health.HealthReady)
	router.Get("/metrics", deps.Health.GetMetrics)
	router.Method(http.MethodGet, "/openapi.yaml", openapi.Handler())

	for _, prefix := range aliasPrefixes {
		mountFunctions(router, prefix, deps)
	}

	return router
}

// mountFunctions регистрирует маршруты функций под префиксом prefix.
func mountFunctions(r chi.Router, prefix string, deps RouterDeps) {
	api := deps.API
	requireUser := deps.Auth.RequireUser()

	for _, p := range []string{"/auth/register", "/auth-register"} {
		r.Post(prefix+p, api.Register)
	}
	for _, p := range []string{"/auth/verify-email", "/auth-verify-email"} {
		r.Post(prefix+p, api.VerifyEmail)
	}
	for _, p := range []string{"/auth/login", "/auth-login"} {
		r.Post(prefix+p, api.Login)
	}

	r.With(requireUser).Get(prefix+"/api-key", api.ListAPIKeys)
	r.With(requireUser).Post(prefix+"/api-key", api.CreateAPIKey)
	r.With(requireUser).Delete(prefix+"/api-key", api.DeactivateAPIKey)

	r.With(deps.Auth.OptionalUser()).Post(prefix+"/upload-file", api.UploadFile)
	r.With(deps.Auth.OptionalIdentity()).Get(prefix+"/projection", api.GetProjection)

	r.With(requireUser).Get(prefix+"/files-history", api.FilesHistory)
	r.With(requireUser).Get(prefix+"/dashboard-stats", api.DashboardStats)

	r.Get(prefix+"/health", deps.Health.Health)
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
