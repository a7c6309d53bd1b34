// health.go — обработчики health endpoints Neptunium.
// /health — сводное состояние сервисов (database, cache, storage, email)
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (PostgreSQL, кэш и хранилище доступны)
// /metrics — Prometheus метрики
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/neptunium/internal/config"
)

// serviceName — имя сервиса в ответах health.
const serviceName = "neptunium"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// HealthCheckers — проверки зависимостей. nil означает «не инициализирован».
type HealthCheckers struct {
	Database ReadinessChecker
	Cache    ReadinessChecker
	Storage  ReadinessChecker
	Email    ReadinessChecker
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	checkers    HealthCheckers
	promHandler http.Handler
	startedAt   time.Time
	logger      *slog.Logger
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(checkers HealthCheckers, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checkers:    checkers,
		promHandler: promhttp.Handler(),
		startedAt:   time.Now(),
		logger:      logger.With(slog.String("component", "health")),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		PostgreSQL healthCheckResult `json:"postgresql"`
		Cache      healthCheckResult `json:"cache"`
		Storage    healthCheckResult `json:"storage"`
	} `json:"checks"`
}

// serviceHealth — состояние сервиса в сводном /health.
type serviceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// healthSummary — данные сводного /health.
type healthSummary struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Services  struct {
		Database serviceHealth `json:"database"`
		Cache    serviceHealth `json:"cache"`
		Storage  serviceHealth `json:"storage"`
		Email    serviceHealth `json:"email"`
	} `json:"services"`
	// Uptime — время работы процесса в секундах
	Uptime float64 `json:"uptime"`
}

// check выполняет проверку; nil-проверка считается отказом.
func check(c ReadinessChecker) healthCheckResult {
	if c == nil {
		return healthCheckResult{Status: "fail", Message: "не инициализирован"}
	}
	status, msg := c.CheckReady()
	return healthCheckResult{Status: status, Message: msg}
}

// toServiceHealth переводит статус проверки в healthy/unhealthy.
func toServiceHealth(r healthCheckResult) serviceHealth {
	if r.Status == "ok" {
		return serviceHealth{Status: "healthy", Message: r.Message}
	}
	return serviceHealth{Status: "unhealthy", Message: r.Message}
}

// Health — GET /health. Один недоступный сервис даёт degraded (200),
// больше одного — unhealthy (503).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	var summary healthSummary
	summary.Timestamp = time.Now().UTC().Format(time.RFC3339)
	summary.Version = config.Version
	summary.Uptime = time.Since(h.startedAt).Seconds()
	summary.Services.Database = toServiceHealth(check(h.checkers.Database))
	summary.Services.Cache = toServiceHealth(check(h.checkers.Cache))
	summary.Services.Storage = toServiceHealth(check(h.checkers.Storage))
	summary.Services.Email = toServiceHealth(check(h.checkers.Email))

	unhealthy := 0
	for _, s := range []serviceHealth{
		summary.Services.Database, summary.Services.Cache,
		summary.Services.Storage, summary.Services.Email,
	} {
		if s.Status != "healthy" {
			unhealthy++
		}
	}

	status := http.StatusOK
	switch {
	case unhealthy == 0:
		summary.Status = "healthy"
	case unhealthy == 1:
		summary.Status = "degraded"
	default:
		summary.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	if unhealthy > 0 {
		h.logger.WarnContext(r.Context(), "Health check: есть недоступные сервисы",
			slog.String("status", summary.Status),
			slog.Int("unhealthy", unhealthy),
		)
	}

	writeSuccess(w, status, "Сервис в состоянии "+summary.Status, summary)
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe. Проверяет PostgreSQL, кэш и хранилище.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}
	resp.Checks.PostgreSQL = check(h.checkers.Database)
	resp.Checks.Cache = check(h.checkers.Cache)
	resp.Checks.Storage = check(h.checkers.Storage)

	resp.Status = overallStatus(resp.Checks.PostgreSQL.Status, resp.Checks.Cache.Status, resp.Checks.Storage.Status)

	status := http.StatusOK
	if resp.Status == "fail" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
