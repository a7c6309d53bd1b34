// metrics.go — Prometheus HTTP метрики Neptunium.
// Регистрирует метрики: np_http_requests_total, np_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "np_http_requests_total",
			Help: "Общее количество HTTP-запросов к Neptunium",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "np_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Neptunium в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Алиасы /api/* и /.netlify/functions/* сводятся к одному лейблу
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// knownPaths — канонические пути для лейблов метрик.
var knownPaths = map[string]string{
	"auth/register":     "/auth/register",
	"auth-register":     "/auth/register",
	"auth/verify-email": "/auth/verify-email",
	"auth-verify-email": "/auth/verify-email",
	"auth/login":        "/auth/login",
	"auth-login":        "/auth/login",
	"api-key":           "/api-key",
	"upload-file":       "/upload-file",
	"projection":        "/projection",
	"files-history":     "/files-history",
	"dashboard-stats":   "/dashboard-stats",
	"health":            "/health",
	"health/live":       "/health/live",
	"health/ready":      "/health/ready",
	"metrics":           "/metrics",
	"openapi.yaml":      "/openapi.yaml",
}

// normalizePath приводит путь к каноническому виду, снимая префиксы алиасов.
// Неизвестные пути сводятся к "other" для ограничения кардинальности.
// /.netlify/functions/auth-login → /auth/login
func normalizePath(path string) string {
	p := strings.TrimSuffix(path, "/")
	for _, prefix := range []string{"/.netlify/functions/", "/api/"} {
		if rest, ok := strings.CutPrefix(p, prefix); ok {
			p = "/" + rest
			break
		}
	}
	if canonical, ok := knownPaths[strings.TrimPrefix(p, "/")]; ok {
		return canonical
	}
	return "other"
}
