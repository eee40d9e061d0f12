package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cleanslate/cleanslate/internal/config"
	"github.com/cleanslate/cleanslate/internal/observability"
	"github.com/cleanslate/cleanslate/internal/pipeline"
	"github.com/cleanslate/cleanslate/internal/session"
)

type ReadinessCheck func(ctx context.Context) error

type Dependencies struct {
	Logger            *slog.Logger
	Store             *session.Store
	Pipeline          *pipeline.Pipeline
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	// PreviewRows caps response previews; zero means 5.
	PreviewRows int
	// MaxUploadBytes caps upload body size; zero means no extra cap.
	MaxUploadBytes int64
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/upload", func(w http.ResponseWriter, r *http.Request) {
		handleUpload(deps, w, r)
	})
	mux.HandleFunc("POST /v1/process", func(w http.ResponseWriter, r *http.Request) {
		handleProcess(deps, w, r)
	})
	mux.HandleFunc("POST /v1/undo", func(w http.ResponseWriter, r *http.Request) {
		handleUndo(deps, w, r)
	})
	mux.HandleFunc("GET /v1/download/{session}", func(w http.ResponseWriter, r *http.Request) {
		handleDownload(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
		corsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// corsMiddleware allows any origin, matching the original development
// posture of the service. Production deployments should front this with a
// stricter policy.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Filename, X-Trace-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

func previewRows(deps Dependencies) int {
	if deps.PreviewRows > 0 {
		return deps.PreviewRows
	}
	return 5
}

func writeSessionNotFound(ctx context.Context, w http.ResponseWriter) {
	writeError(ctx, w, http.StatusNotFound, "SESSION_NOT_FOUND", "session is unknown or expired, upload again", false, nil)
}

func isSessionNotFound(err error) bool {
	return errors.Is(err, session.ErrNotFound)
}
