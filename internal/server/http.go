package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ThisTrick/whisper-typer-ui/internal/config"
	"github.com/ThisTrick/whisper-typer-ui/internal/metrics"
	"github.com/ThisTrick/whisper-typer-ui/internal/session"
	"github.com/ThisTrick/whisper-typer-ui/internal/transcribe"
)

// HTTPServer provides the control and monitoring API for the dictation
// daemon. Hotkey tooling and the CLI drive sessions through it.
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	controller *session.Controller
	engine     transcribe.Engine
	metrics    *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new control API server
func NewHTTPServer(cfg config.ControlConfig, logger *slog.Logger,
	appConfig *config.Config, controller *session.Controller, engine transcribe.Engine, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		controller: controller,
		engine:     engine,
		metrics:    m,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures control API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Monitoring endpoints
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Session control endpoints
	mux.HandleFunc("/session/start", h.withMetrics("/session/start", h.handleSessionStart))
	mux.HandleFunc("/session/stop", h.withMetrics("/session/stop", h.handleSessionStop))
	mux.HandleFunc("/session/toggle", h.withMetrics("/session/toggle", h.handleSessionToggle))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)
		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting control API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("Control API server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping control API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "whisper-typer-ui",
			"version": "1.0.0",
		},
		"session": map[string]interface{}{
			"state": h.controller.State().String(),
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleStatus implements the /status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.controller.GetStatus())
}

// handleSessionStart implements POST /session/start
func (h *HTTPServer) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.controller.Start(r.Context()); err != nil {
		h.writeControlError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": "started",
		"status": h.controller.GetStatus(),
	})
}

// handleSessionStop implements POST /session/stop
func (h *HTTPServer) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.controller.Stop(); err != nil {
		h.writeControlError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": "stopped",
		"status": h.controller.GetStatus(),
	})
}

// handleSessionToggle implements POST /session/toggle
func (h *HTTPServer) handleSessionToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.controller.Toggle(r.Context()); err != nil {
		h.writeControlError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": "toggled",
		"status": h.controller.GetStatus(),
	})
}

// writeControlError maps controller errors to HTTP status codes
func (h *HTTPServer) writeControlError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionActive):
		status = http.StatusConflict
	case errors.Is(err, session.ErrNoActiveSession):
		status = http.StatusConflict
	}

	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Sanitized configuration: the API key is intentionally omitted.
	sanitized := map[string]interface{}{
		"audio": map[string]interface{}{
			"sample_rate": h.config.Audio.SampleRate,
			"channels":    h.config.Audio.Channels,
			"device":      h.config.Audio.Device,
		},
		"streaming": map[string]interface{}{
			"enabled":        h.config.Streaming.Enabled,
			"chunk_duration": h.config.Streaming.ChunkDuration,
			"workers":        h.config.Streaming.Workers,
			"queue_size":     h.config.Streaming.QueueSize,
		},
		"transcription": map[string]interface{}{
			"backend":     h.config.Transcription.Backend,
			"language":    h.config.Transcription.Language,
			"model":       h.config.Transcription.Model,
			"endpoint":    h.config.Transcription.Endpoint,
			"timeout":     h.config.Transcription.Timeout,
			"max_retries": h.config.Transcription.MaxRetries,
		},
		"insertion": map[string]interface{}{
			"tool":         h.config.Insertion.Tool,
			"settle_delay": h.config.Insertion.SettleDelay,
			"pending_wait": h.config.Insertion.PendingWait,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitized)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"session":   h.controller.GetStatus(),
	}

	if provider, ok := h.engine.(transcribe.StatsProvider); ok {
		stats["transcription"] = provider.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "whisper-typer-ui",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                    "API documentation",
			"GET /health":              "Daemon health check",
			"GET /status":              "Current session status",
			"GET /config":              "Daemon configuration",
			"GET /stats":               "Daemon statistics",
			"GET /metrics":             "Prometheus metrics",
			"POST /session/start":      "Start a dictation session",
			"POST /session/stop":       "Stop the running session",
			"POST /session/toggle":     "Start or stop depending on state",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
