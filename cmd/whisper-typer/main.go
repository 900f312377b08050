package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ThisTrick/whisper-typer-ui/internal/capture"
	"github.com/ThisTrick/whisper-typer-ui/internal/config"
	"github.com/ThisTrick/whisper-typer-ui/internal/insert"
	"github.com/ThisTrick/whisper-typer-ui/internal/metrics"
	"github.com/ThisTrick/whisper-typer-ui/internal/overlay"
	"github.com/ThisTrick/whisper-typer-ui/internal/server"
	"github.com/ThisTrick/whisper-typer-ui/internal/session"
	"github.com/ThisTrick/whisper-typer-ui/internal/transcribe"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "whisper-typer-ui"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	startSession := flag.Bool("start", false, "Start a dictation session immediately")
	flag.Parse()

	// Secrets (API keys) come from the environment, optionally via .env.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Bool("streaming", cfg.Streaming.Enabled),
		slog.Float64("chunk_duration", cfg.Streaming.ChunkDuration),
		slog.Int("workers", cfg.Streaming.Workers),
		slog.String("transcription_backend", cfg.Transcription.Backend),
		slog.String("insertion_tool", cfg.Insertion.Tool),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	engine, err := transcribe.NewEngine(&cfg.Transcription)
	if err != nil {
		logger.Error("Failed to create transcription engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer engine.Close()
	logger.Info("Transcription engine initialized",
		slog.String("backend", cfg.Transcription.Backend),
	)

	inserter, err := buildInserter(cfg.Insertion.Tool)
	if err != nil {
		logger.Error("Failed to create text inserter", slog.String("error", err.Error()))
		os.Exit(1)
	}

	device := capture.NewFFmpegDevice(cfg.Audio.FFmpegPath)
	notifier := overlay.NewLogNotifier(logger)

	controller := session.NewController(cfg, device, engine, inserter, notifier, appMetrics, logger)

	var httpServer *server.HTTPServer
	if cfg.Control.Enabled {
		httpServer = server.NewHTTPServer(cfg.Control, logger, cfg, controller, engine, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start control API server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	if *startSession {
		if err := controller.Start(ctx); err != nil {
			logger.Error("Failed to start dictation session", slog.String("error", err.Error()))
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop accepting control requests first, then wind the session down.
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping control API server", slog.String("error", err.Error()))
		}
	}

	if err := controller.Close(); err != nil {
		logger.Error("Error closing session controller", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
}

// buildInserter creates the configured text inserter
func buildInserter(tool string) (insert.Inserter, error) {
	if tool == "stdout" {
		return insert.NewWriterInserter(os.Stdout), nil
	}
	return insert.NewToolInserter(tool)
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
