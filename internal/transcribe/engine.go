package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/ThisTrick/whisper-typer-ui/internal/config"
)

// Engine converts captured audio into text. Implementations may block for
// seconds per call and must be safe for concurrent use by the session worker
// pool. Failures are returned as errors, never panics.
type Engine interface {
	// Transcribe converts normalized mono samples at the given rate to text.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)

	// Close releases backend resources. No Transcribe calls may follow.
	Close() error
}

// TranscriptionError wraps a backend failure so callers can distinguish
// engine problems from capture problems.
type TranscriptionError struct {
	Backend string
	Err     error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed (%s backend): %v", e.Backend, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// EngineStats reports backend request statistics for monitoring.
type EngineStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// StatsProvider is implemented by engines that track request statistics.
type StatsProvider interface {
	GetStats() EngineStats
}

// NewEngine builds the engine selected by the transcription configuration.
func NewEngine(cfg *config.TranscriptionConfig) (Engine, error) {
	switch cfg.Backend {
	case "server":
		return NewServerEngine(ServerConfig{
			Endpoint:   cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Language:   cfg.Language,
			Model:      cfg.Model,
			Timeout:    cfg.GetTimeoutDuration(),
			MaxRetries: cfg.MaxRetries,
		})
	case "openai":
		return NewOpenAIEngine(OpenAIConfig{
			APIKey:   cfg.APIKey,
			Language: cfg.Language,
			Timeout:  cfg.GetTimeoutDuration(),
		})
	case "whisper":
		return NewWhisperEngine(WhisperConfig{
			ModelPath: cfg.Model,
			Language:  cfg.Language,
		})
	default:
		return nil, fmt.Errorf("unknown transcription backend: %s", cfg.Backend)
	}
}
