// This file contains the native whisper.cpp backend (CGO bindings). The
// whisper.cpp static library (libwhisper.a) and headers (whisper.h) must be
// available at link time via LIBRARY_PATH and C_INCLUDE_PATH.

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperConfig contains native whisper.cpp backend configuration
type WhisperConfig struct {
	ModelPath string
	Language  string
}

// WhisperEngine runs whisper.cpp inference in-process. The model is loaded
// once and shared; each Transcribe call creates its own context because
// contexts are not safe for concurrent use, while the model is.
type WhisperEngine struct {
	model    whisperlib.Model
	language string
}

// NewWhisperEngine loads the whisper.cpp model from the given path
func NewWhisperEngine(config WhisperConfig) (*WhisperEngine, error) {
	if config.ModelPath == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}

	model, err := whisperlib.New(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load whisper model %q: %w", config.ModelPath, err)
	}

	language := config.Language
	if language == "" {
		language = "en"
	}

	return &WhisperEngine{
		model:    model,
		language: language,
	}, nil
}

// Transcribe runs inference on the samples and returns the joined segments.
func (e *WhisperEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", &TranscriptionError{Backend: "whisper", Err: err}
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return "", &TranscriptionError{Backend: "whisper", Err: fmt.Errorf("failed to create context: %w", err)}
	}

	if err := wctx.SetLanguage(e.language); err != nil {
		slog.Warn("Failed to set whisper language, using default",
			slog.String("language", e.language),
			slog.String("error", err.Error()))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", &TranscriptionError{Backend: "whisper", Err: fmt.Errorf("failed to process audio: %w", err)}
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", &TranscriptionError{Backend: "whisper", Err: fmt.Errorf("failed to read segment: %w", err)}
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// Close releases the whisper model
func (e *WhisperEngine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}
