package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ThisTrick/whisper-typer-ui/internal/audio"
)

// OpenAIConfig contains OpenAI audio API configuration
type OpenAIConfig struct {
	APIKey   string
	Language string
	Timeout  time.Duration
}

// OpenAIEngine transcribes audio through the OpenAI audio transcription API.
type OpenAIEngine struct {
	client   *openai.Client
	language string
	timeout  time.Duration
}

// NewOpenAIEngine creates an engine backed by the OpenAI API
func NewOpenAIEngine(config OpenAIConfig) (*OpenAIEngine, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &OpenAIEngine{
		client:   openai.NewClient(config.APIKey),
		language: config.Language,
		timeout:  config.Timeout,
	}, nil
}

// Transcribe uploads the samples as a WAV file and returns the transcript.
func (e *OpenAIEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	wavData, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", &TranscriptionError{Backend: "openai", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "chunk.wav",
		Reader:   bytes.NewReader(wavData),
		Language: e.language,
	})
	if err != nil {
		return "", &TranscriptionError{Backend: "openai", Err: err}
	}

	return resp.Text, nil
}

// Close is a no-op; the API client holds no persistent resources.
func (e *OpenAIEngine) Close() error {
	return nil
}
