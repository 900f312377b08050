package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	Streaming     StreamingConfig     `yaml:"streaming"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Insertion     InsertionConfig     `yaml:"insertion"`
	Control       ControlConfig       `yaml:"control"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// AudioConfig contains microphone capture parameters
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	Device     string `yaml:"device"`
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// StreamingConfig contains streaming transcription parameters
type StreamingConfig struct {
	Enabled       bool    `yaml:"enabled"`
	ChunkDuration float64 `yaml:"chunk_duration"` // seconds
	Workers       int     `yaml:"workers"`
	QueueSize     int     `yaml:"queue_size"`
}

// TranscriptionConfig contains transcription backend configuration
type TranscriptionConfig struct {
	Backend    string `yaml:"backend"` // server, openai, whisper
	Language   string `yaml:"language"`
	Model      string `yaml:"model"`
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Timeout    int    `yaml:"timeout"` // seconds
	MaxRetries int    `yaml:"max_retries"`
}

// InsertionConfig contains text insertion parameters
type InsertionConfig struct {
	Tool          string  `yaml:"tool"` // auto, wtype, xdotool, osascript, stdout
	SettleDelay   float64 `yaml:"settle_delay"`   // seconds, error display before idle
	PendingWait   float64 `yaml:"pending_wait"`   // seconds, max wait for insertions
	PendingPoll   float64 `yaml:"pending_poll"`   // seconds, poll interval while waiting
}

// ControlConfig contains control/monitoring HTTP API configuration
type ControlConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file overrides are given
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			FFmpegPath: "ffmpeg",
		},
		Streaming: StreamingConfig{
			Enabled:       true,
			ChunkDuration: 3.0,
			Workers:       3,
			QueueSize:     32,
		},
		Transcription: TranscriptionConfig{
			Backend:    "server",
			Language:   "en",
			Model:      "base",
			Endpoint:   "http://localhost:8090/transcribe",
			Timeout:    30,
			MaxRetries: 3,
		},
		Insertion: InsertionConfig{
			Tool:        "auto",
			SettleDelay: 2.5,
			PendingWait: 5.0,
			PendingPoll: 0.1,
		},
		Control: ControlConfig{
			Enabled: true,
			Address: "127.0.0.1",
			Port:    8765,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file, applies it over the defaults and
// resolves secret overrides from the environment. An empty path yields
// the validated defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" && config.Transcription.Backend == "openai" {
		config.Transcription.APIKey = key
	}
	if key := os.Getenv("WHISPER_SERVER_API_KEY"); key != "" && config.Transcription.Backend == "server" {
		config.Transcription.APIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Streaming.Validate(); err != nil {
		return fmt.Errorf("streaming config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Insertion.Validate(); err != nil {
		return fmt.Errorf("insertion config: %w", err)
	}

	if err := c.Control.Validate(); err != nil {
		return fmt.Errorf("control config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 8000 && a.SampleRate != 16000 && a.SampleRate != 44100 && a.SampleRate != 48000 {
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 44100, 48000], got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty")
	}

	return nil
}

// Validate validates streaming configuration
func (s *StreamingConfig) Validate() error {
	if s.ChunkDuration < 0.5 || s.ChunkDuration > 30 {
		return fmt.Errorf("chunk_duration must be between 0.5 and 30 seconds, got %f", s.ChunkDuration)
	}

	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}

	if s.QueueSize < s.Workers {
		return fmt.Errorf("queue_size (%d) must be at least the worker count (%d)", s.QueueSize, s.Workers)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	validBackends := map[string]bool{"server": true, "openai": true, "whisper": true}
	if !validBackends[t.Backend] {
		return fmt.Errorf("backend must be one of [server, openai, whisper], got '%s'", t.Backend)
	}

	if t.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	switch t.Backend {
	case "server":
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the server backend")
		}
	case "openai":
		if t.APIKey == "" {
			return fmt.Errorf("api_key cannot be empty for the openai backend (set OPENAI_API_KEY)")
		}
	case "whisper":
		if t.Model == "" {
			return fmt.Errorf("model cannot be empty for the whisper backend")
		}
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	return nil
}

// Validate validates insertion configuration
func (i *InsertionConfig) Validate() error {
	validTools := map[string]bool{
		"auto": true, "wtype": true, "xdotool": true, "osascript": true, "stdout": true,
	}
	if !validTools[i.Tool] {
		return fmt.Errorf("tool must be one of [auto, wtype, xdotool, osascript, stdout], got '%s'", i.Tool)
	}

	if i.SettleDelay < 0 {
		return fmt.Errorf("settle_delay cannot be negative, got %f", i.SettleDelay)
	}

	if i.PendingWait <= 0 {
		return fmt.Errorf("pending_wait must be positive, got %f", i.PendingWait)
	}

	if i.PendingPoll <= 0 || i.PendingPoll > i.PendingWait {
		return fmt.Errorf("pending_poll must be positive and at most pending_wait, got %f", i.PendingPoll)
	}

	return nil
}

// Validate validates control API configuration
func (c *ControlConfig) Validate() error {
	if c.Enabled {
		if c.Port < 1 || c.Port > 65535 {
			return fmt.Errorf("control port must be between 1 and 65535, got %d", c.Port)
		}

		if c.Address == "" {
			return fmt.Errorf("control address cannot be empty when the control API is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetChunkDuration returns the chunk duration as a time.Duration
func (s *StreamingConfig) GetChunkDuration() time.Duration {
	return time.Duration(s.ChunkDuration * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetSettleDelay returns the error settle delay as a time.Duration
func (i *InsertionConfig) GetSettleDelay() time.Duration {
	return time.Duration(i.SettleDelay * float64(time.Second))
}

// GetPendingWait returns the maximum insertion wait as a time.Duration
func (i *InsertionConfig) GetPendingWait() time.Duration {
	return time.Duration(i.PendingWait * float64(time.Second))
}

// GetPendingPoll returns the insertion poll interval as a time.Duration
func (i *InsertionConfig) GetPendingPoll() time.Duration {
	return time.Duration(i.PendingPoll * float64(time.Second))
}
