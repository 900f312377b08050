package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// FFmpegDevice captures microphone PCM audio through an ffmpeg subprocess.
type FFmpegDevice struct {
	command string
}

// NewFFmpegDevice creates a device backed by the given ffmpeg binary.
func NewFFmpegDevice(command string) *FFmpegDevice {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegDevice{command: command}
}

func defaultInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

// Start launches ffmpeg reading the input device and emitting raw s16le mono
// PCM on stdout. An immediate exit is surfaced as a classified DeviceError.
func (d *FFmpegDevice) Start(ctx context.Context, cfg Config) (Session, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	device := cfg.Device
	if device == "" {
		device = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", defaultInputFormat(),
		"-i", device,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, d.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, NewDeviceError(CodeNoDevice, fmt.Errorf("failed to start ffmpeg: %w", err))
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// ffmpeg reports unusable devices by exiting right away.
	select {
	case err := <-waitErr:
		msg := strings.TrimSpace(stderr.String())
		if err == nil {
			err = errors.New("ffmpeg exited before capture started")
		}
		return nil, classifyStartFailure(fmt.Errorf("%w: %s", err, msg))
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

func classifyStartFailure(err error) *DeviceError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied"):
		return NewDeviceError(CodePermissionDenied, err)
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use"):
		return NewDeviceError(CodeDeviceBusy, err)
	default:
		return NewDeviceError(CodeNoDevice, err)
	}
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
	stopped  atomic.Bool
}

// Read blocks for the next batch of frames and converts them to normalized
// float32 samples.
func (s *ffmpegSession) Read(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.stopped.Load() {
		return nil, ErrDeviceClosed
	}

	raw := make([]byte, 4096)
	n, err := s.stdout.Read(raw)
	if n == 0 && err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
			return nil, ErrDeviceClosed
		}
		return nil, fmt.Errorf("failed to read capture stream: %w", err)
	}

	// Whole s16le frames only; a trailing odd byte is dropped.
	samples := make([]float32, n/2)
	for i := range samples {
		pcm := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		samples[i] = float32(pcm) / 32768.0
	}

	return samples, nil
}

// Stop interrupts ffmpeg, waits for it to exit and releases the device.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)

		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	// An interrupt-driven exit is the expected shutdown path.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
