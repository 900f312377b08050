package capture

import (
	"context"
	"errors"
	"fmt"
)

// Error codes for capture setup failures.
const (
	CodeNoDevice         = "NO_DEVICE"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeDeviceBusy       = "DEVICE_BUSY"
)

// DeviceError describes a capture device failure with a stable code so that
// callers can present device problems distinctly from transcription problems.
type DeviceError struct {
	Code string
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture device error [%s]: %v", e.Code, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// NewDeviceError wraps err with a capture error code.
func NewDeviceError(code string, err error) *DeviceError {
	return &DeviceError{Code: code, Err: err}
}

// ErrDeviceClosed is returned by Read after Stop or Close.
var ErrDeviceClosed = errors.New("capture device closed")

// Config describes how to open the capture device.
type Config struct {
	SampleRate int
	Channels   int
	Device     string // input device name, "" for the system default
}

// Session is an open capture stream. Read blocks until frames are available
// and returns normalized mono float32 samples. After Stop, Read returns
// ErrDeviceClosed (or io.EOF from the underlying stream).
type Session interface {
	Read(ctx context.Context) ([]float32, error)
	Stop() error
}

// Device opens capture sessions. A session owns the underlying hardware
// exclusively; it must be stopped before another session can start.
type Device interface {
	Start(ctx context.Context, cfg Config) (Session, error)
}
