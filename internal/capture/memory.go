package capture

import (
	"context"
	"sync"
)

// MemoryDevice replays prepared frame batches. It exists for tests and for
// running the pipeline against recorded audio.
type MemoryDevice struct {
	frames [][]float32

	mu      sync.Mutex
	started bool
}

// NewMemoryDevice creates a device that will hand out the given batches in
// order, one per Read.
func NewMemoryDevice(frames [][]float32) *MemoryDevice {
	return &MemoryDevice{frames: frames}
}

func (d *MemoryDevice) Start(ctx context.Context, cfg Config) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil, NewDeviceError(CodeDeviceBusy, ErrDeviceClosed)
	}
	d.started = true

	s := &memorySession{
		device: d,
		frames: append([][]float32(nil), d.frames...),
		closed: make(chan struct{}),
	}
	return s, nil
}

type memorySession struct {
	device *MemoryDevice

	mu     sync.Mutex
	frames [][]float32

	closeOnce sync.Once
	closed    chan struct{}
}

// Read returns the next prepared batch. When the batches are exhausted it
// blocks until Stop, mirroring a live microphone that simply has no more
// speech.
func (s *memorySession) Read(ctx context.Context) ([]float32, error) {
	s.mu.Lock()
	if len(s.frames) > 0 {
		frames := s.frames[0]
		s.frames = s.frames[1:]
		s.mu.Unlock()
		return frames, nil
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrDeviceClosed
	}
}

func (s *memorySession) Stop() error {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.device.mu.Lock()
		s.device.started = false
		s.device.mu.Unlock()
	})
	return nil
}
