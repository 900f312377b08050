package capture

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryDeviceReplaysFrames(t *testing.T) {
	batches := [][]float32{
		{0.1, 0.2},
		{0.3},
	}
	device := NewMemoryDevice(batches)

	session, err := device.Start(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer session.Stop()

	for i, want := range batches {
		got, err := session.Read(context.Background())
		if err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
		if len(got) != len(want) {
			t.Errorf("Read %d: expected %d samples, got %d", i, len(want), len(got))
		}
	}
}

func TestMemoryDeviceBlocksWhenExhausted(t *testing.T) {
	device := NewMemoryDevice(nil)

	session, err := device.Start(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := session.Read(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded while exhausted, got %v", err)
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := session.Read(context.Background()); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("expected ErrDeviceClosed after Stop, got %v", err)
	}
}

func TestMemoryDeviceRejectsDoubleStart(t *testing.T) {
	device := NewMemoryDevice(nil)

	session, err := device.Start(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	if _, err := device.Start(context.Background(), Config{SampleRate: 16000, Channels: 1}); err == nil {
		t.Fatal("expected second Start to fail while the first session is open")
	} else {
		var devErr *DeviceError
		if !errors.As(err, &devErr) || devErr.Code != CodeDeviceBusy {
			t.Errorf("expected a busy device error, got %v", err)
		}
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Stopping releases the device for a fresh session.
	again, err := device.Start(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("restart after Stop failed: %v", err)
	}
	again.Stop()
}
