package audio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestProducerSubmitsAtCadence(t *testing.T) {
	buffer := NewCaptureBuffer(16000)

	var mu sync.Mutex
	var got []*AudioChunk
	submit := func(chunk *AudioChunk) {
		mu.Lock()
		got = append(got, chunk)
		mu.Unlock()
	}

	producer := NewProducer(buffer, 20*time.Millisecond, submit, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go producer.Run(ctx)

	// Feed audio across several ticks.
	for i := 0; i < 5; i++ {
		buffer.Append(make([]float32, 1000))
		time.Sleep(25 * time.Millisecond)
	}

	cancel()
	<-producer.Done()

	mu.Lock()
	defer mu.Unlock()

	if len(got) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(got))
	}
	for i, chunk := range got {
		if chunk.Sequence != i {
			t.Errorf("chunk %d has sequence %d", i, chunk.Sequence)
		}
		if len(chunk.Samples) == 0 {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

func TestProducerSkipsEmptyTicks(t *testing.T) {
	buffer := NewCaptureBuffer(16000)

	var mu sync.Mutex
	count := 0
	submit := func(chunk *AudioChunk) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	producer := NewProducer(buffer, 10*time.Millisecond, submit, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go producer.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-producer.Done()

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("expected no submissions from an idle buffer, got %d", count)
	}
}

func TestProducerStopsOnCancel(t *testing.T) {
	buffer := NewCaptureBuffer(16000)
	producer := NewProducer(buffer, 10*time.Millisecond, func(*AudioChunk) {}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go producer.Run(ctx)
	cancel()

	select {
	case <-producer.Done():
	case <-time.After(time.Second):
		t.Fatal("producer did not stop after cancellation")
	}
}
