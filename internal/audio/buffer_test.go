package audio

import (
	"sync"
	"testing"
)

func TestCaptureBufferAppendAndExtract(t *testing.T) {
	buffer := NewCaptureBuffer(16000)

	frames := make([]float32, 16000) // 1 second
	buffer.Append(frames)

	if got := buffer.Len(); got != 16000 {
		t.Fatalf("expected 16000 buffered samples, got %d", got)
	}

	chunk := buffer.ExtractChunk()
	if chunk.Sequence != 0 {
		t.Errorf("expected sequence 0, got %d", chunk.Sequence)
	}
	if len(chunk.Samples) != 16000 {
		t.Errorf("expected 16000 samples in chunk, got %d", len(chunk.Samples))
	}
	if chunk.StartTime != 0 {
		t.Errorf("expected start time 0, got %f", chunk.StartTime)
	}
	if buffer.Len() != 0 {
		t.Errorf("expected buffer cleared after extraction, got %d samples", buffer.Len())
	}
}

func TestCaptureBufferSequencesAreDense(t *testing.T) {
	buffer := NewCaptureBuffer(16000)

	for i := 0; i < 5; i++ {
		buffer.Append(make([]float32, 8000))
		chunk := buffer.ExtractChunk()
		if chunk.Sequence != i {
			t.Fatalf("extraction %d: expected sequence %d, got %d", i, i, chunk.Sequence)
		}
	}
}

func TestCaptureBufferStartOffsetsAccumulate(t *testing.T) {
	buffer := NewCaptureBuffer(16000)

	// Two 0.5s chunks, then a 1s chunk.
	buffer.Append(make([]float32, 8000))
	first := buffer.ExtractChunk()
	buffer.Append(make([]float32, 8000))
	second := buffer.ExtractChunk()
	buffer.Append(make([]float32, 16000))
	third := buffer.ExtractChunk()

	if first.StartTime != 0 {
		t.Errorf("first chunk start: expected 0, got %f", first.StartTime)
	}
	if second.StartTime != 0.5 {
		t.Errorf("second chunk start: expected 0.5, got %f", second.StartTime)
	}
	if third.StartTime != 1.0 {
		t.Errorf("third chunk start: expected 1.0, got %f", third.StartTime)
	}
	if third.Duration() != 1.0 {
		t.Errorf("third chunk duration: expected 1.0, got %f", third.Duration())
	}
}

func TestCaptureBufferEmptyExtractionKeepsSequence(t *testing.T) {
	buffer := NewCaptureBuffer(16000)

	empty := buffer.ExtractChunk()
	if len(empty.Samples) != 0 {
		t.Fatalf("expected empty chunk, got %d samples", len(empty.Samples))
	}

	// The skipped extraction must not burn a sequence number.
	buffer.Append(make([]float32, 100))
	chunk := buffer.ExtractChunk()
	if chunk.Sequence != 0 {
		t.Errorf("expected sequence 0 after empty extraction, got %d", chunk.Sequence)
	}
}

func TestCaptureBufferConcurrentAppend(t *testing.T) {
	buffer := NewCaptureBuffer(16000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buffer.Append(make([]float32, 10))
			}
		}()
	}
	wg.Wait()

	total := 0
	for buffer.Len() > 0 {
		chunk := buffer.ExtractChunk()
		total += len(chunk.Samples)
	}

	if total != 8*100*10 {
		t.Errorf("expected %d samples total, got %d", 8*100*10, total)
	}
}

func TestCaptureBufferStats(t *testing.T) {
	buffer := NewCaptureBuffer(16000)
	buffer.Append(make([]float32, 8000))
	buffer.ExtractChunk()
	buffer.Append(make([]float32, 4000))

	stats := buffer.GetStats()
	if stats.ChunksExtracted != 1 {
		t.Errorf("expected 1 extracted chunk, got %d", stats.ChunksExtracted)
	}
	if stats.PendingSamples != 4000 {
		t.Errorf("expected 4000 pending samples, got %d", stats.PendingSamples)
	}
	if stats.TotalSamples != 12000 {
		t.Errorf("expected 12000 total samples, got %d", stats.TotalSamples)
	}
	if stats.PendingDuration != 0.25 {
		t.Errorf("expected 0.25s pending, got %f", stats.PendingDuration)
	}
}
