package audio

import (
	"sync"
	"time"
)

// AudioChunk represents a fixed slice of captured audio awaiting transcription.
// Chunks are immutable once extracted: sequence numbers are dense and
// monotonically increasing from 0 within a session.
type AudioChunk struct {
	Sequence   int       `json:"sequence"`
	Samples    []float32 `json:"-"`
	StartTime  float64   `json:"start_time"` // seconds since session start
	SampleRate int       `json:"sample_rate"`
}

// Duration returns the chunk length in seconds.
func (c *AudioChunk) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// CaptureBuffer accumulates mono float32 frames from the capture device and
// carves them into sequence-numbered chunks. Append and ExtractChunk may be
// called from different goroutines.
type CaptureBuffer struct {
	sampleRate int

	samples      []float32
	nextSequence int
	extracted    int // total samples already carved into chunks

	totalAppended uint64
	createdAt     time.Time

	mu sync.Mutex
}

// BufferStats represents capture buffer statistics for monitoring
type BufferStats struct {
	PendingSamples  int     `json:"pending_samples"`
	PendingDuration float64 `json:"pending_duration_sec"`
	ChunksExtracted int     `json:"chunks_extracted"`
	TotalSamples    uint64  `json:"total_samples"`
}

// NewCaptureBuffer creates an empty capture buffer for one session.
func NewCaptureBuffer(sampleRate int) *CaptureBuffer {
	return &CaptureBuffer{
		sampleRate: sampleRate,
		samples:    make([]float32, 0, sampleRate*4),
		createdAt:  time.Now(),
	}
}

// Append adds captured frames to the accumulation.
func (b *CaptureBuffer) Append(frames []float32) {
	if len(frames) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, frames...)
	b.totalAppended += uint64(len(frames))
}

// ExtractChunk atomically snapshots and clears the accumulation, returning it
// as the next chunk in sequence. The chunk start offset is the cumulative
// duration of everything extracted before it, so offsets stay correct across
// repeated extractions. When nothing accumulated since the previous call a
// zero-sample chunk is returned and no sequence number is consumed; callers
// skip those. Keeping sequences dense means the reassembly cursor never
// waits on a chunk that does not exist.
func (b *CaptureBuffer) ExtractChunk() *AudioChunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	chunk := &AudioChunk{
		Sequence:   b.nextSequence,
		Samples:    b.samples,
		StartTime:  float64(b.extracted) / float64(b.sampleRate),
		SampleRate: b.sampleRate,
	}

	if len(b.samples) > 0 {
		b.nextSequence++
		b.extracted += len(b.samples)
		b.samples = make([]float32, 0, b.sampleRate*4)
	}

	return chunk
}

// Len returns the number of samples currently accumulated.
func (b *CaptureBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.samples)
}

// GetStats returns current buffer statistics
func (b *CaptureBuffer) GetStats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{
		PendingSamples:  len(b.samples),
		PendingDuration: float64(len(b.samples)) / float64(b.sampleRate),
		ChunksExtracted: b.nextSequence,
		TotalSamples:    b.totalAppended,
	}
}
