package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThisTrick/whisper-typer-ui/internal/audio"
	"github.com/ThisTrick/whisper-typer-ui/internal/metrics"
	"github.com/ThisTrick/whisper-typer-ui/internal/transcribe"
)

// ChunkResult is the outcome of transcribing one chunk. Exactly one result
// exists per submitted chunk; engine failures are carried in Err rather than
// aborting the worker.
type ChunkResult struct {
	Sequence int
	Text     string
	Err      error
}

// Callbacks receive pipeline output. OnText is invoked in strict sequence
// order with non-empty, error-free text. OnError is invoked at most once per
// session, as soon as the first errored chunk completes at the pool.
type Callbacks struct {
	OnText  func(sequence int, text string)
	OnError func(err error)
}

// PoolConfig sizes the transcription worker pool.
type PoolConfig struct {
	Workers   int
	QueueSize int
}

// StreamingSession owns the worker pool and the reassembly buffer for one
// dictation session. Chunks are submitted as they are carved from the
// capture buffer; completed transcripts are released to the callbacks in
// sequence order regardless of completion order.
type StreamingSession struct {
	engine    transcribe.Engine
	callbacks Callbacks
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// intakeMu serializes Submit against the queue close in Finalize.
	intakeMu sync.RWMutex
	queue    chan *audio.AudioChunk
	wg       sync.WaitGroup

	hasError  atomic.Bool
	finalized atomic.Bool

	// Reassembly state, guarded by mu.
	mu         sync.Mutex
	results    map[int]ChunkResult
	nextInsert int
	errorSent  bool

	submitted atomic.Uint64
	completed atomic.Uint64
	inserted  atomic.Uint64
}

// SessionStats is a snapshot of pipeline progress for monitoring.
type SessionStats struct {
	Submitted  uint64 `json:"submitted"`
	Completed  uint64 `json:"completed"`
	Inserted   uint64 `json:"inserted"`
	Buffered   int    `json:"buffered"`
	NextInsert int    `json:"next_insert"`
	HasError   bool   `json:"has_error"`
}

// NewStreamingSession creates the session and starts its worker pool.
func NewStreamingSession(engine transcribe.Engine, cfg PoolConfig, callbacks Callbacks, m *metrics.Metrics, logger *slog.Logger) *StreamingSession {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.QueueSize < cfg.Workers {
		cfg.QueueSize = cfg.Workers * 8
	}

	s := &StreamingSession{
		engine:    engine,
		callbacks: callbacks,
		metrics:   m,
		logger:    logger,
		queue:     make(chan *audio.AudioChunk, cfg.QueueSize),
		results:   make(map[int]ChunkResult),
	}

	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	return s
}

// Submit hands a chunk to the worker pool. After the first chunk error the
// session is winding down and Submit silently drops further chunks. A Submit
// racing Finalize is dropped.
func (s *StreamingSession) Submit(chunk *audio.AudioChunk) {
	s.intakeMu.RLock()
	defer s.intakeMu.RUnlock()

	if s.hasError.Load() || s.finalized.Load() {
		s.logger.Debug("Dropping chunk, session is winding down",
			slog.Int("sequence", chunk.Sequence))
		return
	}

	s.submitted.Add(1)
	s.metrics.RecordChunkSubmitted()
	s.queue <- chunk
}

// worker consumes chunks until the queue is closed, converting every engine
// failure into a ChunkResult so the reassembly cursor can keep moving.
func (s *StreamingSession) worker(id int) {
	defer s.wg.Done()

	for chunk := range s.queue {
		startTime := time.Now()
		text, err := s.engine.Transcribe(context.Background(), chunk.Samples, chunk.SampleRate)
		elapsed := time.Since(startTime)

		if err != nil {
			s.metrics.RecordTranscriptionFailure(elapsed.Seconds())
			s.logger.Error("Chunk transcription failed",
				slog.Int("worker", id),
				slog.Int("sequence", chunk.Sequence),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()))
		} else {
			s.metrics.RecordTranscriptionSuccess(elapsed.Seconds())
			s.logger.Debug("Chunk transcribed",
				slog.Int("worker", id),
				slog.Int("sequence", chunk.Sequence),
				slog.Duration("elapsed", elapsed),
				slog.Int("text_len", len(text)))
		}

		s.onComplete(ChunkResult{Sequence: chunk.Sequence, Text: text, Err: err})
	}
}

// onComplete stores a result and drains every contiguous run starting at the
// cursor. Store and drain share one critical section so two workers can
// never release overlapping runs or release them out of order.
func (s *StreamingSession) onComplete(result ChunkResult) {
	s.completed.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The first error poisons the session the moment it completes at the
	// pool, not when the cursor reaches it: intake shuts off and the error
	// surfaces while earlier chunks are still in flight.
	if result.Err != nil && !s.errorSent {
		s.errorSent = true
		s.hasError.Store(true)
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(result.Err)
		}
	}

	s.results[result.Sequence] = result

	for {
		r, ok := s.results[s.nextInsert]
		if !ok {
			break
		}
		delete(s.results, s.nextInsert)
		s.nextInsert++
		s.release(r)
	}
}

// release forwards one in-order result to the callbacks. Must be called
// with mu held; the callbacks only enqueue work, they do not block.
func (s *StreamingSession) release(r ChunkResult) {
	if r.Err != nil {
		// The cursor advances past errored chunks so later text is not
		// stuck behind them. The error itself was reported on completion.
		return
	}

	if s.hasError.Load() || r.Text == "" {
		return
	}

	s.inserted.Add(1)
	if s.callbacks.OnText != nil {
		s.callbacks.OnText(r.Sequence, r.Text)
	}
}

// Finalize closes intake, waits for in-flight transcriptions, then releases
// whatever the reassembly buffer still holds in ascending sequence order,
// tolerating gaps. Safe to call more than once.
func (s *StreamingSession) Finalize() {
	if s.finalized.Swap(true) {
		return
	}

	// A Submit that passed its winding-down check may still be sending;
	// the intake lock lets it finish before the queue closes.
	s.intakeMu.Lock()
	close(s.queue)
	s.intakeMu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	sequences := make([]int, 0, len(s.results))
	for seq := range s.results {
		sequences = append(sequences, seq)
	}
	sort.Ints(sequences)

	for _, seq := range sequences {
		r := s.results[seq]
		delete(s.results, seq)
		if seq >= s.nextInsert {
			s.nextInsert = seq + 1
		}
		s.release(r)
	}

	s.logger.Info("Session finalized",
		slog.Uint64("submitted", s.submitted.Load()),
		slog.Uint64("completed", s.completed.Load()),
		slog.Uint64("inserted", s.inserted.Load()),
		slog.Bool("has_error", s.hasError.Load()))
}

// Abort poisons the session without reporting a chunk error: pending and
// future results drain without being inserted. Used when the failure came
// from outside the pool, such as a capture device error.
func (s *StreamingSession) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errorSent = true
	s.hasError.Store(true)
}

// HasError reports whether a chunk error has poisoned the session.
func (s *StreamingSession) HasError() bool {
	return s.hasError.Load()
}

// GetStats returns a snapshot of pipeline progress.
func (s *StreamingSession) GetStats() SessionStats {
	s.mu.Lock()
	buffered := len(s.results)
	nextInsert := s.nextInsert
	s.mu.Unlock()

	return SessionStats{
		Submitted:  s.submitted.Load(),
		Completed:  s.completed.Load(),
		Inserted:   s.inserted.Load(),
		Buffered:   buffered,
		NextInsert: nextInsert,
		HasError:   s.hasError.Load(),
	}
}
