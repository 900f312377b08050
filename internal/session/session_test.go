package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ThisTrick/whisper-typer-ui/internal/audio"
	"github.com/ThisTrick/whisper-typer-ui/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

// fakeEngine identifies each chunk by its first sample and can hold
// individual transcriptions until the test releases them, which lets tests
// force arbitrary completion orders.
type fakeEngine struct {
	mu    sync.Mutex
	gates map[int]chan struct{}

	results map[int]string
	errs    map[int]error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		gates:   make(map[int]chan struct{}),
		results: make(map[int]string),
		errs:    make(map[int]error),
	}
}

// chunkFor builds a chunk whose payload encodes its sequence number.
func chunkFor(seq int) *audio.AudioChunk {
	return &audio.AudioChunk{
		Sequence:   seq,
		Samples:    []float32{float32(seq)},
		SampleRate: 16000,
	}
}

// hold makes the transcription of seq block until release(seq).
func (e *fakeEngine) hold(seq int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gates[seq] = make(chan struct{})
}

func (e *fakeEngine) release(seq int) {
	e.mu.Lock()
	gate := e.gates[seq]
	e.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

func (e *fakeEngine) setResult(seq int, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[seq] = text
}

func (e *fakeEngine) setError(seq int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[seq] = err
}

func (e *fakeEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	seq := int(samples[0])

	e.mu.Lock()
	gate := e.gates[seq]
	text, hasText := e.results[seq]
	err := e.errs[seq]
	e.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", err
	}
	if !hasText {
		text = fmt.Sprintf("text%d ", seq)
	}
	return text, nil
}

func (e *fakeEngine) Close() error { return nil }

// textCollector records OnText invocations in arrival order.
type textCollector struct {
	mu    sync.Mutex
	texts []string
	seqs  []int

	errMu  sync.Mutex
	errors []error
}

func (c *textCollector) callbacks() Callbacks {
	return Callbacks{
		OnText: func(seq int, text string) {
			c.mu.Lock()
			c.seqs = append(c.seqs, seq)
			c.texts = append(c.texts, text)
			c.mu.Unlock()
		},
		OnError: func(err error) {
			c.errMu.Lock()
			c.errors = append(c.errors, err)
			c.errMu.Unlock()
		},
	}
}

func (c *textCollector) collected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func (c *textCollector) errorCount() int {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return len(c.errors)
}

func TestReverseCompletionStillInsertsInOrder(t *testing.T) {
	engine := newFakeEngine()
	collector := &textCollector{}

	// Hold everything: chunks will complete in the order we release them.
	for seq := 0; seq < 3; seq++ {
		engine.hold(seq)
	}

	s := NewStreamingSession(engine, PoolConfig{Workers: 3, QueueSize: 8},
		collector.callbacks(), testMetrics(), testLogger())

	for seq := 0; seq < 3; seq++ {
		s.Submit(chunkFor(seq))
	}

	// Complete 2 first, then 0, then 1.
	engine.release(2)
	time.Sleep(20 * time.Millisecond)
	if got := collector.collected(); len(got) != 0 {
		t.Fatalf("nothing should be inserted before chunk 0 completes, got %v", got)
	}

	engine.release(0)
	time.Sleep(20 * time.Millisecond)
	engine.release(1)

	s.Finalize()

	got := collector.collected()
	want := []string{"text0 ", "text1 ", "text2 "}
	if len(got) != len(want) {
		t.Fatalf("expected %d insertions, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("insertion %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestEmptyTextAdvancesCursor(t *testing.T) {
	engine := newFakeEngine()
	engine.setResult(0, "")
	collector := &textCollector{}

	s := NewStreamingSession(engine, PoolConfig{Workers: 2, QueueSize: 8},
		collector.callbacks(), testMetrics(), testLogger())

	s.Submit(chunkFor(0))
	s.Submit(chunkFor(1))
	s.Finalize()

	got := collector.collected()
	if len(got) != 1 || got[0] != "text1 " {
		t.Fatalf("expected only chunk 1 inserted, got %v", got)
	}

	stats := s.GetStats()
	if stats.NextInsert != 2 {
		t.Errorf("expected cursor at 2 after the empty chunk, got %d", stats.NextInsert)
	}
}

func TestChunkErrorSuppressesLaterInsertions(t *testing.T) {
	engine := newFakeEngine()
	engine.setError(1, errors.New("model exploded"))
	collector := &textCollector{}

	// Gate completions so the error lands strictly between chunk 0 and 2.
	engine.hold(0)
	engine.hold(1)
	engine.hold(2)

	s := NewStreamingSession(engine, PoolConfig{Workers: 3, QueueSize: 8},
		collector.callbacks(), testMetrics(), testLogger())

	for seq := 0; seq < 3; seq++ {
		s.Submit(chunkFor(seq))
	}

	engine.release(0)
	time.Sleep(20 * time.Millisecond)
	engine.release(1)
	time.Sleep(20 * time.Millisecond)
	engine.release(2)

	s.Finalize()

	got := collector.collected()
	if len(got) != 1 || got[0] != "text0 " {
		t.Fatalf("expected only chunk 0 inserted before the error, got %v", got)
	}
	if !s.HasError() {
		t.Error("expected session marked as errored")
	}
	if collector.errorCount() != 1 {
		t.Errorf("expected exactly one error callback, got %d", collector.errorCount())
	}
}

func TestErrorObservedWhileEarlierChunkInFlight(t *testing.T) {
	engine := newFakeEngine()
	engine.hold(0)
	engine.setError(1, errors.New("bad chunk"))
	collector := &textCollector{}

	s := NewStreamingSession(engine, PoolConfig{Workers: 2, QueueSize: 8},
		collector.callbacks(), testMetrics(), testLogger())

	s.Submit(chunkFor(0))
	s.Submit(chunkFor(1))

	// Chunk 1 fails while chunk 0 is still transcribing; the session must be
	// poisoned right away, not once the cursor reaches the errored chunk.
	deadline := time.Now().Add(time.Second)
	for !s.HasError() {
		if time.Now().After(deadline) {
			t.Fatal("error not observed while the earlier chunk was in flight")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if collector.errorCount() != 1 {
		t.Errorf("expected the error callback before the earlier chunk completed, got %d calls",
			collector.errorCount())
	}

	// New submissions are dropped from this point on.
	s.Submit(chunkFor(2))
	if got := s.GetStats().Submitted; got != 2 {
		t.Errorf("expected submission to be dropped after the error, submitted=%d", got)
	}

	engine.release(0)
	s.Finalize()

	if got := collector.collected(); len(got) != 0 {
		t.Errorf("text completed after the error must be discarded, got %v", got)
	}
	if collector.errorCount() != 1 {
		t.Errorf("expected exactly one error callback, got %d", collector.errorCount())
	}
}

func TestErrorCallbackFiresOnce(t *testing.T) {
	engine := newFakeEngine()
	engine.setError(0, errors.New("bad chunk"))
	engine.setError(1, errors.New("also bad"))
	collector := &textCollector{}

	s := NewStreamingSession(engine, PoolConfig{Workers: 2, QueueSize: 8},
		collector.callbacks(), testMetrics(), testLogger())

	s.Submit(chunkFor(0))
	s.Submit(chunkFor(1))
	s.Finalize()

	if collector.errorCount() != 1 {
		t.Errorf("expected exactly one error callback for two errored chunks, got %d",
			collector.errorCount())
	}
}

func TestSubmitAfterErrorIsNoOp(t *testing.T) {
	engine := newFakeEngine()
	engine.setError(0, errors.New("bad chunk"))
	collector := &textCollector{}

	s := NewStreamingSession(engine, PoolConfig{Workers: 1, QueueSize: 8},
		collector.callbacks(), testMetrics(), testLogger())

	s.Submit(chunkFor(0))

	// Wait until the error has been observed.
	deadline := time.Now().Add(time.Second)
	for !s.HasError() {
		if time.Now().After(deadline) {
			t.Fatal("session never recorded the error")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Submit(chunkFor(1))
	s.Finalize()

	stats := s.GetStats()
	if stats.Submitted != 1 {
		t.Errorf("expected 1 accepted submission, got %d", stats.Submitted)
	}
	if got := collector.collected(); len(got) != 0 {
		t.Errorf("expected no insertions, got %v", got)
	}
}

func TestFinalizeDrainsAcrossGaps(t *testing.T) {
	engine := newFakeEngine()
	collector := &textCollector{}

	s := NewStreamingSession(engine, PoolConfig{Workers: 2, QueueSize: 8},
		collector.callbacks(), testMetrics(), testLogger())

	// Sequence 1 is never submitted, so 2 and 4 sit in the reassembly
	// buffer behind a gap until the final drain.
	s.Submit(chunkFor(0))
	s.Submit(chunkFor(2))
	s.Submit(chunkFor(4))

	s.Finalize()

	got := collector.collected()
	want := []string{"text0 ", "text2 ", "text4 "}
	if len(got) != len(want) {
		t.Fatalf("expected %d insertions, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("insertion %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	if stats := s.GetStats(); stats.Buffered != 0 {
		t.Errorf("expected empty reassembly buffer after finalize, got %d", stats.Buffered)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	engine := newFakeEngine()
	collector := &textCollector{}

	s := NewStreamingSession(engine, PoolConfig{Workers: 2, QueueSize: 8},
		collector.callbacks(), testMetrics(), testLogger())

	s.Submit(chunkFor(0))
	s.Finalize()
	s.Finalize()
	s.Finalize()

	if got := collector.collected(); len(got) != 1 {
		t.Errorf("expected one insertion after repeated finalize, got %v", got)
	}
}

func TestAbortDiscardsBufferedText(t *testing.T) {
	engine := newFakeEngine()
	collector := &textCollector{}

	engine.hold(0)

	s := NewStreamingSession(engine, PoolConfig{Workers: 1, QueueSize: 8},
		collector.callbacks(), testMetrics(), testLogger())

	s.Submit(chunkFor(0))
	s.Abort()
	engine.release(0)
	s.Finalize()

	if got := collector.collected(); len(got) != 0 {
		t.Errorf("expected no insertions after abort, got %v", got)
	}
	if collector.errorCount() != 0 {
		t.Errorf("abort must not fire the error callback, got %d", collector.errorCount())
	}
}

func TestManyChunksRandomCompletion(t *testing.T) {
	engine := newFakeEngine()
	collector := &textCollector{}

	s := NewStreamingSession(engine, PoolConfig{Workers: 3, QueueSize: 64},
		collector.callbacks(), testMetrics(), testLogger())

	const n = 50
	for seq := 0; seq < n; seq++ {
		s.Submit(chunkFor(seq))
	}
	s.Finalize()

	got := collector.collected()
	if len(got) != n {
		t.Fatalf("expected %d insertions, got %d", n, len(got))
	}
	for i := range got {
		want := fmt.Sprintf("text%d ", i)
		if got[i] != want {
			t.Fatalf("insertion %d: expected %q, got %q", i, want, got[i])
		}
	}
}
