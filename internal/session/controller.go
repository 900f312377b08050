package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ThisTrick/whisper-typer-ui/internal/audio"
	"github.com/ThisTrick/whisper-typer-ui/internal/capture"
	"github.com/ThisTrick/whisper-typer-ui/internal/config"
	"github.com/ThisTrick/whisper-typer-ui/internal/insert"
	"github.com/ThisTrick/whisper-typer-ui/internal/metrics"
	"github.com/ThisTrick/whisper-typer-ui/internal/overlay"
	"github.com/ThisTrick/whisper-typer-ui/internal/transcribe"
)

var (
	// ErrSessionActive is returned by Start while a session is running.
	ErrSessionActive = errors.New("a dictation session is already active")

	// ErrNoActiveSession is returned by Stop when nothing is recording.
	ErrNoActiveSession = errors.New("no active dictation session")
)

// Controller drives the session state machine. At most one session exists at
// a time; Start while one is active fails without touching the running
// session.
type Controller struct {
	cfg        *config.Config
	device     capture.Device
	engine     transcribe.Engine
	inserter   insert.Inserter
	notifier   overlay.Notifier
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu             sync.Mutex
	state          State
	sessionID      string
	startedAt      time.Time
	buffer         *audio.CaptureBuffer
	session        *StreamingSession
	captureSession capture.Session
	cancelCapture  context.CancelFunc
	producer       *audio.Producer
	readerDone     chan struct{}
	errHandled     bool
}

// Status is a point-in-time view of the controller for monitoring.
type Status struct {
	State          string             `json:"state"`
	SessionID      string             `json:"session_id,omitempty"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	Buffer         *audio.BufferStats `json:"buffer,omitempty"`
	Pipeline       *SessionStats      `json:"pipeline,omitempty"`
	PendingEffects int                `json:"pending_effects"`
}

// NewController wires the pipeline together and starts the effect
// dispatcher.
func NewController(cfg *config.Config, device capture.Device, engine transcribe.Engine,
	inserter insert.Inserter, notifier overlay.Notifier, m *metrics.Metrics, logger *slog.Logger) *Controller {

	return &Controller{
		cfg:        cfg,
		device:     device,
		engine:     engine,
		inserter:   inserter,
		notifier:   notifier,
		dispatcher: NewDispatcher(64, logger),
		metrics:    m,
		logger:     logger,
		state:      StateIdle,
	}
}

// Start opens the capture device and begins a new session. A device failure
// is returned synchronously and leaves the controller idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		c.logger.Warn("Start requested while session active",
			slog.String("state", c.state.String()))
		return ErrSessionActive
	}

	captureCtx, cancel := context.WithCancel(context.Background())

	captureSession, err := c.device.Start(captureCtx, capture.Config{
		SampleRate: c.cfg.Audio.SampleRate,
		Channels:   c.cfg.Audio.Channels,
		Device:     c.cfg.Audio.Device,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to open capture device: %w", err)
	}

	c.sessionID = uuid.NewString()
	c.startedAt = time.Now()
	c.buffer = audio.NewCaptureBuffer(c.cfg.Audio.SampleRate)
	c.captureSession = captureSession
	c.cancelCapture = cancel
	c.readerDone = make(chan struct{})
	c.errHandled = false

	sessionLogger := c.logger.With(slog.String("session_id", c.sessionID))

	if c.cfg.Streaming.Enabled {
		c.session = NewStreamingSession(c.engine, PoolConfig{
			Workers:   c.cfg.Streaming.Workers,
			QueueSize: c.cfg.Streaming.QueueSize,
		}, Callbacks{
			OnText: c.insertText,
			OnError: func(err error) {
				// Off the worker goroutine; the error handler takes the
				// controller lock.
				go c.handleSessionError(err)
			},
		}, c.metrics, sessionLogger)

		c.producer = audio.NewProducer(c.buffer, c.cfg.Streaming.GetChunkDuration(), c.submitChunk, sessionLogger)
		go c.producer.Run(captureCtx)
	} else {
		c.session = nil
		c.producer = nil
	}

	go c.readLoop(captureCtx, captureSession, c.buffer)

	c.state = StateRecording
	c.metrics.RecordSessionStarted()
	c.dispatcher.Do(c.notifier.ShowRecording)

	sessionLogger.Info("Session started",
		slog.Bool("streaming", c.cfg.Streaming.Enabled),
		slog.Int("sample_rate", c.cfg.Audio.SampleRate))

	return nil
}

// readLoop pumps captured frames into the buffer until the session context
// is canceled or the device closes.
func (c *Controller) readLoop(ctx context.Context, captureSession capture.Session, buffer *audio.CaptureBuffer) {
	defer close(c.readerDone)

	for {
		frames, err := captureSession.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, capture.ErrDeviceClosed) {
				return
			}
			go c.handleSessionError(fmt.Errorf("capture failed: %w", err))
			return
		}
		buffer.Append(frames)
	}
}

// submitChunk forwards a produced chunk to the worker pool.
func (c *Controller) submitChunk(chunk *audio.AudioChunk) {
	c.metrics.RecordChunkExtracted(chunk.Duration())

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session != nil {
		session.Submit(chunk)
	}
}

// Stop ends recording and moves the session into transcription. A Stop
// while transcription is already winding down is ignored; a Stop while idle
// returns ErrNoActiveSession.
func (c *Controller) Stop() error {
	c.mu.Lock()

	switch c.state {
	case StateRecording:
	case StateTranscribing, StateInserting, StateError:
		c.logger.Debug("Stop ignored, session already winding down",
			slog.String("state", c.state.String()))
		c.mu.Unlock()
		return nil
	default:
		c.mu.Unlock()
		return ErrNoActiveSession
	}

	c.state = StateTranscribing
	session := c.session
	buffer := c.buffer
	captureSession := c.captureSession
	producer := c.producer
	readerDone := c.readerDone
	cancel := c.cancelCapture
	logger := c.logger.With(slog.String("session_id", c.sessionID))
	c.mu.Unlock()

	// Stop production first so no extraction races the final one below.
	cancel()
	if producer != nil {
		<-producer.Done()
	}
	<-readerDone

	// Last extraction happens after leaving Recording and before the device
	// is released, so trailing audio is never lost.
	final := buffer.ExtractChunk()
	if err := captureSession.Stop(); err != nil {
		logger.Warn("Capture device stop reported error", slog.String("error", err.Error()))
	}

	c.dispatcher.Do(c.notifier.ShowProcessing)
	logger.Info("Recording stopped",
		slog.Int("final_chunk_samples", len(final.Samples)))

	if session != nil {
		go c.finishStreaming(session, final)
	} else {
		go c.finishWholeBuffer(final)
	}

	return nil
}

// finishStreaming submits the trailing chunk, drains the pool and completes
// the session once pending insertions settle.
func (c *Controller) finishStreaming(session *StreamingSession, final *audio.AudioChunk) {
	if len(final.Samples) > 0 {
		c.metrics.RecordChunkExtracted(final.Duration())
		session.Submit(final)
	}

	session.Finalize()

	if session.HasError() {
		// The error handler owns the remaining transitions.
		return
	}

	c.dispatcher.WaitIdle(c.cfg.Insertion.GetPendingWait(), c.cfg.Insertion.GetPendingPoll())
	c.completeSession()
}

// finishWholeBuffer transcribes the entire capture in one request and
// inserts the result through the dispatcher.
func (c *Controller) finishWholeBuffer(final *audio.AudioChunk) {
	if len(final.Samples) == 0 {
		c.completeSession()
		return
	}

	startTime := time.Now()
	text, err := c.engine.Transcribe(context.Background(), final.Samples, final.SampleRate)
	if err != nil {
		c.metrics.RecordTranscriptionFailure(time.Since(startTime).Seconds())
		c.handleSessionError(err)
		return
	}
	c.metrics.RecordTranscriptionSuccess(time.Since(startTime).Seconds())

	c.mu.Lock()
	if c.state != StateTranscribing {
		c.mu.Unlock()
		return
	}
	c.state = StateInserting
	c.mu.Unlock()

	if text != "" {
		c.insertText(0, text)
	}

	c.dispatcher.WaitIdle(c.cfg.Insertion.GetPendingWait(), c.cfg.Insertion.GetPendingPoll())
	c.completeSession()
}

// insertText performs one ordered insertion on the dispatcher goroutine.
func (c *Controller) insertText(sequence int, text string) {
	c.metrics.RecordInsertionDispatched()

	c.dispatcher.Do(func() {
		err := c.inserter.InsertText(context.Background(), text)
		c.metrics.RecordInsertionCompleted(err != nil)
		c.metrics.SetInsertionsPending(c.dispatcher.Pending() - 1)
		if err != nil {
			c.logger.Warn("Text insertion failed",
				slog.Int("sequence", sequence),
				slog.String("error", err.Error()))
		}
	})
}

// completeSession transitions Transcribing/Inserting to Completed and then
// back to Idle, hiding the overlay.
func (c *Controller) completeSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateTranscribing && c.state != StateInserting {
		return
	}

	c.state = StateCompleted
	c.metrics.RecordSessionFinished(time.Since(c.startedAt).Seconds(), false)
	c.dispatcher.Do(c.notifier.Hide)

	c.logger.Info("Session completed",
		slog.String("session_id", c.sessionID),
		slog.Duration("duration", time.Since(c.startedAt)))

	c.resetLocked()
}

// handleSessionError halts the session, surfaces the error and returns the
// controller to Idle after the settle delay. Effective once per session.
func (c *Controller) handleSessionError(err error) {
	c.mu.Lock()
	if c.state == StateIdle || c.errHandled {
		c.mu.Unlock()
		return
	}
	c.errHandled = true
	c.state = StateError

	session := c.session
	captureSession := c.captureSession
	cancel := c.cancelCapture
	producer := c.producer
	readerDone := c.readerDone
	sessionID := c.sessionID
	c.mu.Unlock()

	c.logger.Error("Session failed",
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()))

	c.dispatcher.Do(func() { c.notifier.ShowError(err.Error()) })

	// Halt production and drain in-flight work; poisoning the session makes
	// the drain discard any text still buffered.
	if cancel != nil {
		cancel()
	}
	if producer != nil {
		<-producer.Done()
	}
	if readerDone != nil {
		<-readerDone
	}
	if captureSession != nil {
		if stopErr := captureSession.Stop(); stopErr != nil {
			c.logger.Warn("Capture device stop reported error", slog.String("error", stopErr.Error()))
		}
	}
	if session != nil {
		session.Abort()
		session.Finalize()
	}

	// Leave the error visible before returning to Idle.
	time.Sleep(c.cfg.Insertion.GetSettleDelay())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateError {
		return
	}
	c.metrics.RecordSessionFinished(time.Since(c.startedAt).Seconds(), true)
	c.dispatcher.Do(c.notifier.Hide)
	c.resetLocked()
}

// resetLocked clears session fields and returns to Idle. Caller holds mu.
func (c *Controller) resetLocked() {
	c.state = StateIdle
	c.sessionID = ""
	c.buffer = nil
	c.session = nil
	c.captureSession = nil
	c.cancelCapture = nil
	c.producer = nil
	c.readerDone = nil
}

// Toggle starts a session when idle and stops it when recording. In any
// other state it does nothing.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case StateIdle:
		return c.Start(ctx)
	case StateRecording:
		return c.Stop()
	default:
		c.logger.Debug("Toggle ignored", slog.String("state", state.String()))
		return nil
	}
}

// GetStatus returns a snapshot for the control API.
func (c *Controller) GetStatus() Status {
	c.mu.Lock()
	status := Status{
		State:     c.state.String(),
		SessionID: c.sessionID,
	}
	if c.state != StateIdle {
		startedAt := c.startedAt
		status.StartedAt = &startedAt
	}
	buffer := c.buffer
	session := c.session
	c.mu.Unlock()

	if buffer != nil {
		stats := buffer.GetStats()
		status.Buffer = &stats
	}
	if session != nil {
		stats := session.GetStats()
		status.Pipeline = &stats
	}
	status.PendingEffects = c.dispatcher.Pending()

	return status
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close aborts any running session and shuts the dispatcher down.
func (c *Controller) Close() error {
	c.mu.Lock()
	session := c.session
	captureSession := c.captureSession
	cancel := c.cancelCapture
	producer := c.producer
	readerDone := c.readerDone
	c.resetLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if producer != nil {
		<-producer.Done()
	}
	if readerDone != nil {
		<-readerDone
	}
	if captureSession != nil {
		_ = captureSession.Stop()
	}
	if session != nil {
		session.Abort()
		session.Finalize()
	}

	c.dispatcher.Close()
	return nil
}

// Dispatcher exposes the effect dispatcher, mainly for tests.
func (c *Controller) Dispatcher() *Dispatcher {
	return c.dispatcher
}
