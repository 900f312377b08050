package audio

import (
	"context"
	"log/slog"
	"time"
)

// SubmitFunc receives extracted chunks in sequence order.
type SubmitFunc func(chunk *AudioChunk)

// Producer extracts chunks from a capture buffer at a fixed cadence and hands
// them to the submit callback. It runs until its context is canceled; the
// trailing partial chunk left in the buffer at that point is not extracted
// here but by the session teardown, before the device is released.
type Producer struct {
	buffer   *CaptureBuffer
	interval time.Duration
	submit   SubmitFunc
	logger   *slog.Logger

	done chan struct{}
}

// NewProducer creates a chunk producer. The interval is the configured chunk
// duration.
func NewProducer(buffer *CaptureBuffer, interval time.Duration, submit SubmitFunc, logger *slog.Logger) *Producer {
	return &Producer{
		buffer:   buffer,
		interval: interval,
		submit:   submit,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Run extracts a chunk every interval until ctx is canceled. An empty
// extraction is skipped without consuming a sequence number.
func (p *Producer) Run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			chunk := p.buffer.ExtractChunk()
			if len(chunk.Samples) == 0 {
				p.logger.Debug("Skipping empty chunk",
					slog.Int("sequence", chunk.Sequence))
				continue
			}

			p.logger.Debug("Extracted audio chunk",
				slog.Int("sequence", chunk.Sequence),
				slog.Float64("start_time", chunk.StartTime),
				slog.Float64("duration", chunk.Duration()))

			p.submit(chunk)
		}
	}
}

// Done is closed once Run has returned.
func (p *Producer) Done() <-chan struct{} {
	return p.done
}
