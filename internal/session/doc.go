// Package session implements the ordered streaming transcription pipeline:
// a bounded worker pool transcribing audio chunks concurrently, a
// sequence-keyed reassembly buffer restoring chronological order, a
// single-goroutine effect dispatcher performing text insertion, and the
// controller driving the session state machine.
package session
