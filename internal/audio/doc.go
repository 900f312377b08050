// Package audio handles audio buffering, chunking, and format conversion.
// It accumulates captured PCM audio, carves it into sequence-numbered chunks
// at a fixed cadence, and encodes chunks to WAV for transcription backends.
package audio
