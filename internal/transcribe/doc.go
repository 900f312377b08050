// Package transcribe defines the transcription engine interface and its
// backends: a faster-whisper HTTP server client, the OpenAI audio API, and
// native whisper.cpp bindings.
package transcribe
