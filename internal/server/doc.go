// Package server implements the HTTP control and monitoring API for the
// dictation daemon: health, status and stats endpoints, Prometheus metrics,
// and session start/stop/toggle control.
package server
