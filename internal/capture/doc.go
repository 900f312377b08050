// Package capture abstracts the microphone capture device. The pipeline only
// depends on the Device interface; the default implementation streams PCM
// audio from an ffmpeg subprocess.
package capture
