package overlay

import "log/slog"

// Notifier reflects session progress on the user-visible status surface.
// Calls arrive from the effect dispatcher goroutine only.
type Notifier interface {
	ShowRecording()
	ShowProcessing()
	ShowError(msg string)
	Hide()
}

// LogNotifier reports status transitions through the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ShowRecording() {
	n.logger.Info("Overlay: recording")
}

func (n *LogNotifier) ShowProcessing() {
	n.logger.Info("Overlay: processing")
}

func (n *LogNotifier) ShowError(msg string) {
	n.logger.Warn("Overlay: error", slog.String("message", msg))
}

func (n *LogNotifier) Hide() {
	n.logger.Info("Overlay: hidden")
}
