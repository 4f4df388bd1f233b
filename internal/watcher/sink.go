package watcher

import "log/slog"

// StatusSink receives one-way presence/dispatch notifications for a
// dashboard or notification collaborator. Fire-and-forget: no
// acknowledgment, and implementations must not block the control loop.
type StatusSink interface {
	UpdateStatus(online bool, displayLabel, code, channel string)
}

// LogSink writes status updates to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// UpdateStatus logs one status update.
func (s *LogSink) UpdateStatus(online bool, displayLabel, code, channel string) {
	s.logger.Info("status update",
		"online", online,
		"display_label", displayLabel,
		"code", code,
		"channel", channel)
}
