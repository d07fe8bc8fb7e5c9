package presence

import (
	"go.uber.org/zap"
)

// LogIndicator writes notices to the log. It is always installed so headless
// runs still leave a trace of what was playing.
type LogIndicator struct {
	logger *zap.SugaredLogger
}

// NewLogIndicator creates a log-backed indicator
func NewLogIndicator(logger *zap.SugaredLogger) *LogIndicator {
	return &LogIndicator{logger: logger.Named("presence.log")}
}

func (l *LogIndicator) Show(notice Notice) error {
	if notice.Failure {
		l.logger.Warnw("Playback failed", "station", notice.Title, "reason", notice.Body)
		return nil
	}

	l.logger.Infow("Now playing",
		"station", notice.Title,
		"status", notice.Body,
		"ongoing", notice.Ongoing,
		"actions", notice.Actions)

	return nil
}

func (l *LogIndicator) Withdraw() error {
	l.logger.Info("Notice withdrawn")
	return nil
}
