package presence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// swapped out in tests
var (
	sendNotification = beeep.Notify
	sendAlert        = beeep.Alert
)

// NotifyIndicator shows notices as desktop notifications. Desktop
// notifications cannot be retracted, so Withdraw only forgets the last notice
// and the next Show notifies again.
type NotifyIndicator struct {
	logger      *zap.SugaredLogger
	appIconPath string

	mu   sync.Mutex
	last *Notice
}

// NewNotifyIndicator creates a desktop notification indicator. The app icon
// is written next to other temporary files so the notification daemon can
// read it.
func NewNotifyIndicator(logger *zap.SugaredLogger) *NotifyIndicator {
	logger = logger.Named("presence.notify")

	ni := &NotifyIndicator{logger: logger}

	iconPath := filepath.Join(os.TempDir(), "radio-tui.png")
	if err := os.WriteFile(iconPath, appIcon, 0644); err != nil {
		logger.Warnw("Failed to write notification icon, continuing without it", "path", iconPath, "error", err)
	} else {
		ni.appIconPath = iconPath
	}

	logger.Debug("Created notify indicator instance")

	return ni
}

func (ni *NotifyIndicator) Show(notice Notice) error {
	ni.mu.Lock()
	defer ni.mu.Unlock()

	if ni.last != nil && ni.last.Title == notice.Title && ni.last.Body == notice.Body {
		return nil
	}

	send := sendNotification
	if notice.Failure {
		send = sendAlert
	}

	if err := send(notice.Title, notice.Body, ni.appIconPath); err != nil {
		return fmt.Errorf("send desktop notification: %w", err)
	}

	ni.last = &notice
	return nil
}

func (ni *NotifyIndicator) Withdraw() error {
	ni.mu.Lock()
	defer ni.mu.Unlock()

	ni.last = nil
	return nil
}
