package presence

import (
	"sync"

	"github.com/getlantern/systray"
	"go.uber.org/zap"
)

const trayTitle = "radio-tui"

// TrayIndicator renders notices as a system tray icon whose menu offers the
// notice actions. Notices shown before the tray is ready are kept and applied
// once it is.
type TrayIndicator struct {
	logger *zap.SugaredLogger

	mu       sync.Mutex
	controls Controls
	ready    bool
	current  *Notice

	status *systray.MenuItem
	pause  *systray.MenuItem
	resume *systray.MenuItem
	stop   *systray.MenuItem
	quit   *systray.MenuItem
	done   chan struct{}
}

// NewTrayIndicator creates a tray indicator. Call Run from the main goroutine
// to actually display it.
func NewTrayIndicator(logger *zap.SugaredLogger) *TrayIndicator {
	logger = logger.Named("presence.tray")

	t := &TrayIndicator{
		logger: logger,
		done:   make(chan struct{}),
	}

	logger.Debug("Created tray indicator instance")

	return t
}

// Bind sets the controls that the Pause, Resume and Stop menu items call
func (t *TrayIndicator) Bind(controls Controls) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.controls = controls
}

// Run blocks running the tray event loop. onStart is called once the tray is
// ready and onQuit when the Quit menu item is clicked.
func (t *TrayIndicator) Run(onStart func(), onQuit func()) {
	onReady := func() {
		t.logger.Debug("Tray instance ready")

		systray.SetTemplateIcon(appIcon, appIcon)
		systray.SetTitle(trayTitle)
		systray.SetTooltip(trayTitle)

		t.mu.Lock()
		t.status = systray.AddMenuItem("Idle", "Playback status")
		t.status.Disable()

		systray.AddSeparator()

		t.pause = systray.AddMenuItem("Pause", "Pause playback")
		t.resume = systray.AddMenuItem("Resume", "Resume playback")
		t.stop = systray.AddMenuItem("Stop", "Stop playback")

		systray.AddSeparator()

		t.quit = systray.AddMenuItem("Quit", "Stop radio-tui and quit")

		t.ready = true
		if t.current != nil {
			t.applyLocked(*t.current)
		} else {
			t.clearLocked()
		}
		t.mu.Unlock()

		go t.watchClicks(onQuit)

		if onStart != nil {
			onStart()
		}
	}

	onExit := func() {
		t.logger.Debug("Tray exited")
	}

	t.logger.Debug("Running in tray")
	systray.Run(onReady, onExit)
}

// Quit stops the tray event loop, which makes Run return
func (t *TrayIndicator) Quit() {
	t.logger.Debug("Quitting tray")

	select {
	case <-t.done:
	default:
		close(t.done)
	}

	systray.Quit()
}

func (t *TrayIndicator) Show(notice Notice) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = &notice
	if t.ready {
		t.applyLocked(notice)
	}
	return nil
}

func (t *TrayIndicator) Withdraw() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = nil
	if t.ready {
		t.clearLocked()
	}
	return nil
}

func (t *TrayIndicator) applyLocked(notice Notice) {
	tooltip := notice.Title + " - " + notice.Body
	systray.SetTooltip(tooltip)
	t.status.SetTitle(tooltip)

	setVisible(t.pause, notice.Has(ActionPause))
	setVisible(t.resume, notice.Has(ActionResume))
	setVisible(t.stop, notice.Has(ActionStop))
}

func (t *TrayIndicator) clearLocked() {
	systray.SetTooltip(trayTitle)
	t.status.SetTitle("Idle")

	t.pause.Hide()
	t.resume.Hide()
	t.stop.Hide()
}

func setVisible(item *systray.MenuItem, visible bool) {
	if visible {
		item.Show()
	} else {
		item.Hide()
	}
}

func (t *TrayIndicator) watchClicks(onQuit func()) {
	for {
		select {
		case <-t.done:
			return

		case <-t.pause.ClickedCh:
			t.logger.Info("Pause menu item clicked")
			if controls := t.boundControls(); controls != nil {
				controls.Pause()
			}

		case <-t.resume.ClickedCh:
			t.logger.Info("Resume menu item clicked")
			if controls := t.boundControls(); controls != nil {
				if err := controls.Resume(); err != nil {
					t.logger.Warnw("Failed to resume from tray", "error", err)
				}
			}

		case <-t.stop.ClickedCh:
			t.logger.Info("Stop menu item clicked")
			if controls := t.boundControls(); controls != nil {
				controls.Stop()
			}

		case <-t.quit.ClickedCh:
			t.logger.Info("Quit menu item clicked, stopping")
			if onQuit != nil {
				onQuit()
			}
		}
	}
}

func (t *TrayIndicator) boundControls() Controls {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.controls
}
