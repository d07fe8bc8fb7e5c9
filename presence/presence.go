// Package presence keeps the user-visible "now playing" indicators in step
// with the playback session, including while no foreground UI is attached.
package presence

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"radio-tui/session"
)

// DefaultFailureGrace is how long a failure notice stays up before it is
// withdrawn
const DefaultFailureGrace = 5 * time.Second

// Action is a control offered on a notice
type Action int

const (
	ActionPause Action = iota
	ActionResume
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionPause:
		return "Pause"
	case ActionResume:
		return "Resume"
	case ActionStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// Notice is the content an Indicator renders
type Notice struct {
	Title   string
	Body    string
	Artwork string

	// Ongoing notices describe audio that is being produced or fetched
	Ongoing bool
	// Sticky notices can only be dismissed through the Stop action
	Sticky bool
	// Failure notices report a stream error and carry no actions
	Failure bool

	Actions []Action
}

// Has reports whether the notice offers action
func (n Notice) Has(action Action) bool {
	for _, a := range n.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Equal compares two notices field by field
func (n Notice) Equal(other Notice) bool {
	if n.Title != other.Title || n.Body != other.Body || n.Artwork != other.Artwork ||
		n.Ongoing != other.Ongoing || n.Sticky != other.Sticky || n.Failure != other.Failure ||
		len(n.Actions) != len(other.Actions) {
		return false
	}
	for i := range n.Actions {
		if n.Actions[i] != other.Actions[i] {
			return false
		}
	}
	return true
}

// Indicator is one presence backend (tray icon, desktop notification, log)
type Indicator interface {
	Show(notice Notice) error
	Withdraw() error
}

// Controls is what notice actions call back into
type Controls interface {
	Pause()
	Resume() error
	Stop()
}

// Publisher renders session snapshots into notices and fans them out to its
// indicators. A failure notice is withdrawn after the grace period unless a
// later snapshot arrives first.
type Publisher struct {
	logger     *zap.SugaredLogger
	indicators []Indicator
	grace      time.Duration

	mu         sync.Mutex
	graceTimer *time.Timer
	generation uint64
	visible    bool
	closed     bool
}

// NewPublisher creates a publisher over indicators. A non-positive grace
// falls back to DefaultFailureGrace.
func NewPublisher(logger *zap.SugaredLogger, grace time.Duration, indicators ...Indicator) *Publisher {
	logger = logger.Named("presence")

	if grace <= 0 {
		grace = DefaultFailureGrace
	}

	p := &Publisher{
		logger:     logger,
		indicators: indicators,
		grace:      grace,
	}

	logger.Debugw("Created presence publisher", "indicators", len(indicators), "grace", grace)

	return p
}

// Reflect updates every indicator to match snap
func (p *Publisher) Reflect(snap session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.cancelGraceLocked()
	p.generation++

	notice, ok := Render(snap)
	if !ok {
		p.withdrawLocked()
		return
	}

	p.showLocked(notice)

	if notice.Failure {
		p.startGraceLocked(p.generation)
	}
}

// Close withdraws everything and ignores later snapshots
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.cancelGraceLocked()
	p.withdrawLocked()
	p.closed = true

	p.logger.Debug("Presence publisher closed")
}

func (p *Publisher) showing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Render maps a snapshot to its notice. It returns false when nothing should
// be shown.
func Render(snap session.Snapshot) (Notice, bool) {
	title := "Radio"
	artwork := ""
	if snap.Station != nil {
		title = snap.Station.DisplayName()
		artwork = snap.Station.ArtworkURL()
	}

	switch snap.State.Phase {
	case session.PhaseLoading:
		return Notice{
			Title:   title,
			Body:    "Connecting",
			Artwork: artwork,
			Ongoing: true,
			Actions: []Action{ActionStop},
		}, true

	case session.PhasePlaying:
		return Notice{
			Title:   title,
			Body:    "Playing",
			Artwork: artwork,
			Ongoing: true,
			Sticky:  true,
			Actions: []Action{ActionPause, ActionStop},
		}, true

	case session.PhasePaused:
		return Notice{
			Title:   title,
			Body:    "Paused",
			Artwork: artwork,
			Sticky:  true,
			Actions: []Action{ActionResume, ActionStop},
		}, true

	case session.PhaseError:
		body := snap.State.Message
		if body == "" {
			body = "Playback failed"
		}
		return Notice{
			Title:   title,
			Body:    body,
			Artwork: artwork,
			Failure: true,
		}, true

	default:
		return Notice{}, false
	}
}

func (p *Publisher) showLocked(notice Notice) {
	var errs []error
	for _, indicator := range p.indicators {
		if err := indicator.Show(notice); err != nil {
			errs = append(errs, err)
		}
	}
	p.visible = true

	if err := errors.Join(errs...); err != nil {
		p.logger.Warnw("Failed to show notice on some indicators", "title", notice.Title, "error", err)
	}
}

func (p *Publisher) withdrawLocked() {
	if !p.visible {
		return
	}

	var errs []error
	for _, indicator := range p.indicators {
		if err := indicator.Withdraw(); err != nil {
			errs = append(errs, err)
		}
	}
	p.visible = false

	if err := errors.Join(errs...); err != nil {
		p.logger.Warnw("Failed to withdraw notice from some indicators", "error", err)
	}
}

func (p *Publisher) startGraceLocked(generation uint64) {
	p.graceTimer = time.AfterFunc(p.grace, func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		// a newer snapshot owns the indicators now
		if p.closed || p.generation != generation {
			return
		}

		p.logger.Debugw("Failure grace period elapsed, withdrawing notice", "grace", p.grace)
		p.graceTimer = nil
		p.withdrawLocked()
	})
}

func (p *Publisher) cancelGraceLocked() {
	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
}
