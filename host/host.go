// Package host owns the playback session for the lifetime of the process and
// lets a foreground surface attach to and detach from it without affecting
// playback.
package host

import (
	"sync"

	"go.uber.org/zap"

	"radio-tui/model"
	"radio-tui/player"
	"radio-tui/session"
)

// Presence reflects every published snapshot, attached observer or not
type Presence interface {
	Reflect(snap session.Snapshot)
	Close()
}

type queued struct {
	seq  uint64
	snap session.Snapshot
}

// Host wraps a Session, redispatching its transitions to presence and to at
// most one attached Observer from a single dispatch goroutine.
type Host struct {
	logger   *zap.SugaredLogger
	session  *session.Session
	presence Presence

	mu       sync.Mutex
	queue    []queued
	seq      uint64
	last     session.Snapshot
	observer *registration
	closed   bool

	wake      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New creates a Host with an idle session over engine. presence may be nil.
func New(logger *zap.SugaredLogger, engine player.Engine, presence Presence) *Host {
	h := &Host{
		logger:   logger.Named("host"),
		presence: presence,
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
	h.session = session.New(logger, engine, h.enqueue)

	go h.dispatch()

	h.logger.Debug("Created host instance")

	return h
}

// Attach installs observer, replacing any previous one without notifying
// either, and returns the snapshot the observer starts from. The observer
// then receives exactly the transitions published after that snapshot.
func (h *Host) Attach(observer Observer) session.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.observer != nil {
		h.logger.Debug("Replacing attached observer")
	}

	h.observer = &registration{observer: observer, since: h.seq}

	h.logger.Debugw("Observer attached", "state", h.last.State)

	return h.last.Clone()
}

// Detach clears the observer slot. Playback is unaffected. A notification
// already being delivered when Detach is called may still complete.
func (h *Host) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.observer == nil {
		return
	}

	h.observer = nil
	h.logger.Debug("Observer detached")
}

func (h *Host) attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.observer != nil
}

func (h *Host) Play(station model.Station) error { return h.session.Play(station) }
func (h *Host) Pause()                           { h.session.Pause() }
func (h *Host) Resume() error                    { return h.session.Resume() }
func (h *Host) Stop()                            { h.session.Stop() }

func (h *Host) CurrentStation() *model.Station { return h.session.CurrentStation() }
func (h *Host) IsPlaying() bool                { return h.session.IsPlaying() }
func (h *Host) Snapshot() session.Snapshot     { return h.session.Snapshot() }

// Close stops playback, delivers the remaining transitions and closes
// presence. Play and Resume fail with session.ErrInvalidState afterwards. It is safe to call more than once, but not from an observer
// callback.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		h.logger.Debug("Closing host")

		h.session.Close()

		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		h.signal()

		<-h.stopped

		if h.presence != nil {
			h.presence.Close()
		}

		h.logger.Debug("Host closed")
	})
}

// enqueue is the session sink. It runs under the session lock and must not
// block.
func (h *Host) enqueue(snap session.Snapshot) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}

	h.seq++
	h.queue = append(h.queue, queued{seq: h.seq, snap: snap})
	h.last = snap
	h.mu.Unlock()

	h.signal()
}

func (h *Host) signal() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Host) dispatch() {
	defer close(h.stopped)

	for {
		h.mu.Lock()
		batch := h.queue
		h.queue = nil
		closed := h.closed
		h.mu.Unlock()

		for _, item := range batch {
			h.deliver(item)
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}

		<-h.wake
	}
}

func (h *Host) deliver(item queued) {
	if h.presence != nil {
		h.presence.Reflect(item.snap)
	}

	h.mu.Lock()
	reg := h.observer
	h.mu.Unlock()

	if reg == nil || item.seq <= reg.since {
		return
	}

	reg.observer.notify(item.snap)
}
