// Package session implements the playback state machine that owns the single
// live stream handle.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"radio-tui/model"
	"radio-tui/player"
)

// Sink receives every published snapshot. It is called with the Session lock
// held, so it must only enqueue and never call back into the Session.
type Sink func(Snapshot)

// Session tracks the selected station and playback state and owns at most one
// stream handle. All operations and engine signals are serialized on mu.
type Session struct {
	logger *zap.SugaredLogger
	engine player.Engine
	sink   Sink

	mu      sync.Mutex
	state   State
	station *model.Station
	handle  player.Handle
	// ready records whether the current handle has reported ready at least
	// once, so Resume knows whether to go back to Loading or to Playing
	ready     bool
	published Snapshot
	closed    bool

	current atomic.Pointer[Snapshot]
}

// New creates an idle Session. sink may be nil.
func New(logger *zap.SugaredLogger, engine player.Engine, sink Sink) *Session {
	logger = logger.Named("session")

	if sink == nil {
		sink = func(Snapshot) {}
	}

	s := &Session{
		logger: logger,
		engine: engine,
		sink:   sink,
	}
	s.current.Store(&Snapshot{})

	logger.Debug("Created session instance")

	return s
}

// Play releases any current stream and starts loading station. It returns
// once preparation has been started; the move to Playing happens when the
// engine reports ready.
func (s *Session) Play(station model.Station) error {
	streamURL := station.StreamURL()
	if streamURL == "" {
		return fmt.Errorf("%w: station %q has no stream url", ErrInvalidStation, station.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: session closed", ErrInvalidState)
	}

	s.releaseHandle()
	s.station = &station
	s.ready = false

	handle, err := s.engine.NewHandle(streamURL)
	if err != nil {
		s.logger.Warnw("Failed to create stream handle", "station", station.ID, "error", err)
		s.setState(State{Phase: PhaseError, Message: err.Error()})
		return fmt.Errorf("%w: %v", ErrStreamFailure, err)
	}

	s.handle = handle
	s.setState(State{Phase: PhaseLoading})

	s.logger.Infow("Loading station",
		"station", station.ID,
		"name", station.DisplayName(),
		"url", streamURL,
		"handle", handle.ID())

	handle.Start(func(ev player.Event) {
		s.handleEvent(handle, ev)
	})

	return nil
}

// Pause pauses playback and keeps the stream handle so Resume is cheap.
// It is a no-op when nothing is playing.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Phase {
	case PhasePlaying, PhaseLoading:
		s.handle.Pause()
		s.setState(State{Phase: PhasePaused})
	default:
		s.logger.Debugw("Ignoring pause", "state", s.state)
	}
}

// Resume continues a paused stream. It fails with ErrInvalidState when there
// is no stream to resume.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: session closed", ErrInvalidState)
	}

	switch s.state.Phase {
	case PhasePaused:
		s.handle.Resume()
		if s.ready {
			s.setState(State{Phase: PhasePlaying})
		} else {
			s.setState(State{Phase: PhaseLoading})
		}
		return nil
	case PhasePlaying, PhaseLoading:
		return nil
	default:
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidState, s.state)
	}
}

// Stop releases the stream, clears the station and returns to Idle. It is
// valid from any state.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseHandle()
	s.station = nil
	s.ready = false
	s.setState(State{Phase: PhaseIdle})
}

// Close stops playback for good. Afterwards Play and Resume fail with
// ErrInvalidState and no new stream handle is ever created.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseHandle()
	s.station = nil
	s.ready = false
	s.setState(State{Phase: PhaseIdle})
	s.closed = true

	s.logger.Debug("Session closed")
}

// Snapshot returns the current state and station without locking
func (s *Session) Snapshot() Snapshot {
	snap := *s.current.Load()
	snap.Station = copyStation(snap.Station)
	return snap
}

// State returns the current playback state
func (s *Session) State() State {
	return s.current.Load().State
}

// CurrentStation returns a copy of the current station, or nil when idle
func (s *Session) CurrentStation() *model.Station {
	return copyStation(s.current.Load().Station)
}

// IsPlaying reports whether audio is currently playing
func (s *Session) IsPlaying() bool {
	return s.current.Load().State.Phase == PhasePlaying
}

func (s *Session) handleEvent(handle player.Handle, ev player.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != handle {
		s.logger.Debugw("Ignoring event from superseded handle", "handle", handle.ID(), "event", ev.Kind)
		return
	}

	switch ev.Kind {
	case player.EventReady:
		s.ready = true
		if s.state.Phase == PhaseLoading {
			s.setState(State{Phase: PhasePlaying})
		}

	case player.EventError:
		message := "unknown stream error"
		if ev.Err != nil {
			message = ev.Err.Error()
		}

		s.logger.Warnw("Stream failed", "handle", handle.ID(), "error", message)

		s.releaseHandle()
		s.ready = false
		s.setState(State{Phase: PhaseError, Message: message})
	}
}

// releaseHandle must be called with mu held. Release failures are logged and
// otherwise ignored.
func (s *Session) releaseHandle() {
	if s.handle == nil {
		return
	}

	handle := s.handle
	s.handle = nil

	if err := handle.Release(); err != nil {
		s.logger.Warnw("Failed to release stream handle",
			"handle", handle.ID(),
			"error", fmt.Errorf("%w: %v", ErrReleaseFailure, err))
	}
}

// setState must be called with mu held. It publishes only when the
// (state, station) pair differs from the last published one.
func (s *Session) setState(state State) {
	s.state = state

	snap := Snapshot{State: state, Station: copyStation(s.station)}
	s.current.Store(&snap)

	if snap.Equal(s.published) {
		return
	}
	s.published = snap

	s.logger.Debugw("State changed", "state", state, "station", stationID(snap.Station))

	s.sink(Snapshot{State: snap.State, Station: copyStation(snap.Station)})
}

func stationID(station *model.Station) string {
	if station == nil {
		return ""
	}
	return station.ID
}
