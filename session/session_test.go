package session

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"radio-tui/model"
	"radio-tui/player/playertest"
)

var (
	stationA = model.Station{ID: "a", Name: "Station A", URL: "http://a.example/stream"}
	stationB = model.Station{ID: "b", Name: "Station B", URL: "http://b.example/pls", URLResolved: "http://b.example/stream"}
)

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) sink(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, len(r.snaps))
	copy(out, r.snaps)
	return out
}

func (r *recorder) count(phase Phase) int {
	n := 0
	for _, s := range r.all() {
		if s.State.Phase == phase {
			n++
		}
	}
	return n
}

func newTestSession(t *testing.T) (*Session, *playertest.Engine, *recorder) {
	engine := playertest.NewEngine()
	rec := &recorder{}
	return New(zaptest.NewLogger(t).Sugar(), engine, rec.sink), engine, rec
}

func assertInvariants(t *testing.T, s *Session, engine *playertest.Engine) {
	t.Helper()

	snap := s.Snapshot()
	live := engine.Live()

	if snap.State.Phase.HasStream() != (len(live) == 1) {
		t.Errorf("state %s with %d live handles", snap.State, len(live))
	}
	if len(live) > 1 {
		t.Errorf("expected at most one live handle, got %d", len(live))
	}
	if (snap.State.Phase != PhaseIdle) != (snap.Station != nil) {
		t.Errorf("state %s with station %v", snap.State, snap.Station)
	}
}

func TestPlay_ReadyPublishesPlayingOnce(t *testing.T) {
	s, engine, rec := newTestSession(t)

	if err := s.Play(stationA); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	if s.State().Phase != PhaseLoading {
		t.Fatalf("expected loading, got %s", s.State())
	}
	h := engine.Last()
	if !h.Started() {
		t.Fatal("expected handle preparation to be started")
	}
	if h.URL() != "http://a.example/stream" {
		t.Errorf("unexpected url %q", h.URL())
	}

	h.Ready()
	h.Ready()
	h.Ready()

	if !s.IsPlaying() {
		t.Fatalf("expected playing, got %s", s.State())
	}
	if got := rec.count(PhasePlaying); got != 1 {
		t.Errorf("expected exactly one playing notification, got %d", got)
	}

	snaps := rec.all()
	last := snaps[len(snaps)-1]
	if last.Station == nil || last.Station.ID != "a" {
		t.Errorf("expected playing notification for station a, got %+v", last.Station)
	}

	assertInvariants(t, s, engine)
}

func TestPlay_UsesResolvedURL(t *testing.T) {
	s, engine, _ := newTestSession(t)

	s.Play(stationB)

	if got := engine.Last().URL(); got != "http://b.example/stream" {
		t.Errorf("expected resolved url, got %q", got)
	}
}

func TestPlay_InvalidStation(t *testing.T) {
	s, engine, rec := newTestSession(t)

	err := s.Play(model.Station{ID: "empty", Name: "No URL"})
	if !errors.Is(err, ErrInvalidStation) {
		t.Fatalf("expected ErrInvalidStation, got %v", err)
	}
	if len(engine.Handles()) != 0 {
		t.Error("no handle should be created for an invalid station")
	}
	if len(rec.all()) != 0 || s.State().Phase != PhaseIdle {
		t.Error("invalid play must not change state")
	}
}

func TestPlay_ReplacesStream(t *testing.T) {
	s, engine, _ := newTestSession(t)

	s.Play(stationA)
	first := engine.Last()
	first.Ready()

	s.Play(stationB)
	second := engine.Last()

	if !first.Released() {
		t.Error("expected handle for station a to be released")
	}
	if second.Released() {
		t.Error("handle for station b must stay live")
	}
	if got := s.CurrentStation(); got == nil || got.ID != "b" {
		t.Errorf("expected current station b, got %+v", got)
	}

	assertInvariants(t, s, engine)
}

func TestPlay_NoIntermediateIdle(t *testing.T) {
	s, engine, rec := newTestSession(t)

	s.Play(stationA)
	engine.Last().Ready()
	s.Play(stationB)

	if n := rec.count(PhaseIdle); n != 0 {
		t.Errorf("station switch published %d idle states", n)
	}
}

func TestPlay_LateReadyFromSupersededHandle(t *testing.T) {
	s, engine, rec := newTestSession(t)

	s.Play(stationA)
	first := engine.Last()
	s.Play(stationB)
	second := engine.Last()

	first.Ready()
	if s.State().Phase != PhaseLoading {
		t.Fatalf("late ready for a changed state to %s", s.State())
	}

	first.Fail("late failure")
	if s.State().Phase != PhaseLoading {
		t.Fatalf("late error for a changed state to %s", s.State())
	}

	second.Ready()
	if !s.IsPlaying() || s.CurrentStation().ID != "b" {
		t.Fatalf("expected playing b, got %s %+v", s.State(), s.CurrentStation())
	}

	for _, snap := range rec.all() {
		if snap.State.Phase == PhasePlaying && snap.Station.ID != "b" {
			t.Errorf("published playing for %s", snap.Station.ID)
		}
	}
}

func TestPlay_EngineRefusesHandle(t *testing.T) {
	s, engine, rec := newTestSession(t)
	engine.NewHandleErr = errors.New("no audio device")

	err := s.Play(stationA)
	if !errors.Is(err, ErrStreamFailure) {
		t.Fatalf("expected ErrStreamFailure, got %v", err)
	}

	state := s.State()
	if state.Phase != PhaseError || state.Message != "no audio device" {
		t.Fatalf("expected error state, got %s", state)
	}
	if rec.count(PhaseError) != 1 {
		t.Error("expected error to be published")
	}

	assertInvariants(t, s, engine)
}

func TestPause(t *testing.T) {
	s, engine, rec := newTestSession(t)

	s.Pause()
	if len(rec.all()) != 0 {
		t.Fatal("pause from idle must be a no-op")
	}

	s.Play(stationA)
	h := engine.Last()
	h.Ready()

	s.Pause()
	s.Pause()

	if s.State().Phase != PhasePaused {
		t.Fatalf("expected paused, got %s", s.State())
	}
	if !h.Paused() || h.Released() {
		t.Error("expected handle paused and retained")
	}
	if got := rec.count(PhasePaused); got != 1 {
		t.Errorf("expected one paused notification, got %d", got)
	}

	assertInvariants(t, s, engine)
}

func TestResume(t *testing.T) {
	s, engine, _ := newTestSession(t)

	s.Play(stationA)
	h := engine.Last()
	h.Ready()
	s.Pause()

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !s.IsPlaying() || h.Paused() {
		t.Fatalf("expected playing, got %s", s.State())
	}

	if err := s.Resume(); err != nil {
		t.Errorf("resume while playing should be a no-op, got %v", err)
	}
}

func TestResume_FromIdle(t *testing.T) {
	s, _, rec := newTestSession(t)

	err := s.Resume()
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if s.State().Phase != PhaseIdle || len(rec.all()) != 0 {
		t.Error("failed resume must not change state")
	}
}

func TestResume_FromError(t *testing.T) {
	s, engine, _ := newTestSession(t)

	s.Play(stationA)
	engine.Last().Fail("boom")

	if err := s.Resume(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if s.State().Phase != PhaseError {
		t.Errorf("expected state to stay error, got %s", s.State())
	}
}

func TestPauseWhileLoading(t *testing.T) {
	s, engine, _ := newTestSession(t)

	s.Play(stationA)
	h := engine.Last()

	s.Pause()
	if s.State().Phase != PhasePaused || !h.Paused() {
		t.Fatalf("expected paused pending handle, got %s", s.State())
	}

	h.Ready()
	if s.State().Phase != PhasePaused {
		t.Fatalf("ready must not override pause, got %s", s.State())
	}

	s.Resume()
	if !s.IsPlaying() {
		t.Fatalf("expected playing after resume of a ready stream, got %s", s.State())
	}
}

func TestResumeBeforeReadyReturnsToLoading(t *testing.T) {
	s, engine, _ := newTestSession(t)

	s.Play(stationA)
	s.Pause()
	s.Resume()

	if s.State().Phase != PhaseLoading {
		t.Fatalf("expected loading, got %s", s.State())
	}

	engine.Last().Ready()
	if !s.IsPlaying() {
		t.Fatalf("expected playing, got %s", s.State())
	}
}

func TestStop_FromAnyState(t *testing.T) {
	drive := map[string]func(s *Session, e *playertest.Engine){
		"idle":    func(s *Session, e *playertest.Engine) {},
		"loading": func(s *Session, e *playertest.Engine) { s.Play(stationA) },
		"playing": func(s *Session, e *playertest.Engine) { s.Play(stationA); e.Last().Ready() },
		"paused":  func(s *Session, e *playertest.Engine) { s.Play(stationA); e.Last().Ready(); s.Pause() },
		"error":   func(s *Session, e *playertest.Engine) { s.Play(stationA); e.Last().Fail("boom") },
	}

	for name, setup := range drive {
		t.Run(name, func(t *testing.T) {
			s, engine, _ := newTestSession(t)
			setup(s, engine)

			s.Stop()

			if s.State().Phase != PhaseIdle {
				t.Errorf("expected idle, got %s", s.State())
			}
			if s.CurrentStation() != nil {
				t.Error("expected no station after stop")
			}
			if len(engine.Live()) != 0 {
				t.Error("expected every handle released after stop")
			}
		})
	}
}

func TestStreamError(t *testing.T) {
	s, engine, rec := newTestSession(t)

	s.Play(stationA)
	h := engine.Last()
	h.Fail("network unreachable")

	state := s.State()
	if state.Phase != PhaseError || state.Message != "network unreachable" {
		t.Fatalf("expected error(network unreachable), got %s", state)
	}
	if !h.Released() {
		t.Error("expected failed handle to be released")
	}
	if got := s.CurrentStation(); got == nil || got.ID != "a" {
		t.Errorf("expected station to be kept on error, got %+v", got)
	}

	snaps := rec.all()
	if last := snaps[len(snaps)-1]; last.State != state {
		t.Errorf("expected error to be published, got %s", last.State)
	}

	assertInvariants(t, s, engine)

	// retry is the caller's decision
	if err := s.Play(stationA); err != nil {
		t.Fatalf("replay after error failed: %v", err)
	}
	if s.State().Phase != PhaseLoading {
		t.Errorf("expected loading after replay, got %s", s.State())
	}
}

func TestReleaseFailureDoesNotBlock(t *testing.T) {
	s, engine, _ := newTestSession(t)
	engine.ReleaseErr = errors.New("device busy")

	s.Play(stationA)
	if err := s.Play(stationB); err != nil {
		t.Fatalf("Play after failed release: %v", err)
	}
	if s.CurrentStation().ID != "b" {
		t.Error("expected station b")
	}

	s.Stop()
	if s.State().Phase != PhaseIdle {
		t.Errorf("expected idle, got %s", s.State())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s, _, _ := newTestSession(t)
	s.Play(stationA)

	snap := s.Snapshot()
	snap.Station.Name = "mutated"

	if s.CurrentStation().Name != "Station A" {
		t.Error("snapshot station must not alias session state")
	}
}

func TestClose_RejectsPlayAndResume(t *testing.T) {
	s, engine, _ := newTestSession(t)

	s.Play(stationA)
	engine.Last().Ready()
	s.Pause()

	s.Close()

	if s.State().Phase != PhaseIdle || len(engine.Live()) != 0 {
		t.Fatalf("expected idle with no stream after close, got %s", s.State())
	}

	if err := s.Play(stationB); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState from Play, got %v", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState from Resume, got %v", err)
	}
	if n := len(engine.Handles()); n != 1 {
		t.Errorf("expected no handle created after close, got %d handles", n)
	}

	assertInvariants(t, s, engine)
}
