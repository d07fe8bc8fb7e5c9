package session

import (
	"fmt"

	"radio-tui/model"
)

// Phase is the logical playback phase of a Session
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhasePlaying
	PhasePaused
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// HasStream reports whether a stream handle exists in this phase
func (p Phase) HasStream() bool {
	return p == PhaseLoading || p == PhasePlaying || p == PhasePaused
}

// State is the playback state. Message is only set in PhaseError.
type State struct {
	Phase   Phase
	Message string
}

func (s State) String() string {
	if s.Phase == PhaseError {
		return fmt.Sprintf("error(%s)", s.Message)
	}
	return s.Phase.String()
}

// Snapshot is a (state, station) pair as published to observers. Station is
// nil in PhaseIdle and otherwise points to a private copy.
type Snapshot struct {
	State   State
	Station *model.Station
}

// Equal compares state and station contents
func (s Snapshot) Equal(other Snapshot) bool {
	if s.State != other.State {
		return false
	}
	if s.Station == nil || other.Station == nil {
		return s.Station == nil && other.Station == nil
	}
	return *s.Station == *other.Station
}

// Clone returns a snapshot that shares nothing with s
func (s Snapshot) Clone() Snapshot {
	return Snapshot{State: s.State, Station: copyStation(s.Station)}
}

func copyStation(station *model.Station) *model.Station {
	if station == nil {
		return nil
	}
	c := *station
	return &c
}
