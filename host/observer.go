package host

import (
	"radio-tui/model"
	"radio-tui/session"
)

// Observer receives playback notifications while attached. Either callback
// may be nil.
type Observer struct {
	OnStateChanged func(state session.State, station *model.Station)
	// OnError is called after OnStateChanged when the new state is an error
	OnError func(message string)

	// Executor, when set, runs each notification on the observer's own
	// context instead of the host's dispatch goroutine. It must not block for
	// long since notifications are delivered in order.
	Executor func(func())
}

func (o Observer) notify(snap session.Snapshot) {
	snap = snap.Clone()

	deliver := func() {
		if o.OnStateChanged != nil {
			o.OnStateChanged(snap.State, snap.Station)
		}
		if snap.State.Phase == session.PhaseError && o.OnError != nil {
			o.OnError(snap.State.Message)
		}
	}

	if o.Executor != nil {
		o.Executor(deliver)
		return
	}
	deliver()
}

type registration struct {
	observer Observer
	// since is the sequence number of the snapshot handed out by Attach;
	// only later items are delivered
	since uint64
}
