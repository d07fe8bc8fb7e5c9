package player

// Engine creates stream handles and owns the process-wide audio output
type Engine interface {
	// NewHandle binds a new, not yet started, handle to streamURL
	NewHandle(streamURL string) (Handle, error)

	SetVolume(volume float64)
	Volume() float64
	IncreaseVolume(delta float64)
	DecreaseVolume(delta float64)
	ToggleMute()
	IsMuted() bool

	Close() error
}

// Handle is the live decode/output resource for one network audio stream.
// A handle is never reused: once released it stays released.
//
// Events are delivered to the sink passed to Start from a goroutine owned by
// the handle, never synchronously from inside a Handle method, so callers
// may hold their own locks while calling Pause, Resume or Release.
type Handle interface {
	ID() string
	URL() string

	// Start begins asynchronous preparation and returns immediately
	Start(sink func(Event))

	Pause()
	Resume()

	// Release stops output and closes the network stream. Calling it more
	// than once is a no-op.
	Release() error
}

// EventKind tells what the engine is reporting
type EventKind int

const (
	// EventReady means the stream is decoded and audible. Engines may emit it
	// more than once for the same handle.
	EventReady EventKind = iota
	// EventError means the stream failed and will not recover on its own
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a signal from a handle
type Event struct {
	Kind EventKind
	Err  error
}
