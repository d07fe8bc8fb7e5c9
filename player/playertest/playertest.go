// Package playertest provides an in-memory player.Engine whose handles emit
// ready and error signals on demand.
package playertest

import (
	"errors"
	"fmt"
	"sync"

	"radio-tui/player"
)

// Engine is a fake player.Engine. The zero value is not usable, call NewEngine.
type Engine struct {
	mu      sync.Mutex
	handles []*Handle
	volume  float64
	muted   bool

	// NewHandleErr, when set, makes NewHandle fail
	NewHandleErr error
	// ReleaseErr is returned by every handle's Release
	ReleaseErr error
}

var _ player.Engine = (*Engine)(nil)

// NewEngine returns an empty fake engine
func NewEngine() *Engine {
	return &Engine{volume: 1}
}

func (e *Engine) NewHandle(streamURL string) (player.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.NewHandleErr != nil {
		return nil, e.NewHandleErr
	}

	h := &Handle{
		id:         fmt.Sprintf("handle-%d", len(e.handles)+1),
		url:        streamURL,
		releaseErr: e.ReleaseErr,
	}
	e.handles = append(e.handles, h)
	return h, nil
}

// Handles returns every handle created so far, oldest first
func (e *Engine) Handles() []*Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Handle, len(e.handles))
	copy(out, e.handles)
	return out
}

// Last returns the most recently created handle, or nil
func (e *Engine) Last() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.handles) == 0 {
		return nil
	}
	return e.handles[len(e.handles)-1]
}

// Live returns the handles that have not been released
func (e *Engine) Live() []*Handle {
	var out []*Handle
	for _, h := range e.Handles() {
		if !h.Released() {
			out = append(out, h)
		}
	}
	return out
}

func (e *Engine) SetVolume(volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = volume
	e.muted = false
}

func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *Engine) IncreaseVolume(delta float64) { e.SetVolume(e.Volume() + delta) }
func (e *Engine) DecreaseVolume(delta float64) { e.SetVolume(e.Volume() - delta) }

func (e *Engine) ToggleMute() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = !e.muted
}

func (e *Engine) IsMuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *Engine) Close() error { return nil }

// Handle is a fake player.Handle. Signals are delivered synchronously on the
// goroutine calling Ready or Fail, which must not hold any lock the sink needs.
type Handle struct {
	id         string
	url        string
	releaseErr error

	mu       sync.Mutex
	sink     func(player.Event)
	started  bool
	paused   bool
	released bool
}

var _ player.Handle = (*Handle)(nil)

func (h *Handle) ID() string  { return h.id }
func (h *Handle) URL() string { return h.url }

func (h *Handle) Start(sink func(player.Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = sink
	h.started = true
}

func (h *Handle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = true
}

func (h *Handle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = false
}

func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
	return h.releaseErr
}

func (h *Handle) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

func (h *Handle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Ready emits a ready signal, even after release, to mimic late engine events
func (h *Handle) Ready() {
	h.signal(player.Event{Kind: player.EventReady})
}

// Fail emits an error signal with the given message
func (h *Handle) Fail(message string) {
	h.signal(player.Event{Kind: player.EventError, Err: errors.New(message)})
}

func (h *Handle) signal(ev player.Event) {
	h.mu.Lock()
	sink := h.sink
	h.mu.Unlock()

	if sink != nil {
		sink(ev)
	}
}
