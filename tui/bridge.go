package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"radio-tui/host"
	"radio-tui/model"
	"radio-tui/session"
)

const bridgeBuffer = 32

// observerBridge turns host notifications into bubbletea messages
type observerBridge struct {
	events chan tea.Msg
	done   chan struct{}
	once   sync.Once
}

func newObserverBridge() *observerBridge {
	return &observerBridge{
		events: make(chan tea.Msg, bridgeBuffer),
		done:   make(chan struct{}),
	}
}

func (b *observerBridge) observer() host.Observer {
	return host.Observer{
		OnStateChanged: func(state session.State, station *model.Station) {
			b.send(stateChangedMsg{state: state, station: station})
		},
		OnError: func(message string) {
			b.send(streamErrorMsg{message: message})
		},
	}
}

// send blocks until the UI takes the message or the bridge is closed, so
// notifications keep their order
func (b *observerBridge) send(msg tea.Msg) {
	select {
	case b.events <- msg:
	case <-b.done:
	}
}

func (b *observerBridge) close() {
	b.once.Do(func() { close(b.done) })
}
