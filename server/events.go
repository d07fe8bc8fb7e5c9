package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"radio-tui/host"
	"radio-tui/model"
	"radio-tui/session"
)

const clientBuffer = 16

// Client is one connected event stream
type Client struct {
	id     string
	events chan event
	done   chan struct{}
	once   sync.Once
}

func (c *Client) drop() {
	c.once.Do(func() { close(c.done) })
}

type event struct {
	name string
	data []byte
}

// EventHub attaches to the host as its observer while at least one event
// client is connected and fans notifications out to every client.
type EventHub struct {
	logger  *zap.SugaredLogger
	control Controller

	mu         sync.RWMutex
	clients    map[string]*Client
	generation uint64
	last       session.Snapshot
}

// NewEventHub creates a hub over control
func NewEventHub(logger *zap.SugaredLogger, control Controller) *EventHub {
	return &EventHub{
		logger:  logger.Named("events"),
		control: control,
		clients: make(map[string]*Client),
	}
}

// Subscribe streams events to w until ctx is done or the client falls too far
// behind. The first event is the current state.
func (h *EventHub) Subscribe(ctx context.Context, w http.ResponseWriter) error {
	client := &Client{
		id:     uuid.NewString(),
		events: make(chan event, clientBuffer),
		done:   make(chan struct{}),
	}

	h.addClient(client)
	defer h.removeClient(client.id)

	flusher, _ := w.(http.Flusher)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-client.done:
			return fmt.Errorf("client %s dropped", client.id)

		case ev := <-client.events:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// Clients returns the number of connected event clients
func (h *EventHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client
func (h *EventHub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		client.drop()
	}
}

func (h *EventHub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		h.generation++
		h.last = h.control.Attach(h.observer(h.generation))
		h.logger.Debug("Attached to host")
	}

	h.clients[client.id] = client
	client.events <- stateEvent(h.last)

	h.logger.Debugw("Event client added", "client", client.id, "clients", len(h.clients))
}

func (h *EventHub) removeClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, clientID)

	if len(h.clients) == 0 {
		h.control.Detach()
		h.logger.Debug("Detached from host")
	}

	h.logger.Debugw("Event client removed", "client", clientID, "clients", len(h.clients))
}

func (h *EventHub) observer(generation uint64) host.Observer {
	return host.Observer{
		OnStateChanged: func(state session.State, station *model.Station) {
			snap := session.Snapshot{State: state, Station: station}
			h.broadcast(generation, stateEvent(snap), &snap)
		},
		OnError: func(message string) {
			data, _ := json.Marshal(map[string]string{"message": message})
			h.broadcast(generation, event{name: "error", data: data}, nil)
		},
	}
}

func (h *EventHub) broadcast(generation uint64, ev event, snap *session.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// a notification from an earlier attachment
	if generation != h.generation {
		return
	}

	if snap != nil {
		h.last = *snap
	}

	for _, client := range h.clients {
		select {
		case client.events <- ev:
		default:
			h.logger.Warnw("Event client too slow, dropping", "client", client.id)
			client.drop()
		}
	}
}

func stateEvent(snap session.Snapshot) event {
	data, _ := json.Marshal(newStatusResponse(snap))
	return event{name: "state", data: data}
}
