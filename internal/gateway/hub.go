package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/relaydesk/labridge/internal/relay"
)

// wsWriteTimeout bounds a single frame write to a widget client.
const wsWriteTimeout = 10 * time.Second

// Hub fans orchestrator events out to widget WebSocket clients, keyed by
// room. It implements the relay package's Publisher.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*wsClient]struct{}
}

// wsClient is one connected widget. Events are queued on a buffered channel;
// a client that cannot keep up has events dropped rather than stalling the
// orchestrator.
type wsClient struct {
	events chan []byte
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger.With("component", "hub"),
		rooms:  make(map[string]map[*wsClient]struct{}),
	}
}

// Publish implements relay.Publisher. Delivery is best-effort per client.
func (h *Hub) Publish(roomID string, ev relay.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		select {
		case c.events <- data:
		default:
			// Slow consumer, drop the event.
		}
	}
}

// Clients returns the number of connected widgets for a room.
func (h *Hub) Clients(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// ServeRoom upgrades the request to a WebSocket and streams the room's
// events until the client disconnects.
func (h *Hub) ServeRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if roomID == "" {
		http.Error(w, "room id is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "room", roomID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := &wsClient{events: make(chan []byte, 32)}
	h.register(roomID, client)
	defer h.unregister(roomID, client)

	// Reads are drained only to surface disconnects; widgets talk to the
	// bridge through the webhook surface, not this stream.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-client.events:
			writeCtx, cancel := context.WithTimeout(r.Context(), wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-readDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Hub) register(roomID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*wsClient]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
}

func (h *Hub) unregister(roomID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[roomID], c)
	if len(h.rooms[roomID]) == 0 {
		delete(h.rooms, roomID)
	}
}
