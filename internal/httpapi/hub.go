// Package httpapi is a read-only introspection surface over one or more
// running executives (spec §2's domain stack): JSON snapshots of node
// state/outcome and cache entries, plus a websocket feed of live
// transition/value-change events. There is no endpoint to inject
// commands, lookups, or start/stop an executive — this is observability,
// not a control surface. Grounded on the teacher's pkg/server (process
// lifecycle) and internal/application/observer/websocket_observer.go
// (the client hub/broadcast shape).
package httpapi

import (
	"encoding/json"
	"sync"
	"time"
)

// Event is one broadcastable item on an executive's feed: a node
// transition, an expression value change, or a cache update. Fields
// irrelevant to Kind are left zero, mirroring plexevent.Event's single-
// struct-many-kinds shape.
type Event struct {
	Kind      string    `json:"kind"` // "node_transition", "value_change", "cache_update"
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id,omitempty"`
	State     string    `json:"state,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Name      string    `json:"name,omitempty"`
	Value     string    `json:"value,omitempty"`
}

// client is one connected websocket subscriber.
type client struct {
	send chan []byte
}

// Hub broadcasts Events to every connected websocket client of one
// executive's feed, grounded on the teacher's WebSocketHub (register/
// unregister channels drained by a single run loop so the client set is
// never touched concurrently from more than one goroutine).
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
}

// NewHub constructs a Hub and starts its run loop.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish broadcasts ev to every connected client of this feed.
func (h *Hub) Publish(ev Event) {
	ev.Timestamp = ev.Timestamp.UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// ClientCount reports the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
