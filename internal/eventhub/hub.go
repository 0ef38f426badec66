// Package eventhub broadcasts profiler lifecycle events to connected
// websocket clients. It is purely observational: nothing on the
// blocking RPC path waits on it. Grounded on the teacher's
// internal/discovery/hub.go register/unregister/broadcast Hub, kept
// structurally intact and re-typed for profiler.LifecycleEvent instead
// of discovery's WsMessage.
package eventhub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nmslite/profilerd/internal/profiler"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is a middleman between one websocket connection and the hub.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of connected clients and broadcasts
// profiler.LifecycleEvents to all of them. It implements
// profiler.Notifier, so a Manager can publish directly into it.
type Hub struct {
	logger *slog.Logger

	clients map[*client]bool

	broadcast  chan []byte
	register   chan *client
	unregister chan *client

	mu sync.RWMutex
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger.With("component", "eventhub"),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]bool),
	}
}

// Run services register/unregister/broadcast in an endless loop; it
// never returns — matches the teacher's Hub.Run shape, started as its
// own goroutine by cmd/profilerd.
func (h *Hub) Run() {
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
		case message := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Notify implements profiler.Notifier: marshal the event and fan it
// out to every connected client.
func (h *Hub) Notify(event profiler.LifecycleEvent) {
	bytes, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal lifecycle event", "error", err)
		return
	}
	h.broadcast <- bytes
}

// ServeWs upgrades r to a websocket connection and registers it with
// the hub.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 256)}
	c.hub.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket client closed unexpectedly", "error", err)
			}
			break
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)

		n := len(c.send)
		for i := 0; i < n; i++ {
			w.Write(<-c.send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
