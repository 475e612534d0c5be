package main

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/sparkdeck/spark/game"
)

// The websocket feed is one-way: the server pushes the updated session view
// after each mutation so a second device can follow along. Watchers never
// mutate the session through this channel.

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	conn *websocket.Conn
	send chan any
}

// Hub fans session views out to their watchers, keyed by session id.
type Hub struct {
	mu       sync.Mutex
	watchers map[string]map[*wsClient]bool
}

func newHub() *Hub {
	return &Hub{watchers: make(map[string]map[*wsClient]bool)}
}

func (h *Hub) add(sessionID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.watchers[sessionID] == nil {
		h.watchers[sessionID] = make(map[*wsClient]bool)
	}
	h.watchers[sessionID][c] = true
}

func (h *Hub) remove(sessionID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.watchers[sessionID]; ok {
		if clients[c] {
			delete(clients, c)
			close(c.send)
		}
		if len(clients) == 0 {
			delete(h.watchers, sessionID)
		}
	}
}

// broadcast is the engine's notifier hook. Slow watchers are dropped
// rather than blocking a game operation.
func (h *Hub) broadcast(v game.View) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.watchers[v.SessionID] {
		select {
		case c.send <- v:
		default:
			delete(h.watchers[v.SessionID], c)
			close(c.send)
		}
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// readPump discards anything the watcher sends and detects disconnects.
func (c *wsClient) readPump(h *Hub, sessionID string) {
	defer func() {
		h.remove(sessionID, c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *server) handleWatch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("sessionId")

	view, err := s.engine.Status(r.Context(), sessionID)
	if err != nil {
		s.fail("watch", w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan any, 8),
	}

	// Queue the current view before the hub can see the client, so the
	// watcher doesn't wait for the next move and a broadcast burst can't
	// close the channel under this send.
	client.send <- view
	s.hub.add(sessionID, client)
	s.metrics.operation("watch", "ok")

	go client.writePump()
	client.readPump(s.hub, sessionID)
}
