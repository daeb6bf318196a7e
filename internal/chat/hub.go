package chat

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lmsportal/internal/model"
)

// Hub is a local stand-in for the socket server. Every chatMessage it reads is
// written to every client connected at that moment.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*hubConn]struct{}
}

type hubConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (h *hubConn) write(env Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return h.conn.WriteJSON(env)
}

// NewHub creates a hub. checkOrigin may be nil to accept any origin.
func NewHub(checkOrigin func(*http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		conns:    make(map[*hubConn]struct{}),
	}
}

// ServeHTTP upgrades the request and relays until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("chat: hub upgrade: %v", err)
		return
	}
	hc := &hubConn{conn: conn}
	h.mu.Lock()
	h.conns[hc] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, hc)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Event != EventChatMessage {
			continue
		}
		var msg model.ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			continue
		}
		h.Broadcast(msg)
	}
}

// Broadcast sends msg to every connected client.
func (h *Hub) Broadcast(msg model.ChatMessage) {
	env, err := Encode(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	targets := make([]*hubConn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.write(env); err != nil {
			log.Printf("chat: broadcast: %v", err)
		}
	}
}

// Connected reports how many clients are attached.
func (h *Hub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
