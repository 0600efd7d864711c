package web

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// hub tracks the live socket for each visitor id. A visitor has at most
// one socket; a reconnect replaces the previous one.
type hub struct {
	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func newHub() *hub {
	return &hub{conns: make(map[string]*websocket.Conn)}
}

func (h *hub) register(visitorID string, conn *websocket.Conn) {
	h.mu.Lock()
	prev := h.conns[visitorID]
	h.conns[visitorID] = conn
	h.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
}

func (h *hub) unregister(visitorID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[visitorID] == conn {
		delete(h.conns, visitorID)
	}
}

// push writes one JSON frame to the visitor's live socket. Visitors
// without a live socket are unreachable; the caller surfaces that as a
// delivery failure.
func (h *hub) push(visitorID string, payload any) error {
	// Write under the hub lock: gorilla conns do not support concurrent
	// writers.
	h.mu.Lock()
	defer h.mu.Unlock()
	conn := h.conns[visitorID]
	if conn == nil {
		return fmt.Errorf("visitor %s has no live socket", visitorID)
	}
	if err := conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("push to visitor %s: %w", visitorID, err)
	}
	return nil
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
