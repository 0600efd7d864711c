// Package session tracks the ephemeral per-interaction state of one
// (actor, chat) pair for the length of a conversation. Sessions are
// process-local and not durable across restarts; anything that must
// survive lives in the ticket store. The admin flag is recomputed on
// every inbound event and never trusted from a previous one.
package session

import (
	"sync"
	"time"

	"github.com/quailyquaily/relaydesk/internal/address"
)

type Mode string

const (
	ModeNone         Mode = ""
	ModePrivateReply Mode = "private_reply"
)

// ModeData binds a private relay to its counterpart. Only meaningful
// while Mode == ModePrivateReply.
type ModeData struct {
	TicketID        int64
	Counterpart     address.Address
	CounterpartName string
	Category        string
}

type Session struct {
	Admin bool
	Mode  Mode
	Data  ModeData

	// Resolved staff destination for this conversation, once chosen.
	Group         string
	GroupCategory string
	GroupTag      string

	LastSeen time.Time
}

// EndPrivateRelay clears the relay mode and its bound counterpart.
func (s *Session) EndPrivateRelay() {
	s.Mode = ModeNone
	s.Data = ModeData{}
}

type Key struct {
	Actor string
	Chat  string
}

// KeyFor derives the deterministic session key: callback events key on
// the actor alone, everything else on (actor, chat).
func KeyFor(actor, chat address.Address, callback bool) Key {
	if callback {
		return Key{Actor: actor.String(), Chat: actor.String()}
	}
	return Key{Actor: actor.String(), Chat: chat.String()}
}

// Manager owns all live sessions. It is injected into the router rather
// than living as a package-level map so state is scoped per process
// instance.
type Manager struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	now      func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[Key]*Session),
		now:      time.Now,
	}
}

// Get returns the session for key, creating it on first use, and stamps
// the access time.
func (m *Manager) Get(key Key) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		s = &Session{}
		m.sessions[key] = s
	}
	s.LastSeen = m.now()
	return s
}

// Sweep drops sessions idle for longer than maxIdle and reports how many
// were removed.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxIdle)
	removed := 0
	for key, s := range m.sessions {
		if s.LastSeen.Before(cutoff) {
			delete(m.sessions, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
