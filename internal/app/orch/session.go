package orch

import (
	"sync"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "invalid"
}

// Session is the per-connection state driven by the Orchestrator.
type Session struct {
	conn core.Connection
	room domain.RoomName

	mu        sync.Mutex
	state     State
	identity  domain.Identity
	callRooms map[domain.CallRoomName]struct{}

	closeOnce sync.Once
}

func NewSession(conn core.Connection, room domain.RoomName) *Session {
	return &Session{
		conn:      conn,
		room:      room,
		callRooms: make(map[domain.CallRoomName]struct{}),
	}
}

func (s *Session) Conn() core.Connection { return s.conn }
func (s *Session) Room() domain.RoomName { return s.room }

func (s *Session) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// advance moves from one state to the next and reports whether the
// session was in the expected state.
func (s *Session) advance(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Session) authenticated(id domain.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnauthenticated {
		return false
	}
	s.identity = id
	s.state = StateAuthenticated
	return true
}

// markClosed returns the state the session was in before closing.
func (s *Session) markClosed() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = StateClosed
	return prev
}

// trackCall remembers a joined call room. It refuses once closed so a
// late join cannot outlive cleanup.
func (s *Session) trackCall(room domain.CallRoomName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.callRooms[room] = struct{}{}
	return true
}

func (s *Session) inCall(room domain.CallRoomName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.callRooms[room]
	return ok
}

func (s *Session) untrackCall(room domain.CallRoomName) {
	s.mu.Lock()
	delete(s.callRooms, room)
	s.mu.Unlock()
}

func (s *Session) takeCalls() []domain.CallRoomName {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CallRoomName, 0, len(s.callRooms))
	for r := range s.callRooms {
		out = append(out, r)
	}
	clear(s.callRooms)
	return out
}
