package app

import (
	"cmp"
	"slices"
	"sync"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Conn     core.Connection
	Room     domain.RoomName
	Identity domain.Identity
}

// ConnectionRegistry tracks live sockets per chat room and which
// identities are online. Membership is socket level: two tabs of the
// same user are two entries.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*connEntry
	rooms map[domain.RoomName]map[core.ConnID]core.Connection
	// identity -> room -> number of live connections in that room
	online map[domain.Identity]map[domain.RoomName]int
	byID   map[domain.Identity]map[core.ConnID]core.Connection
	// order in which identities came online; only holds online identities
	order []domain.Identity
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:  make(map[core.ConnID]*connEntry),
		rooms:  make(map[domain.RoomName]map[core.ConnID]core.Connection),
		online: make(map[domain.Identity]map[domain.RoomName]int),
		byID:   make(map[domain.Identity]map[core.ConnID]core.Connection),
	}
}

// Register adds conn to room on behalf of identity. Registering a
// connection twice is a no-op and reports false.
func (r *ConnectionRegistry) Register(conn core.Connection, room domain.RoomName, identity domain.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cid := conn.ID()
	if _, ok := r.conns[cid]; ok {
		return false
	}
	r.conns[cid] = &connEntry{Conn: conn, Room: room, Identity: identity}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[core.ConnID]core.Connection)
		r.rooms[room] = members
	}
	members[cid] = conn

	rooms, ok := r.online[identity]
	if !ok {
		rooms = make(map[domain.RoomName]int)
		r.online[identity] = rooms
		r.order = append(r.order, identity)
	}
	rooms[room]++

	own, ok := r.byID[identity]
	if !ok {
		own = make(map[core.ConnID]core.Connection)
		r.byID[identity] = own
	}
	own[cid] = conn

	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("room", string(room)).Str("identity", string(identity)).Msg("registered")
	return true
}

// Unregister removes conn. Unknown or already removed connections are
// a no-op and report false. The stored room and identity win over the
// arguments when they disagree.
func (r *ConnectionRegistry) Unregister(conn core.Connection, room domain.RoomName, identity domain.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cid := conn.ID()
	e, ok := r.conns[cid]
	if !ok {
		return false
	}
	if e.Room != room || e.Identity != identity {
		log.Warn().Str("module", "app.registry").Str("conn", string(cid)).Str("room", string(room)).Str("identity", string(identity)).Msg("unregister with stale room or identity")
	}
	delete(r.conns, cid)

	if members, ok := r.rooms[e.Room]; ok {
		delete(members, cid)
		if len(members) == 0 {
			delete(r.rooms, e.Room)
		}
	}

	if own, ok := r.byID[e.Identity]; ok {
		delete(own, cid)
		if len(own) == 0 {
			delete(r.byID, e.Identity)
		}
	}

	if rooms, ok := r.online[e.Identity]; ok {
		rooms[e.Room]--
		if rooms[e.Room] <= 0 {
			delete(rooms, e.Room)
		}
		if len(rooms) == 0 {
			delete(r.online, e.Identity)
			r.order = slices.DeleteFunc(r.order, func(id domain.Identity) bool { return id == e.Identity })
		}
	}

	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("room", string(e.Room)).Str("identity", string(e.Identity)).Msg("unregistered")
	return true
}

func (r *ConnectionRegistry) IsOnline(identity domain.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.online[identity]
	return ok
}

// OnlineIdentities returns a snapshot in the order identities came online.
func (r *ConnectionRegistry) OnlineIdentities() []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

func (r *ConnectionRegistry) ConnectionsInRoom(room domain.RoomName) []core.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]core.Connection, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

func (r *ConnectionRegistry) ConnectionsOf(identity domain.Identity) []core.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	own := r.byID[identity]
	out := make([]core.Connection, 0, len(own))
	for _, c := range own {
		out = append(out, c)
	}
	return out
}

func (r *ConnectionRegistry) IdentityOf(conn core.Connection) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[conn.ID()]
	if !ok {
		return "", false
	}
	return e.Identity, true
}

// Rooms lists chat rooms that currently hold at least one connection.
func (r *ConnectionRegistry) Rooms() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for name, members := range r.rooms {
		out = append(out, core.RoomInfo{Name: name, ConnectionCount: len(members)})
	}
	slices.SortFunc(out, func(a, b core.RoomInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func (r *ConnectionRegistry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
