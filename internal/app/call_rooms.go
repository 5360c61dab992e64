package app

import (
	"cmp"
	"slices"
	"sync"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// CallRooms tracks which identities take part in which call room.
// Unlike chat rooms, membership is per identity, not per socket.
type CallRooms struct {
	mu    sync.RWMutex
	rooms map[domain.CallRoomName][]domain.Identity
}

func NewCallRooms() *CallRooms {
	return &CallRooms{rooms: make(map[domain.CallRoomName][]domain.Identity)}
}

// Join adds identity to room; it reports false if already present.
func (c *CallRooms) Join(room domain.CallRoomName, identity domain.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := c.rooms[room]
	if slices.Contains(members, identity) {
		return false
	}
	c.rooms[room] = append(members, identity)
	log.Info().Str("module", "app.calls").Str("call_room", string(room)).Str("identity", string(identity)).Msg("joined call room")
	return true
}

// Leave removes identity from room and drops the room once empty.
func (c *CallRooms) Leave(room domain.CallRoomName, identity domain.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	members, ok := c.rooms[room]
	if !ok {
		return false
	}
	idx := slices.Index(members, identity)
	if idx < 0 {
		return false
	}
	members = slices.Delete(members, idx, idx+1)
	if len(members) == 0 {
		delete(c.rooms, room)
	} else {
		c.rooms[room] = members
	}
	log.Info().Str("module", "app.calls").Str("call_room", string(room)).Str("identity", string(identity)).Msg("left call room")
	return true
}

// Participants returns a snapshot in join order.
func (c *CallRooms) Participants(room domain.CallRoomName) []domain.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.rooms[room])
}

func (c *CallRooms) Contains(room domain.CallRoomName, identity domain.Identity) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.rooms[room], identity)
}

func (c *CallRooms) List() []core.CallRoomInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.CallRoomInfo, 0, len(c.rooms))
	for name, members := range c.rooms {
		out = append(out, core.CallRoomInfo{Name: name, Participants: len(members)})
	}
	slices.SortFunc(out, func(a, b core.CallRoomInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out
}
