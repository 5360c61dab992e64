package core

import (
	"context"
	"time"

	"github.com/dkeye/chatrelay/internal/domain"
)

// Frame is one serialised outbound message.
type Frame []byte

type ConnID string

// Connection abstracts a client transport.
// Owned by the adapter; the adapter must Close() it.
type Connection interface {
	ID() ConnID
	// TrySend never blocks. It returns ErrBackpressure when the send
	// queue is full and ErrConnClosed after Close.
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SendTo  int
	Dropped []Connection
}

// AuthVerifier turns a bearer credential into an identity.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// MessageStore persists chat messages and reads room history.
type MessageStore interface {
	Persist(ctx context.Context, author domain.Identity, room domain.RoomName, content string, replyToID *int64) (*domain.DisplayRecord, error)
	History(ctx context.Context, room domain.RoomName, limit int) ([]domain.DisplayRecord, error)
}

// PresenceStore records the coarse online flag and last-seen time.
type PresenceStore interface {
	MarkOnline(ctx context.Context, id domain.Identity, at time.Time) error
	MarkOffline(ctx context.Context, id domain.Identity, at time.Time) error
}

// PresenceReader returns what a PresenceStore recorded.
type PresenceReader interface {
	Status(ctx context.Context, id domain.Identity) (domain.PresenceStatus, error)
}

type RoomInfo struct {
	Name            domain.RoomName `json:"name"`
	ConnectionCount int             `json:"connection_count"`
}

type CallRoomInfo struct {
	Name         domain.CallRoomName `json:"name"`
	Participants int                 `json:"participants"`
}
