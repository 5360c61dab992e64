package orch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/chatrelay/internal/app"
	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/dkeye/chatrelay/internal/metrics"
	"github.com/dkeye/chatrelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrNotActive = errors.New("session not active")

// Orchestrator routes frames of authenticated sessions to the
// registries, the stores and Delivery.
type Orchestrator struct {
	Conns    *app.ConnectionRegistry
	Calls    *app.CallRooms
	Delivery *app.Delivery
	Auth     core.AuthVerifier
	Messages core.MessageStore
	// Presence may be nil when no presence backend is configured.
	Presence core.PresenceStore
	Now      func() time.Time

	sessions sync.Map // core.ConnID -> *Session, active sessions only
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// HandleFrame decodes and dispatches one inbound frame. Malformed frames
// return an error wrapping core.ErrMalformedFrame; the caller keeps
// reading.
func (o *Orchestrator) HandleFrame(ctx context.Context, s *Session, data []byte) error {
	if s.State() != StateActive {
		return ErrNotActive
	}
	in, err := protocol.Decode(data)
	if err != nil {
		metrics.WsFramesTotal.WithLabelValues("malformed").Inc()
		return err
	}

	switch m := in.(type) {
	case protocol.ChatMessage:
		o.handleMessage(ctx, s, m)
	case protocol.Typing:
		o.handleTyping(s, m)
	case protocol.CallRoomJoin:
		o.JoinCall(s, m.CallRoom)
	case protocol.CallRoomLeave:
		o.LeaveCall(s, m.CallRoom)
	case protocol.CallSignal:
		o.relay(s, m)
	case protocol.Ping:
		o.sendTo(s.Conn(), protocol.NewPong())
	case protocol.Unknown:
		metrics.WsFramesTotal.WithLabelValues("unknown").Inc()
		log.Debug().Str("module", "orch").Str("identity", string(s.Identity())).Str("type", m.Name).Msg("ignoring unknown frame")
		return nil
	}
	metrics.WsFramesTotal.WithLabelValues(string(in.Type())).Inc()
	return nil
}

// Throttled tells the sender that a frame was dropped by the rate limiter.
func (o *Orchestrator) Throttled(s *Session) {
	metrics.RateLimitedTotal.Inc()
	o.sendTo(s.Conn(), protocol.NewError(protocol.CodeRateLimited, "too many frames, slow down"))
}

func (o *Orchestrator) broadcast(room domain.RoomName, v any) int {
	f, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode frame")
		return 0
	}
	return o.Delivery.BroadcastToRoom(room, f)
}

func (o *Orchestrator) broadcastCall(room domain.CallRoomName, v any, exclude domain.Identity) int {
	f, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode frame")
		return 0
	}
	return o.Delivery.BroadcastToCallRoom(room, f, exclude)
}

func (o *Orchestrator) sendTo(conn core.Connection, v any) bool {
	f, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode frame")
		return false
	}
	return o.Delivery.SendTo(conn, f)
}
