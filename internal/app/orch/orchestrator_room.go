package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/dkeye/chatrelay/internal/metrics"
	"github.com/dkeye/chatrelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

const presenceTimeout = 3 * time.Second

// Authenticate verifies the handshake token. On failure the session is
// closed and nothing is registered.
func (o *Orchestrator) Authenticate(ctx context.Context, s *Session, token string) error {
	if s.State() != StateUnauthenticated {
		return fmt.Errorf("authenticate in state %s", s.State())
	}
	fail := func(reason error) error {
		s.markClosed()
		metrics.AuthFailuresTotal.Inc()
		log.Info().Str("module", "orch").Str("conn", string(s.Conn().ID())).Err(reason).Msg("authentication rejected")
		return fmt.Errorf("%w: %v", core.ErrAuthentication, reason)
	}
	if token == "" {
		return fail(fmt.Errorf("empty token"))
	}
	id, err := o.Auth.Verify(ctx, token)
	if err != nil {
		return fail(err)
	}
	if !s.authenticated(id) {
		return fmt.Errorf("session closed during authentication")
	}
	log.Info().Str("module", "orch").Str("conn", string(s.Conn().ID())).Str("identity", string(id)).Msg("authenticated")
	return nil
}

// Activate registers an authenticated session in its room and announces
// it to the room.
func (o *Orchestrator) Activate(ctx context.Context, s *Session) error {
	if !s.advance(StateAuthenticated, StateActive) {
		return fmt.Errorf("activate in state %s", s.State())
	}
	id, room := s.Identity(), s.Room()

	o.sessions.Store(s.Conn().ID(), s)
	o.Conns.Register(s.Conn(), room, id)
	metrics.WsConnections.Inc()
	o.markPresence(ctx, s, true)

	o.broadcast(room, protocol.NewJoin(room, id))
	o.broadcast(room, protocol.NewOnlineStatus(o.Conns.OnlineIdentities()))
	log.Info().Str("module", "orch").Str("identity", string(id)).Str("room", string(room)).Msg("session active")
	return nil
}

// Close tears a session down. Only the first call does any work,
// whichever path (read error, shutdown, kick) gets there first.
func (o *Orchestrator) Close(ctx context.Context, s *Session) {
	s.closeOnce.Do(func() {
		if prev := s.markClosed(); prev != StateActive {
			return
		}
		id, room := s.Identity(), s.Room()

		o.Conns.Unregister(s.Conn(), room, id)
		o.sessions.Delete(s.Conn().ID())
		metrics.WsConnections.Dec()

		for _, callRoom := range s.takeCalls() {
			if !o.heldElsewhere(id, callRoom) {
				o.leaveCall(callRoom, id)
			}
		}

		if !o.Conns.IsOnline(id) {
			o.markPresence(ctx, s, false)
		}

		o.broadcast(room, protocol.NewLeave(room, id))
		o.broadcast(room, protocol.NewOnlineStatus(o.Conns.OnlineIdentities()))
		log.Info().Str("module", "orch").Str("identity", string(id)).Str("room", string(room)).Msg("session closed")
	})
}

func (o *Orchestrator) handleMessage(ctx context.Context, s *Session, m protocol.ChatMessage) {
	id, room := s.Identity(), s.Room()
	rec, err := o.Messages.Persist(ctx, id, room, m.Content, m.ReplyToID)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("identity", string(id)).Str("room", string(room)).Msg("message not saved")
		o.sendTo(s.Conn(), protocol.NewError(protocol.CodeMessageNotSaved, "message could not be saved"))
		return
	}
	metrics.WsMessagesTotal.Inc()
	o.broadcast(room, protocol.NewMessage(*rec))
}

// Announce broadcasts a message saved outside the socket, such as a file
// upload, to the connections in its room.
func (o *Orchestrator) Announce(rec domain.DisplayRecord) int {
	metrics.WsMessagesTotal.Inc()
	return o.broadcast(rec.RoomSlug, protocol.NewMessage(rec))
}

func (o *Orchestrator) handleTyping(s *Session, m protocol.Typing) {
	o.broadcast(s.Room(), protocol.NewTyping(s.Identity(), m.IsTyping))
}

// markPresence is best effort; failures are logged only.
func (o *Orchestrator) markPresence(ctx context.Context, s *Session, online bool) {
	if o.Presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presenceTimeout)
	defer cancel()

	var err error
	if online {
		err = o.Presence.MarkOnline(ctx, s.Identity(), o.now())
	} else {
		err = o.Presence.MarkOffline(ctx, s.Identity(), o.now())
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("identity", string(s.Identity())).Bool("online", online).Msg("presence update failed")
	}
}

// heldElsewhere reports whether another live session of id has joined
// the call room, in which case the identity stays a participant.
func (o *Orchestrator) heldElsewhere(id domain.Identity, room domain.CallRoomName) bool {
	for _, c := range o.Conns.ConnectionsOf(id) {
		v, ok := o.sessions.Load(c.ID())
		if ok && v.(*Session).inCall(room) {
			return true
		}
	}
	return false
}
