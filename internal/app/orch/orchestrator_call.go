package orch

import (
	"slices"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/dkeye/chatrelay/internal/metrics"
	"github.com/dkeye/chatrelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

// JoinCall adds the session's identity to a call room. The participant
// snapshot is taken before joining so the joiner never sees itself and
// learns about everyone already there before they hear about it.
func (o *Orchestrator) JoinCall(s *Session, room domain.CallRoomName) {
	id := s.Identity()
	existing := slices.DeleteFunc(o.Calls.Participants(room), func(p domain.Identity) bool { return p == id })

	joined := o.Calls.Join(room, id)
	if !s.trackCall(room) {
		if joined {
			o.Calls.Leave(room, id)
		}
		return
	}
	if joined {
		metrics.CallParticipants.Inc()
	}

	if len(existing) > 0 {
		o.sendTo(s.Conn(), protocol.NewExistingParticipants(room, existing))
	}
	if joined {
		o.broadcastCall(room, protocol.NewPeerJoined(room, id), id)
	}
	log.Info().Str("module", "orch").Str("identity", string(id)).Str("call_room", string(room)).Int("existing", len(existing)).Msg("call join")
}

// LeaveCall removes the identity and tells the remaining participants.
func (o *Orchestrator) LeaveCall(s *Session, room domain.CallRoomName) {
	s.untrackCall(room)
	o.leaveCall(room, s.Identity())
}

func (o *Orchestrator) leaveCall(room domain.CallRoomName, id domain.Identity) {
	if !o.Calls.Leave(room, id) {
		return
	}
	metrics.CallParticipants.Dec()
	o.broadcastCall(room, protocol.NewPeerLeft(room, id), id)
	log.Info().Str("module", "orch").Str("identity", string(id)).Str("call_room", string(room)).Msg("call leave")
}

// relay forwards offers, answers and ICE candidates verbatim. An
// unreachable recipient drops the frame, and so does a frame whose from
// names anyone but the sender.
func (o *Orchestrator) relay(s *Session, m protocol.CallSignal) {
	if m.From != "" && m.From != s.Identity() {
		metrics.DeliveryFailuresTotal.WithLabelValues("spoofed_from").Inc()
		log.Warn().Str("module", "orch").Str("identity", string(s.Identity())).Str("from", string(m.From)).Str("to", string(m.To)).Str("type", string(m.Kind)).Msg("signal with foreign sender dropped")
		return
	}
	n := o.Delivery.UnicastToIdentity(m.To, core.Frame(m.Raw))
	if n == 0 {
		log.Debug().Str("module", "orch").Err(core.ErrUnknownRecipient).Str("from", string(s.Identity())).Str("to", string(m.To)).Str("type", string(m.Kind)).Msg("signal dropped")
	}
}
