package app

import (
	"errors"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/dkeye/chatrelay/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Delivery fans frames out to registry snapshots. A failed send never
// touches the registries; cleanup belongs to the disconnect path.
type Delivery struct {
	Conns  *ConnectionRegistry
	Calls  *CallRooms
	Policy Policy
}

func NewDelivery(conns *ConnectionRegistry, calls *CallRooms, policy Policy) *Delivery {
	return &Delivery{Conns: conns, Calls: calls, Policy: policy}
}

// BroadcastToRoom sends f to every socket in room and returns how many
// accepted it.
func (d *Delivery) BroadcastToRoom(room domain.RoomName, f core.Frame) int {
	res := d.publish(d.Conns.ConnectionsInRoom(room), f)
	log.Debug().Str("module", "app.delivery").Str("room", string(room)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("room broadcast")
	return res.SendTo
}

// UnicastToIdentity sends f to every live socket of identity. Zero
// means the identity is offline, which is not an error.
func (d *Delivery) UnicastToIdentity(identity domain.Identity, f core.Frame) int {
	return d.publish(d.Conns.ConnectionsOf(identity), f).SendTo
}

// BroadcastToCallRoom sends f to every participant of room except
// exclude, on all of their sockets.
func (d *Delivery) BroadcastToCallRoom(room domain.CallRoomName, f core.Frame, exclude domain.Identity) int {
	sent := 0
	for _, id := range d.Calls.Participants(room) {
		if id == exclude {
			continue
		}
		sent += d.UnicastToIdentity(id, f)
	}
	log.Debug().Str("module", "app.delivery").Str("call_room", string(room)).Int("sent_to", sent).Msg("call room broadcast")
	return sent
}

// SendTo delivers f to a single socket.
func (d *Delivery) SendTo(conn core.Connection, f core.Frame) bool {
	return d.publish([]core.Connection{conn}, f).SendTo == 1
}

func (d *Delivery) publish(conns []core.Connection, f core.Frame) core.PublishResult {
	res := core.PublishResult{}
	for _, c := range conns {
		if err := c.TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, c)
			d.onFailure(c, err)
			continue
		}
		res.SendTo++
	}
	return res
}

func (d *Delivery) onFailure(c core.Connection, err error) {
	switch {
	case errors.Is(err, core.ErrBackpressure):
		metrics.DeliveryFailuresTotal.WithLabelValues("backpressure").Inc()
		if d.Policy == nil {
			return
		}
		switch d.Policy.OnBackPressure(c) {
		case KickMember:
			log.Warn().Str("module", "app.delivery").Str("conn", string(c.ID())).Msg("slow consumer, closing")
			c.Close()
		case DropFrame, NoAction:
			log.Debug().Str("module", "app.delivery").Str("conn", string(c.ID())).Msg("send queue full, frame dropped")
		}
	case errors.Is(err, core.ErrConnClosed):
		metrics.DeliveryFailuresTotal.WithLabelValues("closed").Inc()
	default:
		metrics.DeliveryFailuresTotal.WithLabelValues("transport").Inc()
		log.Warn().Err(err).Str("module", "app.delivery").Str("conn", string(c.ID())).Msg("send failed")
	}
}
