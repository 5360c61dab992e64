package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/chatrelay/internal/app/orch"
	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/metrics"
	"github.com/dkeye/chatrelay/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// serve drives one connection from handshake to cleanup.
func (ctl *SignalWSController) serve(ctx context.Context, sess *orch.Session, c *WsSignalConn) {
	c.conn.SetReadLimit(ctl.Settings.ReadLimit)
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	token, err := ctl.readAuth(c)
	if err != nil {
		metrics.AuthFailuresTotal.Inc()
	} else {
		err = ctl.Orch.Authenticate(ctx, sess, token)
	}
	if err != nil {
		ctl.rejectAuth(c, err)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go ctl.writePump(ctx, c)

	if err := ctl.Orch.Activate(ctx, sess); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("activate")
		c.Close()
		return
	}
	ctl.readPump(ctx, sess, c)
}

// readAuth waits for the first frame, which must carry the token.
func (ctl *SignalWSController) readAuth(c *WsSignalConn) (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(ctl.Settings.AuthTimeout)); err != nil {
		return "", err
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return "", errors.New("no credentials received")
	}
	auth, err := protocol.DecodeAuth(data)
	if err != nil {
		return "", err
	}
	return auth.Token, nil
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Settings.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Settings.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(errors.Join(core.ErrTransport, err)).Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := ctl.ping(c); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump ping")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sess *orch.Session, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(c.ID())).Msg("readPump closing")
		ctl.Orch.Close(ctx, sess)
		c.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Settings.PongWait))
	})

	identity := string(sess.Identity())
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("readPump read error")
			}
			return
		}
		if ctl.Limiter != nil && !ctl.Limiter.Allow(identity) {
			ctl.Orch.Throttled(sess)
			log.Warn().Str("module", "signal").Str("identity", identity).Msg("frame rate limited")
			continue
		}
		if err := ctl.Orch.HandleFrame(ctx, sess, data); err != nil {
			if errors.Is(err, orch.ErrNotActive) {
				return
			}
			log.Warn().Err(err).Str("module", "signal").Str("identity", identity).Msg("bad frame")
		}
	}
}
