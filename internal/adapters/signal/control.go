package signal

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// maxCloseReason is the room left in a close frame after the status code.
const maxCloseReason = 123

// rejectAuth tells the client why the handshake failed, then closes.
// Runs before writePump starts, so writing directly is safe.
func (ctl *SignalWSController) rejectAuth(c *WsSignalConn, cause error) {
	reason := "Authentication failed: " + strings.TrimPrefix(cause.Error(), core.ErrAuthentication.Error()+": ")
	deadline := time.Now().Add(ctl.Settings.WriteTimeout)

	if f, err := protocol.Encode(protocol.NewError(protocol.CodeAuthFailed, reason)); err == nil {
		_ = c.conn.SetWriteDeadline(deadline)
		if err := c.conn.WriteMessage(websocket.TextMessage, f); err != nil {
			log.Debug().Err(err).Str("module", "signal").Msg("auth reject write")
		}
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, truncate(reason, maxCloseReason))
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("auth reject close frame")
	}
	c.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func (ctl *SignalWSController) ping(c *WsSignalConn) error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Settings.WriteTimeout))
}
