package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/chatrelay/internal/app/orch"
	"github.com/dkeye/chatrelay/internal/config"
	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Settings tune one socket's lifecycle.
type Settings struct {
	ReadLimit    int64
	SendBuffer   int
	WriteTimeout time.Duration
	PongWait     time.Duration
	PingPeriod   time.Duration
	AuthTimeout  time.Duration
}

func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		ReadLimit:    cfg.ReadLimit,
		SendBuffer:   cfg.WS.SendBuffer,
		WriteTimeout: cfg.WS.WriteTimeout,
		PongWait:     cfg.WS.PongWait,
		PingPeriod:   cfg.PingPeriod,
		AuthTimeout:  cfg.WS.AuthTimeout,
	}
}

func (s Settings) withDefaults() Settings {
	if s.ReadLimit <= 0 {
		s.ReadLimit = 32768
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = 64
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = 5 * time.Second
	}
	if s.PongWait <= 0 {
		s.PongWait = 60 * time.Second
	}
	if s.PingPeriod <= 0 || s.PingPeriod >= s.PongWait {
		s.PingPeriod = s.PongWait * 9 / 10
	}
	if s.AuthTimeout <= 0 {
		s.AuthTimeout = 10 * time.Second
	}
	return s
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Limiter  *RateLimiter
	Settings Settings
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RateLimiter, s Settings) *SignalWSController {
	return &SignalWSController{
		Orch:     o,
		Limiter:  limiter,
		Settings: s.withDefaults(),
	}
}

// WsSignalConn is the core.Connection of one websocket. Frames are
// queued on a bounded channel drained by writePump.
type WsSignalConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		id:   core.ConnID(uuid.NewString()),
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) ID() core.ConnID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades GET /ws/chat/:room and runs the connection in
// the background until it closes or ctx is cancelled.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	room := c.Param("room")
	if err := domain.ValidateRoomName(room); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.Settings.SendBuffer)
	sess := orch.NewSession(conn, domain.RoomName(room))
	log.Info().Str("module", "signal").Str("conn", string(conn.ID())).Str("room", room).Msg("new WS connection")

	go ctl.serve(ctx, sess, conn)
}
