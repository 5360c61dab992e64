package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dkeye/chatrelay/internal/adapters/auth"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const sessionUserKey = "username"

type handlers struct {
	deps          Deps
	historyLimit  int
	iceURLs       []string
	maxUpload     int64
	maxAvatarSize int64
}

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *handlers) register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	u, err := h.deps.Auth.Register(c.Request.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, u)
	case errors.Is(err, auth.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
	case errors.Is(err, domain.ErrUsernameEmpty),
		errors.Is(err, domain.ErrUsernameTooLong),
		errors.Is(err, domain.ErrPasswordTooWeak):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

func (h *handlers) token(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	tok, exp, err := h.deps.Auth.Login(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	sess := sessions.Default(c)
	sess.Set(sessionUserKey, req.Username)
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": tok,
		"token_type":   "bearer",
		"expires_at":   exp.Unix(),
	})
}

func (h *handlers) logout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	_ = sess.Save()
	c.Status(http.StatusNoContent)
}

func (h *handlers) me(c *gin.Context) {
	name, _ := sessions.Default(c).Get(sessionUserKey).(string)
	if name == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	id := domain.Identity(name)
	body := gin.H{
		"username": id,
		"online":   h.deps.Orch.Conns.IsOnline(id),
	}
	if st, ok := h.presence(c, id); ok {
		body["last_seen"] = st.LastSeen
	}
	c.JSON(http.StatusOK, body)
}

// presence reads the stored status of id. ok is false without a
// configured reader or when the lookup fails.
func (h *handlers) presence(c *gin.Context, id domain.Identity) (domain.PresenceStatus, bool) {
	if h.deps.Presence == nil {
		return domain.PresenceStatus{}, false
	}
	st, err := h.deps.Presence.Status(c.Request.Context(), id)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("identity", string(id)).Msg("presence status")
		return domain.PresenceStatus{}, false
	}
	return st, true
}

func (h *handlers) activeRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.deps.Orch.Conns.Rooms()})
}

func (h *handlers) history(c *gin.Context) {
	room := c.Param("room")
	if err := domain.ValidateRoomName(room); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	msgs, err := h.deps.Messages.History(c.Request.Context(), domain.RoomName(room), limit)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", room).Msg("history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "messages": msgs})
}

func (h *handlers) online(c *gin.Context) {
	ids := h.deps.Orch.Conns.OnlineIdentities()
	if ids == nil {
		ids = []domain.Identity{}
	}
	c.JSON(http.StatusOK, gin.H{"online_users": ids})
}

func (h *handlers) callRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"call_rooms": h.deps.Orch.Calls.List()})
}

func (h *handlers) participants(c *gin.Context) {
	room := domain.CallRoomName(c.Param("room"))
	ids := h.deps.Orch.Calls.Participants(room)
	if ids == nil {
		ids = []domain.Identity{}
	}
	c.JSON(http.StatusOK, gin.H{"callRoom": room, "participants": ids})
}

func (h *handlers) iceServers(c *gin.Context) {
	servers := make([]webrtc.ICEServer, 0, len(h.iceURLs))
	for _, u := range h.iceURLs {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	c.JSON(http.StatusOK, gin.H{"iceServers": servers})
}
