package http

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/dkeye/chatrelay/internal/adapters/auth"
	"github.com/dkeye/chatrelay/internal/adapters/signal"
	"github.com/dkeye/chatrelay/internal/adapters/store"
	"github.com/dkeye/chatrelay/internal/adapters/uploads"
	"github.com/dkeye/chatrelay/internal/app/orch"
	"github.com/dkeye/chatrelay/internal/config"
	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/dkeye/chatrelay/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the HTTP surface serves.
type Deps struct {
	Orch      *orch.Orchestrator
	Auth      *auth.Service
	Users     *store.UserStore
	Rooms     *store.RoomStore
	Messages  *store.MessageStore
	Directs   *store.DirectStore
	CallRooms *store.CallRoomStore
	Uploads   *uploads.Store
	// Presence is nil when presence.backend is "none".
	Presence core.PresenceReader
	// FrameLimiter throttles socket frames, APILimiter the auth endpoints.
	FrameLimiter *signal.RateLimiter
	APILimiter   *signal.RateLimiter
}

// ClientIDMiddleware pins a random id on each browser for log correlation.
func ClientIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid, _ := c.Cookie("cid")
		if cid == "" {
			cid = uuid.NewString()
			c.SetCookie("cid", cid, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_id", cid)
		c.Next()
	}
}

// RateLimit rejects callers over the limiter's budget, keyed by IP and route.
func RateLimit(rl *signal.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil {
			c.Next()
			return
		}
		key := clientIP(c.Request.RemoteAddr) + "|" + c.FullPath()
		if !rl.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

const identityKey = "identity"

// RequireIdentity accepts a bearer token and falls back to the session
// cookie set at login.
func RequireIdentity(v core.AuthVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			id, err := v.Verify(c.Request.Context(), strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				metrics.AuthFailuresTotal.Inc()
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "could not validate credentials"})
				return
			}
			c.Set(identityKey, id)
			c.Next()
			return
		}
		name, _ := sessions.Default(c).Get(sessionUserKey).(string)
		if name == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
			return
		}
		c.Set(identityKey, domain.Identity(name))
		c.Next()
	}
}

func identity(c *gin.Context) domain.Identity {
	id, _ := c.Get(identityKey)
	v, _ := id.(domain.Identity)
	return v
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())

	cookies := cookie.NewStore([]byte(cfg.Secret))
	cookies.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.Session.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Mode == "release",
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("ChatRelaySessions", cookies))
	r.Use(ClientIDMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.Static(cfg.Uploads.URLPrefix, cfg.Uploads.Dir)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{
		deps:          d,
		historyLimit:  cfg.History.Limit,
		iceURLs:       cfg.ICEServers,
		maxUpload:     cfg.Uploads.MaxSize,
		maxAvatarSize: cfg.Uploads.AvatarMaxSize,
	}

	api := r.Group("/api")
	authGroup := api.Group("/auth", RateLimit(d.APILimiter))
	authGroup.POST("/register", h.register)
	authGroup.POST("/token", h.token)
	authGroup.POST("/logout", h.logout)
	api.GET("/auth/me", h.me)

	api.GET("/rooms/active", h.activeRooms)
	api.GET("/rooms/:room/history", h.history)
	api.GET("/online", h.online)
	api.GET("/call-rooms", h.callRooms)
	api.GET("/call-rooms/:room/participants", h.participants)
	api.GET("/ice-servers", h.iceServers)

	authed := api.Group("", RequireIdentity(d.Orch.Auth))
	authed.GET("/rooms", h.myRooms)
	authed.POST("/rooms", h.createRoom)
	authed.DELETE("/rooms/:room", h.deleteRoom)
	authed.POST("/rooms/:room/invite", h.invite)
	authed.GET("/rooms/:room/members", h.roomMembers)
	authed.GET("/rooms/:room/search", h.search)
	authed.POST("/rooms/:room/upload", h.upload)

	authed.GET("/users", h.users)
	authed.POST("/direct-message", h.sendDirect)
	authed.GET("/direct-messages/:username", h.conversation)
	authed.GET("/unread-count", h.unreadCount)

	authed.GET("/profile/me", h.myProfile)
	authed.PUT("/profile/settings", h.updateSettings)
	authed.POST("/profile/avatar", h.uploadAvatar)
	authed.POST("/profile/public-key", h.setPublicKey)
	authed.GET("/profile/:username", h.profile)
	authed.GET("/profile/:username/public-key", h.publicKey)

	authed.GET("/call-rooms/saved", h.savedCallRooms)
	authed.POST("/call-rooms", h.createCallRoom)
	authed.POST("/call-rooms/:room/join", h.joinCallRoom)
	authed.POST("/call-rooms/:room/leave", h.leaveCallRoom)
	authed.GET("/call-rooms/:room/members", h.callRoomMembers)
	authed.POST("/call-rooms/:room/invite/:username", h.inviteToCallRoom)

	ctrl := signal.NewSignalWSController(d.Orch, d.FrameLimiter, signal.SettingsFrom(cfg))
	r.GET("/ws/chat/:room", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("cid", c.GetString("client_id")).Str("room", c.Param("room")).Msg("ws chat endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
