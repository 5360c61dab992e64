package http

import (
	"net/http"

	"github.com/dkeye/chatrelay/internal/adapters/uploads"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/gin-gonic/gin"
)

type directMessageRequest struct {
	Receiver string `json:"receiver_username" binding:"required"`
	Content  string `json:"content"`
}

type publicKeyRequest struct {
	PublicKey string `json:"public_key"`
}

func (h *handlers) users(c *gin.Context) {
	users, err := h.deps.Users.List(c.Request.Context())
	if err != nil {
		fail(c, "list users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *handlers) sendDirect(c *gin.Context) {
	var req directMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	dm, err := h.deps.Directs.Send(c.Request.Context(), identity(c), domain.Identity(req.Receiver), req.Content)
	if err != nil {
		fail(c, "direct message", err)
		return
	}
	c.JSON(http.StatusCreated, dm)
}

// conversation returns the messages exchanged with :username and marks
// the caller's incoming ones as read.
func (h *handlers) conversation(c *gin.Context) {
	msgs, err := h.deps.Directs.Conversation(c.Request.Context(), identity(c), domain.Identity(c.Param("username")))
	if err != nil {
		fail(c, "conversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *handlers) unreadCount(c *gin.Context) {
	n, err := h.deps.Directs.UnreadCount(c.Request.Context(), identity(c))
	if err != nil {
		fail(c, "unread count", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}

func (h *handlers) myProfile(c *gin.Context) {
	h.writeProfile(c, identity(c))
}

func (h *handlers) profile(c *gin.Context) {
	h.writeProfile(c, domain.Identity(c.Param("username")))
}

// writeProfile merges the stored profile with live and recorded presence.
func (h *handlers) writeProfile(c *gin.Context, id domain.Identity) {
	p, err := h.deps.Users.Profile(c.Request.Context(), id)
	if err != nil {
		fail(c, "profile", err)
		return
	}
	p.IsOnline = h.deps.Orch.Conns.IsOnline(id)
	if st, ok := h.presence(c, id); ok && st.LastSeen != nil {
		p.LastSeen = st.LastSeen
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) updateSettings(c *gin.Context) {
	var req domain.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	p, err := h.deps.Users.UpdateSettings(c.Request.Context(), identity(c), req)
	if err != nil {
		fail(c, "settings", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) uploadAvatar(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxAvatarSize+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, "avatar", err)
		return
	}
	saved, err := h.deps.Uploads.Save("avatars", fh, h.maxAvatarSize, uploads.Avatars)
	if err != nil {
		fail(c, "avatar", err)
		return
	}
	if err := h.deps.Users.SetAvatar(c.Request.Context(), identity(c), saved.URL); err != nil {
		fail(c, "avatar", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatar_url": saved.URL})
}

func (h *handlers) setPublicKey(c *gin.Context) {
	var req publicKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	if err := h.deps.Users.SetPublicKey(c.Request.Context(), identity(c), req.PublicKey); err != nil {
		fail(c, "public key", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) publicKey(c *gin.Context) {
	id := domain.Identity(c.Param("username"))
	key, err := h.deps.Users.PublicKey(c.Request.Context(), id)
	if err != nil {
		fail(c, "public key", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": id, "public_key": key})
}
