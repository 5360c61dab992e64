package http

import (
	"net/http"
	"strings"

	"github.com/dkeye/chatrelay/internal/adapters/store"
	"github.com/dkeye/chatrelay/internal/adapters/uploads"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/gin-gonic/gin"
)

type createRoomRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug" binding:"required"`
}

type inviteRequest struct {
	Username string `json:"username" binding:"required"`
}

// myRooms lists the caller's rooms with the number of live connections
// in each.
func (h *handlers) myRooms(c *gin.Context) {
	rooms, err := h.deps.Rooms.ListFor(c.Request.Context(), identity(c))
	if err != nil {
		fail(c, "list rooms", err)
		return
	}
	online := make(map[domain.RoomName]int)
	for _, info := range h.deps.Orch.Conns.Rooms() {
		online[info.Name] = info.ConnectionCount
	}
	for i := range rooms {
		rooms[i].Online = online[rooms[i].Slug]
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *handlers) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	room, err := h.deps.Rooms.Create(c.Request.Context(), identity(c), req.Name, domain.RoomName(req.Slug))
	if err != nil {
		fail(c, "create room", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

func (h *handlers) deleteRoom(c *gin.Context) {
	if err := h.deps.Rooms.Delete(c.Request.Context(), domain.RoomName(c.Param("room"))); err != nil {
		fail(c, "delete room", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) invite(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	room := domain.RoomName(c.Param("room"))
	if err := h.deps.Rooms.Invite(c.Request.Context(), room, domain.Identity(req.Username)); err != nil {
		fail(c, "invite", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "username": req.Username})
}

func (h *handlers) roomMembers(c *gin.Context) {
	members, err := h.deps.Rooms.Members(c.Request.Context(), domain.RoomName(c.Param("room")))
	if err != nil {
		fail(c, "room members", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *handlers) search(c *gin.Context) {
	q := c.Query("q")
	results, err := h.deps.Messages.Search(c.Request.Context(), domain.RoomName(c.Param("room")), q)
	if err != nil {
		fail(c, "search", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "count": len(results), "results": results})
}

// upload stores a multipart "file" as an attachment of a new message
// and broadcasts that message to the room. The optional "content" form
// field replaces the default text.
func (h *handlers) upload(c *gin.Context) {
	slug := c.Param("room")
	if err := domain.ValidateRoomName(slug); err != nil {
		fail(c, "upload", err)
		return
	}
	room := domain.RoomName(slug)
	ctx := c.Request.Context()
	if _, err := h.deps.Rooms.Get(ctx, room); err != nil {
		fail(c, "upload", err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, "upload", err)
		return
	}
	saved, err := h.deps.Uploads.Save(slug, fh, h.maxUpload, uploads.Attachments)
	if err != nil {
		fail(c, "upload", err)
		return
	}

	content := strings.TrimSpace(c.PostForm("content"))
	if content == "" {
		content = "📎 " + saved.Original
	}
	rec, err := h.deps.Messages.PersistUpload(ctx, identity(c), room, content, store.Upload{
		Filename:         saved.Name,
		OriginalFilename: saved.Original,
		URL:              saved.URL,
		Size:             saved.Size,
		ContentType:      saved.ContentType,
	})
	if err != nil {
		fail(c, "upload", err)
		return
	}
	h.deps.Orch.Announce(*rec)

	c.JSON(http.StatusCreated, gin.H{
		"file_id":    rec.Attachments[0].ID,
		"file_url":   saved.URL,
		"file_size":  saved.Size,
		"message_id": rec.ID,
	})
}
