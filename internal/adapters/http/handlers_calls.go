package http

import (
	"net/http"

	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/gin-gonic/gin"
)

type createCallRoomRequest struct {
	Name     string `json:"name" binding:"required"`
	Slug     string `json:"slug" binding:"required"`
	IsPublic bool   `json:"is_public"`
}

// savedCallRooms lists the persisted call rooms the caller may enter,
// with the identities currently in each call.
func (h *handlers) savedCallRooms(c *gin.Context) {
	rooms, err := h.deps.CallRooms.Accessible(c.Request.Context(), identity(c))
	if err != nil {
		fail(c, "list call rooms", err)
		return
	}
	for i := range rooms {
		if ids := h.deps.Orch.Calls.Participants(rooms[i].Slug); len(ids) > 0 {
			rooms[i].ActiveMembers = ids
		}
	}
	c.JSON(http.StatusOK, gin.H{"call_rooms": rooms})
}

func (h *handlers) createCallRoom(c *gin.Context) {
	var req createCallRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	room, err := h.deps.CallRooms.Create(c.Request.Context(), identity(c), req.Name, domain.CallRoomName(req.Slug), req.IsPublic)
	if err != nil {
		fail(c, "create call room", err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *handlers) joinCallRoom(c *gin.Context) {
	room := domain.CallRoomName(c.Param("room"))
	if err := h.deps.CallRooms.AddMember(c.Request.Context(), room, identity(c)); err != nil {
		fail(c, "join call room", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slug": room})
}

func (h *handlers) leaveCallRoom(c *gin.Context) {
	room := domain.CallRoomName(c.Param("room"))
	if err := h.deps.CallRooms.RemoveMember(c.Request.Context(), room, identity(c)); err != nil {
		fail(c, "leave call room", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slug": room})
}

func (h *handlers) callRoomMembers(c *gin.Context) {
	members, err := h.deps.CallRooms.Members(c.Request.Context(), domain.CallRoomName(c.Param("room")))
	if err != nil {
		fail(c, "call room members", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *handlers) inviteToCallRoom(c *gin.Context) {
	room := domain.CallRoomName(c.Param("room"))
	user := domain.Identity(c.Param("username"))
	if err := h.deps.CallRooms.AddMember(c.Request.Context(), room, user); err != nil {
		fail(c, "invite to call room", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slug": room, "username": user})
}
