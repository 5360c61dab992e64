package domain

import (
	"errors"
	"regexp"
	"unicode/utf8"
)

const (
	MaxRoomNameLen    = 64
	MaxRoomTitleLen   = 128
	MinSearchQueryLen = 2
)

var (
	ErrInvalidRoomName  = errors.New("invalid room name")
	ErrInvalidRoomTitle = errors.New("invalid room title")
	ErrQueryTooShort    = errors.New("search query must be at least 2 characters")
)

var roomNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type (
	// RoomName is a chat room slug.
	RoomName string
	// CallRoomName lives in its own namespace, independent of RoomName.
	CallRoomName string
)

// DefaultRooms exist from the first start. They cannot be deleted.
var DefaultRooms = []Room{
	{Slug: "general", Name: "General", Description: "Chat for everyone"},
	{Slug: "dev-team", Name: "Dev Team", Description: "Chat for the development team"},
}

// GeneralRoom is joined by every user on registration.
const GeneralRoom RoomName = "general"

// Room is a persisted chat room. Online counts live connections.
type Room struct {
	ID          uint     `json:"id"`
	Name        string   `json:"name"`
	Slug        RoomName `json:"slug"`
	Description string   `json:"description"`
	Online      int      `json:"online"`
}

// CallRoom is a persisted call room. ActiveMembers are the identities
// currently in the call, filled from the signaling registry.
type CallRoom struct {
	ID            uint         `json:"id"`
	Name          string       `json:"name"`
	Slug          CallRoomName `json:"slug"`
	IsPublic      bool         `json:"is_public"`
	CreatedBy     Identity     `json:"created_by,omitempty"`
	MemberCount   int          `json:"member_count"`
	ActiveMembers []Identity   `json:"active_members"`
}

func ValidateRoomName(name string) error {
	if len(name) == 0 || len(name) > MaxRoomNameLen || !roomNameRe.MatchString(name) {
		return ErrInvalidRoomName
	}
	return nil
}

// ValidateRoomTitle checks the human readable name of a room.
func ValidateRoomTitle(title string) error {
	if title == "" || utf8.RuneCountInString(title) > MaxRoomTitleLen {
		return ErrInvalidRoomTitle
	}
	return nil
}

func IsDefaultRoom(slug RoomName) bool {
	for _, r := range DefaultRooms {
		if r.Slug == slug {
			return true
		}
	}
	return false
}

func ValidateSearchQuery(q string) error {
	if utf8.RuneCountInString(q) < MinSearchQueryLen {
		return ErrQueryTooShort
	}
	return nil
}
