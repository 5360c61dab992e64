package domain

import (
	"errors"
	"time"
)

const MaxDirectMessageLen = 4000

var (
	ErrSelfMessage    = errors.New("cannot send a message to yourself")
	ErrEmptyMessage   = errors.New("message empty")
	ErrMessageTooLong = errors.New("message too long")
)

// ReplyContext is a short reference to the message being answered.
type ReplyContext struct {
	ID       int64    `json:"id"`
	Username Identity `json:"username"`
	Content  string   `json:"content"`
}

// Attachment is a file uploaded with a chat message.
type Attachment struct {
	ID               int64  `json:"id"`
	OriginalFilename string `json:"original_filename"`
	FilePath         string `json:"file_path"`
	FileSize         int64  `json:"file_size"`
	ContentType      string `json:"content_type"`
}

// DisplayRecord is a persisted chat message as shown to clients.
type DisplayRecord struct {
	ID          int64         `json:"id"`
	Content     string        `json:"content"`
	Timestamp   time.Time     `json:"timestamp"`
	Username    Identity      `json:"username"`
	RoomSlug    RoomName      `json:"room_slug"`
	AvatarURL   string        `json:"avatar_url,omitempty"`
	ReplyTo     *ReplyContext `json:"reply_to,omitempty"`
	Attachments []Attachment  `json:"attachments,omitempty"`
}

// DirectMessage is a private message between two users.
type DirectMessage struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sender    Identity  `json:"sender_username"`
	Receiver  Identity  `json:"receiver_username"`
	IsRead    bool      `json:"is_read"`
}

func ValidateDirectMessage(from, to Identity, content string) error {
	if from == to {
		return ErrSelfMessage
	}
	if content == "" {
		return ErrEmptyMessage
	}
	if len(content) > MaxDirectMessageLen {
		return ErrMessageTooLong
	}
	return nil
}
