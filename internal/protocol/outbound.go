package protocol

import (
	"encoding/json"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
)

const (
	TypeOnlineStatus         Type = "online_status"
	TypeExistingParticipants Type = "existing-participants"
	TypePeerJoined           Type = "peer-joined"
	TypePeerLeft             Type = "peer-left"
	TypeJoin                 Type = "join"
	TypeLeave                Type = "leave"
	TypeError                Type = "error"
	TypePong                 Type = "pong"
)

// Error codes carried by error frames.
const (
	CodeAuthFailed      = "auth_failed"
	CodeMessageNotSaved = "message_not_saved"
	CodeRateLimited     = "rate_limited"
)

type OnlineStatus struct {
	Type        Type              `json:"type"`
	OnlineUsers []domain.Identity `json:"online_users"`
}

type ExistingParticipants struct {
	Type         Type                `json:"type"`
	Participants []domain.Identity   `json:"participants"`
	CallRoom     domain.CallRoomName `json:"callRoom"`
}

// PeerEvent announces a peer joining or leaving a call room.
type PeerEvent struct {
	Type     Type                `json:"type"`
	Username domain.Identity     `json:"username"`
	CallRoom domain.CallRoomName `json:"callRoom"`
}

// Presence is the system notice shown when someone enters or leaves a
// chat room.
type Presence struct {
	Type     Type            `json:"type"`
	Username domain.Identity `json:"username"`
	Room     domain.RoomName `json:"room"`
}

type TypingStatus struct {
	Type     Type            `json:"type"`
	Username domain.Identity `json:"username"`
	IsTyping bool            `json:"isTyping"`
}

type Message struct {
	Type Type `json:"type"`
	domain.DisplayRecord
}

type Error struct {
	Type    Type   `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type Pong struct {
	Type Type `json:"type"`
}

func nonNil(ids []domain.Identity) []domain.Identity {
	if ids == nil {
		return []domain.Identity{}
	}
	return ids
}

func NewOnlineStatus(ids []domain.Identity) OnlineStatus {
	return OnlineStatus{Type: TypeOnlineStatus, OnlineUsers: nonNil(ids)}
}

func NewExistingParticipants(room domain.CallRoomName, ids []domain.Identity) ExistingParticipants {
	return ExistingParticipants{Type: TypeExistingParticipants, Participants: nonNil(ids), CallRoom: room}
}

func NewPeerJoined(room domain.CallRoomName, who domain.Identity) PeerEvent {
	return PeerEvent{Type: TypePeerJoined, Username: who, CallRoom: room}
}

func NewPeerLeft(room domain.CallRoomName, who domain.Identity) PeerEvent {
	return PeerEvent{Type: TypePeerLeft, Username: who, CallRoom: room}
}

func NewJoin(room domain.RoomName, who domain.Identity) Presence {
	return Presence{Type: TypeJoin, Username: who, Room: room}
}

func NewLeave(room domain.RoomName, who domain.Identity) Presence {
	return Presence{Type: TypeLeave, Username: who, Room: room}
}

func NewTyping(who domain.Identity, typing bool) TypingStatus {
	return TypingStatus{Type: TypeTyping, Username: who, IsTyping: typing}
}

func NewMessage(rec domain.DisplayRecord) Message {
	return Message{Type: TypeMessage, DisplayRecord: rec}
}

func NewError(code, msg string) Error {
	return Error{Type: TypeError, Code: code, Message: msg}
}

func NewPong() Pong {
	return Pong{Type: TypePong}
}

// Encode serialises an outbound frame.
func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}
