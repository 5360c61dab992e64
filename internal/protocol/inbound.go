// Package protocol defines the JSON frames exchanged over the chat socket.
// Inbound frames decode into a closed set of types; outbound frames are
// typed structs encoded with encoding/json.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/tidwall/gjson"
)

type Type string

const (
	TypeMessage       Type = "message"
	TypeTyping        Type = "typing"
	TypeCallRoomJoin  Type = "call-room-join"
	TypeCallRoomLeave Type = "call-room-leave"
	TypeCallOffer     Type = "call-offer"
	TypeCallAnswer    Type = "call-answer"
	TypeICECandidate  Type = "ice-candidate"
	TypePing          Type = "ping"
)

// Inbound is implemented by every frame a client may send after the
// handshake.
type Inbound interface {
	Type() Type
}

type ChatMessage struct {
	Content   string `json:"content"`
	ReplyToID *int64 `json:"reply_to_id,omitempty"`
}

type Typing struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type CallRoomJoin struct {
	CallRoom domain.CallRoomName `json:"callRoom"`
}

type CallRoomLeave struct {
	CallRoom domain.CallRoomName `json:"callRoom"`
}

// CallSignal is an offer, answer or ICE candidate addressed to one
// identity. Raw holds the frame exactly as received and is relayed
// without re-encoding. From is the sender the client claims, empty when
// the frame carries none.
type CallSignal struct {
	Kind Type
	To   domain.Identity
	From domain.Identity
	Raw  json.RawMessage
}

type Ping struct{}

// Unknown carries a frame with an unrecognised type. It is not an error.
type Unknown struct {
	Name string
}

func (ChatMessage) Type() Type   { return TypeMessage }
func (Typing) Type() Type        { return TypeTyping }
func (CallRoomJoin) Type() Type  { return TypeCallRoomJoin }
func (CallRoomLeave) Type() Type { return TypeCallRoomLeave }
func (s CallSignal) Type() Type  { return s.Kind }
func (Ping) Type() Type          { return TypePing }
func (u Unknown) Type() Type     { return Type(u.Name) }

// Auth is the first frame of every connection.
type Auth struct {
	Token string
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrMalformedFrame, fmt.Sprintf(format, args...))
}

// DecodeAuth reads the handshake frame. A missing token is malformed.
func DecodeAuth(data []byte) (Auth, error) {
	if !gjson.ValidBytes(data) {
		return Auth{}, malformed("invalid json")
	}
	tok := gjson.GetBytes(data, "token")
	if tok.Type != gjson.String || tok.Str == "" {
		return Auth{}, malformed("missing token")
	}
	return Auth{Token: tok.Str}, nil
}

// Decode parses one post-handshake frame.
func Decode(data []byte) (Inbound, error) {
	if !gjson.ValidBytes(data) {
		return nil, malformed("invalid json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, malformed("frame is not an object")
	}
	typ := root.Get("type")
	if typ.Type != gjson.String {
		return nil, malformed("missing type")
	}

	switch Type(typ.Str) {
	case TypeMessage:
		var m ChatMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, malformed("message: %v", err)
		}
		if m.Content == "" {
			return nil, malformed("message: empty content")
		}
		return m, nil
	case TypeTyping:
		var m Typing
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, malformed("typing: %v", err)
		}
		return m, nil
	case TypeCallRoomJoin:
		room, err := callRoom(root)
		if err != nil {
			return nil, err
		}
		return CallRoomJoin{CallRoom: room}, nil
	case TypeCallRoomLeave:
		room, err := callRoom(root)
		if err != nil {
			return nil, err
		}
		return CallRoomLeave{CallRoom: room}, nil
	case TypeCallOffer:
		return decodeSignal(TypeCallOffer, root, data, "offer")
	case TypeCallAnswer:
		return decodeSignal(TypeCallAnswer, root, data, "answer")
	case TypeICECandidate:
		return decodeSignal(TypeICECandidate, root, data, "candidate")
	case TypePing:
		return Ping{}, nil
	default:
		return Unknown{Name: typ.Str}, nil
	}
}

func callRoom(root gjson.Result) (domain.CallRoomName, error) {
	r := root.Get("callRoom")
	if r.Type != gjson.String || r.Str == "" {
		return "", malformed("missing callRoom")
	}
	return domain.CallRoomName(r.Str), nil
}

func decodeSignal(kind Type, root gjson.Result, data []byte, payloadKey string) (Inbound, error) {
	to := root.Get("to")
	if to.Type != gjson.String || to.Str == "" {
		return nil, malformed("%s: missing recipient", kind)
	}
	from := root.Get("from")
	if from.Exists() && from.Type != gjson.String {
		return nil, malformed("%s: from is not a string", kind)
	}
	if payload := root.Get(payloadKey); payload.Exists() {
		if err := validatePayload(kind, []byte(payload.Raw)); err != nil {
			return nil, malformed("%s: %v", kind, err)
		}
	}
	return CallSignal{
		Kind: kind,
		To:   domain.Identity(to.Str),
		From: domain.Identity(from.Str),
		Raw:  append(json.RawMessage(nil), data...),
	}, nil
}

func validatePayload(kind Type, raw []byte) error {
	switch kind {
	case TypeCallOffer, TypeCallAnswer:
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(raw, &sd); err != nil {
			return err
		}
		if kind == TypeCallOffer && sd.Type != webrtc.SDPTypeOffer {
			return fmt.Errorf("sdp type %s in offer", sd.Type)
		}
		if kind == TypeCallAnswer && sd.Type != webrtc.SDPTypeAnswer && sd.Type != webrtc.SDPTypePranswer {
			return fmt.Errorf("sdp type %s in answer", sd.Type)
		}
	case TypeICECandidate:
		var c webrtc.ICECandidateInit
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
	}
	return nil
}
