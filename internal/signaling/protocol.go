package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire message types.
const (
	TypeJoin         = "join"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeChatMessage  = "chat-message"

	TypeUserJoined = "user-joined"
	TypeUserLeft   = "user-left"
	TypeRoomUsers  = "room-users"
	TypeError      = "error"
)

// Error replies sent to the offending client.
const (
	errTextRoomNotFound = "Room not found"
	errTextNoRoomID     = "No room ID provided"
)

var (
	// ErrMalformedFrame is returned by Decode for frames that are not a JSON object with a string type.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownType is returned by Decode for well-formed frames with an unrecognised type.
	ErrUnknownType = errors.New("unknown message type")
)

// Inbound is a decoded client message: Join, Signal or Chat.
type Inbound interface {
	MessageType() string
	inbound()
}

// Join asks to enter a room under the given identity.
type Join struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	IsDoctor bool   `json:"isDoctor"`
}

func (Join) MessageType() string { return TypeJoin }
func (Join) inbound()            {}

// Signal is an offer, answer or ICE candidate addressed to one participant.
// Data is carried through untouched.
type Signal struct {
	Type   string          `json:"type"`
	Target string          `json:"target"`
	Sender string          `json:"sender"`
	RoomID string          `json:"roomId,omitempty"`
	Data   json.RawMessage `json:"data"`

	fields map[string]json.RawMessage
}

func (s Signal) MessageType() string { return s.Type }
func (Signal) inbound()              {}

// Chat is a room-wide text message.
type Chat struct {
	Sender     string `json:"sender"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	RoomID     string `json:"roomId,omitempty"`

	fields map[string]json.RawMessage
}

func (Chat) MessageType() string { return TypeChatMessage }
func (Chat) inbound()            {}

// Decode parses one inbound frame.
func Decode(frame []byte) (Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	rawType, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return nil, fmt.Errorf("%w: type is not a string", ErrMalformedFrame)
	}

	switch typ {
	case TypeJoin:
		var m Join
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return m, nil
	case TypeOffer, TypeAnswer, TypeICECandidate:
		var m Signal
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		m.fields = fields
		return m, nil
	case TypeChatMessage:
		var m Chat
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		m.fields = fields
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

// stamp re-encodes the original frame with roomId set, leaving every other field as received.
func stamp(fields map[string]json.RawMessage, roomID string) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	rid, err := json.Marshal(roomID)
	if err != nil {
		return nil, err
	}
	out["roomId"] = rid
	return json.Marshal(out)
}

// Stamped returns the frame to forward to the target.
func (s Signal) Stamped(roomID string) ([]byte, error) {
	if s.fields == nil {
		s.RoomID = roomID
		return json.Marshal(s)
	}
	return stamp(s.fields, roomID)
}

// Stamped returns the frame to broadcast to the room.
func (c Chat) Stamped(roomID string) ([]byte, error) {
	if c.fields == nil {
		c.RoomID = roomID
		return json.Marshal(struct {
			Type string `json:"type"`
			Chat
		}{TypeChatMessage, c})
	}
	return stamp(c.fields, roomID)
}

// ParticipantInfo is the public view of a participant.
type ParticipantInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsDoctor bool   `json:"isDoctor"`
}

// RoomUsers is the roster reply sent to a joiner.
type RoomUsers struct {
	Type  string            `json:"type"`
	Users []ParticipantInfo `json:"users"`
}

// UserJoined announces a new participant to the rest of the room.
type UserJoined struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	IsDoctor bool   `json:"isDoctor"`
}

// UserLeft announces a departure to the rest of the room.
type UserLeft struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// ErrorReply reports a protocol error to one client.
type ErrorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newRoomUsers(users []ParticipantInfo) RoomUsers {
	if users == nil {
		users = []ParticipantInfo{}
	}
	return RoomUsers{Type: TypeRoomUsers, Users: users}
}

func newUserJoined(p ParticipantInfo) UserJoined {
	return UserJoined{Type: TypeUserJoined, UserID: p.ID, Name: p.Name, IsDoctor: p.IsDoctor}
}

func newUserLeft(userID string) UserLeft {
	return UserLeft{Type: TypeUserLeft, UserID: userID}
}

func newErrorReply(msg string) ErrorReply {
	return ErrorReply{Type: TypeError, Message: msg}
}
