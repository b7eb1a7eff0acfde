package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"classroom-backend/internal/model"
)

// Inbound event types (client -> relay)
const (
	TypeJoin        = "join_room"
	TypeLeave       = "leave_room"
	TypeSendMessage = "send_message"
	TypeDrawStroke  = "draw_line"
	TypeClearCanvas = "clear_canvas"
	TypePing        = "ping"
)

// Outbound event types (relay -> client)
const (
	TypePresenceUpdated = "update_user_list"
	TypeCanvasSnapshot  = "canvas_history"
	TypeStrokeDrawn     = "draw_line"
	TypeCanvasCleared   = "clear_canvas"
	TypeMessageReceived = "receive_message"
	TypeChatListRefresh = "refresh_chat_list"
	TypeMessageAck      = "message_ack"
	TypeMessageFailed   = "message_failed"
	TypeError           = "error"
	TypePong            = "pong"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown event type")
	ErrInvalidRoomID  = errors.New("invalid room id")
	ErrMissingUser    = errors.New("missing user id")
	ErrInvalidStroke  = errors.New("invalid stroke")
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RoomID accepts both a JSON number and a numeric string ("12"); the web
// client sends whichever it has at hand.
type RoomID int64

func (r *RoomID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ErrInvalidRoomID
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ErrInvalidRoomID
		}
		raw = strings.TrimSpace(s)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return ErrInvalidRoomID
	}
	*r = RoomID(id)
	return nil
}

// Identity of the caller, trusted as supplied.
type Identity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Stroke is one pen-down to pen-up motion. Points is a flat x,y list.
type Stroke struct {
	Points      []float64 `json:"points"`
	Color       string    `json:"stroke,omitempty"`
	StrokeWidth float64   `json:"strokeWidth,omitempty"`
	Tool        string    `json:"tool,omitempty"`
}

func (s Stroke) validate() error {
	if len(s.Points) < 2 || len(s.Points)%2 != 0 {
		return fmt.Errorf("%w: need x,y pairs, got %d values", ErrInvalidStroke, len(s.Points))
	}
	if s.StrokeWidth < 0 {
		return fmt.Errorf("%w: negative width", ErrInvalidStroke)
	}
	return nil
}

// Command is one decoded client event.
type Command interface {
	commandType() string
}

type JoinCommand struct {
	RoomID RoomID   `json:"roomId"`
	User   Identity `json:"user"`
}

type LeaveCommand struct {
	RoomID RoomID `json:"roomId"`
	UserID int64  `json:"userId"`
}

type SendMessageCommand struct {
	RoomID      RoomID `json:"roomId"`
	UserID      int64  `json:"userId"`
	Content     string `json:"content"`
	Role        string `json:"role"`
	Name        string `json:"name,omitempty"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

type DrawStrokeCommand struct {
	RoomID RoomID `json:"roomId"`
	Stroke Stroke `json:"line"`
	Role   string `json:"role"`
}

type ClearCanvasCommand struct {
	RoomID RoomID `json:"roomId"`
	Role   string `json:"role"`
}

type PingCommand struct{}

func (JoinCommand) commandType() string        { return TypeJoin }
func (LeaveCommand) commandType() string       { return TypeLeave }
func (SendMessageCommand) commandType() string { return TypeSendMessage }
func (DrawStrokeCommand) commandType() string  { return TypeDrawStroke }
func (ClearCanvasCommand) commandType() string { return TypeClearCanvas }
func (PingCommand) commandType() string        { return TypePing }

// DecodeCommand parses and validates one inbound frame.
func DecodeCommand(data []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var (
		cmd Command
		err error
	)
	switch env.Type {
	case TypeJoin:
		var c JoinCommand
		if err = decodePayload(env.Payload, &c); err == nil && c.User.ID == 0 {
			err = ErrMissingUser
		}
		cmd = c
	case TypeLeave:
		var c LeaveCommand
		if err = decodePayload(env.Payload, &c); err == nil && c.UserID == 0 {
			err = ErrMissingUser
		}
		cmd = c
	case TypeSendMessage:
		var c SendMessageCommand
		if err = decodePayload(env.Payload, &c); err == nil && c.UserID == 0 {
			err = ErrMissingUser
		}
		cmd = c
	case TypeDrawStroke:
		var c DrawStrokeCommand
		if err = decodePayload(env.Payload, &c); err == nil {
			err = c.Stroke.validate()
		}
		cmd = c
	case TypeClearCanvas:
		var c ClearCanvasCommand
		err = decodePayload(env.Payload, &c)
		cmd = c
	case TypePing:
		cmd = PingCommand{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// decodePayload unmarshals the payload; a missing roomId is reported as
// ErrInvalidRoomID rather than a zero room.
func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformedFrame)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		if errors.Is(err, ErrInvalidRoomID) {
			return ErrInvalidRoomID
		}
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var probe struct {
		RoomID *json.RawMessage `json:"roomId"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.RoomID == nil {
		return ErrInvalidRoomID
	}
	return nil
}

// MessageView is a persisted message enriched for rendering.
type MessageView struct {
	ID          int64     `json:"id"`
	RoomID      int64     `json:"room_id"`
	UserID      int64     `json:"user_id"`
	Content     string    `json:"content"`
	IsAnswered  bool      `json:"is_answered"`
	CreatedAt   time.Time `json:"created_at"`
	Name        string    `json:"name"`
	Role        string    `json:"user_role"`
	ClientMsgID string    `json:"clientMsgId,omitempty"`
}

// NewMessageView renders a stored message. Empty name or role fall back to
// the preloaded author.
func NewMessageView(msg *model.Message, name, role string) MessageView {
	view := MessageView{
		ID:         msg.ID,
		RoomID:     msg.RoomID,
		UserID:     msg.UserID,
		Content:    msg.Content,
		IsAnswered: msg.IsAnswered,
		CreatedAt:  msg.CreatedAt,
		Name:       name,
		Role:       role,
	}
	if msg.User != nil {
		if view.Name == "" {
			view.Name = msg.User.Name
		}
		if view.Role == "" {
			view.Role = msg.User.RoleName()
		}
	}
	return view
}

// AckPayload confirms a send_message to its sender.
type AckPayload struct {
	ClientMsgID string `json:"clientMsgId,omitempty"`
	ID          int64  `json:"id,omitempty"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

// FailurePayload reports a send_message that was not stored.
type FailurePayload struct {
	ClientMsgID string `json:"clientMsgId,omitempty"`
	RoomID      int64  `json:"roomId"`
	Error       string `json:"error"`
}

// ErrorPayload reports a rejected frame.
type ErrorPayload struct {
	Message string `json:"message"`
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// encode builds an outbound frame. Payload types are all plain structs and
// slices, so marshalling cannot fail short of a programming error.
func encode(eventType string, payload any) []byte {
	data, err := json.Marshal(outbound{Type: eventType, Payload: payload})
	if err != nil {
		panic(fmt.Sprintf("relay: encode %s: %v", eventType, err))
	}
	return data
}
