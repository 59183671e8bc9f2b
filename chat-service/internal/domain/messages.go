package domain

import "encoding/json"

// WebSocket message types from client.
const (
	MsgTypeJoinRoom    = "join_room"
	MsgTypeLeaveRoom   = "leave_room"
	MsgTypeSendMessage = "send_message"
	MsgTypeTyping      = "typing"
	MsgTypeStopTyping  = "stop_typing"
	MsgTypePing        = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeRoomJoined  = "room_joined"
	MsgTypeRoomLeft    = "room_left"
	MsgTypeRoomHistory = "room_history"
	MsgTypeNewMessage  = "new_message"
	MsgTypeError       = "error_message"
	MsgTypePong        = "pong"
)

// Error codes
const (
	ErrCodeInvalidContext = "INVALID_CONTEXT"
	ErrCodeMissingField   = "MISSING_FIELD"
	ErrCodePersistence    = "PERSISTENCE_ERROR"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeDelivery       = "DELIVERY_ERROR"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

// InboundMessage is the flat frame every client event uses: the type, the
// addressing fields and, for sends, the receiver and text.
type InboundMessage struct {
	Type string `json:"type"`
	SendPayload
	// Message is the older name of Body.
	Message string `json:"message,omitempty"`
}

// DecodeInbound parses a client frame.
func DecodeInbound(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Body == "" {
		msg.Body = msg.Message
	}
	return &msg, nil
}

// Server -> Client messages

type RoomJoinedMessage struct {
	Type string  `json:"type"`
	Room RoomKey `json:"room"`
}

type RoomLeftMessage struct {
	Type string  `json:"type"`
	Room RoomKey `json:"room"`
}

type RoomHistoryMessage struct {
	Type     string        `json:"type"`
	Room     RoomKey       `json:"room"`
	Messages []ChatMessage `json:"messages"`
}

type NewMessageOut struct {
	Type    string       `json:"type"`
	Room    RoomKey      `json:"room"`
	Message *ChatMessage `json:"message"`
}

type TypingOut struct {
	Type string  `json:"type"`
	Room RoomKey `json:"room"`
	From FlexInt `json:"from"`
}

type PongMessage struct {
	Type string `json:"type"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
