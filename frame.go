package chatkit

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Wire Format
// ============================================================================

// Frame type discriminators. The type fully determines how Data is
// interpreted; unknown types are logged and dropped.
const (
	FrameAuth       = "auth"
	FrameMessage    = "message"
	FrameTyping     = "typing"
	FrameUserStatus = "user_status"
	FrameRoomUpdate = "room_update"
	FrameError      = "error"
	FrameJoinRoom   = "join_room"
	FrameLeaveRoom  = "leave_room"
	FramePing       = "ping"
	FramePong       = "pong"
)

// Frame is the wire envelope for every inbound event.
type Frame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	RoomID    int             `json:"room_id,omitempty"`
	UserID    int             `json:"user_id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// outboundFrame is the client-to-server envelope. Data is kept as a plain
// value so ping frames serialize an explicit empty object.
type outboundFrame struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	RoomID    int    `json:"room_id,omitempty"`
	UserID    int    `json:"user_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func newOutboundFrame(frameType string, data any) *outboundFrame {
	return &outboundFrame{
		Type:      frameType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ============================================================================
// Payloads
// ============================================================================

// messagePayload is the Data shape of an inbound message frame.
type messagePayload struct {
	ID         int    `json:"id"`
	Sender     int    `json:"sender"`
	SenderName string `json:"sender_name"`
	RoomID     int    `json:"room_id"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

// Message is the enriched record handed to message listeners.
type Message struct {
	ID         int
	RoomID     int
	SenderID   int
	SenderName string
	Content    string
	SentAt     time.Time
	Delivered  bool
}

// TypingIndicator is the ephemeral typing signal, both directions.
type TypingIndicator struct {
	RoomID   int    `json:"room_id"`
	UserID   int    `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	IsTyping bool   `json:"is_typing"`
}

// Presence status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
)

// UserStatus is a presence update for a single user.
type UserStatus struct {
	UserID   int    `json:"user_id"`
	Status   string `json:"status"`
	LastSeen string `json:"last_seen,omitempty"`
}

// errorPayload is the Data shape of an inbound error frame.
type errorPayload struct {
	Error string `json:"error"`
}
