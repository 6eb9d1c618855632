// Package protocol defines the gateway envelope and the event payloads the
// client consumes.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/concord-chat/refnav/internal/models"
)

// OpCode represents the type of WebSocket message
type OpCode int

const (
	// Client -> Server operations
	OpIdentify  OpCode = 0 // Initial authentication
	OpHeartbeat OpCode = 1 // Keep-alive ping

	// Server -> Client operations
	OpDispatch       OpCode = 10 // Event dispatch (most messages)
	OpHeartbeatAck   OpCode = 11 // Heartbeat acknowledgment
	OpHello          OpCode = 12 // Initial connection info
	OpInvalidSession OpCode = 14 // Authentication failed
	OpReconnect      OpCode = 15 // Server requests reconnection
)

// EventType represents the type of dispatched event
type EventType string

const (
	EventReady EventType = "READY"

	EventServerCreate       EventType = "SERVER_CREATE"
	EventServerUpdate       EventType = "SERVER_UPDATE"
	EventServerDelete       EventType = "SERVER_DELETE"
	EventServerMemberAdd    EventType = "SERVER_MEMBER_ADD"
	EventServerMemberRemove EventType = "SERVER_MEMBER_REMOVE"

	EventChannelCreate EventType = "CHANNEL_CREATE"
	EventChannelUpdate EventType = "CHANNEL_UPDATE"
	EventChannelDelete EventType = "CHANNEL_DELETE"

	EventMessageCreate EventType = "MESSAGE_CREATE"
	EventMessageUpdate EventType = "MESSAGE_UPDATE"
	EventMessageDelete EventType = "MESSAGE_DELETE"

	EventUserUpdate  EventType = "USER_UPDATE"
	EventEmojiCreate EventType = "EMOJI_CREATE"
)

// Message represents a WebSocket message envelope
type Message struct {
	Op   OpCode          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  *int64          `json:"s,omitempty"` // Sequence number for dispatches
	Type EventType       `json:"t,omitempty"` // Event type for dispatches
}

// NewMessage creates a new protocol message
func NewMessage(op OpCode, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
	}
	return &Message{
		Op:   op,
		Data: rawData,
	}, nil
}

// NewDispatch creates a new dispatch message
func NewDispatch(eventType EventType, seq int64, data interface{}) (*Message, error) {
	msg, err := NewMessage(OpDispatch, data)
	if err != nil {
		return nil, err
	}
	msg.Seq = &seq
	msg.Type = eventType
	return msg, nil
}

// Decode unmarshals the message data into v
func (m *Message) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("failed to decode %s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", m.Type, err)
	}
	return nil
}

// --- Client -> Server Payloads ---

// IdentifyPayload is sent by the client to authenticate
type IdentifyPayload struct {
	Token string `json:"token"`
}

// HeartbeatPayload is sent to keep the connection alive
type HeartbeatPayload struct {
	LastSequence *int64 `json:"last_sequence"`
}

// --- Server -> Client Payloads ---

// HelloPayload is sent on initial connection
type HelloPayload struct {
	HeartbeatInterval int `json:"heartbeat_interval"` // Milliseconds
}

// ReadyPayload is sent after successful authentication and carries the
// initial cache contents
type ReadyPayload struct {
	SessionID string                 `json:"session_id"`
	User      *models.User           `json:"user"`
	Users     []*models.User         `json:"users,omitempty"`
	Servers   []*models.Server       `json:"servers"`
	Channels  []*models.Channel      `json:"channels,omitempty"`
	Members   []*models.ServerMember `json:"members,omitempty"`
	Emojis    []*models.Emoji        `json:"emojis,omitempty"`
}

// --- Event Payloads ---

// MessageCreatePayload is dispatched when a message is created
type MessageCreatePayload struct {
	*models.Message
	Author *models.User `json:"author,omitempty"`
}

// MessageDeletePayload is dispatched when a message is deleted
type MessageDeletePayload struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// ServerMemberAddPayload is dispatched when a member joins a server
type ServerMemberAddPayload struct {
	ServerID string       `json:"server_id"`
	User     *models.User `json:"user"`
}

// ServerMemberRemovePayload is dispatched when a member leaves a server
type ServerMemberRemovePayload struct {
	ServerID string `json:"server_id"`
	UserID   string `json:"user_id"`
}

// ServerDeletePayload is dispatched when a server is deleted
type ServerDeletePayload struct {
	ID string `json:"id"`
}

// ChannelDeletePayload is dispatched when a channel is deleted
type ChannelDeletePayload struct {
	ID       string             `json:"id"`
	ServerID string             `json:"server_id,omitempty"`
	Type     models.ChannelType `json:"type"`
}

// --- Error Payloads ---

// ErrorPayload represents an error response
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
