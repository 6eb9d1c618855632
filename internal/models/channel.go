package models

import (
	"time"
)

// ChannelType represents the type of channel
type ChannelType int

const (
	ChannelTypeText          ChannelType = iota // Text chat channel
	ChannelTypeVoice                            // Voice channel
	ChannelTypeCategory                         // Channel category/folder
	ChannelTypeDM                               // Direct message
	ChannelTypeGroupDM                          // Group direct message
	ChannelTypeSavedMessages                    // Conversation with yourself
)

// Channel represents a communication channel, either inside a server or a
// conversation between users
type Channel struct {
	ID            string      `json:"id"`
	ServerID      string      `json:"server_id,omitempty"` // Empty for conversations
	Name          string      `json:"name"`
	Topic         string      `json:"topic,omitempty"`
	Type          ChannelType `json:"type"`
	Position      int         `json:"position"`
	OwnerID       string      `json:"owner_id,omitempty"`
	LastMessageID string      `json:"last_message_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`

	// For conversation channels
	RecipientIDs []string `json:"recipient_ids,omitempty"`
}

// NewTextChannel creates a new text channel
func NewTextChannel(serverID, name string) *Channel {
	now := time.Now()
	return &Channel{
		ID:        NewID(),
		ServerID:  serverID,
		Name:      name,
		Type:      ChannelTypeText,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewDMChannel creates a new direct message channel between users
func NewDMChannel(userIDs ...string) *Channel {
	now := time.Now()
	return &Channel{
		ID:           NewID(),
		Type:         ChannelTypeDM,
		CreatedAt:    now,
		UpdatedAt:    now,
		RecipientIDs: userIDs,
	}
}

// NewGroupDMChannel creates a new group conversation owned by ownerID
func NewGroupDMChannel(ownerID, name string, userIDs ...string) *Channel {
	ch := NewDMChannel(userIDs...)
	ch.Type = ChannelTypeGroupDM
	ch.Name = name
	ch.OwnerID = ownerID
	return ch
}

// NewSavedMessagesChannel creates the self-conversation for a user
func NewSavedMessagesChannel(ownerID string) *Channel {
	ch := NewDMChannel()
	ch.Type = ChannelTypeSavedMessages
	ch.OwnerID = ownerID
	return ch
}

// IsConversation returns true if the channel does not belong to a server
func (c *Channel) IsConversation() bool {
	switch c.Type {
	case ChannelTypeDM, ChannelTypeGroupDM, ChannelTypeSavedMessages:
		return true
	}
	return c.ServerID == ""
}

// HasParticipant reports whether userID takes part in a conversation channel.
// The owner counts as a participant so self-conversations qualify.
func (c *Channel) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	if c.OwnerID == userID {
		return true
	}
	for _, id := range c.RecipientIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// String returns the lowercase name of the channel type
func (t ChannelType) String() string {
	switch t {
	case ChannelTypeText:
		return "text"
	case ChannelTypeVoice:
		return "voice"
	case ChannelTypeCategory:
		return "category"
	case ChannelTypeDM:
		return "dm"
	case ChannelTypeGroupDM:
		return "group_dm"
	case ChannelTypeSavedMessages:
		return "saved_messages"
	default:
		return "unknown"
	}
}

