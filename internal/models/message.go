package models

import (
	"time"
)

// Message represents a chat message in wire form
type Message struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channel_id"`
	AuthorID  string     `json:"author_id"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	ReplyToID string     `json:"reply_to_id,omitempty"`
}

// NewMessage creates a new text message
func NewMessage(channelID, authorID, content string) *Message {
	return &Message{
		ID:        NewID(),
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewReply creates a new message that is a reply to another message
func NewReply(channelID, authorID, replyToID, content string) *Message {
	msg := NewMessage(channelID, authorID, content)
	msg.ReplyToID = replyToID
	return msg
}

// Edit updates the message content
func (m *Message) Edit(newContent string) {
	m.Content = newContent
	now := time.Now()
	m.EditedAt = &now
}

// IsEdited returns true if the message has been edited
func (m *Message) IsEdited() bool {
	return m.EditedAt != nil
}

// IsReply returns true if this message is a reply to another message
func (m *Message) IsReply() bool {
	return m.ReplyToID != ""
}
