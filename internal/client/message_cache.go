package client

import (
	"sort"
	"sync"

	"github.com/concord-chat/refnav/internal/models"
)

// DefaultMessagesPerChannel caps each channel's buffer
const DefaultMessagesPerChannel = 1000

// MessageCache holds the loaded messages of each channel. The active
// channel is the one the message list shows; Contains answers for it.
type MessageCache struct {
	mu       sync.RWMutex
	limit    int
	active   string
	messages map[string][]*models.Message
}

// NewMessageCache creates a cache keeping at most limit messages per channel
func NewMessageCache(limit int) *MessageCache {
	if limit <= 0 {
		limit = DefaultMessagesPerChannel
	}
	return &MessageCache{
		limit:    limit,
		messages: make(map[string][]*models.Message),
	}
}

// Clear empties channelID's buffer and makes it the active channel
func (mc *MessageCache) Clear(channelID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.active = channelID
	delete(mc.messages, channelID)
}

// Active returns the channel the message list shows
func (mc *MessageCache) Active() string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.active
}

// Contains reports whether messageID is loaded in the active channel
func (mc *MessageCache) Contains(messageID string) bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	for _, m := range mc.messages[mc.active] {
		if m.ID == messageID {
			return true
		}
	}
	return false
}

// Messages returns a copy of channelID's buffer, oldest first
func (mc *MessageCache) Messages(channelID string) []*models.Message {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return append([]*models.Message(nil), mc.messages[channelID]...)
}

// Add appends a live message to its channel
func (mc *MessageCache) Add(msg *models.Message) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	messages := mc.messages[msg.ChannelID]
	for i, m := range messages {
		if m.ID == msg.ID {
			messages[i] = msg
			return
		}
	}

	// Trim oldest half once full
	if len(messages) >= mc.limit {
		messages = messages[len(messages)/2:]
	}
	mc.messages[msg.ChannelID] = append(messages, msg)
}

// Load merges a fetched page into channelID's buffer, keeping creation
// order. When the merge exceeds the cap the oldest messages are dropped.
func (mc *MessageCache) Load(channelID string, page []*models.Message) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.merge(channelID, page)
}

// LoadActive merges page only while channelID is still the active channel
// and current reports true. Both are checked under the same lock as the
// merge, so a load superseded by a later Clear never lands.
func (mc *MessageCache) LoadActive(channelID string, page []*models.Message, current func() bool) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.active != channelID || (current != nil && !current()) {
		return false
	}
	mc.merge(channelID, page)
	return true
}

func (mc *MessageCache) merge(channelID string, page []*models.Message) {
	byID := make(map[string]*models.Message)
	for _, m := range mc.messages[channelID] {
		byID[m.ID] = m
	}
	for _, m := range page {
		if m.ChannelID == channelID {
			byID[m.ID] = m
		}
	}

	merged := make([]*models.Message, 0, len(byID))
	for _, m := range byID {
		merged = append(merged, m)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].ID < merged[j].ID
		}
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	if len(merged) > mc.limit {
		merged = merged[len(merged)-mc.limit:]
	}
	mc.messages[channelID] = merged
}

// Replace swaps an edited message in place. It reports whether the message
// was loaded.
func (mc *MessageCache) Replace(msg *models.Message) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for i, m := range mc.messages[msg.ChannelID] {
		if m.ID == msg.ID {
			mc.messages[msg.ChannelID][i] = msg
			return true
		}
	}
	return false
}

// Remove deletes one message
func (mc *MessageCache) Remove(channelID, messageID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	messages := mc.messages[channelID]
	for i, m := range messages {
		if m.ID == messageID {
			mc.messages[channelID] = append(messages[:i:i], messages[i+1:]...)
			return
		}
	}
}

// Drop forgets a channel entirely
func (mc *MessageCache) Drop(channelID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.messages, channelID)
}
