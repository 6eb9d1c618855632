package navigation

import (
	"context"

	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/protection"
)

// Membership answers access questions for the current session
type Membership interface {
	IsMember(serverID, userID string) bool
	IsParticipant(channelID, userID string) bool
}

// MessageWindow is the message list's cache of loaded messages
type MessageWindow interface {
	Clear(channelID string)
	Contains(messageID string) bool
}

// Stack is the navigation history
type Stack interface {
	Reset()
	Push(d Decision)
}

// Fetcher loads entities that are not cached locally. Implementations
// return an error wrapping a not-found sentinel for missing entities.
type Fetcher interface {
	FetchChannel(ctx context.Context, id string) (*models.Channel, error)
	FetchServer(ctx context.Context, id string) (*models.Server, error)
	FetchInvite(ctx context.Context, code string) (*models.Invite, error)
}

// Protector guards the target message of a navigation
type Protector interface {
	Arm(ctx context.Context, channelID, messageID string, crossChannel bool) (context.Context, protection.Window)
	Cancel()
}

// History is an in-memory Stack with a back operation
type History struct {
	entries []Decision
	limit   int
}

// NewHistory creates a history keeping at most limit entries (0 = unbounded)
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Reset clears the history
func (h *History) Reset() {
	h.entries = nil
}

// Push records a destination, dropping the oldest entry when full
func (h *History) Push(d Decision) {
	h.entries = append(h.entries, d)
	if h.limit > 0 && len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
}

// Back pops the current destination and returns the previous one
func (h *History) Back() (Decision, bool) {
	if len(h.entries) < 2 {
		return Decision{}, false
	}
	h.entries = h.entries[:len(h.entries)-1]
	return h.entries[len(h.entries)-1], true
}

// Current returns the newest entry
func (h *History) Current() (Decision, bool) {
	if len(h.entries) == 0 {
		return Decision{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Len returns the number of entries
func (h *History) Len() int {
	return len(h.entries)
}
