// Package cache holds the session's in-memory view of users, channels,
// servers, emoji and memberships.
package cache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/concord-chat/refnav/internal/models"
)

// DefaultKnownChannels is the default capacity of the known-channel directory
const DefaultKnownChannels = 4096

// Store is a thread-safe entity cache. Besides the primary maps it keeps a
// bounded directory of every channel seen, so references to channels that
// were never loaded or have been evicted still resolve to a name.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	channels map[string]*models.Channel
	servers  map[string]*models.Server
	emojis   map[string]*models.Emoji
	members  map[string]map[string]bool // serverID -> set of userIDs

	known *lru.Cache[string, *models.Channel]
}

// New creates an empty store whose known-channel directory holds up to
// knownSize entries
func New(knownSize int) (*Store, error) {
	if knownSize <= 0 {
		knownSize = DefaultKnownChannels
	}
	known, err := lru.New[string, *models.Channel](knownSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel directory: %w", err)
	}
	return &Store{
		users:    make(map[string]*models.User),
		channels: make(map[string]*models.Channel),
		servers:  make(map[string]*models.Server),
		emojis:   make(map[string]*models.Emoji),
		members:  make(map[string]map[string]bool),
		known:    known,
	}, nil
}

// --- Lookups ---

// GetUser returns a cached user
func (s *Store) GetUser(id string) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// GetChannel returns a channel from the primary cache
func (s *Store) GetChannel(id string) (*models.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[id]
	return c, ok
}

// GetKnownChannel returns a channel from the known-channel directory
func (s *Store) GetKnownChannel(id string) (*models.Channel, bool) {
	return s.known.Get(id)
}

// GetServer returns a cached server
func (s *Store) GetServer(id string) (*models.Server, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sv, ok := s.servers[id]
	return sv, ok
}

// GetEmoji returns a catalog emoji by ID
func (s *Store) GetEmoji(id string) (*models.Emoji, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.emojis[id]
	return e, ok
}

// IsMember reports whether userID is a member of serverID
func (s *Store) IsMember(serverID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[serverID][userID]
}

// IsParticipant reports whether userID takes part in the conversation channelID
func (s *Store) IsParticipant(channelID, userID string) bool {
	ch, ok := s.GetChannel(channelID)
	if !ok {
		ch, ok = s.GetKnownChannel(channelID)
	}
	return ok && ch.HasParticipant(userID)
}

// --- Updates ---

// PutUser adds or replaces a user
func (s *Store) PutUser(u *models.User) {
	cp := *u
	s.mu.Lock()
	s.users[u.ID] = &cp
	s.mu.Unlock()
}

// PutChannel adds or replaces a channel in the primary cache and the
// directory. A server channel is also listed under its cached server.
func (s *Store) PutChannel(c *models.Channel) {
	cp := *c
	s.mu.Lock()
	s.channels[c.ID] = &cp
	if sv, ok := s.servers[c.ServerID]; ok && !sv.HasChannel(c.ID) {
		updated := *sv
		updated.ChannelIDs = append(append([]string(nil), sv.ChannelIDs...), c.ID)
		s.servers[sv.ID] = &updated
	}
	s.mu.Unlock()
	s.known.Add(c.ID, &cp)
}

// RememberChannel records a channel in the directory only
func (s *Store) RememberChannel(c *models.Channel) {
	cp := *c
	s.known.Add(c.ID, &cp)
}

// RemoveChannel drops a channel from the primary cache and its server's
// channel list. The directory keeps it so old references still render.
func (s *Store) RemoveChannel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return
	}
	delete(s.channels, id)
	if sv, ok := s.servers[ch.ServerID]; ok {
		updated := *sv
		updated.ChannelIDs = nil
		for _, cid := range sv.ChannelIDs {
			if cid != id {
				updated.ChannelIDs = append(updated.ChannelIDs, cid)
			}
		}
		s.servers[sv.ID] = &updated
	}
}

// PutServer adds or replaces a server
func (s *Store) PutServer(sv *models.Server) {
	cp := *sv
	cp.ChannelIDs = append([]string(nil), sv.ChannelIDs...)
	s.mu.Lock()
	s.servers[sv.ID] = &cp
	s.mu.Unlock()
}

// RemoveServer drops a server together with its channels and memberships
func (s *Store) RemoveServer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.servers, id)
	delete(s.members, id)
	for cid, ch := range s.channels {
		if ch.ServerID == id {
			delete(s.channels, cid)
		}
	}
}

// PutEmoji adds or replaces a catalog emoji
func (s *Store) PutEmoji(e *models.Emoji) {
	cp := *e
	s.mu.Lock()
	s.emojis[e.ID] = &cp
	s.mu.Unlock()
}

// AddMember records userID as a member of serverID
func (s *Store) AddMember(serverID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[serverID]
	if !ok {
		set = make(map[string]bool)
		s.members[serverID] = set
	}
	set[userID] = true
}

// RemoveMember forgets userID's membership of serverID
func (s *Store) RemoveMember(serverID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[serverID], userID)
}

// Stats reports the number of cached entities
type Stats struct {
	Users    int `json:"users"`
	Channels int `json:"channels"`
	Known    int `json:"known_channels"`
	Servers  int `json:"servers"`
	Emojis   int `json:"emojis"`
}

// Stats returns the current cache sizes
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Users:    len(s.users),
		Channels: len(s.channels),
		Known:    s.known.Len(),
		Servers:  len(s.servers),
		Emojis:   len(s.emojis),
	}
}
