package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/protocol"
)

// Store adapts DB to the boolean lookup interfaces used by the resolver and
// the navigation dispatcher. Query failures other than a missing row are
// logged and reported as misses.
type Store struct {
	db     *DB
	logger *slog.Logger
}

// NewStore wraps db. A nil logger uses slog.Default().
func NewStore(db *DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// DB returns the underlying database
func (s *Store) DB() *DB {
	return s.db
}

func (s *Store) miss(what, id string, err error) {
	if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("entity lookup failed", "entity", what, "id", id, "error", err)
	}
}

// GetUser implements resolve.EntityStore
func (s *Store) GetUser(id string) (*models.User, bool) {
	u, err := s.db.GetUserByID(id)
	if err != nil {
		s.miss("user", id, err)
		return nil, false
	}
	return u, true
}

// GetChannel implements resolve.EntityStore
func (s *Store) GetChannel(id string) (*models.Channel, bool) {
	ch, err := s.db.GetChannelByID(id)
	if err != nil {
		s.miss("channel", id, err)
		return nil, false
	}
	return ch, true
}

// GetKnownChannel implements resolve.ChannelDirectory. The database keeps
// every channel it has seen, so it doubles as its own directory.
func (s *Store) GetKnownChannel(id string) (*models.Channel, bool) {
	return s.GetChannel(id)
}

// GetServer implements resolve.EntityStore
func (s *Store) GetServer(id string) (*models.Server, bool) {
	sv, err := s.db.GetServerByID(id)
	if err != nil {
		s.miss("server", id, err)
		return nil, false
	}
	return sv, true
}

// GetEmoji implements resolve.EntityStore
func (s *Store) GetEmoji(id string) (*models.Emoji, bool) {
	e, err := s.db.GetEmojiByID(id)
	if err != nil {
		s.miss("emoji", id, err)
		return nil, false
	}
	return e, true
}

// IsMember implements navigation.Membership
func (s *Store) IsMember(serverID, userID string) bool {
	ok, err := s.db.IsServerMember(serverID, userID)
	if err != nil {
		s.logger.Warn("membership lookup failed", "server_id", serverID, "error", err)
		return false
	}
	return ok
}

// IsParticipant implements navigation.Membership
func (s *Store) IsParticipant(channelID, userID string) bool {
	ch, ok := s.GetChannel(channelID)
	return ok && ch.HasParticipant(userID)
}

// FetchChannel reads a channel the way a remote fetcher would, so the
// database can stand in for the API when none is configured
func (s *Store) FetchChannel(_ context.Context, id string) (*models.Channel, error) {
	return s.db.GetChannelByID(id)
}

// FetchServer reads a server with its channel list
func (s *Store) FetchServer(_ context.Context, id string) (*models.Server, error) {
	return s.db.GetServerByID(id)
}

// FetchInvite reads stored invite metadata
func (s *Store) FetchInvite(_ context.Context, code string) (*models.Invite, error) {
	return s.db.GetInvite(code)
}

// FetchMessagesAround reads the stored page around a message
func (s *Store) FetchMessagesAround(ctx context.Context, channelID, messageID string, limit int) ([]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.db.GetMessagesAround(channelID, messageID, limit)
}

// ImportReady stores the catalog carried by a READY payload. The session
// user is recorded as a member of every listed server.
func (db *DB) ImportReady(ready *protocol.ReadyPayload) error {
	users := ready.Users
	if ready.User != nil {
		users = append([]*models.User{ready.User}, users...)
	}
	for _, u := range users {
		if err := db.UpsertUser(u); err != nil {
			return fmt.Errorf("failed to import ready: %w", err)
		}
	}
	for _, sv := range ready.Servers {
		if err := db.UpsertServer(sv); err != nil {
			return fmt.Errorf("failed to import ready: %w", err)
		}
		if ready.User != nil {
			if err := db.AddServerMember(models.NewServerMember(ready.User.ID, sv.ID)); err != nil {
				return fmt.Errorf("failed to import ready: %w", err)
			}
		}
	}
	for _, ch := range ready.Channels {
		if err := db.UpsertChannel(ch); err != nil {
			return fmt.Errorf("failed to import ready: %w", err)
		}
	}
	for _, m := range ready.Members {
		if err := db.AddServerMember(m); err != nil {
			return fmt.Errorf("failed to import ready: %w", err)
		}
	}
	for _, e := range ready.Emojis {
		if err := db.UpsertEmoji(e); err != nil {
			return fmt.Errorf("failed to import ready: %w", err)
		}
	}
	return nil
}
