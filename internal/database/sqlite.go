// Package database persists the entity catalog in SQLite so the CLI and the
// preview API can resolve references without a live session.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/concord-chat/refnav/internal/models"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new database connection and initializes schema.
// Use ":memory:" for a throwaway database.
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // keeps an in-memory database alive

	wrapper := &DB{db}
	if err := wrapper.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return wrapper, nil
}

// initSchema creates the database tables if they don't exist
func (db *DB) initSchema() error {
	schema := `
	-- Users table
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		display_name TEXT,
		avatar_hash TEXT,
		is_bot INTEGER DEFAULT 0
	);

	-- Servers table
	CREATE TABLE IF NOT EXISTS servers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		owner_id TEXT,
		default_channel_id TEXT
	);

	-- Channels table; server_id is NULL for conversations
	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		server_id TEXT,
		name TEXT NOT NULL DEFAULT '',
		topic TEXT,
		type INTEGER NOT NULL,
		position INTEGER DEFAULT 0,
		owner_id TEXT
	);

	-- Conversation recipients
	CREATE TABLE IF NOT EXISTS channel_recipients (
		channel_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (channel_id, user_id)
	);

	-- Server members junction table
	CREATE TABLE IF NOT EXISTS server_members (
		user_id TEXT NOT NULL,
		server_id TEXT NOT NULL,
		nickname TEXT,
		joined_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, server_id)
	);

	-- Custom emoji catalog
	CREATE TABLE IF NOT EXISTS emojis (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id TEXT,
		animated INTEGER DEFAULT 0
	);

	-- Invites table
	CREATE TABLE IF NOT EXISTS invites (
		code TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		server_id TEXT,
		channel_id TEXT,
		inviter_id TEXT
	);

	-- Messages table
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		reply_to_id TEXT
	);

	-- Indexes for common queries
	CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_channels_server ON channels(server_id);
	CREATE INDEX IF NOT EXISTS idx_server_members_server ON server_members(server_id);
	`

	_, err := db.Exec(schema)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func notFound(what, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// --- User Operations ---

// UpsertUser inserts or replaces a user
func (db *DB) UpsertUser(user *models.User) error {
	_, err := db.Exec(`
		INSERT INTO users (id, username, display_name, avatar_hash, is_bot)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username,
			display_name = excluded.display_name, avatar_hash = excluded.avatar_hash,
			is_bot = excluded.is_bot`,
		user.ID, user.Username, nullString(user.DisplayName), nullString(user.AvatarHash), user.IsBot)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by their ID
func (db *DB) GetUserByID(id string) (*models.User, error) {
	user := &models.User{}
	var displayName, avatarHash sql.NullString

	err := db.QueryRow(`
		SELECT id, username, display_name, avatar_hash, is_bot
		FROM users WHERE id = ?`, id).Scan(
		&user.ID, &user.Username, &displayName, &avatarHash, &user.IsBot)
	if err != nil {
		return nil, notFound("user", id, err)
	}

	user.DisplayName = displayName.String
	user.AvatarHash = avatarHash.String
	return user, nil
}

// --- Server Operations ---

// UpsertServer inserts or replaces a server. Its channel list is derived
// from the channels table and is not stored.
func (db *DB) UpsertServer(server *models.Server) error {
	_, err := db.Exec(`
		INSERT INTO servers (id, name, description, owner_id, default_channel_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description,
			owner_id = excluded.owner_id, default_channel_id = excluded.default_channel_id`,
		server.ID, server.Name, nullString(server.Description), nullString(server.OwnerID),
		nullString(server.DefaultChannelID))
	if err != nil {
		return fmt.Errorf("failed to save server: %w", err)
	}
	return nil
}

// GetServerByID retrieves a server with the IDs of its channels
func (db *DB) GetServerByID(id string) (*models.Server, error) {
	server := &models.Server{}
	var description, ownerID, defaultChanID sql.NullString

	err := db.QueryRow(`
		SELECT id, name, description, owner_id, default_channel_id
		FROM servers WHERE id = ?`, id).Scan(
		&server.ID, &server.Name, &description, &ownerID, &defaultChanID)
	if err != nil {
		return nil, notFound("server", id, err)
	}
	server.Description = description.String
	server.OwnerID = ownerID.String
	server.DefaultChannelID = defaultChanID.String

	rows, err := db.Query(`SELECT id FROM channels WHERE server_id = ? ORDER BY position, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list server channels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("failed to list server channels: %w", err)
		}
		server.ChannelIDs = append(server.ChannelIDs, cid)
	}
	return server, rows.Err()
}

// --- Channel Operations ---

// UpsertChannel inserts or replaces a channel and its recipients
func (db *DB) UpsertChannel(channel *models.Channel) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO channels (id, server_id, name, topic, type, position, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET server_id = excluded.server_id, name = excluded.name,
			topic = excluded.topic, type = excluded.type, position = excluded.position,
			owner_id = excluded.owner_id`,
		channel.ID, nullString(channel.ServerID), channel.Name, nullString(channel.Topic),
		channel.Type, channel.Position, nullString(channel.OwnerID))
	if err != nil {
		return fmt.Errorf("failed to save channel: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM channel_recipients WHERE channel_id = ?`, channel.ID); err != nil {
		return fmt.Errorf("failed to save channel recipients: %w", err)
	}
	for _, uid := range channel.RecipientIDs {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO channel_recipients (channel_id, user_id) VALUES (?, ?)`,
			channel.ID, uid); err != nil {
			return fmt.Errorf("failed to save channel recipients: %w", err)
		}
	}

	return tx.Commit()
}

// GetChannelByID retrieves a channel by its ID
func (db *DB) GetChannelByID(channelID string) (*models.Channel, error) {
	var ch models.Channel
	var serverID, topic, ownerID sql.NullString

	err := db.QueryRow(`
		SELECT id, server_id, name, topic, type, position, owner_id
		FROM channels WHERE id = ?`, channelID).
		Scan(&ch.ID, &serverID, &ch.Name, &topic, &ch.Type, &ch.Position, &ownerID)
	if err != nil {
		return nil, notFound("channel", channelID, err)
	}
	ch.ServerID = serverID.String
	ch.Topic = topic.String
	ch.OwnerID = ownerID.String

	rows, err := db.Query(`SELECT user_id FROM channel_recipients WHERE channel_id = ? ORDER BY user_id`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to list recipients: %w", err)
		}
		ch.RecipientIDs = append(ch.RecipientIDs, uid)
	}
	return &ch, rows.Err()
}

// DeleteChannel deletes a channel, its recipients and its messages
func (db *DB) DeleteChannel(channelID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM messages WHERE channel_id = ?`,
		`DELETE FROM channel_recipients WHERE channel_id = ?`,
		`DELETE FROM channels WHERE id = ?`,
	} {
		if _, err := tx.Exec(q, channelID); err != nil {
			return fmt.Errorf("failed to delete channel: %w", err)
		}
	}

	return tx.Commit()
}

// --- Member Operations ---

// AddServerMember records a membership
func (db *DB) AddServerMember(member *models.ServerMember) error {
	joined := member.JoinedAt
	if joined.IsZero() {
		joined = time.Now()
	}
	_, err := db.Exec(`
		INSERT INTO server_members (user_id, server_id, nickname, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, server_id) DO UPDATE SET nickname = excluded.nickname`,
		member.UserID, member.ServerID, nullString(member.Nickname), joined)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// RemoveServerMember deletes a membership
func (db *DB) RemoveServerMember(serverID, userID string) error {
	_, err := db.Exec(`DELETE FROM server_members WHERE server_id = ? AND user_id = ?`, serverID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// IsServerMember checks whether a user belongs to a server
func (db *DB) IsServerMember(serverID, userID string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM server_members WHERE server_id = ? AND user_id = ?`,
		serverID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return n > 0, nil
}

// --- Emoji Operations ---

// UpsertEmoji inserts or replaces a catalog emoji
func (db *DB) UpsertEmoji(emoji *models.Emoji) error {
	_, err := db.Exec(`
		INSERT INTO emojis (id, name, parent_id, animated) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, parent_id = excluded.parent_id,
			animated = excluded.animated`,
		emoji.ID, emoji.Name, nullString(emoji.ParentID), emoji.Animated)
	if err != nil {
		return fmt.Errorf("failed to save emoji: %w", err)
	}
	return nil
}

// GetEmojiByID retrieves a catalog emoji
func (db *DB) GetEmojiByID(id string) (*models.Emoji, error) {
	e := &models.Emoji{}
	var parentID sql.NullString
	err := db.QueryRow(`SELECT id, name, parent_id, animated FROM emojis WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &parentID, &e.Animated)
	if err != nil {
		return nil, notFound("emoji", id, err)
	}
	e.ParentID = parentID.String
	return e, nil
}

// --- Invite Operations ---

// UpsertInvite inserts or replaces invite metadata
func (db *DB) UpsertInvite(inv *models.Invite) error {
	_, err := db.Exec(`
		INSERT INTO invites (code, type, server_id, channel_id, inviter_id) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET type = excluded.type, server_id = excluded.server_id,
			channel_id = excluded.channel_id, inviter_id = excluded.inviter_id`,
		inv.Code, string(inv.Type), nullString(inv.ServerID), nullString(inv.ChannelID), nullString(inv.InviterID))
	if err != nil {
		return fmt.Errorf("failed to save invite: %w", err)
	}
	return nil
}

// GetInvite retrieves invite metadata, naming its server and channel
func (db *DB) GetInvite(code string) (*models.Invite, error) {
	inv := &models.Invite{}
	var typ string
	var serverID, channelID, inviterID, serverName, channelName sql.NullString
	err := db.QueryRow(`
		SELECT i.code, i.type, i.server_id, i.channel_id, i.inviter_id, s.name, c.name
		FROM invites i
		LEFT JOIN servers s ON s.id = i.server_id
		LEFT JOIN channels c ON c.id = i.channel_id
		WHERE i.code = ?`, code).
		Scan(&inv.Code, &typ, &serverID, &channelID, &inviterID, &serverName, &channelName)
	if err != nil {
		return nil, notFound("invite", code, err)
	}
	inv.Type = models.InviteType(typ)
	inv.ServerID = serverID.String
	inv.ChannelID = channelID.String
	inv.InviterID = inviterID.String
	inv.ServerName = serverName.String
	inv.ChannelName = channelName.String
	return inv, nil
}

// --- Message Operations ---

// CreateMessage inserts a message
func (db *DB) CreateMessage(msg *models.Message) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO messages (id, channel_id, author_id, content, created_at, reply_to_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ChannelID, msg.AuthorID, msg.Content, msg.CreatedAt, nullString(msg.ReplyToID))
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message in a channel
func (db *DB) GetMessage(channelID, messageID string) (*models.Message, error) {
	msg := &models.Message{}
	var replyTo sql.NullString
	err := db.QueryRow(`
		SELECT id, channel_id, author_id, content, created_at, reply_to_id
		FROM messages WHERE channel_id = ? AND id = ?`, channelID, messageID).
		Scan(&msg.ID, &msg.ChannelID, &msg.AuthorID, &msg.Content, &msg.CreatedAt, &replyTo)
	if err != nil {
		return nil, notFound("message", messageID, err)
	}
	msg.ReplyToID = replyTo.String
	return msg, nil
}

// GetChannelMessages retrieves the latest messages of a channel, oldest first
func (db *DB) GetChannelMessages(channelID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, channel_id, author_id, content, created_at, reply_to_id FROM (
			SELECT * FROM messages WHERE channel_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return scanMessages(rows)
}

// GetMessagesAround retrieves up to limit messages centered on messageID,
// oldest first. The target itself is always included; a short history
// before it leaves more room after it.
func (db *DB) GetMessagesAround(channelID, messageID string, limit int) ([]*models.Message, error) {
	target, err := db.GetMessage(channelID, messageID)
	if err != nil {
		return nil, err
	}
	if limit <= 1 {
		return []*models.Message{target}, nil
	}
	before := limit / 2

	rows, err := db.Query(`
		SELECT id, channel_id, author_id, content, created_at, reply_to_id FROM (
			SELECT * FROM messages WHERE channel_id = ? AND created_at < ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`, channelID, target.CreatedAt, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	older, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	rows, err = db.Query(`
		SELECT id, channel_id, author_id, content, created_at, reply_to_id
		FROM messages WHERE channel_id = ? AND created_at >= ? AND id != ?
		ORDER BY created_at ASC, id ASC LIMIT ?`, channelID, target.CreatedAt, messageID, limit-len(older)-1)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	newer, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	page := make([]*models.Message, 0, len(older)+1+len(newer))
	page = append(page, older...)
	page = append(page, target)
	return append(page, newer...), nil
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var replyTo sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.AuthorID, &msg.Content, &msg.CreatedAt, &replyTo); err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		msg.ReplyToID = replyTo.String
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SearchUsers returns users whose username or display name starts with prefix
func (db *DB) SearchUsers(prefix string, limit int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 10
	}
	like := strings.ReplaceAll(strings.ReplaceAll(prefix, "%", `\%`), "_", `\_`) + "%"
	rows, err := db.Query(`
		SELECT id, username, display_name, avatar_hash, is_bot FROM users
		WHERE username LIKE ? ESCAPE '\' OR display_name LIKE ? ESCAPE '\'
		ORDER BY username LIMIT ?`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		var displayName, avatarHash sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &displayName, &avatarHash, &u.IsBot); err != nil {
			return nil, fmt.Errorf("failed to search users: %w", err)
		}
		u.DisplayName = displayName.String
		u.AvatarHash = avatarHash.String
		users = append(users, u)
	}
	return users, rows.Err()
}
