package models

import (
	"time"
)

// UserStatus represents the online status of a user
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusIdle    UserStatus = "idle"
	StatusDND     UserStatus = "dnd" // Do Not Disturb
	StatusOffline UserStatus = "offline"
)

// User represents a Concord user as seen by the client cache
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name,omitempty"`
	AvatarHash  string     `json:"avatar_hash,omitempty"`
	Status      UserStatus `json:"status,omitempty"`
	IsBot       bool       `json:"is_bot"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewUser creates a new user with a generated ID
func NewUser(username string) *User {
	now := time.Now()
	return &User{
		ID:        NewID(),
		Username:  username,
		Status:    StatusOffline,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GetDisplayName returns the display name if set, otherwise the username
func (u *User) GetDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// ServerMember represents a user's membership in a server
type ServerMember struct {
	UserID   string    `json:"user_id"`
	ServerID string    `json:"server_id"`
	Nickname string    `json:"nickname,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// NewServerMember creates a new server membership
func NewServerMember(userID, serverID string) *ServerMember {
	return &ServerMember{
		UserID:   userID,
		ServerID: serverID,
		JoinedAt: time.Now(),
	}
}
