package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Server represents a Concord server (similar to Discord's "guild")
type Server struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	IconHash         string    `json:"icon_hash,omitempty"`
	OwnerID          string    `json:"owner_id"`
	DefaultChannelID string    `json:"default_channel_id,omitempty"`
	ChannelIDs       []string  `json:"channel_ids,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewServer creates a new server
func NewServer(name, ownerID string) *Server {
	now := time.Now()
	return &Server{
		ID:        NewID(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddChannel lists a channel under the server; the first one becomes the default
func (s *Server) AddChannel(channelID string) {
	if s.HasChannel(channelID) {
		return
	}
	s.ChannelIDs = append(s.ChannelIDs, channelID)
	if s.DefaultChannelID == "" {
		s.DefaultChannelID = channelID
	}
	s.UpdatedAt = time.Now()
}

// HasChannel reports whether channelID is in the server's channel list
func (s *Server) HasChannel(channelID string) bool {
	for _, id := range s.ChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

// InviteType distinguishes server invites from group conversation invites
type InviteType string

const (
	InviteTypeServer InviteType = "server"
	InviteTypeGroup  InviteType = "group"
)

// Invite represents invite metadata fetched for an invite code
type Invite struct {
	Code        string     `json:"code"`
	Type        InviteType `json:"type"`
	ServerID    string     `json:"server_id,omitempty"`
	ServerName  string     `json:"server_name,omitempty"`
	ChannelID   string     `json:"channel_id,omitempty"`
	ChannelName string     `json:"channel_name,omitempty"`
	InviterID   string     `json:"inviter_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// GenerateInvite creates a new invite for the server
func (s *Server) GenerateInvite(inviterID, channelID string) *Invite {
	return &Invite{
		Code:       generateInviteCode(),
		Type:       InviteTypeServer,
		ServerID:   s.ID,
		ServerName: s.Name,
		ChannelID:  channelID,
		InviterID:  inviterID,
	}
}

// generateInviteCode creates a short, URL-safe code from a UUID
func generateInviteCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// IsExpired checks if the invite has expired
func (i *Invite) IsExpired() bool {
	if i.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*i.ExpiresAt)
}
