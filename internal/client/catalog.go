package client

import (
	"github.com/concord-chat/refnav/internal/cache"
	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/navigation"
	"github.com/concord-chat/refnav/internal/resolve"
)

// Catalog is a read-only entity source with a channel directory and
// membership answers
type Catalog interface {
	resolve.EntityStore
	resolve.ChannelDirectory
	navigation.Membership
}

var (
	_ Catalog = (*cache.Store)(nil)
	_ Catalog = (*layeredCatalog)(nil)
)

// layeredCatalog reads the live cache first and falls back to base, so a
// persisted catalog fills in what the gateway has not sent yet
type layeredCatalog struct {
	live *cache.Store
	base Catalog
}

func (c *layeredCatalog) GetUser(id string) (*models.User, bool) {
	if u, ok := c.live.GetUser(id); ok {
		return u, true
	}
	return c.base.GetUser(id)
}

func (c *layeredCatalog) GetChannel(id string) (*models.Channel, bool) {
	if ch, ok := c.live.GetChannel(id); ok {
		return ch, true
	}
	return c.base.GetChannel(id)
}

func (c *layeredCatalog) GetKnownChannel(id string) (*models.Channel, bool) {
	if ch, ok := c.live.GetKnownChannel(id); ok {
		return ch, true
	}
	return c.base.GetKnownChannel(id)
}

func (c *layeredCatalog) GetServer(id string) (*models.Server, bool) {
	if sv, ok := c.live.GetServer(id); ok {
		return sv, true
	}
	return c.base.GetServer(id)
}

func (c *layeredCatalog) GetEmoji(id string) (*models.Emoji, bool) {
	if e, ok := c.live.GetEmoji(id); ok {
		return e, true
	}
	return c.base.GetEmoji(id)
}

func (c *layeredCatalog) IsMember(serverID, userID string) bool {
	return c.live.IsMember(serverID, userID) || c.base.IsMember(serverID, userID)
}

func (c *layeredCatalog) IsParticipant(channelID, userID string) bool {
	return c.live.IsParticipant(channelID, userID) || c.base.IsParticipant(channelID, userID)
}
