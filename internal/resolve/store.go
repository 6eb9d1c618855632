// Package resolve turns scanned tokens into display references using the
// locally cached entity catalog.
package resolve

import "github.com/concord-chat/refnav/internal/models"

// EntityStore is the read-only catalog the resolver looks entities up in.
// A false second result means the entity is not cached locally.
type EntityStore interface {
	GetUser(id string) (*models.User, bool)
	GetChannel(id string) (*models.Channel, bool)
	GetServer(id string) (*models.Server, bool)
	GetEmoji(id string) (*models.Emoji, bool)
}

// ChannelDirectory is the secondary cache of every channel the session has
// seen referenced, including ones not loaded into the primary store.
type ChannelDirectory interface {
	GetKnownChannel(id string) (*models.Channel, bool)
}

// LookupChannel checks the primary store, then the directory when one is given
func LookupChannel(store EntityStore, dir ChannelDirectory, id string) (*models.Channel, bool) {
	if ch, ok := store.GetChannel(id); ok {
		return ch, true
	}
	if dir != nil {
		return dir.GetKnownChannel(id)
	}
	return nil, false
}
