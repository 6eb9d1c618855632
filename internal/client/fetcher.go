package client

import (
	"context"

	"github.com/concord-chat/refnav/internal/api"
	"github.com/concord-chat/refnav/internal/cache"
	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/navigation"
)

var (
	_ navigation.Fetcher = (*api.Client)(nil)
	_ MessageLoader      = (*api.Client)(nil)
	_ navigation.Fetcher = (*cachingFetcher)(nil)
)

// MessageLoader loads the messages surrounding a navigation target
type MessageLoader interface {
	FetchMessagesAround(ctx context.Context, channelID, messageID string, limit int) ([]*models.Message, error)
}

// cachingFetcher records fetched entities so later renders resolve them.
// Fetched channels only enter the directory: the primary cache holds
// channels the session was told about by the gateway.
type cachingFetcher struct {
	next  navigation.Fetcher
	store *cache.Store
}

func (f *cachingFetcher) FetchChannel(ctx context.Context, id string) (*models.Channel, error) {
	ch, err := f.next.FetchChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	f.store.RememberChannel(ch)
	return ch, nil
}

func (f *cachingFetcher) FetchServer(ctx context.Context, id string) (*models.Server, error) {
	sv, err := f.next.FetchServer(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := f.store.GetServer(sv.ID); !ok {
		f.store.PutServer(sv)
	}
	return sv, nil
}

func (f *cachingFetcher) FetchInvite(ctx context.Context, code string) (*models.Invite, error) {
	return f.next.FetchInvite(ctx, code)
}
