package command

import (
	"context"

	"github.com/concord-chat/refnav/internal/client"
	"github.com/concord-chat/refnav/internal/models"
)

// messageSource serves the stored page when the catalog has the target and
// asks the API otherwise
type messageSource struct {
	local  client.MessageLoader
	remote client.MessageLoader
}

func (m *messageSource) FetchMessagesAround(ctx context.Context, channelID, messageID string, limit int) ([]*models.Message, error) {
	page, err := m.local.FetchMessagesAround(ctx, channelID, messageID, limit)
	if err == nil && len(page) > 0 {
		return page, nil
	}
	return m.remote.FetchMessagesAround(ctx, channelID, messageID, limit)
}
