package command

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/concord-chat/refnav/internal/database"
	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/render"
)

type renderedMessage struct {
	ID        string         `json:"id,omitempty"`
	Author    string         `json:"author,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
	Display   render.Display `json:"display"`
	AltText   string         `json:"alt_text"`
	Actions   []string       `json:"actions,omitempty"`
	ReplyTo   string         `json:"reply_to,omitempty"`
	Edited    bool           `json:"edited,omitempty"`
}

func NewRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render [text...]",
		Short: "Render message text against the catalog",
		Long:  "Render wire-format message text (reading stdin when no text is given), or the latest stored messages of a channel with --channel.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			channelID, _ := cmd.Flags().GetString("channel")
			limit, _ := cmd.Flags().GetInt("limit")
			pipeline := ctx.Pipeline()

			var out []renderedMessage
			if channelID != "" {
				if _, err := ctx.DB.GetChannelByID(channelID); err != nil {
					if errors.Is(err, database.ErrNotFound) {
						return fmt.Errorf("channel %s is not in the catalog", channelID)
					}
					return err
				}
				messages, err := ctx.DB.GetChannelMessages(channelID, limit)
				if err != nil {
					return err
				}
				for _, m := range messages {
					out = append(out, newMessageRendered(pipeline.Render(m.Content), m, authorName(ctx.Store, m.AuthorID)))
				}
			} else {
				text := strings.Join(args, " ")
				if len(args) == 0 {
					data, err := io.ReadAll(cmd.InOrStdin())
					if err != nil {
						return fmt.Errorf("failed to read stdin: %w", err)
					}
					text = strings.TrimRight(string(data), "\n")
				}
				out = append(out, newRendered(pipeline.Render(text)))
			}

			if ctx.JSONMode {
				return writeJSON(cmd, out)
			}
			w := cmd.OutOrStdout()
			for _, r := range out {
				if r.ID != "" {
					fmt.Fprintf(w, "%s: %s%s\n", r.header(), ctx.Painter.Paint(r.Display), r.suffix())
				} else {
					fmt.Fprintln(w, ctx.Painter.Paint(r.Display))
				}
			}
			return nil
		},
	}

	cmd.Flags().String("channel", "", "render the latest stored messages of this channel")
	cmd.Flags().Int("limit", 20, "number of messages to render with --channel")
	return cmd
}

func newRendered(d render.Display) renderedMessage {
	r := renderedMessage{Display: d, AltText: d.WithAltText()}
	for _, span := range d.ActionSpans() {
		r.Actions = append(r.Actions, span.ActionURL())
	}
	return r
}

// newMessageRendered renders a stored or live message with its metadata
func newMessageRendered(d render.Display, m *models.Message, author string) renderedMessage {
	r := newRendered(d)
	r.ID = m.ID
	r.Author = author
	r.CreatedAt = m.CreatedAt.Format("2006-01-02 15:04")
	r.Edited = m.IsEdited()
	if m.IsReply() {
		r.ReplyTo = m.ReplyToID
	}
	return r
}

func (r renderedMessage) header() string {
	h := fmt.Sprintf("[%s] %s", r.CreatedAt, r.Author)
	if r.ReplyTo != "" {
		h += " (reply to " + r.ReplyTo + ")"
	}
	return h
}

func (r renderedMessage) suffix() string {
	if r.Edited {
		return " (edited)"
	}
	return ""
}

func authorName(store *database.Store, userID string) string {
	if u, ok := store.GetUser(userID); ok {
		return u.GetDisplayName()
	}
	return userID
}
