package command

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/concord-chat/refnav/internal/client"
	"github.com/concord-chat/refnav/internal/database"
	"github.com/concord-chat/refnav/internal/gateway"
	"github.com/concord-chat/refnav/internal/highlight"
	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/protocol"
	"github.com/concord-chat/refnav/internal/resolve"
)

func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the gateway and render live messages",
		Long: `Connect to the gateway as the session user, keep the catalog current from
READY and entity events, and print every new message rendered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			cfg := ctx.Config
			if cfg.API.ServerAddr == "" {
				return fmt.Errorf("api.server_addr is required to watch the gateway")
			}
			channelID, _ := cmd.Flags().GetString("channel")

			sess, err := ctx.NewSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			w := &watcher{
				out:     cmd.OutOrStdout(),
				sess:    sess,
				db:      ctx.DB,
				painter: ctx.Painter,
				channel: channelID,
				json:    ctx.JSONMode,
				cmd:     cmd,
			}

			feed := gateway.New(cfg.API.ServerAddr, cfg.Session.Token, w.handle,
				gateway.WithLogger(ctx.Logger),
				gateway.WithBackoff(gateway.NewBackoff(cfg.Gateway)))

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return feed.Run(runCtx)
		},
	}

	cmd.Flags().String("channel", "", "only print messages of this channel")
	return cmd
}

// watcher applies gateway events to the session, mirrors catalog changes
// into the database and prints new messages
type watcher struct {
	out     io.Writer
	sess    *client.Session
	db      *database.DB
	painter *highlight.Painter
	channel string
	json    bool
	cmd     *cobra.Command
}

func (w *watcher) handle(msg *protocol.Message) {
	w.sess.HandleEvent(msg)
	if err := w.persist(msg); err != nil {
		w.cmd.PrintErrln("failed to update catalog:", err)
	}

	if msg.Type != protocol.EventMessageCreate {
		return
	}
	var p protocol.MessageCreatePayload
	if err := msg.Decode(&p); err != nil || p.Message == nil {
		return
	}
	if w.channel != "" && p.ChannelID != w.channel {
		return
	}

	author := p.AuthorID
	if u, ok := w.sess.Catalog().GetUser(p.AuthorID); ok {
		author = u.GetDisplayName()
	}
	r := newMessageRendered(w.sess.Render(p.Content), p.Message, author)

	if w.json {
		_ = writeJSON(w.cmd, r)
		return
	}
	fmt.Fprintf(w.out, "[%s] #%s %s: %s%s\n", r.CreatedAt, channelLabel(w.sess, p.ChannelID), r.Author, w.painter.Paint(r.Display), r.suffix())
}

// persist keeps the catalog in step with entity events. Messages are not
// stored.
func (w *watcher) persist(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.EventReady:
		var p protocol.ReadyPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		return w.db.ImportReady(&p)
	case protocol.EventServerCreate, protocol.EventServerUpdate:
		var sv models.Server
		if err := msg.Decode(&sv); err != nil {
			return err
		}
		if err := w.db.UpsertServer(&sv); err != nil {
			return err
		}
		if msg.Type == protocol.EventServerCreate {
			return w.db.AddServerMember(models.NewServerMember(w.sess.UserID(), sv.ID))
		}
	case protocol.EventChannelCreate, protocol.EventChannelUpdate:
		var ch models.Channel
		if err := msg.Decode(&ch); err != nil {
			return err
		}
		return w.db.UpsertChannel(&ch)
	case protocol.EventChannelDelete:
		var p protocol.ChannelDeletePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		return w.db.DeleteChannel(p.ID)
	case protocol.EventUserUpdate:
		var u models.User
		if err := msg.Decode(&u); err != nil {
			return err
		}
		return w.db.UpsertUser(&u)
	case protocol.EventEmojiCreate:
		var e models.Emoji
		if err := msg.Decode(&e); err != nil {
			return err
		}
		return w.db.UpsertEmoji(&e)
	case protocol.EventServerMemberAdd:
		var p protocol.ServerMemberAddPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		if p.User == nil {
			return nil
		}
		if err := w.db.UpsertUser(p.User); err != nil {
			return err
		}
		return w.db.AddServerMember(models.NewServerMember(p.User.ID, p.ServerID))
	case protocol.EventServerMemberRemove:
		var p protocol.ServerMemberRemovePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		return w.db.RemoveServerMember(p.ServerID, p.UserID)
	}
	return nil
}

func channelLabel(sess *client.Session, channelID string) string {
	if ch, ok := resolve.LookupChannel(sess.Catalog(), sess.Catalog(), channelID); ok {
		return resolve.ChannelDisplayName(ch)
	}
	return channelID
}
