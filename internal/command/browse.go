package command

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/concord-chat/refnav/internal/browse"
	"github.com/concord-chat/refnav/internal/client"
	"github.com/concord-chat/refnav/internal/gateway"
	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/navigation"
	"github.com/concord-chat/refnav/internal/protocol"
)

func NewBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse [link]",
		Short: "Browse a channel and open its references",
		Long: `Show a channel as a scrollable message list. Tab selects a mention or
channel reference and enter opens it. Given a deep link the list starts at
the linked message and holds it in view until you scroll. With
api.server_addr set, new messages arrive live from the gateway.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			channelID, _ := cmd.Flags().GetString("channel")
			limit, _ := cmd.Flags().GetInt("limit")
			if len(args) == 0 && channelID == "" {
				return errors.New("a link or --channel is required")
			}

			sess, err := ctx.NewSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if err := openStart(runCtx, sess, args, channelID); err != nil {
				return err
			}

			model := browse.New(runCtx, sess, ctx.Painter, browse.WithBacklog(func(channelID string) ([]*models.Message, error) {
				return ctx.DB.GetChannelMessages(channelID, limit)
			}))
			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

			if addr := ctx.Config.API.ServerAddr; addr != "" {
				mirror := &watcher{sess: sess, db: ctx.DB, cmd: cmd}
				handle := func(msg *protocol.Message) {
					sess.HandleEvent(msg)
					if err := mirror.persist(msg); err != nil {
						ctx.Logger.Warn("failed to update catalog", "error", err)
					}
					program.Send(browse.EventMsg{Event: msg})
				}
				feed := gateway.New(addr, ctx.Config.Session.Token, handle,
					gateway.WithLogger(ctx.Logger),
					gateway.WithBackoff(gateway.NewBackoff(ctx.Config.Gateway)))
				go func() {
					if err := feed.Run(runCtx); err != nil {
						ctx.Logger.Warn("gateway feed stopped", "error", err)
					}
				}()
			}

			_, err = program.Run()
			return err
		},
	}

	cmd.Flags().String("channel", "", "channel to open when no link is given")
	cmd.Flags().Int("limit", 100, "number of stored messages to load per channel")
	return cmd
}

// openStart navigates to where browsing begins. Anything but a channel
// ends the command with the decision.
func openStart(ctx context.Context, sess *client.Session, args []string, channelID string) error {
	var dec navigation.Decision
	if len(args) == 1 {
		var err error
		if dec, err = sess.OpenURL(ctx, args[0]); err != nil {
			return err
		}
	} else {
		dec = sess.OpenChannel(ctx, "", channelID, "")
	}
	if dec.Kind != navigation.DecisionChannel {
		return fmt.Errorf("cannot browse: %s", describeDecision(dec))
	}
	return nil
}
