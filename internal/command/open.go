package command

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/concord-chat/refnav/internal/client"
	"github.com/concord-chat/refnav/internal/navigation"
)

type noticeOutput struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

type openOutput struct {
	Kind     string              `json:"kind"`
	Decision navigation.Decision `json:"decision"`
	Notice   *noticeOutput       `json:"notice,omitempty"`
	Message  *renderedMessage    `json:"message,omitempty"`
}

func NewOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <link>",
		Short: "Decide where a deep link leads",
		Long: `Dispatch a deep link as the session user. When the link targets a message,
wait until it is loaded or the protection window expires.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			from, _ := cmd.Flags().GetString("from")
			wait, _ := cmd.Flags().GetBool("wait")

			sess, err := ctx.NewSession()
			if err != nil {
				return err
			}
			defer sess.Close()
			if from != "" {
				sess.Messages().Clear(from)
				sess.Dispatcher().SetCurrentChannel(from)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			dec, err := sess.OpenURL(runCtx, args[0])
			if err != nil {
				return err
			}
			out := openOutput{Kind: dec.Kind.String(), Decision: dec}

			if wait && dec.Kind == navigation.DecisionChannel && dec.Window != nil {
				select {
				case n := <-sess.Notices():
					out.Notice = &noticeOutput{Kind: n.Kind.String(), Text: n.Text}
					if n.Kind == client.NoticeResolved {
						out.Message = targetMessage(sess, dec.Target)
					}
				case <-runCtx.Done():
				}
			}

			if ctx.JSONMode {
				return writeJSON(cmd, out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, describeDecision(dec))
			if out.Message != nil {
				fmt.Fprintf(w, "%s: %s%s\n", out.Message.header(), ctx.Painter.Paint(out.Message.Display), out.Message.suffix())
			}
			if out.Notice != nil && out.Notice.Kind == client.NoticeTimeout.String() {
				fmt.Fprintln(w, ctx.Painter.Error(out.Notice.Text))
			}
			return nil
		},
	}

	cmd.Flags().String("from", "", "channel the session is currently showing")
	cmd.Flags().Bool("wait", true, "wait for the target message")
	return cmd
}

func targetMessage(sess *client.Session, t navigation.Target) *renderedMessage {
	for _, m := range sess.Messages().Messages(t.ChannelID) {
		if m.ID != t.MessageID {
			continue
		}
		author := m.AuthorID
		if u, ok := sess.Catalog().GetUser(m.AuthorID); ok {
			author = u.GetDisplayName()
		}
		r := newMessageRendered(sess.Render(m.Content), m, author)
		return &r
	}
	return nil
}

func describeDecision(dec navigation.Decision) string {
	switch dec.Kind {
	case navigation.DecisionChannel:
		s := "channel " + dec.Target.ChannelID
		if dec.Target.ServerID != "" {
			s = "channel " + dec.Target.ServerID + "/" + dec.Target.ChannelID
		}
		if dec.Target.MessageID != "" {
			s += " at message " + dec.Target.MessageID
		}
		return s
	case navigation.DecisionDiscover:
		if dec.Reason != "" {
			return "discover (" + dec.Reason + ")"
		}
		return "discover"
	case navigation.DecisionUserProfile:
		return "user_profile " + dec.UserID
	case navigation.DecisionInvite:
		if dec.Invite != nil && dec.Invite.ServerName != "" {
			return "invite " + dec.InviteCode + " (" + dec.Invite.ServerName + ")"
		}
		return "invite " + dec.InviteCode
	default:
		return "none"
	}
}
