package command

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/concord-chat/refnav/internal/composer"
	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/resolve"
)

func NewConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [text...]",
		Short: "Convert composed display text back to wire format",
		Long: `Convert composed text back to wire format. Each --mention and --channel
records an inserted reference as id=display; a bare id takes its display
text from the catalog. A mention given as @name is looked up by username
or display name.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			mentions, _ := cmd.Flags().GetStringArray("mention")
			channels, _ := cmd.Flags().GetStringArray("channel")

			c := composer.New()
			for _, m := range mentions {
				id, display := splitRecord(m)
				if name, ok := strings.CutPrefix(id, "@"); ok {
					u, err := findUser(ctx, name)
					if err != nil {
						return err
					}
					id = u.ID
				}
				if display == "" {
					u, ok := ctx.Store.GetUser(id)
					if !ok {
						return fmt.Errorf("user %s is not in the catalog", id)
					}
					display = "@" + u.GetDisplayName()
				}
				c.Record(id, display)
			}
			for _, ch := range channels {
				id, display := splitRecord(ch)
				if display == "" {
					channel, ok := resolve.LookupChannel(ctx.Store, ctx.Store, id)
					if !ok {
						return fmt.Errorf("channel %s is not in the catalog", id)
					}
					display = "#" + resolve.ChannelDisplayName(channel)
				}
				c.RecordChannel(id, display)
			}

			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = strings.TrimRight(string(data), "\n")
			}

			wire := c.Convert(text)
			if ctx.JSONMode {
				return writeJSON(cmd, map[string]interface{}{"text": wire, "records": c.Records()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), wire)
			return nil
		},
	}

	cmd.Flags().StringArray("mention", nil, "inserted user mention as id=display, id or @name")
	cmd.Flags().StringArray("channel", nil, "inserted channel mention as id=display or id")
	return cmd
}

// findUser resolves a username or display name. An exact username wins;
// otherwise the prefix must match exactly one user.
func findUser(ctx *CommandContext, name string) (*models.User, error) {
	users, err := ctx.DB.SearchUsers(name, 10)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Username, name) {
			return u, nil
		}
	}
	switch len(users) {
	case 0:
		return nil, fmt.Errorf("no user matches @%s", name)
	case 1:
		return users[0], nil
	default:
		return nil, fmt.Errorf("@%s matches %d users", name, len(users))
	}
}

func splitRecord(s string) (id, display string) {
	id, display, _ = strings.Cut(s, "=")
	return strings.TrimSpace(id), display
}
