package command

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/protocol"
)

// Snapshot is the import file format: a READY payload plus stored
// messages and invites. KnownServers are servers the user has seen but not
// joined; they are stored without membership.
type Snapshot struct {
	protocol.ReadyPayload
	KnownServers []*models.Server  `json:"known_servers,omitempty"`
	Messages     []*models.Message `json:"messages,omitempty"`
	Invites      []*models.Invite  `json:"invites,omitempty"`
}

func NewImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a catalog snapshot (JSON) into the database",
		Long:  "Load a catalog snapshot into the database. The file holds a READY payload with optional messages and invites; use - for stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			var data []byte
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read snapshot: %w", err)
			}

			var snap Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return fmt.Errorf("failed to parse snapshot: %w", err)
			}
			if err := ctx.DB.ImportReady(&snap.ReadyPayload); err != nil {
				return err
			}
			for _, sv := range snap.KnownServers {
				if err := ctx.DB.UpsertServer(sv); err != nil {
					return err
				}
			}
			for _, inv := range snap.Invites {
				if err := ctx.DB.UpsertInvite(inv); err != nil {
					return err
				}
			}
			for _, msg := range snap.Messages {
				if err := ctx.DB.CreateMessage(msg); err != nil {
					return err
				}
			}

			counts := map[string]int{
				"users":    len(snap.Users),
				"servers":  len(snap.Servers) + len(snap.KnownServers),
				"channels": len(snap.Channels),
				"emojis":   len(snap.Emojis),
				"invites":  len(snap.Invites),
				"messages": len(snap.Messages),
			}
			if snap.User != nil {
				counts["users"]++
			}
			if ctx.JSONMode {
				return writeJSON(cmd, counts)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d users, %d servers, %d channels, %d emojis, %d invites, %d messages\n",
				counts["users"], counts["servers"], counts["channels"], counts["emojis"], counts["invites"], counts["messages"])
			return nil
		},
	}
	return cmd
}
