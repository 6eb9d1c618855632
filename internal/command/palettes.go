package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/concord-chat/refnav/internal/highlight"
)

func NewPalettesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "palettes",
		Short: "List the built-in color palettes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonMode, _ := cmd.Flags().GetBool("json")
			names := highlight.ListPalettes()
			if jsonMode {
				return writeJSON(cmd, names)
			}
			for _, name := range names {
				p, err := highlight.GetPalette(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", name, p.Meta.Variant)
			}
			return nil
		},
	}
}
