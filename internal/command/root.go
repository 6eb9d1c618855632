// Package command implements the refnav CLI.
package command

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "refnav"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "refnav - render, compose and navigate Concord message references",
		Long:          "refnav resolves mentions, channel links, emoji and deep links in Concord messages against a local catalog.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "config file (TOML, or YAML for .yml/.yaml)")
	cmd.PersistentFlags().String("db", "", "SQLite catalog path (overrides database.path)")
	cmd.PersistentFlags().String("as", "", "act as this user id (overrides session.user_id)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "disable palette colors")

	cmd.AddCommand(
		NewImportCmd(),
		NewRenderCmd(),
		NewConvertCmd(),
		NewOpenCmd(),
		NewServeCmd(),
		NewWatchCmd(),
		NewBrowseCmd(),
		NewPalettesCmd(),
	)

	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}
