package command

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/concord-chat/refnav/internal/api"
	"github.com/concord-chat/refnav/internal/client"
	"github.com/concord-chat/refnav/internal/config"
	"github.com/concord-chat/refnav/internal/database"
	"github.com/concord-chat/refnav/internal/highlight"
	"github.com/concord-chat/refnav/internal/navigation"
	"github.com/concord-chat/refnav/internal/protection"
	"github.com/concord-chat/refnav/internal/render"
	"github.com/concord-chat/refnav/internal/resolve"
)

var (
	_ navigation.Fetcher   = (*database.Store)(nil)
	_ client.MessageLoader = (*database.Store)(nil)
	_ client.Catalog       = (*database.Store)(nil)
)

// CommandContext provides shared command resources.
type CommandContext struct {
	Config   *config.Config
	DB       *database.DB
	Store    *database.Store
	Logger   *slog.Logger
	Painter  *highlight.Painter
	JSONMode bool
}

// GetContext loads configuration and opens the catalog for a command.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	configPath, _ := cmd.Flags().GetString("config")
	dbPath, _ := cmd.Flags().GetString("db")
	userID, _ := cmd.Flags().GetString("as")
	jsonMode, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")

	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if userID != "" {
		cfg.Session.UserID = userID
	}
	if noColor {
		cfg.Theme.Color = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := cfg.NewLogger()

	painter := highlight.NewPainter(nil, cfg.Session.UserID)
	if cfg.Theme.Color {
		palette, err := highlight.GetPalette(cfg.Theme.Palette)
		if err != nil {
			return nil, err
		}
		painter = highlight.NewPainter(palette.BuildStyles(), cfg.Session.UserID)
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		Config:   cfg,
		DB:       db,
		Store:    database.NewStore(db, logger),
		Logger:   logger,
		Painter:  painter,
		JSONMode: jsonMode,
	}, nil
}

// Close releases the catalog
func (c *CommandContext) Close() error {
	return c.DB.Close()
}

// APIClient returns the REST client, or nil when no server is configured
func (c *CommandContext) APIClient() (*api.Client, error) {
	if c.Config.API.ServerAddr == "" {
		return nil, nil
	}
	return api.New(c.Config.API.ServerAddr, c.Config.Session.Token, c.Config.APITimeout())
}

// NewSession builds a session that resolves against the live cache first
// and the catalog second. Without an API the catalog answers fetches too.
func (c *CommandContext) NewSession(opts ...client.Option) (*client.Session, error) {
	cfg := c.Config
	if cfg.Session.UserID == "" {
		return nil, fmt.Errorf("a user id is required: set session.user_id or pass --as")
	}

	remote, err := c.APIClient()
	if err != nil {
		return nil, err
	}
	var fetcher navigation.Fetcher = c.Store
	var loader client.MessageLoader = c.Store
	if remote != nil {
		fetcher = remote
		loader = &messageSource{local: c.Store, remote: remote}
	}

	base := []client.Option{
		client.WithFallback(c.Store),
		client.WithFetcher(fetcher),
		client.WithMessageLoader(loader),
		client.WithLogger(c.Logger),
	}
	return client.NewSession(client.Config{
		UserID:    cfg.Session.UserID,
		LinkHosts: cfg.Links.Hosts,
		Protection: protection.Config{
			ReplyTimeout:        cfg.ReplyTimeout(),
			CrossChannelTimeout: cfg.CrossChannelTimeout(),
		},
		FetchTimeout:       cfg.FetchTimeout(),
		HistoryLimit:       cfg.Navigation.HistoryLimit,
		KnownChannels:      cfg.Cache.KnownChannels,
		MessagesPerChannel: cfg.Cache.MessagesPerChannel,
		Shortcodes:         cfg.Shortcodes,
	}, append(base, opts...)...)
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Pipeline returns a render pipeline over the catalog
func (c *CommandContext) Pipeline() *render.Pipeline {
	return render.NewPipeline(resolve.New(c.Store,
		resolve.WithChannelDirectory(c.Store),
		resolve.WithShortcodes(resolve.NewShortcodeTable(c.Config.Shortcodes))))
}
