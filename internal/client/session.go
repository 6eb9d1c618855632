// Package client holds the live session: the entity cache fed by the
// gateway, the render pipeline, navigation and target-message protection.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/concord-chat/refnav/internal/cache"
	"github.com/concord-chat/refnav/internal/composer"
	"github.com/concord-chat/refnav/internal/navigation"
	"github.com/concord-chat/refnav/internal/protection"
	"github.com/concord-chat/refnav/internal/render"
	"github.com/concord-chat/refnav/internal/resolve"
)

// DefaultPageSize is the number of messages loaded around a target
const DefaultPageSize = 50

// MessageNotFoundText is shown when a navigation target never loads
const MessageNotFoundText = "message not found, it may have been deleted"

// ErrNoUser is returned when a session is created without a user
var ErrNoUser = errors.New("session user is required")

// NoticeKind classifies session notices
type NoticeKind int

const (
	NoticeResolved NoticeKind = iota // Target message is on screen
	NoticeTimeout                    // Target message never loaded
)

func (k NoticeKind) String() string {
	if k == NoticeTimeout {
		return "timeout"
	}
	return "resolved"
}

// Notice is a user-facing event about a protected navigation
type Notice struct {
	Kind   NoticeKind
	Window protection.Window
	Text   string
	Err    error
}

// Config holds the session settings
type Config struct {
	UserID             string
	LinkHosts          []string
	Protection         protection.Config
	FetchTimeout       time.Duration
	HistoryLimit       int
	KnownChannels      int
	MessagesPerChannel int
	PageSize           int
	Shortcodes         map[string]string // alias name -> custom emoji id
}

// Session wires the engine components around a live entity cache
type Session struct {
	cfg    Config
	logger *slog.Logger

	store      *cache.Store
	catalog    Catalog
	fallback   Catalog
	pipeline   *render.Pipeline
	composer   *composer.Composer
	dispatcher *navigation.Dispatcher
	timer      *protection.Timer
	messages   *MessageCache
	history    *navigation.History

	fetcher   navigation.Fetcher
	loader    MessageLoader
	navigate  func(navigation.Decision)
	timerOpts []protection.Option

	notices chan Notice
	loads   sync.WaitGroup

	mu   sync.Mutex
	last navigation.Decision
}

// Option configures a Session
type Option func(*Session)

// WithStore uses an existing entity cache
func WithStore(s *cache.Store) Option {
	return func(sess *Session) { sess.store = s }
}

// WithFallback consults base for entities the live cache does not hold
func WithFallback(base Catalog) Option {
	return func(sess *Session) { sess.fallback = base }
}

// WithFetcher sets the remote lookup for uncached channels, servers and invites
func WithFetcher(f navigation.Fetcher) Option {
	return func(sess *Session) { sess.fetcher = f }
}

// WithMessageLoader sets how target messages are loaded
func WithMessageLoader(l MessageLoader) Option {
	return func(sess *Session) { sess.loader = l }
}

// WithNavigate observes every navigation decision
func WithNavigate(fn func(navigation.Decision)) Option {
	return func(sess *Session) { sess.navigate = fn }
}

// WithProtectionOptions passes options to the protection timer
func WithProtectionOptions(opts ...protection.Option) Option {
	return func(sess *Session) { sess.timerOpts = append(sess.timerOpts, opts...) }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(sess *Session) { sess.logger = l }
}

// NewSession creates a session for cfg.UserID
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if cfg.UserID == "" {
		return nil, ErrNoUser
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	s := &Session{
		cfg:     cfg,
		logger:  slog.Default(),
		notices: make(chan Notice, 16),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		known := cfg.KnownChannels
		if known <= 0 {
			known = cache.DefaultKnownChannels
		}
		store, err := cache.New(known)
		if err != nil {
			return nil, fmt.Errorf("failed to create entity cache: %w", err)
		}
		s.store = store
	}
	s.catalog = s.store
	if s.fallback != nil {
		s.catalog = &layeredCatalog{live: s.store, base: s.fallback}
	}

	s.messages = NewMessageCache(cfg.MessagesPerChannel)
	s.history = navigation.NewHistory(cfg.HistoryLimit)
	s.composer = composer.New()
	s.pipeline = render.NewPipeline(resolve.New(s.catalog,
		resolve.WithShortcodes(resolve.NewShortcodeTable(cfg.Shortcodes))))

	timerOpts := append([]protection.Option{
		protection.WithLogger(s.logger),
		protection.WithHooks(protection.Hooks{
			OnResolved: func(w protection.Window) {
				s.notify(Notice{Kind: NoticeResolved, Window: w})
			},
			OnTimeout: func(w protection.Window, err error) {
				s.notify(Notice{Kind: NoticeTimeout, Window: w, Text: MessageNotFoundText, Err: err})
			},
		}),
	}, s.timerOpts...)
	s.timer = protection.New(cfg.Protection, s.messages, timerOpts...)

	dopts := []navigation.Option{
		navigation.WithMessageWindow(s.messages),
		navigation.WithStack(s.history),
		navigation.WithProtector(s.timer),
		navigation.WithNavigate(s.onNavigate),
		navigation.WithLinkHosts(cfg.LinkHosts...),
		navigation.WithLogger(s.logger),
	}
	if s.fetcher != nil {
		dopts = append(dopts, navigation.WithFetcher(&cachingFetcher{next: s.fetcher, store: s.store}))
	}
	if cfg.FetchTimeout > 0 {
		dopts = append(dopts, navigation.WithFetchTimeout(cfg.FetchTimeout))
	}
	s.dispatcher = navigation.New(cfg.UserID, s.catalog, s.catalog, dopts...)

	return s, nil
}

// UserID returns the session user
func (s *Session) UserID() string { return s.cfg.UserID }

// Store returns the live entity cache
func (s *Session) Store() *cache.Store { return s.store }

// Catalog returns what the session resolves against: the live cache,
// layered over the fallback when one is set
func (s *Session) Catalog() Catalog { return s.catalog }

// Pipeline returns the render pipeline
func (s *Session) Pipeline() *render.Pipeline { return s.pipeline }

// Composer returns the composer's mention records
func (s *Session) Composer() *composer.Composer { return s.composer }

// Dispatcher returns the navigation dispatcher
func (s *Session) Dispatcher() *navigation.Dispatcher { return s.dispatcher }

// Timer returns the protection timer
func (s *Session) Timer() *protection.Timer { return s.timer }

// Messages returns the message cache
func (s *Session) Messages() *MessageCache { return s.messages }

// History returns the navigation history
func (s *Session) History() *navigation.History { return s.history }

// Notices delivers resolution and timeout notices. Notices are dropped
// when nobody drains the channel.
func (s *Session) Notices() <-chan Notice { return s.notices }

// Render renders wire text against the live cache
func (s *Session) Render(text string) render.Display {
	return s.pipeline.Render(text)
}

// Mention records a user mention picked in the composer and returns the
// text to insert
func (s *Session) Mention(userID string) (string, bool) {
	u, ok := s.catalog.GetUser(userID)
	if !ok {
		return "", false
	}
	text := "@" + u.GetDisplayName()
	s.composer.Record(u.ID, text)
	return text, true
}

// MentionChannel records a channel mention picked in the composer
func (s *Session) MentionChannel(channelID string) (string, bool) {
	ch, ok := resolve.LookupChannel(s.catalog, s.catalog, channelID)
	if !ok {
		return "", false
	}
	text := "#" + resolve.ChannelDisplayName(ch)
	s.composer.RecordChannel(ch.ID, text)
	return text, true
}

// Compose converts composer text to wire form and clears the records
func (s *Session) Compose(text string) string {
	out := s.composer.Convert(text)
	s.composer.Reset()
	return out
}

// Activate dispatches a span of a rendered message
func (s *Session) Activate(ctx context.Context, span render.Span) navigation.Decision {
	return s.dispatcher.Activate(ctx, span)
}

// OpenURL dispatches a deep link or action identifier
func (s *Session) OpenURL(ctx context.Context, raw string) (navigation.Decision, error) {
	return s.dispatcher.OpenURL(ctx, raw)
}

// OpenChannel navigates to a channel, optionally at a message
func (s *Session) OpenChannel(ctx context.Context, serverID, channelID, messageID string) navigation.Decision {
	return s.dispatcher.OpenChannel(ctx, serverID, channelID, messageID)
}

// LastDecision returns the most recent navigation
func (s *Session) LastDecision() navigation.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// UserScrolled releases target-message protection
func (s *Session) UserScrolled() {
	s.timer.UserScrolled()
}

// Suppressing reports whether the message list must keep its position
func (s *Session) Suppressing() bool {
	return s.timer.Suppressing()
}

// Close cancels protection and waits for pending loads
func (s *Session) Close() {
	s.timer.Cancel()
	s.loads.Wait()
}

// Wait blocks until pending target loads finish
func (s *Session) Wait() {
	s.loads.Wait()
}

func (s *Session) onNavigate(dec navigation.Decision) {
	s.mu.Lock()
	s.last = dec
	s.mu.Unlock()

	if dec.Kind == navigation.DecisionChannel && dec.Window != nil {
		// A same-channel jump may already have the target loaded
		if !s.timer.MessagesLoaded() && s.loader != nil && dec.LoadContext != nil {
			s.loads.Add(1)
			go s.loadTarget(dec)
		}
	}

	if s.navigate != nil {
		s.navigate(dec)
	}
}

// loadTarget fetches the page around the target on the window's context.
// A superseded or expired window drops the result.
func (s *Session) loadTarget(dec navigation.Decision) {
	defer s.loads.Done()

	ctx := dec.LoadContext
	t := dec.Target
	page, err := s.loader.FetchMessagesAround(ctx, t.ChannelID, t.MessageID, s.cfg.PageSize)
	if ctx.Err() != nil {
		s.logger.Debug("dropping stale message load", "window", dec.Window.ID)
		return
	}
	if err != nil {
		// the timer reports the missing message once it expires
		s.logger.Warn("failed to load target message", "channel", t.ChannelID, "message", t.MessageID, "error", err)
		return
	}
	// A newer navigation cancels this context before it clears the list,
	// so the check must share the cache lock with the merge.
	if !s.messages.LoadActive(t.ChannelID, page, func() bool { return ctx.Err() == nil }) {
		s.logger.Debug("dropping superseded message load", "window", dec.Window.ID)
		return
	}
	s.timer.MessagesLoaded()
}

func (s *Session) notify(n Notice) {
	select {
	case s.notices <- n:
	default:
		s.logger.Warn("dropping notice", "kind", n.Kind, "window", n.Window.ID)
	}
}
