// Package navigation decides where activating a reference or opening a deep
// link leads.
package navigation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/protection"
	"github.com/concord-chat/refnav/internal/render"
	"github.com/concord-chat/refnav/internal/resolve"
)

// DefaultFetchTimeout bounds a single remote lookup
const DefaultFetchTimeout = 5 * time.Second

// DecisionKind is the kind of destination chosen
type DecisionKind int

const (
	DecisionNone        DecisionKind = iota // Nothing to do
	DecisionChannel                         // Open a channel, optionally at a message
	DecisionDiscover                        // Fall back to the Discover view
	DecisionUserProfile                     // Show a user profile
	DecisionInvite                          // Present the invite acceptance flow
)

// String returns the decision kind name
func (k DecisionKind) String() string {
	switch k {
	case DecisionChannel:
		return "channel"
	case DecisionDiscover:
		return "discover"
	case DecisionUserProfile:
		return "user_profile"
	case DecisionInvite:
		return "invite"
	default:
		return "none"
	}
}

// Reasons recorded on Discover decisions. They are for logs only; the user
// sees the same Discover view whatever the reason.
const (
	ReasonChannelNotFound  = "channel_not_found"
	ReasonServerNotFound   = "server_not_found"
	ReasonServerMismatch   = "server_mismatch"
	ReasonChannelNotListed = "channel_not_listed"
	ReasonNotMember        = "not_member"
	ReasonNotParticipant   = "not_participant"
	ReasonUserNotFound     = "user_not_found"
	ReasonInviteExpired    = "invite_expired"
)

// Target is where a channel navigation goes. When ServerID is set the
// channel was checked to be listed under that server.
type Target struct {
	ServerID  string `json:"server_id,omitempty"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id,omitempty"`
}

// Decision is the outcome of one activation
type Decision struct {
	Kind       DecisionKind       `json:"kind"`
	Target     Target             `json:"target"`
	UserID     string             `json:"user_id,omitempty"`
	InviteCode string             `json:"invite_code,omitempty"`
	Invite     *models.Invite     `json:"invite,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Window     *protection.Window `json:"window,omitempty"`

	// LoadContext is the protection window's context. Loading the target
	// message should run on it so superseded loads are abandoned.
	LoadContext context.Context `json:"-"`
}

// Dispatcher maps activations to navigation decisions. Lookups read the
// injected store and never mutate it. The decision is handed to the
// navigate callback and returned.
type Dispatcher struct {
	userID     string
	store      resolve.EntityStore
	dir        resolve.ChannelDirectory
	membership Membership
	window     MessageWindow
	stack      Stack
	fetcher    Fetcher
	protector  Protector
	navigate   func(Decision)

	fetchTimeout time.Duration
	hosts        []string
	logger       *slog.Logger

	mu      sync.Mutex
	current string
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithChannelDirectory sets the secondary channel cache
func WithChannelDirectory(dir resolve.ChannelDirectory) Option {
	return func(d *Dispatcher) { d.dir = dir }
}

// WithMessageWindow sets the message list collaborator
func WithMessageWindow(w MessageWindow) Option {
	return func(d *Dispatcher) { d.window = w }
}

// WithStack sets the navigation history collaborator
func WithStack(s Stack) Option {
	return func(d *Dispatcher) { d.stack = s }
}

// WithFetcher sets the remote lookup used for uncached entities
func WithFetcher(f Fetcher) Option {
	return func(d *Dispatcher) { d.fetcher = f }
}

// WithProtector sets the target-message protection timer
func WithProtector(p Protector) Option {
	return func(d *Dispatcher) { d.protector = p }
}

// WithNavigate sets the continuation that performs a decision
func WithNavigate(fn func(Decision)) Option {
	return func(d *Dispatcher) { d.navigate = fn }
}

// WithFetchTimeout bounds each remote lookup
func WithFetchTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.fetchTimeout = timeout }
}

// WithLinkHosts restricts web deep links to the given hosts
func WithLinkHosts(hosts ...string) Option {
	return func(d *Dispatcher) { d.hosts = hosts }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a dispatcher acting for userID
func New(userID string, store resolve.EntityStore, membership Membership, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		userID:       userID,
		store:        store,
		membership:   membership,
		fetchTimeout: DefaultFetchTimeout,
		logger:       slog.Default(),
	}
	if dir, ok := store.(resolve.ChannelDirectory); ok {
		d.dir = dir
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CurrentChannel returns the channel the last decision navigated to
func (d *Dispatcher) CurrentChannel() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// SetCurrentChannel tells the dispatcher which channel is on screen
func (d *Dispatcher) SetCurrentChannel(channelID string) {
	d.mu.Lock()
	d.current = channelID
	d.mu.Unlock()
}

// Activate dispatches a rendered span
func (d *Dispatcher) Activate(ctx context.Context, span render.Span) Decision {
	switch span.Action {
	case render.ActionOpenUser:
		return d.OpenUser(ctx, span.TargetID)
	case render.ActionOpenChannel:
		return d.OpenChannel(ctx, "", span.TargetID, "")
	default:
		return Decision{}
	}
}

// OpenURL dispatches a deep link or a synthetic action identifier.
// Anything else yields ErrUnsupportedLink and no navigation.
func (d *Dispatcher) OpenURL(ctx context.Context, raw string) (Decision, error) {
	if span, ok := render.ParseAction(raw); ok {
		return d.Activate(ctx, span), nil
	}
	link, err := ParseLink(raw, d.hosts...)
	if err != nil {
		return Decision{}, err
	}
	if link.Kind == LinkInvite {
		return d.OpenInvite(ctx, link.InviteCode), nil
	}
	return d.OpenChannel(ctx, link.ServerID, link.ChannelID, link.MessageID), nil
}

// OpenChannel navigates to channelID, optionally at messageID. A non-empty
// serverID must be the channel's server.
func (d *Dispatcher) OpenChannel(ctx context.Context, serverID, channelID, messageID string) Decision {
	ch, ok := d.lookupChannel(ctx, channelID)
	if !ok {
		return d.discover(ReasonChannelNotFound, channelID)
	}

	if ch.IsConversation() {
		if serverID != "" {
			return d.discover(ReasonServerMismatch, channelID)
		}
		if !ch.HasParticipant(d.userID) && !d.membership.IsParticipant(ch.ID, d.userID) {
			return d.discover(ReasonNotParticipant, channelID)
		}
		return d.goTo(ctx, Target{ChannelID: ch.ID, MessageID: messageID})
	}

	if serverID != "" && serverID != ch.ServerID {
		return d.discover(ReasonServerMismatch, channelID)
	}
	sv, ok := d.lookupServer(ctx, ch.ServerID)
	if !ok {
		return d.discover(ReasonServerNotFound, channelID)
	}
	if !sv.HasChannel(ch.ID) {
		return d.discover(ReasonChannelNotListed, channelID)
	}
	if !d.membership.IsMember(sv.ID, d.userID) {
		return d.discover(ReasonNotMember, channelID)
	}
	return d.goTo(ctx, Target{ServerID: sv.ID, ChannelID: ch.ID, MessageID: messageID})
}

// OpenUser shows a user's profile, or Discover for unknown users
func (d *Dispatcher) OpenUser(_ context.Context, userID string) Decision {
	u, ok := d.store.GetUser(userID)
	if !ok || u == nil {
		return d.discover(ReasonUserNotFound, userID)
	}
	dec := Decision{Kind: DecisionUserProfile, UserID: u.ID}
	d.emit(dec)
	return dec
}

// OpenInvite resolves an invite code. Invites to something already joined
// navigate straight there and expired ones fall back to Discover.
// Everything else, including a failed metadata fetch, goes through invite
// acceptance.
func (d *Dispatcher) OpenInvite(ctx context.Context, code string) Decision {
	accept := Decision{Kind: DecisionInvite, InviteCode: code}
	if d.fetcher == nil {
		d.emit(accept)
		return accept
	}

	fctx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	inv, err := d.fetcher.FetchInvite(fctx, code)
	cancel()
	if err != nil {
		d.logger.Warn("failed to fetch invite", "code", code, "error", err)
		d.emit(accept)
		return accept
	}
	accept.Invite = inv

	if target, ok := d.joinedTarget(ctx, inv); ok {
		return d.OpenChannel(ctx, target.ServerID, target.ChannelID, "")
	}
	if inv.IsExpired() {
		return d.discover(ReasonInviteExpired, code)
	}
	d.emit(accept)
	return accept
}

// joinedTarget returns where an invite leads when its destination is
// already joined
func (d *Dispatcher) joinedTarget(ctx context.Context, inv *models.Invite) (Target, bool) {
	if inv.Type == models.InviteTypeGroup {
		ch, ok := d.lookupChannel(ctx, inv.ChannelID)
		if !ok || !(ch.HasParticipant(d.userID) || d.membership.IsParticipant(ch.ID, d.userID)) {
			return Target{}, false
		}
		return Target{ChannelID: ch.ID}, true
	}

	if inv.ServerID == "" || !d.membership.IsMember(inv.ServerID, d.userID) {
		return Target{}, false
	}
	channelID := inv.ChannelID
	if channelID == "" {
		sv, ok := d.lookupServer(ctx, inv.ServerID)
		if !ok || sv.DefaultChannelID == "" {
			return Target{}, false
		}
		channelID = sv.DefaultChannelID
	}
	return Target{ServerID: inv.ServerID, ChannelID: channelID}, true
}

// goTo performs the side effects of a channel navigation in order: arm
// protection for the target message before anything switches, clear the
// destination's message window when the channel changes, reset history,
// then hand over the decision.
func (d *Dispatcher) goTo(ctx context.Context, target Target) Decision {
	d.mu.Lock()
	crossChannel := d.current != target.ChannelID
	d.current = target.ChannelID
	d.mu.Unlock()

	dec := Decision{Kind: DecisionChannel, Target: target}
	if d.protector != nil {
		if target.MessageID != "" {
			wctx, w := d.protector.Arm(ctx, target.ChannelID, target.MessageID, crossChannel)
			dec.LoadContext = wctx
			dec.Window = &w
		} else {
			d.protector.Cancel()
		}
	}

	if crossChannel {
		if d.window != nil {
			d.window.Clear(target.ChannelID)
		}
		if d.stack != nil {
			d.stack.Reset()
			d.stack.Push(dec)
		}
	}

	d.logger.Debug("navigating", "server", target.ServerID, "channel", target.ChannelID, "message", target.MessageID)
	d.emit(dec)
	return dec
}

// discover falls back to the Discover view with a fresh history
func (d *Dispatcher) discover(reason, id string) Decision {
	d.mu.Lock()
	d.current = ""
	d.mu.Unlock()

	dec := Decision{Kind: DecisionDiscover, Reason: reason}
	if d.protector != nil {
		d.protector.Cancel()
	}
	if d.stack != nil {
		d.stack.Reset()
		d.stack.Push(dec)
	}
	d.logger.Debug("falling back to discover", "reason", reason, "id", id)
	d.emit(dec)
	return dec
}

func (d *Dispatcher) emit(dec Decision) {
	if d.navigate != nil {
		d.navigate(dec)
	}
}

// lookupChannel checks the primary cache, the directory, then the fetcher
func (d *Dispatcher) lookupChannel(ctx context.Context, id string) (*models.Channel, bool) {
	if id == "" {
		return nil, false
	}
	if ch, ok := resolve.LookupChannel(d.store, d.dir, id); ok && ch != nil {
		return ch, true
	}
	if d.fetcher == nil {
		return nil, false
	}
	fctx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancel()
	ch, err := d.fetcher.FetchChannel(fctx, id)
	if err != nil || ch == nil {
		d.logger.Warn("failed to fetch channel", "channel", id, "error", err)
		return nil, false
	}
	return ch, true
}

// lookupServer checks the cache, then the fetcher
func (d *Dispatcher) lookupServer(ctx context.Context, id string) (*models.Server, bool) {
	if sv, ok := d.store.GetServer(id); ok && sv != nil {
		return sv, true
	}
	if d.fetcher == nil {
		return nil, false
	}
	fctx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancel()
	sv, err := d.fetcher.FetchServer(fctx, id)
	if err != nil || sv == nil {
		d.logger.Warn("failed to fetch server", "server", id, "error", err)
		return nil, false
	}
	return sv, true
}
