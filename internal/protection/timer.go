// Package protection guards a navigation's target message while it loads.
//
// While a window is armed the message list must not auto-scroll or reset
// itself. The window resolves once the target is present, and is released
// when the user scrolls away. If the target never shows up within the
// timeout the window expires and ErrMessageNotFound is reported once.
package protection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrMessageNotFound is reported when a protected target never appears
var ErrMessageNotFound = errors.New("message not found, it may have been deleted")

// Default wait times for a target to appear
const (
	DefaultReplyTimeout        = 3 * time.Second
	DefaultCrossChannelTimeout = 10 * time.Second
)

// State is the lifecycle state of the protection slot
type State int

const (
	StateIdle State = iota
	StateArmed
	StateResolved
	StateTimedOut
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateResolved:
		return "resolved"
	case StateTimedOut:
		return "timed_out"
	default:
		return "idle"
	}
}

// Window describes one protected navigation
type Window struct {
	ID              string    `json:"id"`
	ChannelID       string    `json:"channel_id"`
	TargetMessageID string    `json:"target_message_id"`
	ActivatedAt     time.Time `json:"activated_at"`
	CrossChannel    bool      `json:"cross_channel"`
	Resolved        bool      `json:"resolved"`
}

// Presence reports whether a message is in the loaded message window
type Presence interface {
	Contains(messageID string) bool
}

// Hooks are called outside the timer's lock
type Hooks struct {
	OnArmed    func(Window)
	OnResolved func(Window)
	OnTimeout  func(Window, error)
	OnReleased func(Window)
}

// Config holds the wait times
type Config struct {
	ReplyTimeout        time.Duration
	CrossChannelTimeout time.Duration
}

// DefaultConfig returns the default wait times
func DefaultConfig() Config {
	return Config{
		ReplyTimeout:        DefaultReplyTimeout,
		CrossChannelTimeout: DefaultCrossChannelTimeout,
	}
}

// AfterFunc schedules f after d and returns a function that stops it
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Timer owns the single protection slot of a session
type Timer struct {
	mu       sync.Mutex
	cfg      Config
	presence Presence
	hooks    Hooks
	logger   *slog.Logger

	afterFunc AfterFunc
	now       func() time.Time

	state  State
	window *Window
	gen    uint64
	stop   func() bool
	cancel context.CancelFunc
}

// Option configures a Timer
type Option func(*Timer)

// WithHooks sets the lifecycle callbacks
func WithHooks(h Hooks) Option {
	return func(t *Timer) {
		t.hooks = h
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(t *Timer) {
		t.logger = l
	}
}

// WithClock replaces the scheduler and clock, for tests
func WithClock(after AfterFunc, now func() time.Time) Option {
	return func(t *Timer) {
		t.afterFunc = after
		t.now = now
	}
}

// New creates an idle timer that checks presence against the message window
func New(cfg Config, presence Presence, opts ...Option) *Timer {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	if cfg.CrossChannelTimeout <= 0 {
		cfg.CrossChannelTimeout = DefaultCrossChannelTimeout
	}
	t := &Timer{
		cfg:       cfg,
		presence:  presence,
		logger:    slog.Default(),
		afterFunc: realAfterFunc,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Arm protects messageID in channelID, superseding any current window.
// The returned context is cancelled when the window is superseded, expires
// or is released; work loading the target should run on it so a newer
// navigation discards stale results.
func (t *Timer) Arm(ctx context.Context, channelID, messageID string, crossChannel bool) (context.Context, Window) {
	t.mu.Lock()
	t.discardLocked()

	t.gen++
	gen := t.gen
	w := &Window{
		ID:              uuid.NewString(),
		ChannelID:       channelID,
		TargetMessageID: messageID,
		ActivatedAt:     t.now(),
		CrossChannel:    crossChannel,
	}
	timeout := t.cfg.ReplyTimeout
	if crossChannel {
		timeout = t.cfg.CrossChannelTimeout
	}

	wctx, cancel := context.WithCancel(ctx)
	t.state = StateArmed
	t.window = w
	t.cancel = cancel
	t.stop = t.afterFunc(timeout, func() { t.expire(gen) })
	armed := *w
	t.mu.Unlock()

	t.logger.Debug("protection armed", "window", armed.ID, "channel", channelID, "message", messageID, "timeout", timeout)
	if t.hooks.OnArmed != nil {
		t.hooks.OnArmed(armed)
	}
	return wctx, armed
}

// MessagesLoaded is called after the message window changes. It resolves
// the armed window when the target is present and reports whether the
// current window is resolved.
func (t *Timer) MessagesLoaded() bool {
	t.mu.Lock()
	if t.state == StateResolved {
		t.mu.Unlock()
		return true
	}
	if t.state != StateArmed || t.presence == nil || !t.presence.Contains(t.window.TargetMessageID) {
		t.mu.Unlock()
		return false
	}
	w := t.resolveLocked()
	t.mu.Unlock()

	t.notifyResolved(w)
	return true
}

// Visible resolves the armed window if messageID is its target
func (t *Timer) Visible(messageID string) bool {
	t.mu.Lock()
	if t.state != StateArmed || t.window.TargetMessageID != messageID {
		t.mu.Unlock()
		return false
	}
	w := t.resolveLocked()
	t.mu.Unlock()

	t.notifyResolved(w)
	return true
}

// UserScrolled releases protection after a deliberate scroll away
func (t *Timer) UserScrolled() {
	t.mu.Lock()
	if t.window == nil {
		t.mu.Unlock()
		return
	}
	w := *t.window
	t.discardLocked()
	t.state = StateIdle
	t.mu.Unlock()

	t.logger.Debug("protection released", "window", w.ID)
	if t.hooks.OnReleased != nil {
		t.hooks.OnReleased(w)
	}
}

// Cancel discards the current window without reporting anything, for
// navigations that do not target a message
func (t *Timer) Cancel() {
	t.mu.Lock()
	t.discardLocked()
	t.state = StateIdle
	t.mu.Unlock()
}

// State returns the current state
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Current returns the live window, if any
func (t *Timer) Current() (Window, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.window == nil {
		return Window{}, false
	}
	return *t.window, true
}

// Suppressing reports whether the message list must hold its position
func (t *Timer) Suppressing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateArmed || t.state == StateResolved
}

// expire fires on the scheduler's goroutine; firings of superseded windows
// are ignored
func (t *Timer) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != StateArmed {
		t.mu.Unlock()
		return
	}
	w := *t.window
	t.stop = nil
	t.discardLocked()
	t.state = StateTimedOut
	t.mu.Unlock()

	t.logger.Info("protected message not found", "window", w.ID, "channel", w.ChannelID, "message", w.TargetMessageID)
	if t.hooks.OnTimeout != nil {
		t.hooks.OnTimeout(w, ErrMessageNotFound)
	}
}

func (t *Timer) resolveLocked() Window {
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
	t.window.Resolved = true
	t.state = StateResolved
	return *t.window
}

func (t *Timer) notifyResolved(w Window) {
	t.logger.Debug("protection resolved", "window", w.ID, "message", w.TargetMessageID)
	if t.hooks.OnResolved != nil {
		t.hooks.OnResolved(w)
	}
}

// discardLocked stops the deadline, cancels the window context and clears
// the slot. The caller sets the new state.
func (t *Timer) discardLocked() {
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.window = nil
}
