package protection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	now    time.Time
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, ft)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		was := !ft.stopped
		ft.stopped = true
		return was
	}
}

func (c *fakeClock) Now() time.Time { return c.now }

// fire runs the i-th scheduled callback even if it was stopped, like a
// timer that raced its Stop call
func (c *fakeClock) fire(i int) {
	c.mu.Lock()
	ft := c.timers[i]
	c.mu.Unlock()
	ft.f()
}

type presence struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (p *presence) Contains(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ids[id]
}

func (p *presence) add(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids[id] = true
}

type recorder struct {
	mu       sync.Mutex
	resolved []Window
	timeouts []Window
	errs     []error
	released []Window
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnResolved: func(w Window) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.resolved = append(r.resolved, w)
		},
		OnTimeout: func(w Window, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.timeouts = append(r.timeouts, w)
			r.errs = append(r.errs, err)
		},
		OnReleased: func(w Window) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.released = append(r.released, w)
		},
	}
}

func (r *recorder) timeoutCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timeouts)
}

func newTestTimer() (*Timer, *fakeClock, *presence, *recorder) {
	clock := &fakeClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	p := &presence{ids: map[string]bool{}}
	rec := &recorder{}
	t := New(DefaultConfig(), p, WithClock(clock.AfterFunc, clock.Now), WithHooks(rec.hooks()))
	return t, clock, p, rec
}

func TestTimer_ArmUsesTimeoutByKind(t *testing.T) {
	timer, clock, _, _ := newTestTimer()
	assert.Equal(t, StateIdle, timer.State())

	_, w := timer.Arm(context.Background(), "C1", "M1", false)
	assert.Equal(t, StateArmed, timer.State())
	assert.Equal(t, "M1", w.TargetMessageID)
	assert.Equal(t, clock.now, w.ActivatedAt)
	assert.NotEmpty(t, w.ID)

	timer.Arm(context.Background(), "C2", "M2", true)
	require.Len(t, clock.timers, 2)
	assert.Equal(t, DefaultReplyTimeout, clock.timers[0].d)
	assert.Equal(t, DefaultCrossChannelTimeout, clock.timers[1].d)
	assert.True(t, clock.timers[0].stopped, "superseded deadline is stopped")
}

func TestTimer_ResolvesWhenTargetLoads(t *testing.T) {
	timer, clock, p, rec := newTestTimer()
	ctx, _ := timer.Arm(context.Background(), "C1", "M1", false)

	assert.False(t, timer.MessagesLoaded())
	assert.Equal(t, StateArmed, timer.State())

	p.add("M1")
	assert.True(t, timer.MessagesLoaded())
	assert.Equal(t, StateResolved, timer.State())
	assert.True(t, timer.Suppressing(), "protection holds until the user scrolls away")
	assert.True(t, clock.timers[0].stopped)
	assert.NoError(t, ctx.Err())

	assert.True(t, timer.MessagesLoaded())
	require.Len(t, rec.resolved, 1)
	assert.True(t, rec.resolved[0].Resolved)

	// A late deadline firing must not turn a resolved window into a timeout
	clock.fire(0)
	assert.Equal(t, StateResolved, timer.State())
	assert.Zero(t, rec.timeoutCount())

	timer.UserScrolled()
	assert.Equal(t, StateIdle, timer.State())
	assert.False(t, timer.Suppressing())
	assert.Error(t, ctx.Err())
	require.Len(t, rec.released, 1)
}

func TestTimer_TimesOutExactlyOnce(t *testing.T) {
	timer, clock, _, rec := newTestTimer()
	ctx, w := timer.Arm(context.Background(), "C1", "M404", false)

	clock.fire(0)
	clock.fire(0)

	assert.Equal(t, StateTimedOut, timer.State())
	assert.False(t, timer.Suppressing())
	require.Equal(t, 1, rec.timeoutCount())
	assert.Equal(t, w.ID, rec.timeouts[0].ID)
	assert.ErrorIs(t, rec.errs[0], ErrMessageNotFound)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	_, ok := timer.Current()
	assert.False(t, ok, "expired windows are discarded")
	assert.False(t, timer.MessagesLoaded())
}

func TestTimer_NewArmSupersedesPrevious(t *testing.T) {
	timer, clock, p, rec := newTestTimer()
	first, _ := timer.Arm(context.Background(), "C1", "M1", false)
	second, w2 := timer.Arm(context.Background(), "C2", "M2", true)

	assert.Error(t, first.Err(), "superseded window context is cancelled")
	assert.NoError(t, second.Err())

	// The first window can no longer resolve or time out
	p.add("M1")
	assert.False(t, timer.MessagesLoaded())
	assert.False(t, timer.Visible("M1"))
	clock.fire(0)
	assert.Zero(t, rec.timeoutCount())
	assert.Equal(t, StateArmed, timer.State())

	clock.fire(1)
	require.Equal(t, 1, rec.timeoutCount())
	assert.Equal(t, w2.ID, rec.timeouts[0].ID)
}

func TestTimer_Visible(t *testing.T) {
	timer, _, _, rec := newTestTimer()
	timer.Arm(context.Background(), "C1", "M1", false)

	assert.False(t, timer.Visible("M0"))
	assert.True(t, timer.Visible("M1"))
	assert.Equal(t, StateResolved, timer.State())
	assert.Len(t, rec.resolved, 1)
}

func TestTimer_CancelIsSilent(t *testing.T) {
	timer, clock, _, rec := newTestTimer()
	ctx, _ := timer.Arm(context.Background(), "C1", "M1", false)

	timer.Cancel()
	clock.fire(0)

	assert.Equal(t, StateIdle, timer.State())
	assert.Error(t, ctx.Err())
	assert.Zero(t, rec.timeoutCount())
	assert.Empty(t, rec.released)

	timer.UserScrolled()
	assert.Empty(t, rec.released)
}

func TestTimer_ParentCancellationPropagates(t *testing.T) {
	timer, _, _, _ := newTestTimer()
	parent, cancel := context.WithCancel(context.Background())
	ctx, _ := timer.Arm(parent, "C1", "M1", false)
	cancel()
	assert.Error(t, ctx.Err())
}

func TestTimer_RealClockTimeout(t *testing.T) {
	rec := &recorder{}
	timer := New(Config{ReplyTimeout: 10 * time.Millisecond, CrossChannelTimeout: time.Second},
		&presence{ids: map[string]bool{}}, WithHooks(rec.hooks()))

	timer.Arm(context.Background(), "C1", "M1", false)
	require.Eventually(t, func() bool {
		return timer.State() == StateTimedOut
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.timeoutCount())
}

func TestNew_FillsZeroTimeouts(t *testing.T) {
	timer := New(Config{}, nil)
	assert.Equal(t, DefaultConfig(), timer.cfg)
	assert.False(t, timer.MessagesLoaded())
}
