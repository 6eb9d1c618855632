package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/refnav/internal/cache"
	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/navigation"
	"github.com/concord-chat/refnav/internal/protection"
	"github.com/concord-chat/refnav/internal/protocol"
	"github.com/concord-chat/refnav/internal/render"
)

const me = "ME"

type fakeClock struct {
	mu    sync.Mutex
	funcs []func()
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs = append(c.funcs, f)
	return func() bool { return true }
}

func (c *fakeClock) fireLast() {
	c.mu.Lock()
	f := c.funcs[len(c.funcs)-1]
	c.mu.Unlock()
	f()
}

type pageLoader struct {
	mu    sync.Mutex
	pages map[string][]*models.Message
	block map[string]bool
	calls []string
}

func (l *pageLoader) FetchMessagesAround(ctx context.Context, channelID, messageID string, limit int) ([]*models.Message, error) {
	l.mu.Lock()
	l.calls = append(l.calls, channelID+"/"+messageID)
	block := l.block[channelID]
	page := l.pages[channelID]
	l.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return page, nil
}

func dispatch(t *testing.T, typ protocol.EventType, payload interface{}) *protocol.Message {
	t.Helper()
	msg, err := protocol.NewDispatch(typ, 1, payload)
	require.NoError(t, err)
	return msg
}

func message(id, channelID string, at int) *models.Message {
	return &models.Message{
		ID:        id,
		ChannelID: channelID,
		AuthorID:  "U2",
		Content:   "msg " + id,
		CreatedAt: time.Date(2024, 5, 1, 10, 0, at, 0, time.UTC),
	}
}

func newTestSession(t *testing.T, loader MessageLoader, opts ...Option) (*Session, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	opts = append([]Option{
		WithMessageLoader(loader),
		WithProtectionOptions(protection.WithClock(clock.AfterFunc, time.Now)),
	}, opts...)
	s, err := NewSession(Config{UserID: me, LinkHosts: []string{"concord.chat"}}, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Apply(dispatch(t, protocol.EventReady, protocol.ReadyPayload{
		SessionID: "sess",
		User:      &models.User{ID: me, Username: "me"},
		Users:     []*models.User{{ID: "U2", Username: "alice", DisplayName: "Alice"}},
		Servers:   []*models.Server{{ID: "S1", Name: "Home"}},
		Channels: []*models.Channel{
			{ID: "C1", ServerID: "S1", Name: "general"},
			{ID: "C2", ServerID: "S1", Name: "random"},
		},
	})))
	return s, clock
}

func nextNotice(t *testing.T, s *Session) Notice {
	t.Helper()
	select {
	case n := <-s.Notices():
		return n
	case <-time.After(time.Second):
		t.Fatal("no notice")
		return Notice{}
	}
}

func TestNewSessionRequiresUser(t *testing.T) {
	_, err := NewSession(Config{})
	assert.True(t, errors.Is(err, ErrNoUser))
}

func TestReadyFeedsRendering(t *testing.T) {
	s, _ := newTestSession(t, nil)

	d := s.Render("hey <@U2>, see <#C2> and <@nobody>")
	assert.Equal(t, "hey @Alice, see #random and @Unknown User", d.Text)
	require.Len(t, d.Spans, 3)
	assert.Equal(t, "concord-action://user/U2", d.Spans[0].ActionURL())
	assert.Equal(t, render.ActionNone, d.Spans[2].Action)

	sv, ok := s.Store().GetServer("S1")
	require.True(t, ok)
	assert.Equal(t, []string{"C1", "C2"}, sv.ChannelIDs)
	assert.True(t, s.Store().IsMember("S1", me))
}

func TestNavigationLoadsAndResolvesTarget(t *testing.T) {
	loader := &pageLoader{pages: map[string][]*models.Message{
		"C2": {message("m1", "C2", 1), message("m2", "C2", 2)},
	}}
	var seen []navigation.Decision
	s, _ := newTestSession(t, loader, WithNavigate(func(d navigation.Decision) { seen = append(seen, d) }))

	dec, err := s.OpenURL(context.Background(), "https://concord.chat/server/S1/channel/C2/m2")
	require.NoError(t, err)
	assert.Equal(t, navigation.DecisionChannel, dec.Kind)
	require.NotNil(t, dec.Window)

	s.Wait()
	n := nextNotice(t, s)
	assert.Equal(t, NoticeResolved, n.Kind)
	assert.Equal(t, "m2", n.Window.TargetMessageID)
	assert.True(t, s.Suppressing())
	assert.Len(t, s.Messages().Messages("C2"), 2)
	assert.Equal(t, "C2", s.Messages().Active())
	require.Len(t, seen, 1)
	assert.Equal(t, dec.Target, s.LastDecision().Target)

	s.UserScrolled()
	assert.False(t, s.Suppressing())
}

func TestNavigationTimeoutNotice(t *testing.T) {
	loader := &pageLoader{pages: map[string][]*models.Message{"C1": {message("m1", "C1", 1)}}}
	s, clock := newTestSession(t, loader)

	s.OpenChannel(context.Background(), "", "C1", "gone")
	s.Wait()
	assert.Equal(t, protection.StateArmed, s.Timer().State())

	clock.fireLast()
	n := nextNotice(t, s)
	assert.Equal(t, NoticeTimeout, n.Kind)
	assert.Equal(t, MessageNotFoundText, n.Text)
	assert.ErrorIs(t, n.Err, protection.ErrMessageNotFound)

	select {
	case extra := <-s.Notices():
		t.Fatalf("unexpected notice %+v", extra)
	default:
	}
}

func TestSupersededLoadIsDropped(t *testing.T) {
	loader := &pageLoader{
		pages: map[string][]*models.Message{"C2": {message("m2", "C2", 1)}},
		block: map[string]bool{"C1": true},
	}
	s, _ := newTestSession(t, loader)

	s.OpenChannel(context.Background(), "", "C1", "m1")
	s.OpenChannel(context.Background(), "", "C2", "m2")
	s.Wait()

	assert.Empty(t, s.Messages().Messages("C1"))
	n := nextNotice(t, s)
	assert.Equal(t, NoticeResolved, n.Kind)
	assert.Equal(t, "m2", n.Window.TargetMessageID)
	assert.Len(t, loader.calls, 2)
}

func TestLiveMessageResolvesTarget(t *testing.T) {
	s, _ := newTestSession(t, &pageLoader{})

	s.OpenChannel(context.Background(), "S1", "C1", "late")
	s.Wait()
	assert.Equal(t, protection.StateArmed, s.Timer().State())

	require.NoError(t, s.Apply(dispatch(t, protocol.EventMessageCreate, protocol.MessageCreatePayload{
		Message: message("late", "C1", 5),
		Author:  &models.User{ID: "U3", Username: "carol"},
	})))
	assert.Equal(t, protection.StateResolved, s.Timer().State())
	_, ok := s.Store().GetUser("U3")
	assert.True(t, ok)
}

func TestDiscoverFallbackDoesNotLoad(t *testing.T) {
	loader := &pageLoader{}
	s, _ := newTestSession(t, loader)

	dec := s.OpenChannel(context.Background(), "", "missing", "m1")
	s.Wait()
	assert.Equal(t, navigation.DecisionDiscover, dec.Kind)
	assert.Empty(t, loader.calls)
	assert.Equal(t, protection.StateIdle, s.Timer().State())
	cur, ok := s.History().Current()
	require.True(t, ok)
	assert.Equal(t, navigation.DecisionDiscover, cur.Kind)
}

func TestComposeMentions(t *testing.T) {
	s, _ := newTestSession(t, nil)

	text, ok := s.Mention("U2")
	require.True(t, ok)
	assert.Equal(t, "@Alice", text)
	ch, ok := s.MentionChannel("C1")
	require.True(t, ok)
	assert.Equal(t, "#general", ch)
	_, ok = s.Mention("nobody")
	assert.False(t, ok)

	assert.Equal(t, "hi <@U2> in <#C1>", s.Compose("hi @Alice in #general"))
	assert.Equal(t, 0, s.Composer().Len())
}

func TestApplyEntityEvents(t *testing.T) {
	s, _ := newTestSession(t, nil)

	require.NoError(t, s.Apply(dispatch(t, protocol.EventServerMemberAdd, protocol.ServerMemberAddPayload{
		ServerID: "S1",
		User:     &models.User{ID: "U9", Username: "newbie"},
	})))
	assert.True(t, s.Store().IsMember("S1", "U9"))

	require.NoError(t, s.Apply(dispatch(t, protocol.EventServerMemberRemove, protocol.ServerMemberRemovePayload{
		ServerID: "S1", UserID: "U9",
	})))
	assert.False(t, s.Store().IsMember("S1", "U9"))

	require.NoError(t, s.Apply(dispatch(t, protocol.EventChannelDelete, protocol.ChannelDeletePayload{ID: "C2", ServerID: "S1"})))
	_, ok := s.Store().GetChannel("C2")
	assert.False(t, ok)
	// deleted channels still render from the directory
	assert.Equal(t, "#random", s.Render("<#C2>").Text)

	require.NoError(t, s.Apply(dispatch(t, protocol.EventEmojiCreate, models.Emoji{ID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Name: "blob"})))
	d := s.Render("x :01ARZ3NDEKTSV4RRFFQ69G5FAV:")
	require.Len(t, d.Emojis, 1)
	assert.Equal(t, ":blob:", d.Emojis[0].Alt)

	s.Messages().Add(message("m1", "C1", 1))
	update := message("m1", "C1", 1)
	update.Content = "fixed typo"
	require.NoError(t, s.Apply(dispatch(t, protocol.EventMessageUpdate, update)))
	edited := s.Messages().Messages("C1")[0]
	assert.Equal(t, "fixed typo", edited.Content)
	assert.True(t, edited.IsEdited())

	assert.Error(t, s.Apply(&protocol.Message{Op: protocol.OpDispatch, Type: protocol.EventUserUpdate}))
	assert.NoError(t, s.Apply(&protocol.Message{Op: protocol.OpHeartbeatAck}))
}

type stubFetcher struct {
	channel *models.Channel
}

func (f stubFetcher) FetchChannel(_ context.Context, id string) (*models.Channel, error) {
	if f.channel != nil && f.channel.ID == id {
		return f.channel, nil
	}
	return nil, errors.New("not found")
}

func (f stubFetcher) FetchServer(context.Context, string) (*models.Server, error) {
	return nil, errors.New("not found")
}

func (f stubFetcher) FetchInvite(context.Context, string) (*models.Invite, error) {
	return nil, errors.New("not found")
}

func TestFetchedChannelsAreRemembered(t *testing.T) {
	remote := &models.Channel{ID: "R1", ServerID: "S1", Name: "remote"}
	s, _ := newTestSession(t, nil, WithFetcher(stubFetcher{channel: remote}))

	// S1 does not list R1, so access is refused but the channel is now known
	dec := s.OpenChannel(context.Background(), "", "R1", "")
	assert.Equal(t, navigation.DecisionDiscover, dec.Kind)
	assert.Equal(t, navigation.ReasonChannelNotListed, dec.Reason)

	assert.Equal(t, "#remote", s.Render("<#R1>").Text)
	_, ok := s.Store().GetChannel("R1")
	assert.False(t, ok)
}

func TestFallbackCatalogFillsGaps(t *testing.T) {
	base, err := cache.New(16)
	require.NoError(t, err)
	base.PutUser(&models.User{ID: "U9", Username: "bob"})
	base.PutServer(&models.Server{ID: "S9", Name: "Archive", ChannelIDs: []string{"C9"}})
	base.PutChannel(&models.Channel{ID: "C9", ServerID: "S9", Name: "old"})
	base.AddMember("S9", me)

	s, _ := newTestSession(t, nil, WithFallback(base))

	assert.Equal(t, "@Alice @bob #old", s.Render("<@U2> <@U9> <#C9>").Text)

	dec := s.OpenChannel(context.Background(), "S9", "C9", "")
	assert.Equal(t, navigation.DecisionChannel, dec.Kind)

	// the live cache wins over the fallback
	base.PutUser(&models.User{ID: "U2", Username: "stale"})
	assert.Equal(t, "@Alice", s.Render("<@U2>").Text)
}
