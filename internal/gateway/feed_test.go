package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/refnav/internal/config"
	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/protocol"
)

var upgrader = websocket.Upgrader{}

func writeMsg(t *testing.T, conn *websocket.Conn, msg *protocol.Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// fakeGateway greets, checks the token, then runs script
func fakeGateway(t *testing.T, token string, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, _ := protocol.NewMessage(protocol.OpHello, protocol.HelloPayload{HeartbeatInterval: 0})
		writeMsg(t, conn, hello)

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg protocol.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		require.Equal(t, protocol.OpIdentify, msg.Op)
		var ident protocol.IdentifyPayload
		require.NoError(t, msg.Decode(&ident))
		if ident.Token != token {
			invalid, _ := protocol.NewMessage(protocol.OpInvalidSession, nil)
			writeMsg(t, conn, invalid)
			return
		}
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type collector struct {
	mu     sync.Mutex
	events []*protocol.Message
}

func (c *collector) handle(m *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, m)
}

func (c *collector) types() []protocol.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.EventType
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

func backoff(retries int) *Backoff {
	return NewBackoff(config.Gateway{MaxRetries: retries, InitialDelayMs: 1, MaxDelayMs: 1, BackoffFactor: 1})
}

func TestFeed_DeliversDispatches(t *testing.T) {
	srv := fakeGateway(t, "tok", func(conn *websocket.Conn) {
		ready, _ := protocol.NewDispatch(protocol.EventReady, 1, protocol.ReadyPayload{SessionID: "sess-1"})
		writeMsg(t, conn, ready)
		created, _ := protocol.NewDispatch(protocol.EventMessageCreate, 2, protocol.MessageCreatePayload{
			Message: &models.Message{ID: "M1", ChannelID: "C1", Content: "hi <@U1>"},
		})
		writeMsg(t, conn, created)
	})

	c := &collector{}
	feed := New(srv.URL, "tok", c.handle, WithBackoff(backoff(0)))
	err := feed.Run(context.Background())
	require.Error(t, err, "the fake server hangs up and no retries are allowed")

	assert.Equal(t, []protocol.EventType{protocol.EventReady, protocol.EventMessageCreate}, c.types())
	assert.Equal(t, "sess-1", feed.SessionID())
	assert.Equal(t, int64(2), feed.GetLastSequence())
	assert.False(t, feed.IsConnected())
}

func TestFeed_InvalidSessionStops(t *testing.T) {
	srv := fakeGateway(t, "right", func(*websocket.Conn) {})
	feed := New(srv.URL, "wrong", nil, WithBackoff(backoff(-1)))
	err := feed.Run(context.Background())
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestFeed_ReconnectsAfterDrop(t *testing.T) {
	var sessions atomic.Int32
	srv := fakeGateway(t, "tok", func(conn *websocket.Conn) {
		n := sessions.Add(1)
		ready, _ := protocol.NewDispatch(protocol.EventReady, int64(n), protocol.ReadyPayload{SessionID: "s"})
		writeMsg(t, conn, ready)
	})

	c := &collector{}
	feed := New(srv.URL, "tok", c.handle, WithBackoff(backoff(1)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	require.Eventually(t, func() bool { return sessions.Load() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"each READY resets the attempt counter, so the feed keeps reconnecting")
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop after cancel")
	}
}

func TestFeed_DialFailure(t *testing.T) {
	feed := New("http://127.0.0.1:1", "tok", nil, WithBackoff(backoff(0)))
	assert.Error(t, feed.Run(context.Background()))

	feed = New("ftp://example.com", "tok", nil, WithBackoff(backoff(0)))
	assert.Error(t, feed.Run(context.Background()))
}

func TestBackoffFromConfig(t *testing.T) {
	b := NewBackoff(config.DefaultConfig().Gateway)
	assert.Equal(t, 2*time.Second, b.Delay(0))
	assert.Equal(t, 4*time.Second, b.Delay(1))
	assert.Equal(t, 30*time.Second, b.Delay(10))
	assert.Equal(t, 30*time.Second, b.Delay(5000), "huge attempts stay capped")
	assert.True(t, b.Allow(4))
	assert.False(t, b.Allow(5))

	b = NewBackoff(config.Gateway{MaxRetries: -1, InitialDelayMs: 500, MaxDelayMs: 1200, BackoffFactor: 3})
	assert.Equal(t, 500*time.Millisecond, b.Delay(0))
	assert.Equal(t, 1200*time.Millisecond, b.Delay(1))
	assert.True(t, b.Allow(1000))

	// unset fields take the defaults, and max never undercuts initial
	b = NewBackoff(config.Gateway{InitialDelayMs: 60000})
	assert.Equal(t, time.Minute, b.Delay(0))
	assert.Equal(t, time.Minute, b.Delay(3))
	assert.False(t, b.Allow(0))
}
