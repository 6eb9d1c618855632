// Package gateway streams live events from the Concord WebSocket gateway.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/concord-chat/refnav/internal/config"
	"github.com/concord-chat/refnav/internal/protocol"
)

// ErrInvalidSession is returned when the gateway rejects the token
var ErrInvalidSession = errors.New("invalid session")

var errReconnect = errors.New("server requested reconnect")

const (
	readLimit    = 512 * 1024 // 512KB
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// Handler receives every dispatch event, READY included
type Handler func(*protocol.Message)

// Feed keeps an identified gateway connection open and forwards dispatch
// events to its handler, reconnecting with backoff when the link drops
type Feed struct {
	addr     string
	token    string
	handler  Handler
	backoff  *Backoff
	dialer   *websocket.Dialer
	logger   *slog.Logger

	mu        sync.RWMutex
	lastSeq   int64
	sessionID string
	connected bool
}

// Option configures a Feed
type Option func(*Feed)

// WithBackoff sets the reconnect policy
func WithBackoff(b *Backoff) Option {
	return func(f *Feed) { f.backoff = b }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) { f.logger = l }
}

// New creates a feed for the gateway at addr
func New(addr, token string, handler Handler, opts ...Option) *Feed {
	f := &Feed{
		addr:     addr,
		token:    token,
		handler:  handler,
		backoff:  NewBackoff(config.DefaultConfig().Gateway),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsConnected returns the connection state
func (f *Feed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// SessionID returns the session of the last READY
func (f *Feed) SessionID() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.sessionID
}

// GetLastSequence returns the last received sequence number
func (f *Feed) GetLastSequence() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastSeq
}

// Run connects and streams events until ctx is done, the session is
// rejected, or the backoff policy gives up
func (f *Feed) Run(ctx context.Context) error {
	attempt := 0
	for {
		ready, err := f.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrInvalidSession) {
			return err
		}
		if ready {
			attempt = 0
		}
		if errors.Is(err, errReconnect) {
			f.logger.Info("gateway requested reconnect")
			continue
		}
		if !f.backoff.Allow(attempt) {
			return fmt.Errorf("failed to stay connected after %d attempts: %w", attempt+1, err)
		}

		delay := f.backoff.Delay(attempt)
		attempt++
		f.logger.Warn("gateway connection lost", "error", err, "retry_in", delay, "attempt", attempt)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// runSession runs one connection; ready reports whether READY was received
func (f *Feed) runSession(ctx context.Context) (ready bool, err error) {
	u, err := gatewayURL(f.addr)
	if err != nil {
		return false, err
	}
	conn, _, err := f.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return false, fmt.Errorf("failed to connect: %w", err)
	}

	f.setConnected(true)
	defer f.setConnected(false)

	sess := &session{
		conn: conn,
		send: make(chan *protocol.Message, 256),
		done: make(chan struct{}),
	}
	defer sess.close()

	go func() {
		select {
		case <-ctx.Done():
			sess.close()
		case <-sess.done:
		}
	}()
	go sess.writePump(f.logger)

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return ready, fmt.Errorf("failed to read from gateway: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Warn("failed to parse gateway message", "error", err)
			continue
		}
		if msg.Seq != nil {
			f.mu.Lock()
			f.lastSeq = *msg.Seq
			f.mu.Unlock()
		}

		switch msg.Op {
		case protocol.OpHello:
			var hello protocol.HelloPayload
			if err := msg.Decode(&hello); err != nil {
				return ready, err
			}
			if err := f.identify(sess); err != nil {
				return ready, err
			}
			if hello.HeartbeatInterval > 0 {
				go f.heartbeat(sess, time.Duration(hello.HeartbeatInterval)*time.Millisecond)
			}
		case protocol.OpHeartbeatAck:
			// Heartbeat acknowledged, connection is healthy
		case protocol.OpInvalidSession:
			return ready, ErrInvalidSession
		case protocol.OpReconnect:
			return ready, errReconnect
		case protocol.OpDispatch:
			if msg.Type == protocol.EventReady {
				var payload protocol.ReadyPayload
				if err := msg.Decode(&payload); err == nil {
					f.mu.Lock()
					f.sessionID = payload.SessionID
					f.mu.Unlock()
				}
				ready = true
				f.logger.Info("gateway ready", "session", f.SessionID())
			}
			if f.handler != nil {
				f.handler(&msg)
			}
		}
	}
}

func (f *Feed) identify(sess *session) error {
	msg, err := protocol.NewMessage(protocol.OpIdentify, &protocol.IdentifyPayload{Token: f.token})
	if err != nil {
		return err
	}
	return sess.queue(msg)
}

// heartbeat sends the last sequence number until the session ends
func (f *Feed) heartbeat(sess *session, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			seq := f.GetLastSequence()
			msg, err := protocol.NewMessage(protocol.OpHeartbeat, &protocol.HeartbeatPayload{LastSequence: &seq})
			if err != nil {
				return
			}
			if err := sess.queue(msg); err != nil {
				f.logger.Debug("heartbeat dropped", "error", err)
			}
		case <-sess.done:
			return
		}
	}
}

func (f *Feed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

// session is one live connection with a single writer goroutine
type session struct {
	conn      *websocket.Conn
	send      chan *protocol.Message
	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) queue(msg *protocol.Message) error {
	select {
	case <-s.done:
		return fmt.Errorf("not connected")
	default:
	}
	select {
	case s.send <- msg:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// writePump writes queued messages and pings to the WebSocket
func (s *session) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.send:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warn("failed to marshal message", "error", err)
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
	}
}

// gatewayURL converts a server address to the gateway endpoint
func gatewayURL(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid server address: %w", err)
	}

	// Ensure WebSocket scheme
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server address: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}
