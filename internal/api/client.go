// Package api is the REST client used to load entities missing from the
// local cache.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/concord-chat/refnav/internal/models"
)

// ErrNotFound is returned when the server has no such entity, or does not
// let the current user see it
var ErrNotFound = errors.New("not found")

// DefaultTimeout bounds a request when the caller's context has no deadline
const DefaultTimeout = 10 * time.Second

// Client talks to the Concord REST API
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New creates a client for serverAddr. WebSocket addresses are converted to
// their HTTP equivalent so one address can serve both transports.
func New(serverAddr, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(serverAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid server address: %w", err)
	}

	// Convert to HTTP scheme
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("invalid server address: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base:  u,
		token: token,
		http:  &http.Client{Timeout: timeout},
	}, nil
}

// FetchUser loads a user
func (c *Client) FetchUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := c.get(ctx, "/api/users/"+url.PathEscape(id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// FetchChannel loads a channel
func (c *Client) FetchChannel(ctx context.Context, id string) (*models.Channel, error) {
	var ch models.Channel
	if err := c.get(ctx, "/api/channels/"+url.PathEscape(id), nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// FetchServer loads a server with its channel list
func (c *Client) FetchServer(ctx context.Context, id string) (*models.Server, error) {
	var sv models.Server
	if err := c.get(ctx, "/api/servers/"+url.PathEscape(id), nil, &sv); err != nil {
		return nil, err
	}
	return &sv, nil
}

// FetchInvite loads invite metadata
func (c *Client) FetchInvite(ctx context.Context, code string) (*models.Invite, error) {
	var inv models.Invite
	if err := c.get(ctx, "/api/invites/"+url.PathEscape(code), nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// FetchMessage loads a single message
func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (*models.Message, error) {
	var msg models.Message
	path := "/api/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	if err := c.get(ctx, path, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// FetchMessagesAround loads up to limit messages centred on messageID
func (c *Client) FetchMessagesAround(ctx context.Context, channelID, messageID string, limit int) ([]*models.Message, error) {
	q := url.Values{}
	q.Set("around", messageID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var msgs []*models.Message
	if err := c.get(ctx, "/api/channels/"+url.PathEscape(channelID)+"/messages", q, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// get performs an authenticated GET and decodes the JSON body into out
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("request %s failed with status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
