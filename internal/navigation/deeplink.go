package navigation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/concord-chat/refnav/internal/models"
)

// ErrUnsupportedLink is returned for URLs that are not Concord deep links
var ErrUnsupportedLink = errors.New("unsupported link")

// LinkKind identifies the shape of a deep link
type LinkKind int

const (
	LinkChannel LinkKind = iota // .../[server/{sid}/]channel/{cid}[/{mid}]
	LinkInvite                  // .../invite/{code}
)

// Link is a parsed deep link
type Link struct {
	Kind       LinkKind `json:"kind"`
	ServerID   string   `json:"server_id,omitempty"`
	ChannelID  string   `json:"channel_id,omitempty"`
	MessageID  string   `json:"message_id,omitempty"`
	InviteCode string   `json:"invite_code,omitempty"`
}

// Target returns the navigation target of a channel link
func (l Link) Target() Target {
	return Target{ServerID: l.ServerID, ChannelID: l.ChannelID, MessageID: l.MessageID}
}

// URL formats the link under base, e.g. "https://concord.chat"
func (l Link) URL(base string) string {
	base = strings.TrimRight(base, "/")
	if l.Kind == LinkInvite {
		return base + "/invite/" + l.InviteCode
	}
	var b strings.Builder
	b.WriteString(base)
	if l.ServerID != "" {
		b.WriteString("/server/" + l.ServerID)
	}
	b.WriteString("/channel/" + l.ChannelID)
	if l.MessageID != "" {
		b.WriteString("/" + l.MessageID)
	}
	return b.String()
}

// ParseLink parses a deep link. Web links must name one of hosts when any
// are given; links with a custom scheme carry the first path segment in
// the host position ("concord://channel/C1"). Any leading path segments
// before the recognized shape are ignored.
func ParseLink(raw string, hosts ...string) (Link, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrUnsupportedLink, err)
	}

	var segments []string
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" || !hostAllowed(u.Hostname(), hosts) {
			return Link{}, fmt.Errorf("%w: host %q", ErrUnsupportedLink, u.Host)
		}
	case "":
		return Link{}, fmt.Errorf("%w: %q is not absolute", ErrUnsupportedLink, raw)
	default:
		if u.Host != "" {
			segments = append(segments, u.Host)
		}
	}
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	for i, s := range segments {
		rest := segments[i+1:]
		switch s {
		case "server":
			if link, ok := parseServerLink(rest); ok {
				return link, nil
			}
		case "channel":
			if link, ok := parseChannelLink(rest); ok {
				return link, nil
			}
		case "invite":
			if len(rest) == 1 && isInviteCode(rest[0]) {
				return Link{Kind: LinkInvite, InviteCode: rest[0]}, nil
			}
		}
	}
	return Link{}, fmt.Errorf("%w: %q", ErrUnsupportedLink, raw)
}

func parseServerLink(seg []string) (Link, bool) {
	if len(seg) < 3 || seg[1] != "channel" || !models.IsAlphanumeric(seg[0]) {
		return Link{}, false
	}
	link, ok := parseChannelLink(seg[2:])
	link.ServerID = seg[0]
	return link, ok
}

func parseChannelLink(seg []string) (Link, bool) {
	if len(seg) < 1 || len(seg) > 2 {
		return Link{}, false
	}
	for _, s := range seg {
		if !models.IsAlphanumeric(s) {
			return Link{}, false
		}
	}
	link := Link{Kind: LinkChannel, ChannelID: seg[0]}
	if len(seg) == 2 {
		link.MessageID = seg[1]
	}
	return link, true
}

func isInviteCode(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !models.IsAlphanumericByte(s[i]) && s[i] != '-' && s[i] != '_' {
			return false
		}
	}
	return true
}

func hostAllowed(host string, hosts []string) bool {
	if len(hosts) == 0 {
		return true
	}
	for _, h := range hosts {
		if strings.EqualFold(host, h) || strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(h)) {
			return true
		}
	}
	return false
}
