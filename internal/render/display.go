// Package render splices resolved references into display text and
// reports the interactive spans and emoji slots of the result.
package render

import (
	"strings"

	"github.com/concord-chat/refnav/internal/markup"
)

// PlaceholderMarker occupies the slot of an image-backed emoji in display text
const PlaceholderMarker = "\uFFFC"

// ActionScheme prefixes the synthetic action identifiers attached to spans
const ActionScheme = "concord-action://"

// ActionKind says what activating a span does
type ActionKind int

const (
	ActionNone        ActionKind = iota // Styled but not dispatchable
	ActionOpenUser                      // Open a user profile
	ActionOpenChannel                   // Open a channel
)

// String returns the path segment used in action identifiers
func (a ActionKind) String() string {
	switch a {
	case ActionOpenUser:
		return "user"
	case ActionOpenChannel:
		return "channel"
	default:
		return "none"
	}
}

// Span is an interactive range of display text
type Span struct {
	Range    markup.Range `json:"range"`
	Action   ActionKind   `json:"action"`
	TargetID string       `json:"target_id,omitempty"`
}

// ActionURL returns the synthetic identifier for the span's action, or ""
// for spans that do nothing
func (s Span) ActionURL() string {
	if s.Action == ActionNone || s.TargetID == "" {
		return ""
	}
	return ActionScheme + s.Action.String() + "/" + s.TargetID
}

// ParseAction decodes an identifier produced by Span.ActionURL
func ParseAction(url string) (Span, bool) {
	rest, ok := strings.CutPrefix(url, ActionScheme)
	if !ok {
		return Span{}, false
	}
	kind, id, ok := strings.Cut(rest, "/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return Span{}, false
	}
	switch kind {
	case ActionOpenUser.String():
		return Span{Action: ActionOpenUser, TargetID: id}, true
	case ActionOpenChannel.String():
		return Span{Action: ActionOpenChannel, TargetID: id}, true
	default:
		return Span{}, false
	}
}

// EmojiPlaceholder is a slot in display text where an emoji image is drawn.
// Alt is the text to show when the image cannot be loaded.
type EmojiPlaceholder struct {
	Range   markup.Range `json:"range"`
	EmojiID string       `json:"emoji_id"`
	Alt     string       `json:"alt"`
}

// Display is the rendered form of one message
type Display struct {
	Text   string             `json:"text"`
	Spans  []Span             `json:"spans,omitempty"`
	Emojis []EmojiPlaceholder `json:"emojis,omitempty"`
}

// SpanAt returns the span covering byte offset off of the display text
func (d Display) SpanAt(off int) (Span, bool) {
	for _, s := range d.Spans {
		if off >= s.Range.Start && off < s.Range.End {
			return s, true
		}
	}
	return Span{}, false
}

// ActionSpans returns the spans that can be dispatched
func (d Display) ActionSpans() []Span {
	var out []Span
	for _, s := range d.Spans {
		if s.Action != ActionNone {
			out = append(out, s)
		}
	}
	return out
}

// WithAltText returns the display text with every emoji slot replaced by
// its alt text, for surfaces that cannot draw images
func (d Display) WithAltText() string {
	if len(d.Emojis) == 0 {
		return d.Text
	}
	var b strings.Builder
	last := 0
	for _, e := range d.Emojis {
		b.WriteString(d.Text[last:e.Range.Start])
		b.WriteString(e.Alt)
		last = e.Range.End
	}
	b.WriteString(d.Text[last:])
	return b.String()
}
