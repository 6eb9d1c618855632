// Package markup scans wire-form message text for reference tokens.
package markup

// Kind identifies the grammar a token was matched by
type Kind int

const (
	KindUserMention    Kind = iota // <@ID>
	KindChannelMention             // <#ID>
	KindCustomEmoji                // :ID: with a 26-character catalog ID
	KindShortcodeEmoji             // :name:
	KindMarkdownLink               // [label](url) with a blank label
)

// String returns the name of the token kind
func (k Kind) String() string {
	switch k {
	case KindUserMention:
		return "user_mention"
	case KindChannelMention:
		return "channel_mention"
	case KindCustomEmoji:
		return "custom_emoji"
	case KindShortcodeEmoji:
		return "shortcode_emoji"
	case KindMarkdownLink:
		return "markdown_link"
	default:
		return "unknown"
	}
}

// Range is a half-open byte range [Start, End) into a string
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the range
func (r Range) Len() int {
	return r.End - r.Start
}

// Slice returns the part of s covered by the range
func (r Range) Slice(s string) string {
	return s[r.Start:r.End]
}

// Token is one reference found in raw message text.
// For links RawID holds the URL and Label the (blank) label.
type Token struct {
	Kind  Kind   `json:"kind"`
	Range Range  `json:"range"`
	RawID string `json:"raw_id"`
	Label string `json:"label,omitempty"`
}

// IsMention reports whether the token is a user or channel mention
func (t Token) IsMention() bool {
	return t.Kind == KindUserMention || t.Kind == KindChannelMention
}

// IsEmoji reports whether the token is a custom or shortcode emoji
func (t Token) IsEmoji() bool {
	return t.Kind == KindCustomEmoji || t.Kind == KindShortcodeEmoji
}

// UserMention returns the wire form of a user mention
func UserMention(id string) string {
	return "<@" + id + ">"
}

// ChannelMention returns the wire form of a channel mention
func ChannelMention(id string) string {
	return "<#" + id + ">"
}
