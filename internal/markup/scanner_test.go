package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emojiID = "01HZXK4M2N7P8Q9R0S1T2V3W4X" // 26 alphanumerics

func TestScan_NoTokens(t *testing.T) {
	for _, text := range []string{"", "hello world", "a < b > c", "ratio 3:2", "[x](y)"} {
		assert.Nil(t, Scan(text), "text %q", text)
	}
}

func TestScan_Grammars(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		kind  Kind
		rawID string
		rng   Range
	}{
		{"user mention", "hi <@U123>!", KindUserMention, "U123", Range{3, 10}},
		{"channel mention", "see <#C1>", KindChannelMention, "C1", Range{4, 9}},
		{"custom emoji", "nice :" + emojiID + ":", KindCustomEmoji, emojiID, Range{5, 33}},
		{"shortcode", ":smile:", KindShortcodeEmoji, "smile", Range{0, 7}},
		{"shortcode with symbols", ":+1: :thumbs-up_2:", KindShortcodeEmoji, "+1", Range{0, 4}},
		{"blank link", "x [ ](https://a.b/c) y", KindMarkdownLink, "https://a.b/c", Range{2, 20}},
		{"empty link", "[](u)", KindMarkdownLink, "u", Range{0, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := Scan(tt.text)
			require.NotEmpty(t, tokens)
			tok := tokens[0]
			assert.Equal(t, tt.kind, tok.Kind)
			assert.Equal(t, tt.rawID, tok.RawID)
			assert.Equal(t, tt.rng, tok.Range)
		})
	}
}

func TestScan_EmojiIDWidth(t *testing.T) {
	short := emojiID[:25]
	long := emojiID + "Z"

	tokens := Scan(":" + short + ": :" + long + ": :" + emojiID + ":")
	require.Len(t, tokens, 3)
	assert.Equal(t, KindShortcodeEmoji, tokens[0].Kind)
	assert.Equal(t, KindShortcodeEmoji, tokens[1].Kind)
	assert.Equal(t, KindCustomEmoji, tokens[2].Kind)

	// 26 characters that include a shortcode-only symbol stay a shortcode
	tokens = Scan(":" + emojiID[:25] + "_:")
	require.Len(t, tokens, 1)
	assert.Equal(t, KindShortcodeEmoji, tokens[0].Kind)
}

func TestScan_MalformedIsLiteral(t *testing.T) {
	for _, text := range []string{
		"<@abc",
		"<@>",
		"<#>",
		"<@a b>",
		"<@U1-2>",
		"<!U1>",
		":not closed",
		"::",
		": spaced :",
		"[ ](no close",
		"[ ] (space)",
		"[ ](has space)",
		"[\n](x)",
	} {
		assert.Empty(t, Scan(text), "text %q", text)
	}
}

func TestScan_RecoversAfterMalformedPrefix(t *testing.T) {
	tokens := Scan("<@<@U1>")
	require.Len(t, tokens, 1)
	assert.Equal(t, Range{2, 7}, tokens[0].Range)

	tokens = Scan(":a:b:")
	require.Len(t, tokens, 1)
	assert.Equal(t, "a", tokens[0].RawID)

	tokens = Scan("<@U1:smile:>")
	require.Len(t, tokens, 1)
	assert.Equal(t, KindShortcodeEmoji, tokens[0].Kind)
	assert.Equal(t, "smile", tokens[0].RawID)
}

func TestScan_RangesOrderedAndDisjoint(t *testing.T) {
	text := "<@U1> said :wave: in <#C9> [ ](x) :" + emojiID + ": <@U2><#C3>"
	tokens := Scan(text)
	require.Len(t, tokens, 7)

	prevEnd := 0
	for _, tok := range tokens {
		assert.GreaterOrEqual(t, tok.Range.Start, prevEnd)
		assert.Greater(t, tok.Range.End, tok.Range.Start)
		prevEnd = tok.Range.End
	}
	assert.Equal(t, "<@U2>", tokens[5].Range.Slice(text))
	assert.Equal(t, "<#C3>", tokens[6].Range.Slice(text))
}

func TestScan_MultibyteText(t *testing.T) {
	text := "héllo 👋 <@U1>"
	tokens := Scan(text)
	require.Len(t, tokens, 1)
	assert.Equal(t, "<@U1>", tokens[0].Range.Slice(text))
	assert.Equal(t, strings.Index(text, "<@"), tokens[0].Range.Start)
}

func TestStripEmptyLinks(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"no links", "no links"},
		{"a [ ](http://x) b", "a  b"},
		{"[](a)[\t](b)", ""},
		{"[label](http://x)", "[label](http://x)"},
		{"[[](a)](b)", ""},
		{"hi <@U1> [](x) <#C1>", "hi <@U1>  <#C1>"},
		{"[ ](<@U1>)", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripEmptyLinks(tt.in), "input %q", tt.in)
	}
}

func TestStripEmptyLinks_Idempotent(t *testing.T) {
	inputs := []string{
		"[[[](a)](b)](c) tail",
		"[x[](a)](b)",
		"<@U1>[](a) :smile: [ ](b)<#C1>",
	}
	for _, in := range inputs {
		once := StripEmptyLinks(in)
		assert.Equal(t, once, StripEmptyLinks(once), "input %q", in)
		assert.Empty(t, EmptyLinks(once))
	}
}

func TestStripEmptyLinks_PreservesMentions(t *testing.T) {
	in := "<@U1> [](x) <#C2> :smile:"
	before := Scan(in)
	after := Scan(StripEmptyLinks(in))

	var kinds []Kind
	for _, tok := range before {
		if tok.Kind != KindMarkdownLink {
			kinds = append(kinds, tok.Kind)
		}
	}
	var got []Kind
	for _, tok := range after {
		got = append(got, tok.Kind)
	}
	assert.Equal(t, kinds, got)
}
