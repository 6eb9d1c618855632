package markup

import (
	"strings"

	"github.com/concord-chat/refnav/internal/models"
)

// Scan returns the tokens of text in source order. It makes a single
// left-to-right pass; at any position the mention grammars are tried before
// the emoji grammars, and a candidate that does not complete is literal text.
// Scan never fails; text without references yields nil.
func Scan(text string) []Token {
	var tokens []Token
	for i := 0; i < len(text); {
		var (
			tok Token
			ok  bool
		)
		switch text[i] {
		case '<':
			tok, ok = scanMention(text, i)
		case ':':
			tok, ok = scanEmoji(text, i)
		case '[':
			tok, ok = scanLink(text, i)
		}
		if !ok {
			i++
			continue
		}
		tokens = append(tokens, tok)
		i = tok.Range.End
	}
	return tokens
}

// scanMention matches <@ID> or <#ID> starting at i
func scanMention(text string, i int) (Token, bool) {
	if i+2 >= len(text) {
		return Token{}, false
	}
	var kind Kind
	switch text[i+1] {
	case '@':
		kind = KindUserMention
	case '#':
		kind = KindChannelMention
	default:
		return Token{}, false
	}

	j := i + 2
	for j < len(text) && models.IsAlphanumericByte(text[j]) {
		j++
	}
	if j == i+2 || j >= len(text) || text[j] != '>' {
		return Token{}, false
	}
	return Token{
		Kind:  kind,
		Range: Range{Start: i, End: j + 1},
		RawID: text[i+2 : j],
	}, true
}

// scanEmoji matches :name: starting at i. A name that is exactly a catalog
// emoji ID is a custom emoji, never a shortcode.
func scanEmoji(text string, i int) (Token, bool) {
	j := i + 1
	for j < len(text) && isShortcodeByte(text[j]) {
		j++
	}
	if j == i+1 || j >= len(text) || text[j] != ':' {
		return Token{}, false
	}
	name := text[i+1 : j]
	kind := KindShortcodeEmoji
	if models.IsEmojiID(name) {
		kind = KindCustomEmoji
	}
	return Token{
		Kind:  kind,
		Range: Range{Start: i, End: j + 1},
		RawID: name,
	}, true
}

// scanLink matches [label](url) starting at i, only when the label is blank
func scanLink(text string, i int) (Token, bool) {
	j := i + 1
	for j < len(text) && text[j] != ']' {
		if text[j] == '[' || text[j] == '\n' {
			return Token{}, false
		}
		j++
	}
	if j+1 >= len(text) || text[j+1] != '(' {
		return Token{}, false
	}
	label := text[i+1 : j]
	if strings.TrimSpace(label) != "" {
		return Token{}, false
	}

	k := j + 2
	for k < len(text) && text[k] != ')' {
		if isSpaceByte(text[k]) || text[k] == '(' {
			return Token{}, false
		}
		k++
	}
	if k >= len(text) {
		return Token{}, false
	}
	return Token{
		Kind:  KindMarkdownLink,
		Range: Range{Start: i, End: k + 1},
		RawID: text[j+2 : k],
		Label: label,
	}, true
}

func isShortcodeByte(b byte) bool {
	return models.IsAlphanumericByte(b) || b == '_' || b == '+' || b == '-'
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == '\v'
}
