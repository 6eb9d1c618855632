package markup

import "strings"

// StripEmptyLinks deletes every markdown link whose label is empty or
// whitespace, brackets and URL included. Removing a link can join text into
// a new blank link, so passes repeat until nothing changes; the result is a
// fixed point and stripping it again is a no-op.
func StripEmptyLinks(text string) string {
	for {
		stripped, removed := stripLinksOnce(text)
		if removed == 0 {
			return stripped
		}
		text = stripped
	}
}

// EmptyLinks returns the blank-label link tokens of text in source order
func EmptyLinks(text string) []Token {
	var links []Token
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		if tok, ok := scanLink(text, i); ok {
			links = append(links, tok)
			i = tok.Range.End - 1
		}
	}
	return links
}

func stripLinksOnce(text string) (string, int) {
	links := EmptyLinks(text)
	if len(links) == 0 {
		return text, 0
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, l := range links {
		b.WriteString(text[last:l.Range.Start])
		last = l.Range.End
	}
	b.WriteString(text[last:])
	return b.String(), len(links)
}
