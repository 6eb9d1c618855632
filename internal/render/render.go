package render

import (
	"sort"

	"github.com/concord-chat/refnav/internal/markup"
	"github.com/concord-chat/refnav/internal/resolve"
)

// Render substitutes refs into text. Substitutions are spliced from the
// highest start offset down so pending source ranges stay valid; output
// positions are then derived in ascending order from the running length
// delta. Literal references keep their source text and produce nothing.
// Refs must index into text; out-of-range or overlapping ones are skipped.
func Render(text string, refs []resolve.Reference) Display {
	subs := substitutions(text, refs)
	if len(subs) == 0 {
		return Display{Text: text}
	}

	buf := []byte(text)
	for i := len(subs) - 1; i >= 0; i-- {
		s := subs[i]
		tail := append([]byte(s.text), buf[s.ref.Token.Range.End:]...)
		buf = append(buf[:s.ref.Token.Range.Start], tail...)
	}

	d := Display{Text: string(buf)}
	delta := 0
	for _, s := range subs {
		src := s.ref.Token.Range
		out := markup.Range{Start: src.Start + delta, End: src.Start + delta + len(s.text)}
		delta += len(s.text) - src.Len()

		switch {
		case s.ref.Placeholder:
			d.Emojis = append(d.Emojis, EmojiPlaceholder{
				Range:   out,
				EmojiID: s.ref.EntityID,
				Alt:     s.ref.DisplayText,
			})
		case s.ref.Token.IsMention():
			d.Spans = append(d.Spans, mentionSpan(s.ref, out))
		}
	}
	return d
}

type substitution struct {
	ref  resolve.Reference
	text string
}

// substitutions returns the splices to perform in ascending source order
func substitutions(text string, refs []resolve.Reference) []substitution {
	var subs []substitution
	for _, ref := range refs {
		if ref.Literal || ref.Token.Kind == markup.KindMarkdownLink {
			continue
		}
		r := ref.Token.Range
		if r.Start < 0 || r.End > len(text) || r.Start >= r.End {
			continue
		}
		repl := ref.DisplayText
		if ref.Placeholder {
			repl = PlaceholderMarker
		}
		subs = append(subs, substitution{ref: ref, text: repl})
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].ref.Token.Range.Start < subs[j].ref.Token.Range.Start
	})

	kept := subs[:0]
	end := 0
	for _, s := range subs {
		if s.ref.Token.Range.Start < end {
			continue
		}
		kept = append(kept, s)
		end = s.ref.Token.Range.End
	}
	return kept
}

func mentionSpan(ref resolve.Reference, out markup.Range) Span {
	span := Span{Range: out}
	if !ref.Found {
		return span
	}
	span.TargetID = ref.EntityID
	if ref.Token.Kind == markup.KindUserMention {
		span.Action = ActionOpenUser
	} else {
		span.Action = ActionOpenChannel
	}
	return span
}
