package highlight

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/concord-chat/refnav/internal/render"
)

// Painter styles the spans and emoji slots of a rendered message
type Painter struct {
	styles *Styles
	selfID string
	plain  bool
}

// NewPainter creates a painter. Mentions of selfID use the MentionSelf
// style. A nil styles value paints nothing and only substitutes alt text.
func NewPainter(styles *Styles, selfID string) *Painter {
	if styles == nil {
		return &Painter{styles: PlainStyles(), selfID: selfID, plain: true}
	}
	return &Painter{styles: styles, selfID: selfID}
}

// Styles returns the painter's styles
func (p *Painter) Styles() *Styles {
	return p.styles
}

type segment struct {
	start, end int
	style      lipgloss.Style
	text       string
}

// Paint returns the display text with spans styled and emoji slots replaced
// by their styled alt text
func (p *Painter) Paint(d render.Display) string {
	return p.paint(d, -1)
}

// PaintSelected paints d with the span at index selected of d.Spans marked.
// Plain painters bracket the selection instead.
func (p *Painter) PaintSelected(d render.Display, selected int) string {
	return p.paint(d, selected)
}

func (p *Painter) paint(d render.Display, selected int) string {
	var segs []segment
	for i, s := range d.Spans {
		seg := segment{s.Range.Start, s.Range.End, p.spanStyle(s), s.Range.Slice(d.Text)}
		if i == selected {
			seg.style = p.styles.Selected
			if p.plain {
				seg.text = "[" + seg.text + "]"
			}
		}
		segs = append(segs, seg)
	}
	for _, e := range d.Emojis {
		segs = append(segs, segment{e.Range.Start, e.Range.End, p.styles.Emoji, e.Alt})
	}
	sortSegments(segs)

	var b strings.Builder
	last := 0
	for _, seg := range segs {
		if seg.start < last || seg.end > len(d.Text) {
			continue
		}
		if seg.start > last {
			b.WriteString(p.render(p.styles.Text, d.Text[last:seg.start]))
		}
		b.WriteString(p.render(seg.style, seg.text))
		last = seg.end
	}
	if last < len(d.Text) {
		b.WriteString(p.render(p.styles.Text, d.Text[last:]))
	}
	return b.String()
}

// Notice styles an informational line such as a navigation notice
func (p *Painter) Notice(text string) string {
	return p.render(p.styles.Notice, text)
}

// Error styles an error line
func (p *Painter) Error(text string) string {
	return p.render(p.styles.Error, text)
}

func (p *Painter) spanStyle(s render.Span) lipgloss.Style {
	switch {
	case s.Action == render.ActionNone:
		return p.styles.Unknown
	case s.Action == render.ActionOpenChannel:
		return p.styles.Channel
	case s.TargetID == p.selfID && p.selfID != "":
		return p.styles.MentionSelf
	default:
		return p.styles.Mention
	}
}

// render styles each line on its own; lipgloss pads multi-line blocks to
// a common width, which would reflow message text.
func (p *Painter) render(style lipgloss.Style, text string) string {
	if p.plain || text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = style.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}

func sortSegments(segs []segment) {
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].start < segs[j].start })
}
