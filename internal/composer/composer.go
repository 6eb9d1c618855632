// Package composer maps the display text of references inserted while
// composing a message back to their wire tokens.
package composer

import (
	"sort"
	"strings"

	"github.com/concord-chat/refnav/internal/markup"
)

// Kind says which wire token a record converts to
type Kind int

const (
	KindUser    Kind = iota // <@ID>
	KindChannel             // <#ID>
)

// Record associates the display text a picker inserted with an entity
type Record struct {
	EntityID    string `json:"entity_id"`
	DisplayText string `json:"display_text"`
	Kind        Kind   `json:"kind"`
}

// WireToken returns the token the record's display text converts to
func (r Record) WireToken() string {
	if r.Kind == KindChannel {
		return markup.ChannelMention(r.EntityID)
	}
	return markup.UserMention(r.EntityID)
}

type recordKey struct {
	kind Kind
	id   string
}

// Composer holds the records of one compose session. It is owned by a
// single input field and is not safe for concurrent use.
type Composer struct {
	records map[recordKey]Record
	order   []recordKey
}

// New creates an empty composer
func New() *Composer {
	return &Composer{records: make(map[recordKey]Record)}
}

// Record remembers that displayText stands for a mention of user entityID.
// Recording the same entity again replaces the earlier record.
func (c *Composer) Record(entityID, displayText string) {
	c.put(Record{EntityID: entityID, DisplayText: displayText, Kind: KindUser})
}

// RecordChannel remembers that displayText stands for channel entityID
func (c *Composer) RecordChannel(entityID, displayText string) {
	c.put(Record{EntityID: entityID, DisplayText: displayText, Kind: KindChannel})
}

func (c *Composer) put(r Record) {
	if r.EntityID == "" || r.DisplayText == "" {
		return
	}
	key := recordKey{kind: r.Kind, id: r.EntityID}
	if _, ok := c.records[key]; !ok {
		c.order = append(c.order, key)
	}
	c.records[key] = r
}

// Records returns the current records in insertion order
func (c *Composer) Records() []Record {
	out := make([]Record, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.records[key])
	}
	return out
}

// Len returns the number of records
func (c *Composer) Len() int {
	return len(c.records)
}

// Reset discards all records, on send or cancel
func (c *Composer) Reset() {
	c.records = make(map[recordKey]Record)
	c.order = nil
}

// Convert rewrites every occurrence of a recorded display text into its
// wire token. Matching is literal and case-sensitive, made in one left to
// right pass that prefers the longest display text at each position, so one
// display text that prefixes another ("@Al", "@Alice") cannot split it and
// emitted tokens are never rescanned. Unrecorded text is left untouched.
func (c *Composer) Convert(text string) string {
	if len(c.records) == 0 || text == "" {
		return text
	}

	candidates := c.Records()
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].DisplayText) > len(candidates[j].DisplayText)
	})

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		matched := false
		for _, r := range candidates {
			if strings.HasPrefix(text[i:], r.DisplayText) {
				b.WriteString(r.WireToken())
				i += len(r.DisplayText)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(text[i])
			i++
		}
	}
	return b.String()
}
