package resolve

import (
	"github.com/yuin/goldmark-emoji/definition"
)

// Shortcode is the result of a shortcode table hit: either a Unicode
// character sequence or an alias for a catalog emoji.
type Shortcode struct {
	Unicode string
	EmojiID string
}

// IsAlias reports whether the shortcode points at a catalog emoji
func (s Shortcode) IsAlias() bool {
	return s.EmojiID != ""
}

// ShortcodeTable resolves :name: shortcodes. Custom aliases are checked
// first, then the standard GitHub emoji table.
type ShortcodeTable struct {
	aliases map[string]string
	std     definition.Emojis
}

// NewShortcodeTable builds a table from the standard set plus custom aliases
// mapping a shortcode name to a catalog emoji ID.
func NewShortcodeTable(aliases map[string]string, extra ...definition.Emoji) *ShortcodeTable {
	var opts []definition.EmojisOption
	if len(extra) > 0 {
		opts = append(opts, definition.WithEmojis(extra...))
	}
	t := &ShortcodeTable{
		aliases: make(map[string]string, len(aliases)),
		std:     definition.Github(opts...),
	}
	for name, id := range aliases {
		t.aliases[name] = id
	}
	return t
}

// UnicodeEmoji builds an extra Unicode table entry for NewShortcodeTable
func UnicodeEmoji(name, value string) definition.Emoji {
	return definition.NewEmoji(name, []rune(value), name)
}

// Lookup returns the table entry for name. Standard entries without a
// Unicode rendition count as misses.
func (t *ShortcodeTable) Lookup(name string) (Shortcode, bool) {
	if id, ok := t.aliases[name]; ok {
		return Shortcode{EmojiID: id}, true
	}
	if t.std == nil {
		return Shortcode{}, false
	}
	em, ok := t.std.Get(name)
	if !ok || !em.IsUnicode() {
		return Shortcode{}, false
	}
	return Shortcode{Unicode: string(em.Unicode)}, true
}

// Aliases returns the number of custom aliases in the table
func (t *ShortcodeTable) Aliases() int {
	return len(t.aliases)
}
