// Package highlight paints rendered messages for terminal output using
// TOML palettes and lipgloss styles.
package highlight

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pelletier/go-toml/v2"
)

// DefaultPalette is used when no palette is configured
const DefaultPalette = "default"

//go:embed palettes/*.toml
var embeddedPalettes embed.FS

// Palette is a named set of colors for message text
type Palette struct {
	Meta   PaletteMeta   `toml:"meta"`
	Colors PaletteColors `toml:"colors"`
}

// PaletteMeta contains metadata about the palette
type PaletteMeta struct {
	Name    string `toml:"name"`
	Variant string `toml:"variant"` // "dark" or "light"
}

// PaletteColors maps colors to reference kinds
type PaletteColors struct {
	Text        string `toml:"text"`
	Mention     string `toml:"mention"`
	MentionSelf string `toml:"mention_self"`
	Channel     string `toml:"channel"`
	Unknown     string `toml:"unknown"`
	Emoji       string `toml:"emoji"`
	Notice      string `toml:"notice"`
	Error       string `toml:"error"`
}

// Styles contains pre-computed lipgloss styles for a palette
type Styles struct {
	Text        lipgloss.Style
	Mention     lipgloss.Style
	MentionSelf lipgloss.Style
	Channel     lipgloss.Style
	Unknown     lipgloss.Style
	Emoji       lipgloss.Style
	Notice      lipgloss.Style
	Error       lipgloss.Style
	Selected    lipgloss.Style // span picked in the message browser
}

// LoadPalette reads a palette from a TOML file
func LoadPalette(path string) (*Palette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read palette file: %w", err)
	}
	return parsePalette(path, data)
}

// GetPalette returns a bundled palette by name, or the palette file at name
// when it ends in .toml
func GetPalette(name string) (*Palette, error) {
	if name == "" {
		name = DefaultPalette
	}
	if strings.HasSuffix(name, ".toml") {
		return LoadPalette(name)
	}
	data, err := embeddedPalettes.ReadFile("palettes/" + name + ".toml")
	if err != nil {
		return nil, fmt.Errorf("palette %q not found", name)
	}
	return parsePalette(name, data)
}

func parsePalette(name string, data []byte) (*Palette, error) {
	var p Palette
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse palette %q: %w", name, err)
	}
	return &p, nil
}

// ListPalettes returns the names of the bundled palettes
func ListPalettes() []string {
	entries, _ := fs.ReadDir(embeddedPalettes, "palettes")
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".toml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".toml"))
		}
	}
	sort.Strings(names)
	return names
}

// BuildStyles creates lipgloss styles from a palette
func (p *Palette) BuildStyles() *Styles {
	fg := func(c string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}
	return &Styles{
		Text:        fg(p.Colors.Text),
		Mention:     fg(p.Colors.Mention).Bold(true),
		MentionSelf: fg(p.Colors.MentionSelf).Bold(true).Underline(true),
		Channel:     fg(p.Colors.Channel).Bold(true),
		Unknown:     fg(p.Colors.Unknown).Italic(true),
		Emoji:       fg(p.Colors.Emoji),
		Notice:      fg(p.Colors.Notice),
		Error:       fg(p.Colors.Error).Bold(true),
		Selected:    fg(p.Colors.Mention).Bold(true).Reverse(true),
	}
}

// PlainStyles returns styles that leave text unchanged
func PlainStyles() *Styles {
	s := lipgloss.NewStyle()
	return &Styles{s, s, s, s, s, s, s, s, s}
}
