package models

// Emoji is a catalog-backed image emoji addressed by a 26-character ID
type Emoji struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"` // Owning server, empty for global packs
	Animated bool   `json:"animated,omitempty"`
}

// NewEmoji creates a new catalog emoji owned by parentID
func NewEmoji(name, parentID string) *Emoji {
	return &Emoji{
		ID:       NewEmojiID(),
		Name:     name,
		ParentID: parentID,
	}
}

// Shortcode returns the ":name:" form of the emoji
func (e *Emoji) Shortcode() string {
	return ":" + e.Name + ":"
}
