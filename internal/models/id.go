package models

import (
	"strings"

	"github.com/google/uuid"
)

// EmojiIDLength is the fixed width of a catalog emoji identifier
const EmojiIDLength = 26

// NewID returns a fresh opaque identifier: a random UUID rendered without hyphens
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewEmojiID returns a fresh 26-character emoji identifier
func NewEmojiID() string {
	return strings.ToUpper(NewID()[:EmojiIDLength])
}

// IsAlphanumeric reports whether s is non-empty and made only of ASCII letters and digits
func IsAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !IsAlphanumericByte(s[i]) {
			return false
		}
	}
	return true
}

// IsAlphanumericByte reports whether b is an ASCII letter or digit
func IsAlphanumericByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// IsEmojiID reports whether s has the shape of a catalog emoji identifier
func IsEmojiID(s string) bool {
	return len(s) == EmojiIDLength && IsAlphanumeric(s)
}
