package resolve

import (
	"github.com/concord-chat/refnav/internal/markup"
	"github.com/concord-chat/refnav/internal/models"
)

// Fallback display texts for mentions of entities that are not cached
const (
	UnknownUser    = "@Unknown User"
	UnknownChannel = "#unknown-channel"
)

// Reference is a token paired with the text it displays as.
//
// Found is false for mentions of uncached entities (DisplayText then holds
// the fallback) and for shortcode misses. Placeholder marks image-backed
// emoji whose EntityID names the catalog emoji to draw. Literal marks tokens
// whose source text must be kept as is.
type Reference struct {
	Token       markup.Token `json:"token"`
	Found       bool         `json:"found"`
	DisplayText string       `json:"display_text"`
	EntityID    string       `json:"entity_id,omitempty"`
	Placeholder bool         `json:"placeholder,omitempty"`
	Literal     bool         `json:"literal,omitempty"`
}

// Resolver resolves tokens against an injected entity store
type Resolver struct {
	store      EntityStore
	dir        ChannelDirectory
	shortcodes *ShortcodeTable
}

// Option configures a Resolver
type Option func(*Resolver)

// WithChannelDirectory sets the secondary "all known channels" cache
func WithChannelDirectory(dir ChannelDirectory) Option {
	return func(r *Resolver) {
		r.dir = dir
	}
}

// WithShortcodes replaces the default shortcode table
func WithShortcodes(t *ShortcodeTable) Option {
	return func(r *Resolver) {
		r.shortcodes = t
	}
}

// New creates a resolver. When the store also implements ChannelDirectory
// it is used as the secondary channel cache unless one is given explicitly.
func New(store EntityStore, opts ...Option) *Resolver {
	r := &Resolver{store: store}
	if dir, ok := store.(ChannelDirectory); ok {
		r.dir = dir
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.shortcodes == nil {
		r.shortcodes = NewShortcodeTable(nil)
	}
	return r
}

// Store returns the entity store the resolver reads from
func (r *Resolver) Store() EntityStore {
	return r.store
}

// Directory returns the secondary channel cache, if any
func (r *Resolver) Directory() ChannelDirectory {
	return r.dir
}

// Resolve maps a token to its display reference. It never fails: unknown
// entities resolve to deterministic fallback text, so resolving the same
// token against the same store always gives the same result.
func (r *Resolver) Resolve(tok markup.Token) Reference {
	switch tok.Kind {
	case markup.KindUserMention:
		return r.resolveUser(tok)
	case markup.KindChannelMention:
		return r.resolveChannel(tok)
	case markup.KindCustomEmoji:
		return r.resolveCustomEmoji(tok)
	case markup.KindShortcodeEmoji:
		return r.resolveShortcode(tok)
	default:
		return Reference{Token: tok, Literal: true}
	}
}

// ResolveAll resolves every reference token in order. Link tokens are
// dropped since they are removed, not resolved.
func (r *Resolver) ResolveAll(tokens []markup.Token) []Reference {
	if len(tokens) == 0 {
		return nil
	}
	refs := make([]Reference, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Kind == markup.KindMarkdownLink {
			continue
		}
		refs = append(refs, r.Resolve(tok))
	}
	return refs
}

func (r *Resolver) resolveUser(tok markup.Token) Reference {
	user, ok := r.store.GetUser(tok.RawID)
	if !ok || user == nil {
		return Reference{Token: tok, DisplayText: UnknownUser, EntityID: tok.RawID}
	}
	return Reference{
		Token:       tok,
		Found:       true,
		DisplayText: "@" + user.GetDisplayName(),
		EntityID:    user.ID,
	}
}

func (r *Resolver) resolveChannel(tok markup.Token) Reference {
	ch, ok := LookupChannel(r.store, r.dir, tok.RawID)
	if !ok || ch == nil {
		return Reference{Token: tok, DisplayText: UnknownChannel, EntityID: tok.RawID}
	}
	return Reference{
		Token:       tok,
		Found:       true,
		DisplayText: "#" + ChannelDisplayName(ch),
		EntityID:    ch.ID,
	}
}

func (r *Resolver) resolveCustomEmoji(tok markup.Token) Reference {
	ref := Reference{
		Token:       tok,
		DisplayText: ":" + tok.RawID + ":",
		EntityID:    tok.RawID,
		Placeholder: true,
	}
	if em, ok := r.store.GetEmoji(tok.RawID); ok && em != nil {
		ref.Found = true
		ref.DisplayText = em.Shortcode()
	}
	return ref
}

func (r *Resolver) resolveShortcode(tok markup.Token) Reference {
	sc, ok := r.shortcodes.Lookup(tok.RawID)
	if !ok {
		return Reference{Token: tok, DisplayText: ":" + tok.RawID + ":", Literal: true}
	}
	if sc.IsAlias() {
		return Reference{
			Token:       tok,
			Found:       true,
			DisplayText: ":" + tok.RawID + ":",
			EntityID:    sc.EmojiID,
			Placeholder: true,
		}
	}
	return Reference{Token: tok, Found: true, DisplayText: sc.Unicode}
}

// ChannelDisplayName returns the name a channel is shown under, without
// the leading "#". Conversation kinds get synthesized names.
func ChannelDisplayName(ch *models.Channel) string {
	switch ch.Type {
	case models.ChannelTypeDM:
		return "DM"
	case models.ChannelTypeGroupDM:
		if ch.Name != "" {
			return ch.Name
		}
		return "Group DM"
	case models.ChannelTypeSavedMessages:
		return "Saved Messages"
	default:
		if ch.Name == "" {
			return "unnamed"
		}
		return ch.Name
	}
}
