package render

import (
	"github.com/concord-chat/refnav/internal/markup"
	"github.com/concord-chat/refnav/internal/resolve"
)

// Pipeline renders wire text through four ordered stages:
//
//  1. StripEmptyLinks deletes blank-label links. No ranges exist yet.
//  2. Scan tokenizes the stripped text. Token ranges index the stripped text.
//  3. Resolve pairs each token with display text. Ranges are unchanged.
//  4. Render splices in reverse start order. Output ranges index the result.
//
// Links are removed before any range is taken, so their removal can never
// shift or corrupt a mention range.
type Pipeline struct {
	resolver *resolve.Resolver
}

// NewPipeline creates a pipeline that resolves against r
func NewPipeline(r *resolve.Resolver) *Pipeline {
	return &Pipeline{resolver: r}
}

// Resolver returns the resolver used by the pipeline
func (p *Pipeline) Resolver() *resolve.Resolver {
	return p.resolver
}

// Render runs all stages over wire-form text
func (p *Pipeline) Render(text string) Display {
	d, _ := p.RenderWithReferences(text)
	return d
}

// RenderWithReferences runs all stages and also returns the resolved
// references, whose ranges index the link-stripped text
func (p *Pipeline) RenderWithReferences(text string) (Display, []resolve.Reference) {
	clean := markup.StripEmptyLinks(text)
	refs := p.resolver.ResolveAll(markup.Scan(clean))
	return Render(clean, refs), refs
}
