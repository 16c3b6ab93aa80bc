package snapshot

import (
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

// Compactor shrinks snapshot content before it is persisted.
type Compactor interface {
	Compact(content string) (string, error)
}

// HTMLMinifier compacts body markup with tdewolff/minify. Document tags,
// end tags, quotes and default attribute values are kept so restored
// markup stays structurally identical.
type HTMLMinifier struct {
	m *minify.M
}

// NewHTMLMinifier creates an HTMLMinifier.
func NewHTMLMinifier() *HTMLMinifier {
	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepDefaultAttrVals: true,
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
	})
	return &HTMLMinifier{m: m}
}

// Compact minifies the markup.
func (h *HTMLMinifier) Compact(content string) (string, error) {
	return h.m.String("text/html", content)
}
