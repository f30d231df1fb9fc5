package skills

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Heading is one entry in a skill document outline.
type Heading struct {
	Level int
	Text  string
}

// Preview parses a full SKILL.md document and returns its frontmatter
// mapping and heading outline. It is permissive: a document the strict
// parser rejects still previews, with nil frontmatter.
func Preview(content string) (map[string]any, []Heading, error) {
	md := goldmark.New(goldmark.WithExtensions(meta.Meta))
	source := []byte(content)

	pctx := parser.NewContext()
	doc := md.Parser().Parse(text.NewReader(source), parser.WithContext(pctx))

	var headings []Heading
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			headings = append(headings, Heading{Level: h.Level, Text: headingText(h, source)})
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "walking skill document")
	}
	return meta.Get(pctx), headings, nil
}

func headingText(h *ast.Heading, source []byte) string {
	var buf bytes.Buffer
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}
