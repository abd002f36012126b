// Package markdown provides a Markdown text extractor for the ingest
// pipeline. Parses with goldmark and walks the resulting AST rather than
// rendering to HTML first, so headings and paragraphs come out as plain
// prose instead of markup.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/RichieB2B/orchestrator-core/intake"
)

// TypeMarkdown is the content type for Markdown documents.
const TypeMarkdown = intake.TypeMarkdown

// Extractor implements intake.Extractor for Markdown documents.
type Extractor struct{}

// NewExtractor creates a Markdown extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract walks content's Markdown AST and returns its prose, blocks
// separated by a blank line, headings rendered as "# heading text" so structure survives
// the round trip into plain text.
func (e *Extractor) Extract(content []byte) (string, error) {
	source := []byte(strings.TrimSpace(string(content)))
	if len(source) == 0 {
		return "", nil
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var lines []string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			lines = append(lines, strings.Repeat("#", node.Level)+" "+collectText(node, source))
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph:
			lines = append(lines, collectText(node, source))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			lines = append(lines, collectLines(node, source))
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			lines = append(lines, collectLines(node, source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walk markdown: %w", err)
	}

	return strings.Join(lines, "\n\n"), nil
}

// collectText joins node's direct text children into one line; text nested
// inside emphasis, links or inline code is not included.
func collectText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

// collectLines joins a code block's raw lines, exactly as written.
func collectLines(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return strings.TrimSpace(buf.String())
}

var _ intake.Extractor = (*Extractor)(nil)
