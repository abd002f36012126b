// Package html provides an HTML text extractor for the ingest pipeline.
// Uses go-readability's article heuristics to strip navigation, ads, and
// boilerplate from an uploaded service-design page, leaving the prose a
// create workflow should actually read.
package html

import (
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/RichieB2B/orchestrator-core/intake"
)

// TypeHTML is the content type for HTML documents.
const TypeHTML = intake.TypeHTML

// Extractor implements intake.Extractor for HTML documents.
type Extractor struct {
	// BaseURL resolves relative links and images readability encounters
	// while parsing. Uploaded documents rarely carry one, so it may be nil.
	BaseURL *url.URL
}

// NewExtractor creates an HTML extractor with no base URL.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract runs content through readability's content heuristics and
// returns the resulting article's plain text.
func (e *Extractor) Extract(content []byte) (string, error) {
	if len(strings.TrimSpace(string(content))) == 0 {
		return "", nil
	}
	article, err := readability.FromReader(strings.NewReader(string(content)), e.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return strings.TrimSpace(article.TextContent), nil
}

var _ intake.Extractor = (*Extractor)(nil)
