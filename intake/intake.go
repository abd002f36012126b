// Package intake turns an uploaded service-design document (PDF, DOCX, CSV,
// JSON, HTML, or Markdown) into the initial State a create-target workflow
// starts from, via a registry of per-content-type Extractors.
package intake

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// ContentType names the MIME-ish shape of an uploaded document.
type ContentType string

const (
	TypePDF      ContentType = "application/pdf"
	TypeDOCX     ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeCSV      ContentType = "text/csv"
	TypeJSON     ContentType = "application/json"
	TypeHTML     ContentType = "text/html"
	TypeMarkdown ContentType = "text/markdown"
)

// Extractor turns raw document bytes into readable text.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// Image is an embedded image recovered from a document, base64-encoded for
// inline use.
type Image struct {
	MimeType string
	Base64   string
}

// PageMeta describes one section of extracted text: the heading it falls
// under, its byte range within the returned text, and any images found in
// that section.
type PageMeta struct {
	Heading   string
	StartByte int
	EndByte   int
	Images    []Image
}

// ExtractResult is the text plus structural metadata a MetadataExtractor
// recovers from a document richer than plain text (currently DOCX).
type ExtractResult struct {
	Text string
	Meta []PageMeta
}

// MetadataExtractor is the richer extraction contract DOCX's Extractor
// satisfies in addition to Extractor.
type MetadataExtractor interface {
	ExtractWithMeta(content []byte) (ExtractResult, error)
}

// Registry maps content types to the Extractor that handles them.
type Registry struct {
	extractors map[ContentType]Extractor
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[ContentType]Extractor)}
}

// Register binds ct to e, replacing any extractor already bound to ct.
func (r *Registry) Register(ct ContentType, e Extractor) {
	r.extractors[ct] = e
}

// Extract runs content through the Extractor registered for ct.
func (r *Registry) Extract(ct ContentType, content []byte) (string, error) {
	e, ok := r.extractors[ct]
	if !ok {
		return "", fmt.Errorf("intake: no extractor registered for %s", ct)
	}
	return e.Extract(content)
}

// Document is an uploaded service-design document awaiting intake into a
// workflow's initial input form.
type Document struct {
	Name        string
	ContentType ContentType
	Content     []byte
}

// PopulateForm extracts doc's text and returns the State a create-target
// workflow's InitialInputForm should be seeded with: the raw extracted text
// under "document_text" plus the document's name and content type for
// provenance.
func (r *Registry) PopulateForm(doc Document) (map[string]any, error) {
	text, err := r.Extract(doc.ContentType, doc.Content)
	if err != nil {
		return nil, fmt.Errorf("intake: populate form: %w", err)
	}
	// Different source documents normalize accented/combining characters
	// differently; NFC keeps field comparisons (site names, VLAN labels)
	// stable regardless of which extractor produced the text.
	text = norm.NFC.String(text)
	return map[string]any{
		"document_name":         doc.Name,
		"document_content_type": string(doc.ContentType),
		"document_text":         text,
	}, nil
}
