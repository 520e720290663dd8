// Package material extracts plain text from uploaded course material
// (course and exam descriptions, syllabi, unit outlines) so the text
// generator can ground study guides in it. Each supported format gets
// its own extractor; all of them produce the same flat Document.
package material

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Document is extracted course material: a title plus linear sections.
type Document struct {
	Title    string
	Sections []Section
}

// Section is one contiguous stretch of material text. Heading is empty
// for text that appeared before any heading; Page is set only by the
// PDF extractor.
type Section struct {
	Heading string
	Text    string
	Page    int
}

// PlainText flattens the document for prompt building: heading lines
// followed by their text, sections separated by blank lines.
func (d *Document) PlainText() string {
	var b strings.Builder
	for _, s := range d.Sections {
		if s.Heading != "" {
			b.WriteString(s.Heading)
			b.WriteString("\n")
		}
		if s.Text != "" {
			b.WriteString(s.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// Extractor converts raw material bytes into a Document.
type Extractor interface {
	Extract(r io.Reader, filename string) (*Document, error)
}

// SupportedExtensions lists the material formats the service accepts.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".docx":     true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".txt":      true,
}

// ForFile returns the extractor matching a filename.
func ForFile(filename string) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return &PDFExtractor{}, nil
	case ".docx":
		return &DOCXExtractor{}, nil
	case ".md", ".markdown":
		return &MarkdownExtractor{}, nil
	case ".html", ".htm":
		return &HTMLExtractor{}, nil
	case ".txt":
		return &TextExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported material format: %s", filepath.Ext(filename))
	}
}

// IsSupported checks a filename against SupportedExtensions.
func IsSupported(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ExtractText is the one-call path the pipeline uses: pick an extractor,
// run it, and flatten the result.
func ExtractText(r io.Reader, filename string) (string, error) {
	ex, err := ForFile(filename)
	if err != nil {
		return "", err
	}
	doc, err := ex.Extract(r, filename)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(filename), err)
	}
	return doc.PlainText(), nil
}

// titleFromFilename strips the directory and extension.
func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
