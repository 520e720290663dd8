package material

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor handles Markdown files using goldmark. Headings open
// new sections; everything between two headings is that section's text.
type MarkdownExtractor struct{}

func (e *MarkdownExtractor) Extract(r io.Reader, filename string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	doc := &Document{Title: titleFromFilename(filename)}

	var heading string
	var body bytes.Buffer

	flush := func() {
		t := strings.TrimSpace(body.String())
		if heading != "" || t != "" {
			doc.Sections = append(doc.Sections, Section{Heading: heading, Text: t})
		}
		heading = ""
		body.Reset()
	}

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			flush()
			heading = string(node.Text(src))
			// The first top-level heading doubles as the document title.
			if node.Level == 1 && len(doc.Sections) == 0 && heading != "" {
				doc.Title = heading
			}

		default:
			t := blockText(n, src)
			if t != "" {
				if body.Len() > 0 {
					body.WriteString("\n\n")
				}
				body.WriteString(t)
			}
		}
	}
	flush()

	return doc, nil
}

// blockText gets the text content of a goldmark AST node. Leaf blocks
// carry their raw source lines; container blocks (lists, quotes) recurse
// with newlines between children so items do not run together.
func blockText(n ast.Node, src []byte) string {
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		var buf bytes.Buffer
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			buf.Write(lines.At(i).Value(src))
		}
		return strings.TrimSpace(buf.String())
	}

	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		sub := blockText(c, src)
		if sub == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(sub)
	}
	return strings.TrimSpace(buf.String())
}
