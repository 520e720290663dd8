package material

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// TextExtractor handles .txt files. Blank lines split sections.
type TextExtractor struct{}

func (e *TextExtractor) Extract(r io.Reader, filename string) (*Document, error) {
	doc := &Document{Title: titleFromFilename(filename)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}

	var para []string
	flush := func() {
		if len(para) == 0 {
			return
		}
		doc.Sections = append(doc.Sections, Section{
			Text: strings.Join(para, "\n"),
		})
		para = para[:0]
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		para = append(para, strings.TrimRight(line, " \t"))
	}
	flush()

	return doc, nil
}
