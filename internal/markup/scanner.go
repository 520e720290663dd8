package markup

import "strings"

// Scanner walks source markup and produces one Block per call to Next,
// in source order, in a single forward pass. It never fails: malformed
// input falls through to Paragraph blocks, and an unterminated fence or
// $$ region is closed implicitly at end of input.
//
// Usage mirrors bufio.Scanner:
//
//	sc := markup.Scan(src)
//	for sc.Next() {
//		b := sc.Block()
//		...
//	}
type Scanner struct {
	lines []string
	pos   int // index into lines of the next unconsumed line
	cur   Block
}

// Scan returns a Scanner positioned before the first block of src.
func Scan(src string) *Scanner {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	return &Scanner{lines: strings.Split(src, "\n")}
}

// Next advances to the next block. It returns false once input is
// exhausted.
func (s *Scanner) Next() bool {
	if s.pos >= len(s.lines) {
		return false
	}
	// A trailing newline yields one final empty element from Split;
	// swallow it rather than emitting a phantom BlankLine.
	if s.pos == len(s.lines)-1 && s.lines[s.pos] == "" {
		s.pos++
		return false
	}

	line := s.lines[s.pos]
	start := s.pos + 1 // 1-based
	trimmed := strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(trimmed, "```"):
		s.cur = s.scanFence(start)
	case strings.HasPrefix(trimmed, "$$"):
		s.cur = s.scanMathBlock(start)
	case isCalloutLine(trimmed):
		s.pos++
		s.cur = parseCallout(trimmed, start)
	default:
		s.pos++
		s.cur = classifyLine(line, start)
	}
	return true
}

// Block returns the block produced by the last successful Next.
func (s *Scanner) Block() Block {
	return s.cur
}

// Blocks drains the scanner and returns every remaining block. Convenience
// for callers that want the whole document at once.
func (s *Scanner) Blocks() []Block {
	var out []Block
	for s.Next() {
		out = append(out, s.Block())
	}
	return out
}

// scanFence consumes a ``` fence starting at the current line. Any
// language tag on the opening line is dropped; the body is kept verbatim.
// A fence with no closing line runs to end of input.
func (s *Scanner) scanFence(start int) Block {
	open := strings.TrimSpace(s.lines[s.pos])
	s.pos++

	var body []string
	// One-line fence: ```code``` on a single line.
	if rest := strings.TrimPrefix(open, "```"); strings.HasSuffix(rest, "```") && rest != "" {
		return Block{Kind: CodeBlock, Text: strings.TrimSuffix(rest, "```"), Line: start}
	}
	for s.pos < len(s.lines) {
		line := s.lines[s.pos]
		s.pos++
		if strings.TrimSpace(line) == "```" {
			break
		}
		body = append(body, line)
	}
	return Block{Kind: CodeBlock, Text: strings.Join(body, "\n"), Line: start}
}

// scanMathBlock consumes a $$ display formula. The formula may close on
// the opening line ($$x^2$$) or on a later line ending with $$.
func (s *Scanner) scanMathBlock(start int) Block {
	first := strings.TrimSpace(s.lines[s.pos])
	s.pos++

	rest := strings.TrimPrefix(first, "$$")
	if idx := strings.Index(rest, "$$"); idx >= 0 {
		return Block{Kind: MathBlock, Text: strings.TrimSpace(rest[:idx]), Line: start}
	}

	parts := []string{rest}
	for s.pos < len(s.lines) {
		line := strings.TrimRight(s.lines[s.pos], " \t")
		s.pos++
		if strings.HasSuffix(line, "$$") {
			parts = append(parts, strings.TrimSuffix(line, "$$"))
			break
		}
		parts = append(parts, line)
	}
	return Block{Kind: MathBlock, Text: strings.TrimSpace(strings.Join(parts, " ")), Line: start}
}

// isCalloutLine reports whether a trimmed line is a complete callout
// marker. The marker must open and close on the same line.
func isCalloutLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "[[BOX:") && strings.HasSuffix(trimmed, "]]")
}

// parseCallout splits "[[BOX: Title | body]]" into its halves. A marker
// with no "|" separator keeps the whole payload as the body under a
// generic title, so sloppy generator output still renders.
func parseCallout(trimmed string, start int) Block {
	payload := strings.TrimSuffix(strings.TrimPrefix(trimmed, "[[BOX:"), "]]")
	title, body, ok := strings.Cut(payload, "|")
	if !ok {
		return Block{Kind: CalloutBox, Title: "Note", Text: strings.TrimSpace(payload), Line: start}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Note"
	}
	return Block{Kind: CalloutBox, Title: title, Text: strings.TrimSpace(body), Line: start}
}

// classifyLine maps a single top-level line to its block kind.
func classifyLine(line string, start int) Block {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return Block{Kind: BlankLine, Line: start}
	case strings.HasPrefix(trimmed, "### "):
		return Block{Kind: Heading1, Text: strings.TrimSpace(trimmed[4:]), Line: start}
	case strings.HasPrefix(trimmed, "#### "):
		return Block{Kind: Heading2, Text: strings.TrimSpace(trimmed[5:]), Line: start}
	case strings.HasPrefix(trimmed, "* "):
		return Block{Kind: Bullet, Text: strings.TrimSpace(trimmed[2:]), Line: start}
	default:
		return Block{Kind: Paragraph, Text: trimmed, Line: start}
	}
}
