// Package markup parses the constrained study-guide markup dialect into a
// flat sequence of typed blocks. The dialect is deliberately small: two
// heading levels, bullets, paragraphs, fenced code, $$ display math, and
// [[BOX: ...]] callouts. Anything unrecognized degrades to a paragraph
// rather than failing the parse.
package markup

// BlockKind identifies the structural role of a Block.
type BlockKind int

const (
	// Heading1 is a top-level section heading ("### " prefix).
	Heading1 BlockKind = iota
	// Heading2 is a subsection heading ("#### " prefix).
	Heading2
	// Bullet is a single list item ("* " prefix).
	Bullet
	// Paragraph is one nonempty source line of flowing text.
	Paragraph
	// CodeBlock is the verbatim body of a ``` fence.
	CodeBlock
	// MathBlock is the formula between $$ delimiters, unrendered.
	MathBlock
	// CalloutBox is a titled [[BOX: Title | body]] callout.
	CalloutBox
	// BlankLine is a spacing signal, not content. The compositor consumes
	// it as a small vertical gap unless the cursor sits at a page top.
	BlankLine
)

// String returns the lowercase name used in logs.
func (k BlockKind) String() string {
	switch k {
	case Heading1:
		return "heading1"
	case Heading2:
		return "heading2"
	case Bullet:
		return "bullet"
	case Paragraph:
		return "paragraph"
	case CodeBlock:
		return "code_block"
	case MathBlock:
		return "math_block"
	case CalloutBox:
		return "callout_box"
	case BlankLine:
		return "blank_line"
	default:
		return "unknown"
	}
}

// Block is one parsed unit of the source markup.
//
// Text holds the content with the structural marker stripped: heading and
// bullet text, a paragraph line, the verbatim fence body, or the formula
// of a MathBlock. For CalloutBox, Title and Text carry the two halves of
// the marker; for BlankLine both are empty.
type Block struct {
	Kind  BlockKind
	Text  string
	Title string // CalloutBox only
	Line  int    // 1-based source line where the block starts
}
