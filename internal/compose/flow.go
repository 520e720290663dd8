package compose

import (
	"context"

	"github.com/CWCHIUC/guidegen/internal/markup"
	"github.com/CWCHIUC/guidegen/internal/rasterize"
)

// textStyle selects the font and color for one run of text.
type textStyle struct {
	family string
	style  string // "", "B"
	sizePt float64
	color  RGB
	lineH  float64
}

// piece is one placed fragment on a composed line: either text in a
// single style or a formula image.
type piece struct {
	text  string
	st    textStyle
	width float64 // text width or image width, without lead
	lead  float64 // horizontal gap drawn before the piece

	asset      *rasterize.Asset
	imgW, imgH float64
}

func (p piece) isImage() bool { return p.asset != nil }

func (p piece) advance() float64 { return p.lead + p.width }

// flowLine is one fully composed output line.
type flowLine struct {
	pieces []piece
	width  float64
	height float64
}

func linesHeight(lines []flowLine) float64 {
	var h float64
	for _, ln := range lines {
		h += ln.height
	}
	return h
}

// lineComposer packs pieces into lines of bounded width. Composition is
// the single source of wrapping truth: the same lines that size a block
// are the lines that get drawn, so measure and draw cannot disagree.
type lineComposer struct {
	maxW  float64
	lineH float64
	lines []flowLine
	cur   flowLine
}

func newLineComposer(maxW, lineH float64) *lineComposer {
	return &lineComposer{maxW: maxW, lineH: lineH, cur: flowLine{height: lineH}}
}

func (lc *lineComposer) remaining() float64 {
	return lc.maxW - lc.cur.width
}

func (lc *lineComposer) atLineStart() bool {
	return len(lc.cur.pieces) == 0
}

// push appends p to the current line without fit checking.
func (lc *lineComposer) push(p piece) {
	lc.cur.pieces = append(lc.cur.pieces, p)
	lc.cur.width += p.advance()
	if p.isImage() && p.imgH > lc.cur.height {
		lc.cur.height = p.imgH
	}
}

// pushText appends text, merging into the previous piece when the style
// matches so lines stay compact.
func (lc *lineComposer) pushText(text string, width float64, st textStyle) {
	if n := len(lc.cur.pieces); n > 0 {
		last := &lc.cur.pieces[n-1]
		if !last.isImage() && last.st == st && last.lead == 0 {
			last.text += text
			last.width += width
			lc.cur.width += width
			return
		}
	}
	lc.push(piece{text: text, st: st, width: width})
}

func (lc *lineComposer) breakLine() {
	lc.lines = append(lc.lines, lc.cur)
	lc.cur = flowLine{height: lc.lineH}
}

// finish commits the trailing line and returns the composed result. An
// empty final line is dropped unless nothing else was produced.
func (lc *lineComposer) finish() []flowLine {
	if len(lc.cur.pieces) > 0 || len(lc.lines) == 0 {
		lc.lines = append(lc.lines, lc.cur)
	}
	return lc.lines
}

// composeRuns lays styled runs out into lines at most maxW wide. Formula
// runs are rasterized here, during composition, so their dimensions are
// known before any drawing starts; a failed render degrades to bracketed
// placeholder text in the run's own style.
func (c *compositor) composeRuns(ctx context.Context, runs []markup.InlineRun, base textStyle, maxW float64) []flowLine {
	lc := newLineComposer(maxW, base.lineH)
	for _, run := range runs {
		if run.IsFormula() {
			c.composeFormula(ctx, lc, run, base)
			continue
		}
		c.composeText(lc, run.Text, c.runStyle(run, base))
	}
	return lc.finish()
}

// composeText splits text on spaces and packs the tokens greedily.
func (c *compositor) composeText(lc *lineComposer, text string, st textStyle) {
	prepared := c.prepare(st, text)
	if prepared == "" {
		return
	}
	c.applyStyle(st)

	for _, tok := range splitTokens(prepared) {
		if tok[0] == ' ' && lc.atLineStart() && len(lc.lines) > 0 {
			// Wrapped lines never start with spaces.
			continue
		}
		w := c.pdf.GetStringWidth(tok)
		if w <= lc.remaining() {
			lc.pushText(tok, w, st)
			continue
		}
		if tok[0] == ' ' {
			// The breaking space is consumed by the wrap.
			lc.breakLine()
			continue
		}
		if !lc.atLineStart() {
			lc.breakLine()
		}
		if w <= lc.remaining() {
			lc.pushText(tok, w, st)
			continue
		}
		// Token wider than a whole line: hard-split on character
		// boundaries the way MultiCell does.
		for _, part := range c.pdf.SplitText(tok, lc.maxW) {
			if !lc.atLineStart() {
				lc.breakLine()
			}
			lc.pushText(part, c.pdf.GetStringWidth(part), st)
		}
	}
}

// composeFormula renders an inline formula and places it as an image
// piece with a small lead-in gap, wrapping first when it cannot fit.
func (c *compositor) composeFormula(ctx context.Context, lc *lineComposer, run markup.InlineRun, base textStyle) {
	res := c.render(ctx, run.Formula, rasterize.InlineDPI)
	if !res.OK() {
		st := c.runStyle(markup.InlineRun{Bold: run.Bold}, base)
		c.composeText(lc, " [ "+run.Formula+" ] ", st)
		return
	}

	a := res.Asset
	w, h := a.WidthMM(), a.HeightMM()
	if w > lc.maxW {
		h = h * lc.maxW / w
		w = lc.maxW
	}
	if inlineMathLead+w > lc.remaining() && !lc.atLineStart() {
		lc.breakLine()
	}
	lc.push(piece{asset: a, imgW: w, imgH: h, width: w, lead: inlineMathLead})
}

// splitTokens cuts s into alternating space and word tokens, preserving
// every byte.
func splitTokens(s string) []string {
	var toks []string
	start := 0
	inSpace := false
	for i := 0; i < len(s); i++ {
		isSpace := s[i] == ' '
		if i > 0 && isSpace != inSpace {
			toks = append(toks, s[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(s) {
		toks = append(toks, s[start:])
	}
	return toks
}
