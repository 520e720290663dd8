package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/go-pdf/fpdf"

	"github.com/CWCHIUC/guidegen/internal/markup"
	"github.com/CWCHIUC/guidegen/internal/rasterize"
)

// Page geometry, all in millimeters on US Letter.
const (
	marginLeft  = 20.0
	marginTop   = 10.0
	marginRight = 20.0
	breakMargin = 25.0 // free space kept at the page bottom

	lineHeight     = 6.0
	codeLineHeight = 5.0
	h1LineHeight   = 10.0
	h2LineHeight   = 8.0

	bodyFontPt = 11.0
	codeFontPt = 10.0
	h1FontPt   = 20.0
	h2FontPt   = 16.0

	h1GapAfter = 6.0
	h2GapAfter = 4.0
	blankGap   = 3.0

	bulletIndent   = 5.0
	inlineMathLead = 1.5
	mathBlockPad   = 2.0
	codeGapAfter   = 5.0
	codePadX       = 1.5

	boxBarWidth = 1.5
	boxPadX     = 3.0
	boxPadY     = 3.0
	boxTitleGap = 1.0
	boxGapAfter = 3.0
)

// ErrFinalized is returned when a Compositor is asked to draw after its
// document has been finalized.
var ErrFinalized = errors.New("compose: document already finalized")

// compositor drives one PDF document. It owns the cursor: every draw
// method measures first, breaks the page if the block will not fit, then
// draws, so content never lands inside the bottom margin.
type compositor struct {
	pdf      *fpdf.Fpdf
	style    Style
	fonts    fontSet
	renderer rasterize.Renderer
	log      *slog.Logger
	title    string

	finalized  bool
	imageSeq   int
	contentTop float64 // y where content starts on the current page
	pageW      float64
	pageH      float64
}

func newCompositor(opts Options) *compositor {
	o := opts.withDefaults()

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetTitle(o.Title, true)
	pdf.SetCreationDate(o.CreationDate)
	pdf.SetMargins(marginLeft, marginTop, marginRight)
	pdf.SetAutoPageBreak(false, breakMargin)
	pdf.SetCellMargin(0)

	c := &compositor{
		pdf:      pdf,
		style:    o.style(),
		fonts:    loadFonts(pdf, o.UnicodeFontPath, o.Logger),
		renderer: o.Renderer,
		log:      o.Logger.With("component", "compose"),
		title:    o.Title,
	}
	c.pageW, c.pageH = pdf.GetPageSize()

	pdf.SetHeaderFunc(c.header)
	pdf.SetFooterFunc(c.footer)
	pdf.AddPage()
	c.contentTop = pdf.GetY()
	return c
}

// header draws the full banner on page one and a slimmer strip on every
// page after it.
func (c *compositor) header() {
	title := c.prepare(c.bannerStyle(), c.title)
	if c.pdf.PageNo() == 1 {
		c.pdf.SetFont(c.fonts.body, "B", 10)
		c.setTextColor(c.style.Secondary)
		c.pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
		c.pdf.Ln(5)
		c.setDrawColor(c.style.Secondary)
		c.pdf.SetLineWidth(0.4)
		y := c.pdf.GetY()
		c.pdf.Line(marginLeft, y, c.pageW-marginRight, y)
		c.pdf.Ln(10)
		return
	}
	c.pdf.SetFont(c.fonts.body, "B", 8)
	c.setTextColor(RGB{150, 150, 150})
	c.pdf.CellFormat(0, 6, title, "", 1, "L", false, 0, "")
	c.setDrawColor(RGB{200, 200, 200})
	c.pdf.SetLineWidth(0.2)
	y := c.pdf.GetY()
	c.pdf.Line(marginLeft, y, c.pageW-marginRight, y)
	c.pdf.Ln(6)
}

func (c *compositor) footer() {
	c.pdf.SetY(-15)
	c.pdf.SetFont("Helvetica", "I", 8)
	c.setTextColor(RGB{128, 128, 128})
	c.pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", c.pdf.PageNo()), "", 0, "C", false, 0, "")
}

// DrawBlock routes one parsed block to its drawing capability.
func (c *compositor) DrawBlock(ctx context.Context, b markup.Block) error {
	if c.finalized {
		return ErrFinalized
	}
	switch b.Kind {
	case markup.Heading1:
		c.drawHeading(ctx, 1, b.Text)
	case markup.Heading2:
		c.drawHeading(ctx, 2, b.Text)
	case markup.Bullet:
		c.drawBullet(ctx, b.Text)
	case markup.Paragraph:
		c.drawParagraph(ctx, b.Text)
	case markup.CodeBlock:
		c.drawCodeBlock(b.Text)
	case markup.MathBlock:
		c.drawMathBlock(ctx, b.Text)
	case markup.CalloutBox:
		c.drawCalloutBox(ctx, b.Title, b.Text)
	case markup.BlankLine:
		c.drawSpacer()
	default:
		c.drawParagraph(ctx, b.Text)
	}
	return nil
}

// Finalize closes the document and returns the PDF bytes. The compositor
// accepts no further drawing afterwards.
func (c *compositor) Finalize() ([]byte, error) {
	if c.finalized {
		return nil, ErrFinalized
	}
	c.finalized = true

	var buf bytes.Buffer
	if err := c.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("finalize document: %w", err)
	}
	return buf.Bytes(), nil
}

// Pages returns the number of pages allocated so far.
func (c *compositor) Pages() int {
	return c.pdf.PageNo()
}

// drawHeading draws a level 1 or 2 section heading. Level 1 gets a rule
// line under the text. Headings never straddle a page break.
func (c *compositor) drawHeading(ctx context.Context, level int, text string) {
	st := c.h1Style()
	gap := h1GapAfter
	if level == 2 {
		st = c.h2Style()
		gap = h2GapAfter
	}

	lines := c.composeRuns(ctx, markup.ResolveInline(text), st, c.contentWidth())
	extra := 0.0
	if level == 1 {
		extra = 2.0 // room for the rule
	}
	c.ensureSpace(linesHeight(lines) + extra)
	c.drawLinesFlow(lines, marginLeft)

	if level == 1 {
		y := c.pdf.GetY() + 1.0
		c.setDrawColor(c.style.Secondary)
		c.pdf.SetLineWidth(0.3)
		c.pdf.Line(marginLeft, y, c.pageW-marginRight, y)
	}
	c.pdf.Ln(gap)
}

// drawParagraph draws one line of flowing text, reflowing across pages
// as needed.
func (c *compositor) drawParagraph(ctx context.Context, text string) {
	runs := markup.ResolveInline(text)
	if len(runs) == 0 {
		return
	}
	lines := c.composeRuns(ctx, runs, c.bodyStyle(), c.contentWidth())
	c.drawLinesFlow(lines, marginLeft)
}

// drawBullet draws a marker glyph and the item text with a hanging
// indent. Continuation lines keep the indent across page breaks.
func (c *compositor) drawBullet(ctx context.Context, text string) {
	st := c.bodyStyle()
	lines := c.composeRuns(ctx, markup.ResolveInline(text), st, c.contentWidth()-bulletIndent)

	first := lineHeight
	if len(lines) > 0 {
		first = lines[0].height
	}
	c.ensureSpace(first)

	c.applyStyle(st)
	c.pdf.SetX(marginLeft)
	c.pdf.CellFormat(bulletIndent, first, "*", "", 0, "L", false, 0, "")
	c.drawLinesFlow(lines, marginLeft+bulletIndent)
}

// drawCodeBlock draws verbatim text on a solid background. The block is
// atomic: if it cannot fit in the remaining space it starts a new page.
func (c *compositor) drawCodeBlock(text string) {
	st := c.codeBlockStyle()
	c.applyStyle(st)

	wrapped := c.wrapCode(text)
	h := float64(len(wrapped)) * codeLineHeight
	c.ensureSpace(h)

	y := c.pdf.GetY()
	c.setFillColor(c.style.CodeBackground)
	c.pdf.Rect(marginLeft, y, c.contentWidth(), h, "F")
	for i, line := range wrapped {
		c.pdf.SetXY(marginLeft+codePadX, y+float64(i)*codeLineHeight)
		c.pdf.CellFormat(c.contentWidth()-2*codePadX, codeLineHeight, line, "", 0, "L", false, 0, "")
	}
	c.pdf.SetXY(marginLeft, y+h)
	c.pdf.Ln(codeGapAfter)
}

// wrapCode splits code into drawable lines at the block's inner width.
// The same slice sizes the background and draws the text.
func (c *compositor) wrapCode(text string) []string {
	text = strings.ReplaceAll(Sanitize(text), "\t", "    ")
	width := c.contentWidth() - 2*codePadX
	var wrapped []string
	for _, src := range strings.Split(text, "\n") {
		if src == "" {
			wrapped = append(wrapped, "")
			continue
		}
		wrapped = append(wrapped, c.pdf.SplitText(src, width)...)
	}
	if len(wrapped) == 0 {
		wrapped = []string{""}
	}
	return wrapped
}

// drawMathBlock renders a display formula as a centered image, scaled
// down to the content width when oversized. Render failures degrade to a
// bracketed placeholder in the fallback style.
func (c *compositor) drawMathBlock(ctx context.Context, formula string) {
	if strings.TrimSpace(formula) == "" {
		return
	}
	res := c.render(ctx, formula, rasterize.BlockDPI)
	if !res.OK() {
		c.drawMathFallback(ctx, formula)
		return
	}

	a := res.Asset
	w, h := a.WidthMM(), a.HeightMM()
	if w > c.contentWidth() {
		h = h * c.contentWidth() / w
		w = c.contentWidth()
	}

	c.ensureSpace(h + 2*mathBlockPad)
	c.pdf.Ln(mathBlockPad)
	y := c.pdf.GetY()
	x := marginLeft + (c.contentWidth()-w)/2
	c.placeAsset(a, x, y, w, h)
	c.pdf.SetY(y + h)
	c.pdf.Ln(mathBlockPad)
}

func (c *compositor) drawMathFallback(ctx context.Context, formula string) {
	st := c.fallbackStyle()
	runs := []markup.InlineRun{{Text: "[ " + formula + " ]"}}
	lines := c.composeRuns(ctx, runs, st, c.contentWidth())
	c.drawLinesFlow(lines, marginLeft)
}

// drawCalloutBox draws a titled box with a colored accent bar. The whole
// box is measured up front and never straddles a page break.
func (c *compositor) drawCalloutBox(ctx context.Context, title, body string) {
	accent := c.style.BoxDefinition
	if strings.Contains(strings.ToLower(title), "tip") {
		accent = c.style.BoxTip
	}

	innerX := marginLeft + boxBarWidth + boxPadX
	innerW := c.contentWidth() - boxBarWidth - 2*boxPadX

	titleStyle := c.bodyStyle()
	titleStyle.style = "B"
	titleStyle.color = accent
	titleLines := c.composeRuns(ctx, []markup.InlineRun{{Text: title}}, titleStyle, innerW)

	var bodyLines []flowLine
	if body != "" {
		bodyLines = c.composeRuns(ctx, markup.ResolveInline(body), c.bodyStyle(), innerW)
	}

	h := 2*boxPadY + linesHeight(titleLines)
	if len(bodyLines) > 0 {
		h += boxTitleGap + linesHeight(bodyLines)
	}

	c.ensureSpace(h)
	y := c.pdf.GetY()
	c.setFillColor(c.style.CodeBackground)
	c.pdf.Rect(marginLeft, y, c.contentWidth(), h, "F")
	c.setFillColor(accent)
	c.pdf.Rect(marginLeft, y, boxBarWidth, h, "F")

	yy := c.drawLinesAt(titleLines, innerX, y+boxPadY)
	if len(bodyLines) > 0 {
		c.drawLinesAt(bodyLines, innerX, yy+boxTitleGap)
	}
	c.pdf.SetXY(marginLeft, y+h)
	c.pdf.Ln(boxGapAfter)
}

// drawSpacer consumes a blank source line as a small vertical gap. A gap
// at the top of a fresh page is dropped so pages never open with dead
// space.
func (c *compositor) drawSpacer() {
	if c.pdf.GetY() > c.contentTop+0.01 {
		c.pdf.Ln(blankGap)
	}
}

// drawLinesFlow draws composed lines at x, advancing the cursor and
// breaking pages between lines as needed.
func (c *compositor) drawLinesFlow(lines []flowLine, x float64) {
	for _, ln := range lines {
		c.ensureSpace(ln.height)
		y := c.pdf.GetY()
		c.drawLinePieces(ln, x, y)
		c.pdf.SetXY(x, y+ln.height)
	}
}

// drawLinesAt draws composed lines pinned at (x, y) with no page breaks;
// callers must have reserved the space. It returns the y after the last
// line.
func (c *compositor) drawLinesAt(lines []flowLine, x, y float64) float64 {
	for _, ln := range lines {
		c.drawLinePieces(ln, x, y)
		y += ln.height
	}
	return y
}

func (c *compositor) drawLinePieces(ln flowLine, x, y float64) {
	cx := x
	for _, p := range ln.pieces {
		cx += p.lead
		if p.isImage() {
			c.placeAsset(p.asset, cx, y+(ln.height-p.imgH)/2, p.imgW, p.imgH)
			cx += p.imgW
			continue
		}
		c.applyStyle(p.st)
		c.pdf.SetXY(cx, y)
		c.pdf.CellFormat(p.width, ln.height, p.text, "", 0, "L", false, 0, "")
		cx += p.width
	}
}

// placeAsset embeds a rendered formula image at an absolute position.
// Every asset gets a unique registry name; fpdf would otherwise reuse
// the first image registered under a duplicate name.
func (c *compositor) placeAsset(a *rasterize.Asset, x, y, w, h float64) {
	c.imageSeq++
	name := fmt.Sprintf("formula-%d", c.imageSeq)
	opt := fpdf.ImageOptions{ImageType: a.Format}
	c.pdf.RegisterImageOptionsReader(name, opt, bytes.NewReader(a.Bytes))
	c.pdf.ImageOptions(name, x, y, w, h, false, opt, 0, "")
}

// ensureSpace starts a new page when h millimeters will not fit above
// the bottom margin. On a fresh page the block draws regardless of h, so
// an oversized block can never loop.
func (c *compositor) ensureSpace(h float64) {
	if c.pdf.GetY()+h > c.pageH-breakMargin && c.pdf.GetY() > c.contentTop+0.01 {
		c.addPage()
	}
}

func (c *compositor) addPage() {
	c.pdf.AddPage()
	c.contentTop = c.pdf.GetY()
}

func (c *compositor) contentWidth() float64 {
	return c.pageW - marginLeft - marginRight
}

// render delegates to the configured renderer; a nil renderer means
// offline composition where every formula takes the textual fallback.
func (c *compositor) render(ctx context.Context, formula string, dpi int) rasterize.Result {
	if c.renderer == nil {
		return rasterize.Failure(errors.New("rasterization disabled"))
	}
	return c.renderer.Render(ctx, formula, dpi)
}

// prepare folds text for the style's font: core Latin fonts only take
// sanitized ASCII, a loaded Unicode body font takes text as is.
func (c *compositor) prepare(st textStyle, s string) string {
	if c.fonts.unicode && st.family != c.fonts.mono {
		return s
	}
	return Sanitize(s)
}

func (c *compositor) applyStyle(st textStyle) {
	c.pdf.SetFont(st.family, st.style, st.sizePt)
	c.setTextColor(st.color)
}

// runStyle derives the style for one inline run from the block's base
// style. Code spans switch to the mono font and drop bold.
func (c *compositor) runStyle(run markup.InlineRun, base textStyle) textStyle {
	st := base
	if run.Bold {
		st.style = "B"
	}
	if run.Code {
		st.family = c.fonts.mono
		st.style = ""
		st.sizePt = codeFontPt
		st.color = c.style.Secondary
	}
	return st
}

func (c *compositor) bodyStyle() textStyle {
	return textStyle{family: c.fonts.body, sizePt: bodyFontPt, color: c.style.Body, lineH: lineHeight}
}

func (c *compositor) h1Style() textStyle {
	return textStyle{family: c.fonts.body, style: "B", sizePt: h1FontPt, color: c.style.Primary, lineH: h1LineHeight}
}

func (c *compositor) h2Style() textStyle {
	return textStyle{family: c.fonts.body, style: "B", sizePt: h2FontPt, color: c.style.Primary, lineH: h2LineHeight}
}

func (c *compositor) codeBlockStyle() textStyle {
	return textStyle{family: c.fonts.mono, sizePt: codeFontPt, color: c.style.Body, lineH: codeLineHeight}
}

func (c *compositor) fallbackStyle() textStyle {
	return textStyle{family: c.fonts.mono, sizePt: codeFontPt, color: RGB{255, 0, 0}, lineH: lineHeight}
}

func (c *compositor) bannerStyle() textStyle {
	return textStyle{family: c.fonts.body, style: "B", sizePt: 10, color: c.style.Secondary, lineH: lineHeight}
}

func (c *compositor) setTextColor(rgb RGB) {
	c.pdf.SetTextColor(rgb.R, rgb.G, rgb.B)
}

func (c *compositor) setFillColor(rgb RGB) {
	c.pdf.SetFillColor(rgb.R, rgb.G, rgb.B)
}

func (c *compositor) setDrawColor(rgb RGB) {
	c.pdf.SetDrawColor(rgb.R, rgb.G, rgb.B)
}
