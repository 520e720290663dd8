package compose

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"math"
	"sync/atomic"
	"testing"

	"github.com/CWCHIUC/guidegen/internal/markup"
	"github.com/CWCHIUC/guidegen/internal/rasterize"
)

// stubRenderer hands back a fixed-size asset without any network.
type stubRenderer struct {
	px    [2]int // claimed pixel dimensions
	fail  bool
	calls atomic.Int64
}

func newStubRenderer(w, h int) *stubRenderer {
	return &stubRenderer{px: [2]int{w, h}}
}

func (s *stubRenderer) Render(_ context.Context, formula string, dpi int) rasterize.Result {
	s.calls.Add(1)
	if s.fail {
		return rasterize.Failure(errors.New("render disabled in test"))
	}
	return rasterize.Result{Asset: &rasterize.Asset{
		Bytes:  tinyPNG,
		Format: "png",
		Width:  s.px[0],
		Height: s.px[1],
		DPI:    dpi,
	}}
}

// tinyPNG is a 4x4 image reused by every stub asset; the compositor
// scales by the claimed dimensions, not the encoded ones.
var tinyPNG = func() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

func testCompositor(t *testing.T, r rasterize.Renderer) *compositor {
	t.Helper()
	return newCompositor(Options{Renderer: r}.withDefaults())
}

func draw(t *testing.T, c *compositor, b markup.Block) {
	t.Helper()
	if err := c.DrawBlock(context.Background(), b); err != nil {
		t.Fatalf("draw %v: %v", b.Kind, err)
	}
}

// fillDown draws filler paragraphs until the cursor passes y.
func fillDown(t *testing.T, c *compositor, y float64) {
	t.Helper()
	for c.pdf.GetY() < y {
		draw(t, c, markup.Block{Kind: markup.Paragraph, Text: "filler"})
	}
}

func TestCompositor_StartsWithOnePage(t *testing.T) {
	c := testCompositor(t, nil)
	if c.Pages() != 1 {
		t.Errorf("expected 1 page after init, got %d", c.Pages())
	}
	if c.contentTop <= marginTop {
		t.Errorf("expected banner to push content below top margin, got %f", c.contentTop)
	}
}

func TestCompositor_ParagraphAdvancesOneLine(t *testing.T) {
	c := testCompositor(t, nil)
	y := c.pdf.GetY()
	draw(t, c, markup.Block{Kind: markup.Paragraph, Text: "a short line"})
	if got := c.pdf.GetY() - y; math.Abs(got-lineHeight) > 0.01 {
		t.Errorf("expected %vmm advance, got %vmm", lineHeight, got)
	}
}

func TestCompositor_ParagraphWrapsLongText(t *testing.T) {
	c := testCompositor(t, nil)
	long := ""
	for i := 0; i < 60; i++ {
		long += "wrapping words fill the measure "
	}
	y := c.pdf.GetY()
	draw(t, c, markup.Block{Kind: markup.Paragraph, Text: long})
	if got := c.pdf.GetY() - y; got < 2*lineHeight {
		t.Errorf("expected multi-line paragraph, advanced only %vmm", got)
	}
}

func TestCompositor_BlankLineSkippedAtPageTop(t *testing.T) {
	c := testCompositor(t, nil)
	y := c.pdf.GetY()
	draw(t, c, markup.Block{Kind: markup.BlankLine})
	if c.pdf.GetY() != y {
		t.Errorf("expected blank at page top to be dropped, cursor moved %f", c.pdf.GetY()-y)
	}

	draw(t, c, markup.Block{Kind: markup.Paragraph, Text: "content"})
	y = c.pdf.GetY()
	draw(t, c, markup.Block{Kind: markup.BlankLine})
	if got := c.pdf.GetY() - y; math.Abs(got-blankGap) > 0.01 {
		t.Errorf("expected %vmm gap, got %vmm", blankGap, got)
	}
}

func TestCompositor_CodeBlockAtomicAcrossBreak(t *testing.T) {
	c := testCompositor(t, nil)
	fillDown(t, c, c.pageH-breakMargin-3*codeLineHeight)

	code := "one\ntwo\nthree\nfour\nfive\nsix\nseven\neight"
	draw(t, c, markup.Block{Kind: markup.CodeBlock, Text: code})

	if c.Pages() != 2 {
		t.Fatalf("expected code block to move to page 2, got %d pages", c.Pages())
	}
	// The whole block landed below the fresh page's content top.
	want := c.contentTop + 8*codeLineHeight + codeGapAfter
	if got := c.pdf.GetY(); math.Abs(got-want) > 0.01 {
		t.Errorf("expected cursor %fmm on fresh page, got %f", want, got)
	}
}

func TestCompositor_CodeBlockStaysWhenItFits(t *testing.T) {
	c := testCompositor(t, nil)
	draw(t, c, markup.Block{Kind: markup.CodeBlock, Text: "x = 1\ny = 2"})
	if c.Pages() != 1 {
		t.Errorf("expected small code block on page 1, got %d pages", c.Pages())
	}
}

func TestCompositor_OversizedCodeBlockTakesExactlyOneNewPage(t *testing.T) {
	c := testCompositor(t, nil)
	draw(t, c, markup.Block{Kind: markup.Paragraph, Text: "lead-in"})

	var code bytes.Buffer
	for i := 0; i < 80; i++ { // 400mm of lines, taller than any page
		code.WriteString("line\n")
	}
	draw(t, c, markup.Block{Kind: markup.CodeBlock, Text: code.String()})
	if c.Pages() != 2 {
		t.Errorf("expected exactly one page break for oversized block, got %d pages", c.Pages())
	}
}

func TestCompositor_CalloutBoxAtomicAcrossBreak(t *testing.T) {
	c := testCompositor(t, nil)
	fillDown(t, c, c.pageH-breakMargin-2*lineHeight)

	body := "A derivative is the instantaneous rate of change of a function, " +
		"which you can picture as the slope of the tangent line at a point."
	draw(t, c, markup.Block{Kind: markup.CalloutBox, Title: "Key Definition", Text: body})

	if c.Pages() != 2 {
		t.Fatalf("expected callout to move to page 2, got %d pages", c.Pages())
	}
	if got := c.pdf.GetY(); got <= c.contentTop {
		t.Errorf("expected cursor below fresh content top, got %f", got)
	}
}

func TestCompositor_BulletHangingIndent(t *testing.T) {
	c := testCompositor(t, nil)
	y := c.pdf.GetY()
	long := "a very long bullet item whose text is certain to wrap onto at least " +
		"two lines of the available measure given enough repeated words " +
		"and then some more words for good measure"
	draw(t, c, markup.Block{Kind: markup.Bullet, Text: long})
	if got := c.pdf.GetY() - y; got < 2*lineHeight {
		t.Errorf("expected wrapped bullet, advanced only %vmm", got)
	}
}

func TestCompositor_HeadingGaps(t *testing.T) {
	c := testCompositor(t, nil)

	y := c.pdf.GetY()
	draw(t, c, markup.Block{Kind: markup.Heading1, Text: "Unit Review"})
	if got := c.pdf.GetY() - y; math.Abs(got-(h1LineHeight+h1GapAfter)) > 0.01 {
		t.Errorf("expected h1 advance %vmm, got %vmm", h1LineHeight+h1GapAfter, got)
	}

	y = c.pdf.GetY()
	draw(t, c, markup.Block{Kind: markup.Heading2, Text: "Key Formulas"})
	if got := c.pdf.GetY() - y; math.Abs(got-(h2LineHeight+h2GapAfter)) > 0.01 {
		t.Errorf("expected h2 advance %vmm, got %vmm", h2LineHeight+h2GapAfter, got)
	}
}

func TestCompositor_MathBlockUsesNaturalSize(t *testing.T) {
	// 600x150 px at 300dpi is 50.8x12.7mm, well inside the measure.
	r := newStubRenderer(600, 150)
	c := testCompositor(t, r)

	y := c.pdf.GetY()
	draw(t, c, markup.Block{Kind: markup.MathBlock, Text: "x^2"})

	want := 2*mathBlockPad + 150.0/300.0*25.4
	if got := c.pdf.GetY() - y; math.Abs(got-want) > 0.01 {
		t.Errorf("expected advance %fmm, got %fmm", want, got)
	}
	if n := r.calls.Load(); n != 1 {
		t.Errorf("expected 1 render call, got %d", n)
	}
}

func TestCompositor_MathBlockClampedToContentWidth(t *testing.T) {
	// 3000x600 px at 300dpi is 254x50.8mm natural, wider than the page.
	c := testCompositor(t, newStubRenderer(3000, 600))

	y := c.pdf.GetY()
	draw(t, c, markup.Block{Kind: markup.MathBlock, Text: "very wide"})

	scaledH := 50.8 * c.contentWidth() / 254.0
	want := 2*mathBlockPad + scaledH
	if got := c.pdf.GetY() - y; math.Abs(got-want) > 0.05 {
		t.Errorf("expected clamped advance %fmm, got %fmm", want, got)
	}
}

func TestCompositor_MathBlockFallbackOnFailure(t *testing.T) {
	r := newStubRenderer(1, 1)
	r.fail = true
	c := testCompositor(t, r)

	y := c.pdf.GetY()
	draw(t, c, markup.Block{Kind: markup.MathBlock, Text: "\\broken"})
	if got := c.pdf.GetY() - y; math.Abs(got-lineHeight) > 0.01 {
		t.Errorf("expected one placeholder line, advanced %fmm", got)
	}
	if c.Pages() != 1 {
		t.Errorf("expected no page break for placeholder, got %d pages", c.Pages())
	}
}

func TestCompositor_NilRendererDegradesFormulas(t *testing.T) {
	c := testCompositor(t, nil)
	draw(t, c, markup.Block{Kind: markup.MathBlock, Text: "e^x"})
	draw(t, c, markup.Block{Kind: markup.Paragraph, Text: "inline $e^x$ too"})
	if c.Pages() != 1 {
		t.Errorf("expected offline composition to stay on one page, got %d", c.Pages())
	}
}

func TestCompositor_InlineMathGrowsLine(t *testing.T) {
	// 400x120 px at 200dpi is 50.8x15.24mm; the line grows to fit.
	c := testCompositor(t, newStubRenderer(400, 120))

	y := c.pdf.GetY()
	draw(t, c, markup.Block{Kind: markup.Paragraph, Text: "before $f(x)$ after"})

	want := 120.0 / 200.0 * 25.4
	if got := c.pdf.GetY() - y; math.Abs(got-want) > 0.01 {
		t.Errorf("expected line height %fmm, got %fmm", want, got)
	}
}

func TestCompositor_InlineMathAtInlineDPI(t *testing.T) {
	var gotDPI int
	r := renderFunc(func(_ context.Context, _ string, dpi int) rasterize.Result {
		gotDPI = dpi
		return rasterize.Failure(errors.New("skip"))
	})
	c := testCompositor(t, r)
	draw(t, c, markup.Block{Kind: markup.Paragraph, Text: "inline $x$"})
	if gotDPI != rasterize.InlineDPI {
		t.Errorf("expected inline dpi %d, got %d", rasterize.InlineDPI, gotDPI)
	}

	draw(t, c, markup.Block{Kind: markup.MathBlock, Text: "x"})
	if gotDPI != rasterize.BlockDPI {
		t.Errorf("expected block dpi %d, got %d", rasterize.BlockDPI, gotDPI)
	}
}

type renderFunc func(ctx context.Context, formula string, dpi int) rasterize.Result

func (f renderFunc) Render(ctx context.Context, formula string, dpi int) rasterize.Result {
	return f(ctx, formula, dpi)
}

func TestCompositor_EmptyMathBlockSkipped(t *testing.T) {
	r := newStubRenderer(10, 10)
	c := testCompositor(t, r)
	y := c.pdf.GetY()
	draw(t, c, markup.Block{Kind: markup.MathBlock, Text: "   "})
	if c.pdf.GetY() != y {
		t.Error("expected empty formula to draw nothing")
	}
	if r.calls.Load() != 0 {
		t.Error("expected no render call for empty formula")
	}
}

func TestCompositor_CursorNeverEntersBottomMargin(t *testing.T) {
	c := testCompositor(t, nil)
	limit := c.pageH - breakMargin

	blocks := []markup.Block{
		{Kind: markup.Heading1, Text: "Section"},
		{Kind: markup.Paragraph, Text: "body text of reasonable length for a study guide line"},
		{Kind: markup.Bullet, Text: "point"},
		{Kind: markup.CodeBlock, Text: "a\nb\nc"},
		{Kind: markup.BlankLine},
	}
	for i := 0; i < 150; i++ {
		b := blocks[i%len(blocks)]
		draw(t, c, b)
		// Content always ends above the limit; only trailing gaps may
		// poke past it before the next block forces the break.
		if got := c.pdf.GetY(); got > limit+12 {
			t.Fatalf("block %d (%v) left cursor at %fmm, past the %fmm limit", i, b.Kind, got, limit)
		}
	}
	if c.Pages() < 3 {
		t.Errorf("expected the long run to paginate, got %d pages", c.Pages())
	}
}

func TestCompositor_DrawAfterFinalize(t *testing.T) {
	c := testCompositor(t, nil)
	if _, err := c.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	err := c.DrawBlock(context.Background(), markup.Block{Kind: markup.Paragraph, Text: "late"})
	if !errors.Is(err, ErrFinalized) {
		t.Errorf("expected ErrFinalized, got %v", err)
	}
	if _, err := c.Finalize(); !errors.Is(err, ErrFinalized) {
		t.Errorf("expected ErrFinalized on second finalize, got %v", err)
	}
}

func TestCompositor_ShortGuideStaysOnOnePage(t *testing.T) {
	r := newStubRenderer(100, 50)
	c := testCompositor(t, r)

	var yBeforeMath float64
	blocks := 0
	for sc := markup.Scan("### Topic\n* item one\n* item **two**\n$$x^2$$"); sc.Next(); {
		b := sc.Block()
		if b.Kind == markup.MathBlock {
			yBeforeMath = c.pdf.GetY()
		}
		draw(t, c, b)
		blocks++
	}
	if blocks != 4 {
		t.Fatalf("expected 4 blocks, got %d", blocks)
	}

	// 100x50 px at 300dpi embeds at its natural 8.47x4.23mm.
	want := 2*mathBlockPad + 50.0/300.0*25.4
	if got := c.pdf.GetY() - yBeforeMath; math.Abs(got-want) > 0.01 {
		t.Errorf("expected formula advance %fmm, got %fmm", want, got)
	}
	if c.Pages() != 1 {
		t.Errorf("expected a single page, got %d", c.Pages())
	}
	if n := r.calls.Load(); n != 1 {
		t.Errorf("expected 1 render call, got %d", n)
	}
}
