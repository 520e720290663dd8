// Package compose turns parsed study-guide markup into a paginated,
// styled PDF. Drawing is strictly sequential: blocks are measured, page
// breaks decided, then drawn, top to bottom, so the same input always
// produces the same bytes.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CWCHIUC/guidegen/internal/markup"
	"github.com/CWCHIUC/guidegen/internal/rasterize"
)

// DefaultTitle is the banner text when a caller supplies none.
const DefaultTitle = "Personalized Study Guide"

// fixedCreationDate stamps documents when the caller does not supply a
// date, keeping output reproducible byte for byte.
var fixedCreationDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Options configures one Build call.
type Options struct {
	// Title is the banner and PDF metadata title.
	Title string
	// Style overrides the default palette; nil keeps DefaultStyle.
	Style *Style
	// UnicodeFontPath optionally points at a TTF covering full Unicode.
	// When empty or unusable the core Latin fonts plus the character
	// substitution table take over.
	UnicodeFontPath string
	// Renderer rasterizes formulas. A nil Renderer composes offline:
	// every formula degrades to its bracketed placeholder.
	Renderer rasterize.Renderer
	// CreationDate stamps the PDF metadata. The zero value selects a
	// fixed date so identical input yields identical bytes.
	CreationDate time.Time
	// Logger receives composition diagnostics; nil means slog.Default.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = DefaultTitle
	}
	if o.CreationDate.IsZero() {
		o.CreationDate = fixedCreationDate
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) style() Style {
	if o.Style != nil {
		return *o.Style
	}
	return DefaultStyle()
}

// Build composes src into a finished PDF. The full block sequence is
// drawn in one pass; the only errors are context cancellation and
// document-level failures from the PDF backend. Malformed markup and
// failed formula renders degrade on the page instead of failing the
// build.
func Build(ctx context.Context, src string, opts Options) ([]byte, error) {
	c := newCompositor(opts)

	count := 0
	sc := markup.Scan(src)
	for sc.Next() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("compose document: %w", err)
		}
		if err := c.DrawBlock(ctx, sc.Block()); err != nil {
			return nil, err
		}
		count++
	}

	out, err := c.Finalize()
	if err != nil {
		return nil, err
	}
	c.log.Debug("document composed", "blocks", count, "pages", c.Pages(), "bytes", len(out))
	return out, nil
}
