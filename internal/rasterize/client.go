// Package rasterize turns LaTeX formulas into bitmap assets via an
// external rendering service (codecogs-compatible PNG endpoint). Every
// call is a fresh render: failures are reported, never retried, so the
// compositor can degrade to a textual placeholder and keep going.
package rasterize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

const (
	// DefaultBaseURL is the public codecogs render endpoint.
	DefaultBaseURL = "https://latex.codecogs.com"
	// DefaultTimeout bounds one render round trip.
	DefaultTimeout = 15 * time.Second

	// BlockDPI and InlineDPI are the raster densities for display and
	// inline formulas respectively.
	BlockDPI  = 300
	InlineDPI = 200

	maxImageBytes = 8 << 20
)

// Asset is a decoded formula bitmap plus the density it was rendered at.
type Asset struct {
	Bytes  []byte
	Format string // "png", "jpeg" or "gif"
	Width  int    // pixels
	Height int    // pixels
	DPI    int
}

// WidthMM returns the natural display width in millimeters.
func (a *Asset) WidthMM() float64 {
	return float64(a.Width) / float64(a.DPI) * 25.4
}

// HeightMM returns the natural display height in millimeters.
func (a *Asset) HeightMM() float64 {
	return float64(a.Height) / float64(a.DPI) * 25.4
}

// Result is the outcome of one render: either Asset is set or Err is.
type Result struct {
	Asset *Asset
	Err   error
}

// OK reports whether the render produced a usable asset.
func (r Result) OK() bool {
	return r.Asset != nil && r.Err == nil
}

// Failure wraps err as a failed Result.
func Failure(err error) Result {
	return Result{Err: err}
}

// Renderer is the consumer-side contract the compositor depends on.
type Renderer interface {
	Render(ctx context.Context, formula string, dpi int) Result
}

// Client renders formulas over HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *slog.Logger
}

// NewClient builds a Client for the given endpoint. Zero values fall back
// to DefaultBaseURL and DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		log:     log.With("component", "rasterize"),
	}
}

// Render fetches one formula at the given density. The formula is sent
// with a \dpi prefix the way the codecogs endpoint expects it.
func (c *Client) Render(ctx context.Context, formula string, dpi int) Result {
	query := url.QueryEscape(fmt.Sprintf(`\dpi{%d} %s`, dpi, formula))
	// The endpoint wants literal %20 for spaces, not form-encoded +.
	query = strings.ReplaceAll(query, "+", "%20")
	endpoint := c.baseURL + "/png.latex?" + query

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Failure(fmt.Errorf("build render request: %w", err))
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Warn("formula render failed", "error", err, "formula", snippet(formula))
		return Failure(fmt.Errorf("render formula: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.log.Warn("formula render rejected", "status", resp.StatusCode, "formula", snippet(formula))
		return Failure(fmt.Errorf("render formula: status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return Failure(fmt.Errorf("read render response: %w", err))
	}

	asset, err := decodeAsset(data, dpi)
	if err != nil {
		c.log.Warn("formula render unusable", "error", err, "formula", snippet(formula))
		return Failure(err)
	}
	c.log.Debug("formula rendered", "dpi", dpi, "px_w", asset.Width, "px_h", asset.Height)
	return Result{Asset: asset}
}

// decodeAsset validates that data is a bitmap the PDF layer can embed and
// extracts its pixel dimensions. Render services answer errors with HTML
// bodies and a 200 status often enough that sniffing here is required.
func decodeAsset(data []byte, dpi int) (*Asset, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode rendered image: %w", err)
	}
	switch format {
	case "png", "jpeg", "gif":
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("degenerate image %dx%d", cfg.Width, cfg.Height)
	}
	return &Asset{Bytes: data, Format: format, Width: cfg.Width, Height: cfg.Height, DPI: dpi}, nil
}

func snippet(s string) string {
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
