package rasterize

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// pngBytes encodes a blank image of the given pixel size.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestClient_RenderSuccess(t *testing.T) {
	img := pngBytes(t, 100, 50)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	res := c.Render(context.Background(), `x^2`, BlockDPI)
	if !res.OK() {
		t.Fatalf("expected success, got error: %v", res.Err)
	}
	if res.Asset.Width != 100 || res.Asset.Height != 50 {
		t.Errorf("expected 100x50 pixels, got %dx%d", res.Asset.Width, res.Asset.Height)
	}
	if res.Asset.Format != "png" {
		t.Errorf("expected format png, got %q", res.Asset.Format)
	}
	if res.Asset.DPI != BlockDPI {
		t.Errorf("expected dpi %d, got %d", BlockDPI, res.Asset.DPI)
	}
}

func TestClient_RenderEncodesFormula(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write(pngBytes(t, 10, 10))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	res := c.Render(context.Background(), `\frac{a}{b} + 1`, InlineDPI)
	if !res.OK() {
		t.Fatalf("expected success, got error: %v", res.Err)
	}
	if !strings.HasPrefix(gotQuery, "%5Cdpi%7B200%7D%20") {
		t.Errorf("expected \\dpi prefix in query, got %q", gotQuery)
	}
	if strings.Contains(gotQuery, "+") {
		t.Errorf("expected %%20 for spaces, got %q", gotQuery)
	}
}

func TestClient_RenderBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	res := c.Render(context.Background(), "x", BlockDPI)
	if res.OK() {
		t.Fatal("expected failure for 502 response")
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "status 502") {
		t.Errorf("expected status error, got %v", res.Err)
	}
}

func TestClient_RenderNonImageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>formula error</html>"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	res := c.Render(context.Background(), "x", BlockDPI)
	if res.OK() {
		t.Fatal("expected failure for non-image body")
	}
}

func TestClient_RenderContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write(pngBytes(t, 10, 10))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(srv.URL, time.Second, nil)
	if res := c.Render(ctx, "x", BlockDPI); res.OK() {
		t.Fatal("expected failure for canceled context")
	}
}

func TestAsset_MillimeterConversion(t *testing.T) {
	a := &Asset{Width: 100, Height: 50, DPI: 300}
	// 100px at 300dpi is a third of an inch: 25.4/3 mm.
	if got, want := a.WidthMM(), 100.0/300.0*25.4; math.Abs(got-want) > 1e-9 {
		t.Errorf("expected width %.4fmm, got %.4fmm", want, got)
	}
	if got, want := a.HeightMM(), 50.0/300.0*25.4; math.Abs(got-want) > 1e-9 {
		t.Errorf("expected height %.4fmm, got %.4fmm", want, got)
	}
}

func TestResult_OK(t *testing.T) {
	if (Result{}).OK() {
		t.Error("expected zero Result to not be OK")
	}
	if Failure(context.Canceled).OK() {
		t.Error("expected Failure to not be OK")
	}
	if !(Result{Asset: &Asset{Width: 1, Height: 1, DPI: 300}}).OK() {
		t.Error("expected populated Result to be OK")
	}
}
