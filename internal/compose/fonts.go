package compose

import (
	"log/slog"
	"os"

	"codeberg.org/go-pdf/fpdf"
)

// unicodeFamily is the font family name a loaded TTF registers under.
const unicodeFamily = "GuideUnicode"

// fontSet records which families are in play for a document.
type fontSet struct {
	body    string // Helvetica, or the loaded TTF family
	mono    string // always Courier
	unicode bool   // body font covers full Unicode
}

// loadFonts attaches an optional TTF to pdf and returns the resulting
// font set. A missing or unparseable font file falls back to the core
// Latin fonts rather than failing the build; sanitation then covers the
// character gap. The TTF is parsed on a throwaway document first because
// a bad font would poison pdf's error state irrecoverably.
func loadFonts(pdf *fpdf.Fpdf, ttfPath string, log *slog.Logger) fontSet {
	fs := fontSet{body: "Helvetica", mono: "Courier"}
	if ttfPath == "" {
		return fs
	}

	data, err := os.ReadFile(ttfPath)
	if err != nil {
		log.Warn("unicode font unavailable, using core fonts", "path", ttfPath, "error", err)
		return fs
	}

	probe := fpdf.New("P", "mm", "Letter", "")
	probe.AddUTF8FontFromBytes(unicodeFamily, "", data)
	probe.AddUTF8FontFromBytes(unicodeFamily, "B", data)
	probe.SetFont(unicodeFamily, "B", 11)
	if probe.Err() {
		log.Warn("unicode font rejected, using core fonts", "path", ttfPath, "error", probe.Error())
		return fs
	}

	// The same bytes back both the regular and bold faces.
	pdf.AddUTF8FontFromBytes(unicodeFamily, "", data)
	pdf.AddUTF8FontFromBytes(unicodeFamily, "B", data)
	fs.body = unicodeFamily
	fs.unicode = true
	log.Debug("unicode font loaded", "path", ttfPath, "bytes", len(data))
	return fs
}
