// Command guidepdf composes study-guide markup into a styled PDF from
// the command line, without running the full service.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/CWCHIUC/guidegen/internal/compose"
	"github.com/CWCHIUC/guidegen/internal/rasterize"
	"github.com/spf13/pflag"
	_ "go.uber.org/automaxprocs"
)

func main() {
	var (
		inPath       = pflag.StringP("in", "i", "", `markup input file ("-" reads stdin)`)
		outPath      = pflag.StringP("out", "o", "", "output PDF path (default: input name with .pdf)")
		title        = pflag.String("title", "", "document title banner")
		themePath    = pflag.String("theme", "", "YAML style theme file")
		fontPath     = pflag.String("font", "", "TTF font with full Unicode coverage")
		latexURL     = pflag.String("latex-url", rasterize.DefaultBaseURL, "formula render endpoint")
		latexTimeout = pflag.Duration("latex-timeout", rasterize.DefaultTimeout, "formula render timeout")
		offline      = pflag.Bool("offline", false, "skip formula rendering and draw placeholders")
	)
	pflag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: guidepdf -i guide.md [-o guide.pdf]")
		pflag.PrintDefaults()
		os.Exit(2)
	}

	src, err := readInput(*inPath)
	if err != nil {
		log.Error("read input", "path", *inPath, "error", err)
		os.Exit(1)
	}

	opts := compose.Options{
		Title:           *title,
		UnicodeFontPath: *fontPath,
		Logger:          log,
	}
	if *themePath != "" {
		style, err := compose.LoadTheme(*themePath)
		if err != nil {
			log.Error("invalid style theme", "path", *themePath, "error", err)
			os.Exit(1)
		}
		opts.Style = &style
	}
	if !*offline {
		opts.Renderer = rasterize.NewClient(*latexURL, *latexTimeout, log)
	}

	pdf, err := compose.Build(context.Background(), string(src), opts)
	if err != nil {
		log.Error("compose document", "error", err)
		os.Exit(1)
	}

	out := *outPath
	if out == "" {
		out = derivedOut(*inPath)
	}
	if err := os.WriteFile(out, pdf, 0o644); err != nil {
		log.Error("write output", "path", out, "error", err)
		os.Exit(1)
	}
	log.Info("wrote study guide", "path", out, "bytes", len(pdf))
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func derivedOut(in string) string {
	if in == "-" {
		return "guide.pdf"
	}
	return strings.TrimSuffix(in, filepath.Ext(in)) + ".pdf"
}
