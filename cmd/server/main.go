package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CWCHIUC/guidegen/internal/api"
	"github.com/CWCHIUC/guidegen/internal/compose"
	"github.com/CWCHIUC/guidegen/internal/config"
	"github.com/CWCHIUC/guidegen/internal/pipeline"
	"github.com/CWCHIUC/guidegen/internal/rasterize"
	"github.com/CWCHIUC/guidegen/internal/textgen"
	_ "go.uber.org/automaxprocs"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	guide := pipeline.GuideOptions{
		DocumentTitle:     cfg.DocumentTitle,
		UnicodeFontPath:   cfg.UnicodeFontPath,
		PromptTokenBudget: cfg.PromptTokenBudget,
	}
	if cfg.StyleThemePath != "" {
		style, err := compose.LoadTheme(cfg.StyleThemePath)
		if err != nil {
			log.Error("invalid style theme", "path", cfg.StyleThemePath, "error", err)
			os.Exit(1)
		}
		guide.Style = &style
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	renderer := rasterize.NewClient(cfg.LatexRenderURL, cfg.LatexTimeout, log)
	gemini := textgen.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, gemini, renderer, guide, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, gemini, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		gemini.Close()
	}()

	log.Info("starting guidegen", "port", cfg.Port, "model", gemini.Model())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
