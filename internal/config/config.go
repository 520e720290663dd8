package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	GuidegenAPIKey string

	// Gemini generation
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	// LaTeX rasterization
	LatexRenderURL string
	LatexTimeout   time.Duration

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Prompt sizing
	PromptTokenBudget int

	// Store lifetimes
	JobTTL     time.Duration
	DatasetTTL time.Duration

	// PDF appearance
	DocumentTitle   string
	StyleThemePath  string
	UnicodeFontPath string
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		GuidegenAPIKey: os.Getenv("GUIDEGEN_API_KEY"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   envOr("GEMINI_MODEL", "gemini-2.5-pro"),
		GeminiBaseURL: os.Getenv("GEMINI_BASE_URL"),

		LatexRenderURL: os.Getenv("LATEX_RENDER_URL"),
		LatexTimeout:   envDuration("LATEX_TIMEOUT", 15*time.Second),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		PromptTokenBudget: envInt("PROMPT_TOKEN_BUDGET", 120000),

		JobTTL:     envDuration("JOB_TTL", 1*time.Hour),
		DatasetTTL: envDuration("DATASET_TTL", 2*time.Hour),

		DocumentTitle:   envOr("DOCUMENT_TITLE", ""),
		StyleThemePath:  os.Getenv("STYLE_THEME"),
		UnicodeFontPath: os.Getenv("UNICODE_FONT"),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.PromptTokenBudget <= 0 {
		cfg.PromptTokenBudget = 120000
	}
	if cfg.LatexTimeout <= 0 {
		cfg.LatexTimeout = 15 * time.Second
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.DatasetTTL <= 0 {
		cfg.DatasetTTL = 2 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
