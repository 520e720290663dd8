package api

import (
	"log/slog"
	"net/http"

	"github.com/CWCHIUC/guidegen/internal/config"
	"github.com/CWCHIUC/guidegen/internal/pipeline"
	"github.com/CWCHIUC/guidegen/internal/textgen"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for guidegen.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	gemini       *textgen.GeminiClient
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. gemini may be nil
// when the process runs without LLM stats (tests, offline tooling).
func NewServer(orch *pipeline.Orchestrator, gemini *textgen.GeminiClient, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		gemini:       gemini,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// API endpoints, bearer-authenticated when a key is configured.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.GuidegenAPIKey, s.log))

		r.Post("/api/datasets", s.handleUploadDataset)
		r.Get("/api/datasets/{datasetID}", s.handleGetDataset)
		r.Delete("/api/datasets/{datasetID}", s.handleDeleteDataset)

		r.Post("/api/guides", s.handleCreateGuide)
		r.Get("/api/guides/{jobID}/status", s.handleGuideStatus)
		r.Get("/api/guides/{jobID}/download", s.handleGuideDownload)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
