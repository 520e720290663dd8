package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/CWCHIUC/guidegen/internal/analyze"
	"github.com/CWCHIUC/guidegen/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleUploadDataset(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if strings.ToLower(filepath.Ext(filename)) != ".csv" {
		jsonError(w, fmt.Sprintf("gradebook must be a .csv export, got %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	report, err := analyze.Analyze(bytes.NewReader(data))
	if err != nil {
		jsonError(w, "analyze gradebook: "+err.Error(), http.StatusBadRequest)
		return
	}

	ds := s.orchestrator.Datasets().Put(report, data)
	s.log.Info("dataset analyzed",
		"dataset_id", ds.ID,
		"subject", report.Subject,
		"students", len(report.Students),
		"assessments", len(report.Assessments),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(datasetResponse(ds))
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")
	ds := s.orchestrator.Datasets().Get(datasetID)
	if ds == nil {
		jsonError(w, "dataset not found or expired", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(datasetResponse(ds))
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")
	if !s.orchestrator.Datasets().Delete(datasetID) {
		jsonError(w, "dataset not found or expired", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"deleted": datasetID})
}

func datasetResponse(ds *pipeline.Dataset) map[string]any {
	return map[string]any{
		"dataset_id":  ds.ID,
		"subject":     ds.Report.Subject,
		"assessments": ds.Report.Assessments,
		"students":    ds.Report.Students,
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
