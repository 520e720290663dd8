package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/CWCHIUC/guidegen/internal/material"
	"github.com/CWCHIUC/guidegen/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCreateGuide(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	datasetID := r.FormValue("dataset_id")
	if datasetID == "" {
		jsonError(w, "dataset_id is required", http.StatusBadRequest)
		return
	}
	studentID := r.FormValue("student_id")
	if studentID == "" {
		jsonError(w, "student_id is required", http.StatusBadRequest)
		return
	}

	// Reject unknown datasets and students at submit time; the worker
	// re-checks because the dataset can expire while the job is queued.
	ds := s.orchestrator.Datasets().Get(datasetID)
	if ds == nil {
		jsonError(w, "dataset not found or expired; upload the gradebook again", http.StatusNotFound)
		return
	}
	if ds.Report.Student(studentID) == nil {
		jsonError(w, fmt.Sprintf("student %s not found in dataset", studentID), http.StatusNotFound)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !material.IsSupported(filename) {
		jsonError(w, fmt.Sprintf("unsupported material format: %s", filepath.Ext(filename)), http.StatusBadRequest)
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

	now := time.Now()
	job := &pipeline.Job{
		ID:        pipeline.ContentHashHex([]byte(fmt.Sprintf("%s-%s-%d", datasetID, studentID, now.UnixNano())))[:20],
		DatasetID: datasetID,
		StudentID: studentID,
		Status:    pipeline.StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		CreatedAt: now,
		UpdatedAt: now,
	}
	job.SetMaterial(data)

	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	// A worker may already be mutating the job; report the accepted
	// state rather than reading the live status field.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":     job.ID,
		"dataset_id": job.DatasetID,
		"student_id": job.StudentID,
		"status":     pipeline.StatusQueued,
		"poll_url":   fmt.Sprintf("/api/guides/%s/status", job.ID),
	})
}

func (s *Server) handleGuideStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

// handleGuideDownload hands out the finished PDF exactly once. The job
// is removed only on a successful download, so polling stays valid for
// jobs that are still running and errors stay readable for failed ones.
func (s *Server) handleGuideDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, done := s.orchestrator.TakeJob(jobID)
	if job == nil {
		jsonError(w, "job not found, expired, or already downloaded", http.StatusNotFound)
		return
	}
	if !done {
		snap := job.Snapshot()
		if snap.Status == pipeline.StatusFailed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusGone)
			json.NewEncoder(w).Encode(map[string]any{
				"error":  "guide generation failed",
				"status": snap.Status,
				"errors": snap.Progress.Errors,
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"error":  "guide not ready",
			"status": snap.Status,
			"phase":  snap.Phase,
		})
		return
	}

	name, pdf := job.Artifact()
	s.log.Info("guide downloaded", "job_id", jobID, "filename", name, "bytes", len(pdf))

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.Write(pdf)
}
