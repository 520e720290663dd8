package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CWCHIUC/guidegen/internal/compose"
	"github.com/CWCHIUC/guidegen/internal/material"
	"github.com/CWCHIUC/guidegen/internal/rasterize"
	"github.com/CWCHIUC/guidegen/internal/textgen"
)

// GuideOptions carries the per-deployment settings workers apply to
// every guide they build.
type GuideOptions struct {
	DocumentTitle     string
	Style             *compose.Style
	UnicodeFontPath   string
	PromptTokenBudget int
}

// Worker processes a single guide-generation job.
type Worker struct {
	gen      textgen.Generator
	renderer rasterize.Renderer
	datasets *DatasetStore
	log      *slog.Logger
	opts     GuideOptions
}

func NewWorker(gen textgen.Generator, renderer rasterize.Renderer, datasets *DatasetStore, log *slog.Logger, opts GuideOptions) *Worker {
	return &Worker{
		gen:      gen,
		renderer: renderer,
		datasets: datasets,
		log:      log,
		opts:     opts,
	}
}

// Process runs the full generation pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "dataset_id", job.DatasetID, "student_id", job.StudentID)

	// Phase 1: Analyze. The dataset was analyzed at upload; here we pull
	// the student's weak topics out of the cached report.
	job.SetStatus(StatusAnalyzing, "analyzing results")
	ds := w.datasets.Get(job.DatasetID)
	if ds == nil {
		log.Error("dataset not found")
		job.AddError("dataset not found or expired; upload the gradebook again")
		job.SetStatus(StatusFailed, "analyzing")
		return
	}
	student := ds.Report.Student(job.StudentID)
	if student == nil {
		log.Error("student not in dataset")
		job.AddError(fmt.Sprintf("student %s not found in dataset", job.StudentID))
		job.SetStatus(StatusFailed, "analyzing")
		return
	}
	if len(student.WeakTopics) == 0 {
		log.Info("no weak topics", "average", student.Average)
		job.AddError("student has no topics under the review threshold; nothing to study")
		job.SetStatus(StatusFailed, "analyzing")
		return
	}
	job.SetWeakTopicCount(len(student.WeakTopics))

	// Phase 2: Extract course material text.
	job.SetStatus(StatusExtracting, "reading course material")
	text, err := material.ExtractText(bytes.NewReader(job.Material()), job.Filename)
	if err != nil {
		log.Error("extraction failed", "error", err)
		job.AddError(fmt.Sprintf("extract: %s", err))
		job.SetStatus(StatusFailed, "extracting")
		return
	}
	if strings.TrimSpace(text) == "" {
		log.Error("no extractable content", "filename", job.Filename)
		job.AddError("could not read any content from the course material")
		job.SetStatus(StatusFailed, "extracting")
		return
	}

	// Phase 3: Generate study-guide markup, retrying transient failures.
	job.SetStatus(StatusGenerating, "generating study guide")
	prompt := textgen.BuildPrompt(ds.Report.Subject, student.WeakTopics, text, w.opts.PromptTokenBudget)

	var guide string
	for attempt := range MaxRetries {
		guide, err = w.gen.GenerateGuide(ctx, prompt)
		if err == nil || !IsRetryable(err) {
			break
		}
		log.Warn("retryable generation error", "attempt", attempt, "error", err)
		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			job.AddError(ctx.Err().Error())
			job.SetStatus(StatusFailed, "generating")
			return
		}
	}
	if err != nil {
		log.Error("generation failed", "error", err)
		job.AddError(fmt.Sprintf("generate: %s", err))
		job.SetStatus(StatusFailed, "generating")
		return
	}
	job.SetGuideSize(len(guide))
	log.Info("guide generated", "chars", len(guide), "weak_topics", len(student.WeakTopics))

	// Phase 4: Compose the PDF. Formula rasterization failures degrade to
	// inline placeholders inside Build; only structural errors fail here.
	job.SetStatus(StatusComposing, "composing pdf")
	pdf, err := compose.Build(ctx, guide, compose.Options{
		Title:           w.opts.DocumentTitle,
		Style:           w.opts.Style,
		UnicodeFontPath: w.opts.UnicodeFontPath,
		Renderer:        w.renderer,
		Logger:          w.log,
	})
	if err != nil {
		log.Error("composition failed", "error", err)
		job.AddError(fmt.Sprintf("compose: %s", err))
		job.SetStatus(StatusFailed, "composing")
		return
	}

	job.SetArtifact(artifactName(student.ID, job.ID), pdf)
	job.SetStatus(StatusCompleted, "done")
	log.Info("job complete", "pdf_bytes", len(pdf))
}

// artifactName builds the download filename: the student ID plus a short
// job ID suffix keeps repeated runs distinguishable.
func artifactName(studentID, jobID string) string {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("study_guide_%s_%s.pdf", studentID, short)
}
