package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/CWCHIUC/guidegen/internal/config"
	"github.com/CWCHIUC/guidegen/internal/textgen"
)

type stubGen struct {
	guide string
	err   error
	calls int
}

func (g *stubGen) GenerateGuide(ctx context.Context, prompt string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.guide, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestJob(datasetID, studentID string, material []byte, filename string) *Job {
	now := time.Now()
	job := &Job{
		ID:        "job-1",
		DatasetID: datasetID,
		StudentID: studentID,
		Status:    StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		CreatedAt: now,
		UpdatedAt: now,
	}
	job.SetMaterial(material)
	return job
}

func TestWorker_ProcessCompletes(t *testing.T) {
	datasets := NewDatasetStore(time.Hour)
	ds := datasets.Put(testReport(), nil)

	gen := &stubGen{guide: "### Kinematics\n\nReview how velocity relates to displacement.\n\n* Velocity is a vector.\n"}
	w := NewWorker(gen, nil, datasets, testLogger(), GuideOptions{})

	job := newTestJob(ds.ID, "1001", []byte("Unit 1 covers kinematics.\n\nVelocity and acceleration."), "ced.txt")
	w.Process(context.Background(), job)

	if job.CurrentStatus() != StatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", job.CurrentStatus(), job.Snapshot().Progress.Errors)
	}

	name, pdf := job.Artifact()
	if name != "study_guide_1001_job-1.pdf" {
		t.Errorf("unexpected artifact name %q", name)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Errorf("artifact is not a PDF, starts %q", pdf[:min(8, len(pdf))])
	}
	if job.Material() != nil {
		t.Error("expected material released after completion")
	}
	if gen.calls != 1 {
		t.Errorf("expected 1 generation call, got %d", gen.calls)
	}

	snap := job.Snapshot()
	if snap.Progress.WeakTopics != 1 {
		t.Errorf("expected 1 weak topic recorded, got %d", snap.Progress.WeakTopics)
	}
	if snap.Progress.GuideChars != len(gen.guide) {
		t.Errorf("expected guide chars %d, got %d", len(gen.guide), snap.Progress.GuideChars)
	}
}

func TestWorker_PromptCarriesSubjectAndTopics(t *testing.T) {
	datasets := NewDatasetStore(time.Hour)
	ds := datasets.Put(testReport(), nil)

	var gotPrompt string
	gen := &promptCapture{inner: &stubGen{guide: "### T\n\nBody."}, captured: &gotPrompt}
	w := NewWorker(gen, nil, datasets, testLogger(), GuideOptions{PromptTokenBudget: 500})

	job := newTestJob(ds.ID, "1001", []byte("Kinematics material."), "ced.txt")
	w.Process(context.Background(), job)

	if !strings.Contains(gotPrompt, "AP Physics") {
		t.Error("expected subject in prompt")
	}
	if !strings.Contains(gotPrompt, "Unit 1 Quiz") {
		t.Error("expected weak topic in prompt")
	}
	if !strings.Contains(gotPrompt, "Kinematics material.") {
		t.Error("expected extracted material in prompt")
	}
}

type promptCapture struct {
	inner    textgen.Generator
	captured *string
}

func (p *promptCapture) GenerateGuide(ctx context.Context, prompt string) (string, error) {
	*p.captured = prompt
	return p.inner.GenerateGuide(ctx, prompt)
}

func TestWorker_FailsWhenDatasetMissing(t *testing.T) {
	datasets := NewDatasetStore(time.Hour)
	w := NewWorker(&stubGen{guide: "x"}, nil, datasets, testLogger(), GuideOptions{})

	job := newTestJob("01ARZ3NDEKTSV4RRFFQ69G5FAV", "1001", []byte("m"), "ced.txt")
	w.Process(context.Background(), job)

	if job.CurrentStatus() != StatusFailed {
		t.Fatalf("expected failed, got %s", job.CurrentStatus())
	}
	if job.Phase != "analyzing" {
		t.Errorf("expected failure in analyzing phase, got %q", job.Phase)
	}
	errs := job.Snapshot().Progress.Errors
	if len(errs) == 0 || !strings.Contains(errs[0], "dataset") {
		t.Errorf("expected dataset error, got %v", errs)
	}
}

func TestWorker_FailsWhenStudentMissing(t *testing.T) {
	datasets := NewDatasetStore(time.Hour)
	ds := datasets.Put(testReport(), nil)
	w := NewWorker(&stubGen{guide: "x"}, nil, datasets, testLogger(), GuideOptions{})

	job := newTestJob(ds.ID, "9999", []byte("m"), "ced.txt")
	w.Process(context.Background(), job)

	if job.CurrentStatus() != StatusFailed {
		t.Fatalf("expected failed, got %s", job.CurrentStatus())
	}
	errs := job.Snapshot().Progress.Errors
	if len(errs) == 0 || !strings.Contains(errs[0], "9999") {
		t.Errorf("expected error naming the student, got %v", errs)
	}
}

func TestWorker_FailsWhenNoWeakTopics(t *testing.T) {
	datasets := NewDatasetStore(time.Hour)
	ds := datasets.Put(testReport(), nil)
	gen := &stubGen{guide: "x"}
	w := NewWorker(gen, nil, datasets, testLogger(), GuideOptions{})

	// Student 1002 passes everything.
	job := newTestJob(ds.ID, "1002", []byte("m"), "ced.txt")
	w.Process(context.Background(), job)

	if job.CurrentStatus() != StatusFailed {
		t.Fatalf("expected failed, got %s", job.CurrentStatus())
	}
	if gen.calls != 0 {
		t.Error("must not call the generator when there is nothing to study")
	}
}

func TestWorker_FailsOnUnsupportedMaterial(t *testing.T) {
	datasets := NewDatasetStore(time.Hour)
	ds := datasets.Put(testReport(), nil)
	w := NewWorker(&stubGen{guide: "x"}, nil, datasets, testLogger(), GuideOptions{})

	job := newTestJob(ds.ID, "1001", []byte("m"), "sheet.xlsx")
	w.Process(context.Background(), job)

	if job.CurrentStatus() != StatusFailed {
		t.Fatalf("expected failed, got %s", job.CurrentStatus())
	}
	if job.Phase != "extracting" {
		t.Errorf("expected failure in extracting phase, got %q", job.Phase)
	}
}

func TestWorker_FailsOnEmptyMaterial(t *testing.T) {
	datasets := NewDatasetStore(time.Hour)
	ds := datasets.Put(testReport(), nil)
	w := NewWorker(&stubGen{guide: "x"}, nil, datasets, testLogger(), GuideOptions{})

	job := newTestJob(ds.ID, "1001", []byte("   \n\n   "), "ced.txt")
	w.Process(context.Background(), job)

	if job.CurrentStatus() != StatusFailed {
		t.Fatalf("expected failed, got %s", job.CurrentStatus())
	}
	errs := job.Snapshot().Progress.Errors
	if len(errs) == 0 || !strings.Contains(errs[0], "content") {
		t.Errorf("expected empty-content error, got %v", errs)
	}
}

func TestWorker_TerminalGenerationErrorFailsFast(t *testing.T) {
	datasets := NewDatasetStore(time.Hour)
	ds := datasets.Put(testReport(), nil)
	gen := &stubGen{err: fmt.Errorf("gemini api status 400: invalid model")}
	w := NewWorker(gen, nil, datasets, testLogger(), GuideOptions{})

	job := newTestJob(ds.ID, "1001", []byte("material"), "ced.txt")
	w.Process(context.Background(), job)

	if job.CurrentStatus() != StatusFailed {
		t.Fatalf("expected failed, got %s", job.CurrentStatus())
	}
	if job.Phase != "generating" {
		t.Errorf("expected failure in generating phase, got %q", job.Phase)
	}
	if gen.calls != 1 {
		t.Errorf("terminal errors must not be retried, got %d calls", gen.calls)
	}
}

func TestOrchestrator_SubmitQueueFull(t *testing.T) {
	cfg := config.Config{WorkerCount: 1, MaxQueueSize: 1, JobTTL: time.Hour, DatasetTTL: time.Hour}
	o := NewOrchestrator(cfg, &stubGen{guide: "x"}, nil, GuideOptions{}, testLogger())
	// Not started: jobs stay queued.

	first := newTestJob("d", "s", []byte("m"), "ced.txt")
	if err := o.Submit(first); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	second := newTestJob("d", "s", []byte("m"), "ced.txt")
	second.ID = "job-2"
	if err := o.Submit(second); err == nil {
		t.Fatal("expected queue-full error")
	}
	if second.CurrentStatus() != StatusFailed {
		t.Errorf("expected overflow job marked failed, got %s", second.CurrentStatus())
	}
	// Both jobs remain visible for status polling.
	if o.GetJob("job-1") == nil || o.GetJob("job-2") == nil {
		t.Error("expected both jobs in the store")
	}
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	cfg := config.Config{WorkerCount: 2, MaxQueueSize: 8, JobTTL: time.Hour, DatasetTTL: time.Hour}
	o := NewOrchestrator(cfg, &stubGen{guide: "### Topic\n\nReview this."}, nil, GuideOptions{}, testLogger())

	ds := o.Datasets().Put(testReport(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer o.Stop()

	job := newTestJob(ds.ID, "1001", []byte("Material text."), "ced.txt")
	if err := o.Submit(job); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	deadline := time.After(10 * time.Second)
	for job.CurrentStatus() != StatusCompleted && job.CurrentStatus() != StatusFailed {
		select {
		case <-deadline:
			t.Fatalf("job did not finish, stuck at %s", job.CurrentStatus())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if job.CurrentStatus() != StatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", job.CurrentStatus(), job.Snapshot().Progress.Errors)
	}

	taken, ok := o.TakeJob(job.ID)
	if !ok || taken == nil {
		t.Fatal("expected to take the completed job")
	}
	if o.GetJob(job.ID) != nil {
		t.Error("taken job should be gone")
	}
}
