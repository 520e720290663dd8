package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// JobStatus represents the state of a guide-generation job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusAnalyzing  JobStatus = "analyzing"
	StatusExtracting JobStatus = "extracting"
	StatusGenerating JobStatus = "generating"
	StatusComposing  JobStatus = "composing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job tracks the state of a single study-guide generation.
type Job struct {
	mu sync.Mutex

	ID        string `json:"job_id"`
	DatasetID string `json:"dataset_id"`
	StudentID string `json:"student_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	materialData []byte
	artifact     []byte
	artifactName string
	errors       []string
}

// Progress tracks generation progress.
type Progress struct {
	WeakTopics    int      `json:"weak_topics"`
	GuideChars    int      `json:"guide_chars"`
	ArtifactBytes int      `json:"artifact_bytes"`
	Errors        []string `json:"errors"`
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Take removes and returns a job, but only once it has completed: the
// artifact is handed out exactly once, and in-flight jobs stay tracked
// so polling keeps working. The job is returned either way so callers
// can tell "not finished" from "unknown".
func (s *JobStore) Take(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	if job == nil {
		return nil, false
	}
	if job.CurrentStatus() != StatusCompleted {
		return job, false
	}
	delete(s.jobs, id)
	return job, true
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.lastUpdate()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// CurrentStatus reads the status under the job lock.
func (j *Job) CurrentStatus() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status
}

func (j *Job) lastUpdate() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.UpdatedAt
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetWeakTopicCount records how many topics the guide will cover.
func (j *Job) SetWeakTopicCount(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.WeakTopics = n
	j.UpdatedAt = time.Now()
}

// SetGuideSize records the size of the generated markup.
func (j *Job) SetGuideSize(chars int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.GuideChars = chars
	j.UpdatedAt = time.Now()
}

// SetMaterial sets the raw course-material bytes for processing.
func (j *Job) SetMaterial(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.materialData = data
}

// Material returns the raw course-material bytes.
func (j *Job) Material() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.materialData
}

// SetArtifact attaches the finished PDF. The material bytes are dropped
// at the same time; they are not needed once composition succeeds.
func (j *Job) SetArtifact(name string, pdf []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.artifactName = name
	j.artifact = pdf
	j.materialData = nil
	j.Progress.ArtifactBytes = len(pdf)
	j.UpdatedAt = time.Now()
}

// Artifact returns the finished PDF and its download filename.
func (j *Job) Artifact() (string, []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.artifactName, j.artifact
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	DatasetID string    `json:"dataset_id"`
	StudentID string    `json:"student_id"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Filename  string    `json:"filename"`
	Progress  Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobSnapshot{
		ID:        j.ID,
		DatasetID: j.DatasetID,
		StudentID: j.StudentID,
		Status:    j.Status,
		Phase:     j.Phase,
		Filename:  j.Filename,
		Progress: Progress{
			WeakTopics:    j.Progress.WeakTopics,
			GuideChars:    j.Progress.GuideChars,
			ArtifactBytes: j.Progress.ArtifactBytes,
			Errors:        errs,
		},
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
