package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CWCHIUC/guidegen/internal/config"
	"github.com/CWCHIUC/guidegen/internal/rasterize"
	"github.com/CWCHIUC/guidegen/internal/textgen"
)

// Orchestrator manages the guide-generation pipeline: the job queue, the
// worker pool, and the two TTL stores behind them.
type Orchestrator struct {
	jobs     *JobStore
	datasets *DatasetStore
	queue    chan *Job
	gen      textgen.Generator
	renderer rasterize.Renderer
	log      *slog.Logger
	cfg      config.Config
	guide    GuideOptions

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Style, font, and title knobs
// arrive via guide; the rest comes from cfg.
func NewOrchestrator(cfg config.Config, gen textgen.Generator, renderer rasterize.Renderer, guide GuideOptions, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		datasets: NewDatasetStore(cfg.DatasetTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		gen:      gen,
		renderer: renderer,
		log:      log,
		cfg:      cfg,
		guide:    guide,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.gen, o.renderer, o.datasets, o.log, o.guide)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Evict expired jobs and datasets together.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
				o.datasets.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// TakeJob pops a completed job for download.
func (o *Orchestrator) TakeJob(id string) (*Job, bool) {
	return o.jobs.Take(id)
}

// Datasets returns the dataset store for direct use by API handlers.
func (o *Orchestrator) Datasets() *DatasetStore {
	return o.datasets
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
