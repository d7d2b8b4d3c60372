package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"crime_pipeline/internal/config"
	"crime_pipeline/internal/events"
	"crime_pipeline/internal/metrics"
	"crime_pipeline/internal/store"
)

// Status values for jobs.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Stage represents pipeline phases. SILVER runs per daily archive,
// MATERIALIZE and AGGREGATE per reporting period, COMBINE once per build.
type Stage string

const (
	StageSilver      Stage = "SILVER"
	StageMaterialize Stage = "MATERIALIZE"
	StageAggregate   Stage = "AGGREGATE"
	StageCombine     Stage = "COMBINE"
)

// ExecutionContext bundles dependencies for stage execution.
type ExecutionContext struct {
	Cfg   config.Config
	Store *store.Store
	Logf  func(jobID int64, msg string)
}

// StageFunc is a deterministic stage implementation keyed by its subject:
// a batch date for SILVER, a period key for MATERIALIZE and AGGREGATE.
type StageFunc func(ctx context.Context, execCtx ExecutionContext, subject string, params map[string]any) error

// Registry maps stages to implementations.
type Registry map[Stage]StageFunc

// JobFinished is published on the bus after every job completes.
type JobFinished struct {
	JobID   int64
	Subject string
	Stage   Stage
	Status  string
}

// Runner executes jobs using a worker pool. Failures are isolated: a failed
// job marks itself failed and never takes a sibling down with it.
type Runner struct {
	cfg       config.Config
	store     *store.Store
	reg       Registry
	bus       *events.Bus
	queue     chan *store.Job
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	logMu     sync.Mutex
	logBuffer map[int64][]string
}

// NewRunner constructs a runner.
func NewRunner(cfg config.Config, st *store.Store, reg Registry, bus *events.Bus) *Runner {
	return &Runner{
		cfg:       cfg,
		store:     st,
		reg:       reg,
		bus:       bus,
		queue:     make(chan *store.Job, cfg.JobQueueSize),
		logBuffer: make(map[int64][]string),
	}
}

// Start spins the worker pool.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	for i := 0; i < r.cfg.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

// Stop waits for workers to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Enqueue inserts a job respecting idempotency. Re-enqueueing the same
// subject, stage, and params returns the existing job without queueing twice.
func (r *Runner) Enqueue(ctx context.Context, subject string, stage Stage, params map[string]any) (*store.Job, error) {
	idem := r.idempotencyKey(subject, stage, params)
	payload, _ := json.Marshal(params)
	job := &store.Job{
		Subject:        subject,
		Stage:          string(stage),
		Status:         StatusQueued,
		ParamsJSON:     string(payload),
		IdempotencyKey: idem,
		CreatedAt:      config.Now(),
		UpdatedAt:      config.Now(),
	}
	j, err := r.store.InsertJobIdempotent(ctx, job)
	if err == store.ErrConflict {
		return j, nil
	}
	if err != nil {
		return nil, err
	}
	select {
	case r.queue <- j:
		return j, nil
	default:
		return nil, fmt.Errorf("queue full")
	}
}

// RunSync executes a stage inline without touching the queue. Orchestrated
// builds use this so a build can own its own parallelism and barriers.
func (r *Runner) RunSync(ctx context.Context, subject string, stage Stage, params map[string]any) error {
	payload, _ := json.Marshal(params)
	job, err := r.store.RecordJob(ctx, &store.Job{
		Subject:        subject,
		Stage:          string(stage),
		Status:         StatusQueued,
		ParamsJSON:     string(payload),
		IdempotencyKey: r.idempotencyKey(subject, stage, params) + "-" + uuid.NewString(),
		CreatedAt:      config.Now(),
		UpdatedAt:      config.Now(),
	})
	if err != nil {
		return err
	}
	return r.execute(ctx, job)
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.queue:
			_ = r.execute(ctx, job)
		}
	}
}

func (r *Runner) execute(ctx context.Context, job *store.Job) error {
	stage := Stage(job.Stage)
	fn, ok := r.reg[stage]
	if !ok {
		r.appendLog(job.ID, "no handler for stage")
		_ = r.store.MarkJobFinished(ctx, job.ID, StatusFailed, config.Now())
		return fmt.Errorf("no handler for stage %s", stage)
	}
	_ = r.store.MarkJobStarted(ctx, job.ID, config.Now())
	execCtx := ExecutionContext{Cfg: r.cfg, Store: r.store, Logf: func(id int64, msg string) { r.appendLog(id, msg) }}
	params := map[string]any{}
	_ = json.Unmarshal([]byte(job.ParamsJSON), &params)
	params["job_id"] = job.ID

	runCtx := ctx
	if r.cfg.JobTimeoutSec > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(r.cfg.JobTimeoutSec)*time.Second)
		defer cancel()
	}

	err := fn(runCtx, execCtx, job.Subject, params)
	status := StatusSucceeded
	if err != nil {
		status = StatusFailed
		r.appendLog(job.ID, "error: "+err.Error())
		metrics.IncFailed(string(stage))
	} else {
		metrics.IncSucceeded(string(stage))
	}
	_ = r.store.MarkJobFinished(ctx, job.ID, status, config.Now())
	if r.bus != nil {
		r.bus.Publish(JobFinished{JobID: job.ID, Subject: job.Subject, Stage: stage, Status: status})
	}
	return err
}

func (r *Runner) appendLog(jobID int64, msg string) {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	ts := config.Now()
	_ = r.store.AppendJobLog(context.Background(), jobID, msg, ts)
	r.logBuffer[jobID] = append(r.logBuffer[jobID], fmt.Sprintf("%s %s", ts.Format(time.RFC3339), msg))
	if len(r.logBuffer[jobID]) > 200 {
		r.logBuffer[jobID] = r.logBuffer[jobID][len(r.logBuffer[jobID])-200:]
	}
}

// Logs returns the in-memory log buffer for a job.
func (r *Runner) Logs(jobID int64) []string {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	return append([]string(nil), r.logBuffer[jobID]...)
}

func (r *Runner) idempotencyKey(subject string, stage Stage, params map[string]any) string {
	payload, _ := json.Marshal(params)
	h := sha256.Sum256([]byte(subject + string(stage) + string(payload)))
	return hex.EncodeToString(h[:])
}
