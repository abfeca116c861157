// Package jobs runs detections concurrently and records their lifecycle.
//
// The detection core is synchronous and single threaded. A Runner gives each
// job its own detector invocation, bounds how many run at once, applies a
// per-job timeout, and writes queued/running/completed/failed records to the
// optional result store. Jobs are never retried.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/change-detect-mcp/internal/config"
	"github.com/ironsheep/change-detect-mcp/internal/detection"
	"github.com/ironsheep/change-detect-mcp/internal/raster"
	"github.com/ironsheep/change-detect-mcp/internal/store"
)

// Errors returned by the runner.
var (
	ErrClosed   = errors.New("job runner closed")
	ErrNotFound = errors.New("job not found")
	ErrTimeout  = errors.New("detection timed out")
	ErrRequest  = errors.New("invalid job request")
	ErrNoStore  = errors.New("no result store configured")
)

// bytesPerWorker is the memory budget assumed for one in-flight detection.
const bytesPerWorker = 512 << 20

// retained is how many finished jobs keep their analysis in memory.
const retained = 64

// Request describes one detection job.
type Request struct {
	BeforePath string
	AfterPath  string
	AOI        *raster.Polygon

	// AOIID groups jobs for history queries. Optional.
	AOIID string

	// Reduced forces the NDVI-only analysis.
	Reduced bool
}

func (r Request) validate() error {
	if r.BeforePath == "" || r.AfterPath == "" {
		return fmt.Errorf("%w: before and after paths are required", ErrRequest)
	}
	return nil
}

// Outcome is the result of one job of a batch.
type Outcome struct {
	ID       string
	Analysis *detection.Analysis
	Err      error
}

// Status is the observable state of a job.
type Status struct {
	ID               string          `json:"id"`
	AOIID            string          `json:"aoi_id,omitempty"`
	State            store.Status    `json:"status"`
	Stage            detection.Stage `json:"stage,omitempty"`
	Mode             detection.Mode  `json:"mode,omitempty"`
	ChangePercentage *float64        `json:"change_percentage,omitempty"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`

	// Analysis is set for completed jobs still held in memory.
	Analysis *detection.Analysis `json:"-"`

	// StoredResult is the persisted result payload of a completed job read
	// back from the store.
	StoredResult json.RawMessage `json:"-"`
}

// Runner executes detection jobs. It is safe for concurrent use.
type Runner struct {
	detector *detection.Detector
	store    *store.Store
	logger   *slog.Logger
	timeout  time.Duration
	workers  int

	group   errgroup.Group
	pending sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	jobs     map[string]*Status
	finished []string
}

// New returns a Runner. st may be nil, in which case job state lives only in
// memory. A cfg.Workers of 0 picks DefaultWorkers.
func New(det *detection.Detector, st *store.Store, cfg config.Jobs, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers(logger)
	}
	r := &Runner{
		detector: det,
		store:    st,
		logger:   logger,
		timeout:  cfg.Timeout,
		workers:  workers,
		jobs:     make(map[string]*Status),
	}
	r.group.SetLimit(workers)
	logger.Debug("job runner ready", "workers", workers, "timeout", cfg.Timeout, "persistent", st != nil)
	return r
}

// Workers returns the concurrency limit.
func (r *Runner) Workers() int { return r.workers }

// DefaultWorkers returns the logical CPU count, lowered so that each worker
// has bytesPerWorker of available memory. It never returns less than 1.
func DefaultWorkers(logger *slog.Logger) int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		logger.Debug("memory probe failed, sizing by CPU only", "error", err)
		return max(n, 1)
	}
	byMem := int(vm.Available / bytesPerWorker)
	return max(min(n, byMem), 1)
}

// Run executes req and waits for it. The returned id identifies the job even
// when the detection fails.
func (r *Runner) Run(ctx context.Context, req Request) (string, *detection.Analysis, error) {
	if err := req.validate(); err != nil {
		return "", nil, err
	}
	id, err := r.enqueue(ctx, req)
	if err != nil {
		return "", nil, err
	}
	defer r.pending.Done()
	a, err := r.execute(ctx, id, req)
	return id, a, err
}

// Submit queues req and returns its id without waiting. The job outlives
// ctx's cancellation; use Status to follow it.
func (r *Runner) Submit(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	id, err := r.enqueue(ctx, req)
	if err != nil {
		return "", err
	}

	jobCtx := context.WithoutCancel(ctx)
	go func() {
		defer r.pending.Done()
		// Go blocks until a worker slot is free.
		r.group.Go(func() error {
			r.execute(jobCtx, id, req)
			return nil
		})
	}()
	return id, nil
}

// Batch runs reqs in parallel and waits for all of them. A failing job does
// not stop the others; each Outcome carries its own error.
func (r *Runner) Batch(ctx context.Context, reqs []Request) []Outcome {
	out := make([]Outcome, len(reqs))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, req := range reqs {
		g.Go(func() error {
			if ctx.Err() != nil {
				out[i].Err = ctx.Err()
				return nil
			}
			out[i].ID, out[i].Analysis, out[i].Err = r.Run(ctx, req)
			return nil
		})
	}
	g.Wait()
	return out
}

// Status returns the state of job id, from memory when the job ran in this
// process and from the store otherwise.
func (r *Runner) Status(ctx context.Context, id string) (*Status, error) {
	r.mu.Lock()
	if s, ok := r.jobs[id]; ok {
		cp := *s
		r.mu.Unlock()
		return &cp, nil
	}
	r.mu.Unlock()

	if r.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec, err := r.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return statusFromRecord(rec), nil
}

// History returns the most recent persisted jobs for an AOI, newest first.
func (r *Runner) History(ctx context.Context, aoiID string, limit int) ([]store.Record, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	return r.store.ListByAOI(ctx, aoiID, limit)
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.pending.Wait()
	r.group.Wait()
}

// enqueue registers a job and counts it as pending. The caller must call
// r.pending.Done once the job has finished or been handed to the group.
func (r *Runner) enqueue(ctx context.Context, req Request) (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrClosed
	}
	r.pending.Add(1)
	id := uuid.NewString()
	now := time.Now().UTC()
	r.jobs[id] = &Status{ID: id, AOIID: req.AOIID, State: store.StatusQueued, CreatedAt: now}
	r.mu.Unlock()

	if r.store != nil {
		err := r.store.Create(ctx, store.Record{
			ID: id, AOIID: req.AOIID, BeforePath: req.BeforePath, AfterPath: req.AfterPath,
		})
		if err != nil {
			r.mu.Lock()
			delete(r.jobs, id)
			r.mu.Unlock()
			r.pending.Done()
			return "", err
		}
	}
	r.logger.Debug("job queued", "id", id, "aoi_id", req.AOIID)
	return id, nil
}

type runResult struct {
	analysis *detection.Analysis
	err      error
}

// execute runs one job to completion or timeout and records the outcome.
func (r *Runner) execute(ctx context.Context, id string, req Request) (*detection.Analysis, error) {
	det := r.detector.With(detection.WithObserver(func(s detection.Stage) {
		r.setStage(ctx, id, s)
	}))

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// The core cannot be interrupted. On timeout the job is failed and the
	// detection is left to finish in the background with its result dropped.
	done := make(chan runResult, 1)
	go func() {
		var res runResult
		if req.Reduced {
			res.analysis, res.err = det.RunReduced(req.BeforePath, req.AfterPath, req.AOI)
		} else {
			res.analysis, res.err = det.Run(req.BeforePath, req.AfterPath, req.AOI)
		}
		done <- res
	}()

	var res runResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
		if errors.Is(res.err, context.DeadlineExceeded) {
			res.err = fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
		}
	}

	// Recording uses a fresh context so a timed-out job is still marked.
	recCtx := context.WithoutCancel(ctx)
	if res.err != nil {
		r.fail(recCtx, id, res.err)
		return nil, res.err
	}
	r.complete(recCtx, id, res.analysis)
	return res.analysis, nil
}

// setStage records a stage transition. Transitions reported after the job
// finished, by a detection that outlived its timeout, are ignored.
func (r *Runner) setStage(ctx context.Context, id string, s detection.Stage) {
	r.mu.Lock()
	st, ok := r.jobs[id]
	active := ok && (st.State == store.StatusQueued || st.State == store.StatusRunning)
	if active {
		st.State = store.StatusRunning
		st.Stage = s
	}
	r.mu.Unlock()

	if active && r.store != nil && s != detection.StageDone {
		if err := r.store.MarkRunning(context.WithoutCancel(ctx), id, string(s)); err != nil {
			r.logger.Warn("failed to record job stage", "id", id, "stage", s, "error", err)
		}
	}
}

func (r *Runner) complete(ctx context.Context, id string, a *detection.Analysis) {
	pct := a.ChangePercentage()
	now := time.Now().UTC()
	r.mu.Lock()
	if st, ok := r.jobs[id]; ok {
		st.State = store.StatusCompleted
		st.Stage = detection.StageDone
		st.Mode = a.Mode
		st.ChangePercentage = &pct
		st.CompletedAt = &now
		st.Analysis = a
	}
	r.retire(id)
	r.mu.Unlock()

	r.logger.Info("job completed", "id", id, "mode", a.Mode, "change_percentage", pct)
	if r.store == nil {
		return
	}
	payload, err := json.Marshal(a.Payload(false))
	if err != nil {
		r.logger.Warn("failed to encode job result", "id", id, "error", err)
		return
	}
	if err := r.store.Complete(ctx, id, string(a.Mode), pct, payload); err != nil {
		r.logger.Warn("failed to record job result", "id", id, "error", err)
	}
}

func (r *Runner) fail(ctx context.Context, id string, jobErr error) {
	now := time.Now().UTC()
	r.mu.Lock()
	if st, ok := r.jobs[id]; ok {
		st.State = store.StatusFailed
		st.Error = jobErr.Error()
		st.CompletedAt = &now
		if stage := detection.FailedStage(jobErr); stage != "" {
			st.Stage = stage
		}
	}
	r.retire(id)
	r.mu.Unlock()

	r.logger.Warn("job failed", "id", id, "error", jobErr)
	if r.store == nil {
		return
	}
	if err := r.store.Fail(ctx, id, jobErr.Error()); err != nil {
		r.logger.Warn("failed to record job failure", "id", id, "error", err)
	}
}

// retire marks id finished and drops the oldest finished jobs beyond
// retained. With a store they remain queryable from there. Callers hold mu.
func (r *Runner) retire(id string) {
	r.finished = append(r.finished, id)
	if len(r.finished) <= retained {
		return
	}
	drop := r.finished[0]
	r.finished = r.finished[1:]
	if r.store != nil {
		delete(r.jobs, drop)
		return
	}
	// Without a store only the analysis is released.
	if st, ok := r.jobs[drop]; ok {
		st.Analysis = nil
	}
}

func statusFromRecord(rec *store.Record) *Status {
	return &Status{
		ID:               rec.ID,
		AOIID:            rec.AOIID,
		State:            rec.Status,
		Stage:            detection.Stage(rec.Stage),
		Mode:             detection.Mode(rec.Mode),
		ChangePercentage: rec.ChangePercentage,
		Error:            rec.Error,
		CreatedAt:        rec.CreatedAt,
		CompletedAt:      rec.CompletedAt,
		StoredResult:     rec.Result,
	}
}
