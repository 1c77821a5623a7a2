// Package job implements the job controller (C13): it accepts asynchronous
// indexing requests, assigns each one a UUID, runs it on a background
// goroutine against the indexing orchestrator, and exposes the in-memory job
// table for status/progress polling and cancellation.
package job

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/ahart-dev/vaultmind/internal/errs"
	"github.com/ahart-dev/vaultmind/internal/indexer"
	"github.com/ahart-dev/vaultmind/internal/model"
)

// Runner is the subset of *indexer.Orchestrator the controller depends on,
// narrowed for testability.
type Runner interface {
	Run(ctx context.Context, vault model.Vault, full bool, progressFn indexer.ProgressFunc) (indexer.Result, error)
	Cancel()
	ResetCancel()
}

// Controller owns the in-memory job table and the single-run advisory lock
// that keeps a second process from starting a concurrent job (spec §4.13,
// A8). One Controller wraps one Runner, so only one job may be running at a
// time regardless of how many vaults the caller targets.
type Controller struct {
	runner   Runner
	lockPath string

	httpClient *http.Client
	now        func() time.Time

	mu        sync.RWMutex
	jobs      map[string]*model.Job
	runningID string
}

// Option customizes a Controller at construction time.
type Option func(*Controller)

// WithHTTPClient overrides the client used for best-effort callback POSTs.
func WithHTTPClient(c *http.Client) Option {
	return func(ctrl *Controller) { ctrl.httpClient = c }
}

// WithClock overrides the controller's notion of "now", for deterministic
// tests.
func WithClock(now func() time.Time) Option {
	return func(ctrl *Controller) { ctrl.now = now }
}

// New builds a Controller. lockPath is the advisory lock file path (spec
// §4.13/A8, config.Indexing.LockPath) that prevents two processes from
// running a job concurrently.
func New(runner Runner, lockPath string, opts ...Option) *Controller {
	ctrl := &Controller{
		runner:     runner,
		lockPath:   lockPath,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		jobs:       make(map[string]*model.Job),
	}
	for _, opt := range opts {
		opt(ctrl)
	}
	return ctrl
}

// Submission is returned by Start: the caller gets it back immediately while
// the job body runs in the background.
type Submission struct {
	JobID  string
	Status model.JobStatus
}

// StatusStarted is the status a successful Start reports: the job is
// accepted and its body has been launched in the background.
const StatusStarted model.JobStatus = "started"

// Start assigns a new job id, records it pending, and launches the
// background goroutine that runs it. It returns immediately (spec §4.13:
// "the submission call returns immediately with {job_id, 'started'}").
func (c *Controller) Start(ctx context.Context, vault model.Vault, full bool, callbackURL string) (Submission, error) {
	if err := os.MkdirAll(filepath.Dir(c.lockPath), 0o755); err != nil {
		return Submission{}, errs.New(errs.KindJobBodyException, "create lock directory", err).WithPath(c.lockPath)
	}

	fl := flock.New(c.lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return Submission{}, errs.New(errs.KindJobBodyException, "acquire index lock", err).WithPath(c.lockPath)
	}
	if !locked {
		return Submission{}, errs.New(errs.KindJobBodyException, "another process is already indexing", nil).WithPath(c.lockPath)
	}

	id := uuid.NewString()
	j := &model.Job{
		ID:          id,
		Status:      model.JobPending,
		StartedAt:   c.now(),
		Vault:       vault,
		Full:        full,
		CallbackURL: callbackURL,
	}

	c.mu.Lock()
	c.jobs[id] = j
	c.runningID = id
	c.mu.Unlock()

	c.runner.ResetCancel()

	go c.run(ctx, j, fl)

	return Submission{JobID: id, Status: StatusStarted}, nil
}

// run is the background job body: it marks the job running, invokes the
// orchestrator, records the terminal state, releases the lock, and fires the
// best-effort callback.
func (c *Controller) run(ctx context.Context, j *model.Job, fl *flock.Flock) {
	defer func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("release_index_lock_failed", slog.String("job_id", j.ID), slog.String("error", err.Error()))
		}
		c.mu.Lock()
		if c.runningID == j.ID {
			c.runningID = ""
		}
		c.mu.Unlock()
	}()

	c.setStatus(j.ID, model.JobRunning, func(job *model.Job) {})

	result, err := c.runner.Run(ctx, j.Vault, j.Full, func(p model.Progress) {
		c.mu.Lock()
		if job, ok := c.jobs[j.ID]; ok {
			job.Progress = p
		}
		c.mu.Unlock()
	})

	completedAt := c.now()
	if err != nil {
		c.setStatus(j.ID, model.JobFailed, func(job *model.Job) {
			job.Error = err.Error()
			job.CompletedAt = completedAt
			job.Duration = completedAt.Sub(job.StartedAt)
		})
	} else {
		c.setStatus(j.ID, model.JobCompleted, func(job *model.Job) {
			job.IndexedCount = result.IndexedCount
			job.CompletedAt = completedAt
			job.Duration = completedAt.Sub(job.StartedAt)
			if result.Cancelled {
				job.Error = "cancelled"
			}
		})
	}

	c.fireCallback(j.ID)
}

func (c *Controller) setStatus(id string, status model.JobStatus, mutate func(*model.Job)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[id]
	if !ok {
		return
	}
	j.Status = status
	mutate(j)
}

// callbackPayload is the best-effort POST body sent to CallbackURL on
// terminal state (spec §4.13).
type callbackPayload struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	IndexedCount int    `json:"indexed_count"`
	Error        string `json:"error,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
}

// fireCallback POSTs a terminal-state summary once. Failure is logged but
// never changes the job's recorded state — the callback is advisory.
func (c *Controller) fireCallback(id string) {
	c.mu.RLock()
	j, ok := c.jobs[id]
	c.mu.RUnlock()
	if !ok || j.CallbackURL == "" {
		return
	}

	payload := callbackPayload{
		JobID:        j.ID,
		Status:       string(j.Status),
		IndexedCount: j.IndexedCount,
		Error:        j.Error,
		DurationMS:   j.Duration.Milliseconds(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("marshal_callback_payload_failed", slog.String("job_id", j.ID), slog.String("error", err.Error()))
		return
	}

	req, err := http.NewRequest(http.MethodPost, j.CallbackURL, bytes.NewReader(body))
	if err != nil {
		slog.Warn("build_callback_request_failed", slog.String("job_id", j.ID), slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("callback_post_failed", slog.String("job_id", j.ID), slog.String("url", j.CallbackURL), slog.String("error", err.Error()))
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		slog.Warn("callback_post_non_2xx", slog.String("job_id", j.ID), slog.Int("status", resp.StatusCode))
	}
}

// Status returns a copy of the job's current state, or false if no such job
// was ever submitted.
func (c *Controller) Status(id string) (model.Job, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	j, ok := c.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return *j, true
}

// RunningProgress returns the currently running job's progress, or false if
// no job is running.
func (c *Controller) RunningProgress() (model.Job, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.runningID == "" {
		return model.Job{}, false
	}
	j, ok := c.jobs[c.runningID]
	if !ok {
		return model.Job{}, false
	}
	return *j, true
}

// Cancel sets the shared cancellation flag on the indexer if the named job
// is the one currently running; it is a no-op (returning false) for an
// already-terminal or unknown job id (spec §4.13).
func (c *Controller) Cancel(id string) bool {
	c.mu.RLock()
	running := c.runningID == id
	c.mu.RUnlock()
	if !running {
		return false
	}
	c.runner.Cancel()
	return true
}

// ErrJobNotFound is a typed sentinel for a missing job id. Nothing in this
// package returns it: Status and RunningProgress report a missing job
// through their ok boolean, which the HTTP layer maps to 404.
var ErrJobNotFound = fmt.Errorf("job: not found")
