// Package jobs drives a remote categorization job to completion: submit,
// poll on a fixed interval, report progress, land in a terminal state.
package jobs

import (
	"context"
	"sync"
	"time"

	"bilancio/internal/backend"
	"bilancio/internal/core"
	"bilancio/internal/log"
)

// State is the orchestrator's lifecycle position. One orchestrator tracks at
// most one job at a time.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// settled reports whether a new submission may start from this state.
// Terminal states fold back into idle on the next submit.
func (s State) settled() bool {
	return s == StateIdle || s == StateCompleted || s == StateFailed
}

// Snapshot is the observer-facing view of the orchestrator. Immutable copy;
// observers never touch internal state directly.
type Snapshot struct {
	State            State    `json:"state"`
	JobID            string   `json:"job_id,omitempty"`
	TransactionIDs   []string `json:"transaction_ids,omitempty"`
	TotalCount       int      `json:"total_count"`
	CategorizedCount int      `json:"categorized_count"`
	Progress         float64  `json:"progress"`
	ErrorMessage     string   `json:"error_message,omitempty"`
}

// CompletionFunc runs after the remote job completes and before the
// orchestrator surfaces Completed, so callers observe fresh data atomically
// with job completion. Typically wired to summary invalidation.
type CompletionFunc func(ctx context.Context)

// Options tunes the orchestrator.
type Options struct {
	// PollInterval is the delay between status fetches (default: 1.5s).
	PollInterval time.Duration

	// OnCompleted runs before Completed is surfaced. Optional.
	OnCompleted CompletionFunc
}

const defaultPollInterval = 1500 * time.Millisecond

// Orchestrator owns the categorization job state machine. All state is
// mutated by the submit path and the polling goroutine; observers read
// through Snapshot. Cancellation stops observing the remote job without
// failing it, so submitting again later is always safe.
type Orchestrator struct {
	api    backend.CategorizationAPI
	logger *log.Logger
	opts   Options

	mu          sync.Mutex
	state       State
	jobID       string
	ids         []string
	force       bool
	total       int
	categorized int
	errMessage  string
	stopCh      chan struct{}
	doneCh      chan struct{}
}

func NewOrchestrator(api backend.CategorizationAPI, logger *log.Logger, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Orchestrator{
		api:    api,
		logger: logger.WithComponent(log.ComponentOrchestrator),
		opts:   opts,
		state:  StateIdle,
	}
}

// Submit starts tracking a new categorization job. Empty batches and
// submissions while a job is in flight are no-ops, not errors and not queued
// requests.
func (o *Orchestrator) Submit(ctx context.Context, transactionIDs []string, force bool) {
	o.mu.Lock()
	if len(transactionIDs) == 0 || !o.state.settled() {
		o.mu.Unlock()
		o.logger.Debug("submit ignored", log.FieldTxnCount, len(transactionIDs))
		return
	}
	o.begin(transactionIDs, force)
	o.mu.Unlock()

	// The polling loop outlives the submitting caller (an HTTP request ends
	// as soon as the handler returns); only Cancel stops it.
	go o.run(context.WithoutCancel(ctx))
}

// Retry re-submits the last failed batch. Explicit user action only; the
// orchestrator never retries on its own, since a remote classification run
// may be billed.
func (o *Orchestrator) Retry(ctx context.Context) {
	o.mu.Lock()
	if o.state != StateFailed || len(o.ids) == 0 {
		o.mu.Unlock()
		o.logger.Debug("retry ignored", log.FieldJobStatus, string(o.state))
		return
	}
	o.begin(o.ids, o.force)
	o.mu.Unlock()

	go o.run(context.WithoutCancel(ctx))
}

// begin resets per-job state for a new submission. Caller holds the lock.
func (o *Orchestrator) begin(transactionIDs []string, force bool) {
	o.state = StateSubmitting
	o.jobID = ""
	o.ids = transactionIDs
	o.force = force
	o.total = 0
	o.categorized = 0
	o.errMessage = ""
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
}

// Cancel stops observing the current job. The remote job keeps running;
// cancellation is not failure and leaves the orchestrator idle.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.state != StateSubmitting && o.state != StatePolling {
		o.mu.Unlock()
		return
	}
	stopCh, doneCh := o.stopCh, o.doneCh
	o.mu.Unlock()

	close(stopCh)
	<-doneCh

	o.mu.Lock()
	if o.state == StateSubmitting || o.state == StatePolling {
		o.state = StateIdle
	}
	o.mu.Unlock()

	o.logger.Info("stopped observing categorization job", log.FieldOperation, log.OpCancel)
}

// Snapshot returns a copy of the orchestrator's observable state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		State:            o.state,
		JobID:            o.jobID,
		TotalCount:       o.total,
		CategorizedCount: o.categorized,
		ErrorMessage:     o.errMessage,
	}
	snap.TransactionIDs = append([]string(nil), o.ids...)
	if o.total > 0 {
		snap.Progress = float64(o.categorized) / float64(o.total)
		if snap.Progress > 1 {
			snap.Progress = 1
		}
	}
	return snap
}

// run submits the job and polls it to a terminal state. Exits on stop signal
// or context cancellation without touching terminal state.
func (o *Orchestrator) run(ctx context.Context) {
	o.mu.Lock()
	ids, force, stopCh, doneCh := o.ids, o.force, o.stopCh, o.doneCh
	o.mu.Unlock()
	defer close(doneCh)

	jobID, err := o.api.SubmitCategorizationJob(ctx, ids, force)
	if err != nil {
		// Submit failures must be visible, never a silent slide back to idle.
		o.fail(stopCh, core.ErrJobSubmitFailed.Error()+": "+err.Error())
		o.logger.Error("categorization submit failed", log.FieldError, err)
		return
	}

	o.mu.Lock()
	o.jobID = jobID
	o.state = StatePolling
	o.mu.Unlock()
	o.logger.Info("categorization job submitted",
		log.FieldJobID, jobID,
		log.FieldTxnCount, len(ids),
	)

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for {
		if terminal := o.poll(ctx, stopCh, jobID); terminal {
			return
		}
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll fetches the job status once and applies it. Returns true when the job
// reached a terminal state.
func (o *Orchestrator) poll(ctx context.Context, stopCh chan struct{}, jobID string) bool {
	job, err := o.api.GetCategorizationJob(ctx, jobID)
	if err != nil {
		// A failed status read is not a failed job; keep polling.
		o.logger.Warn("poll failed", log.FieldJobID, jobID, log.FieldError, err)
		return false
	}

	o.mu.Lock()
	if job.TotalTransactions > o.total {
		o.total = job.TotalTransactions
	}
	// Progress is monotonic within one job. A regressed count is a protocol
	// violation and gets clamped, not propagated.
	if job.CategorizedCount > o.categorized {
		o.categorized = job.CategorizedCount
	}
	categorized, total := o.categorized, o.total
	o.mu.Unlock()

	o.logger.Debug("categorization progress",
		log.FieldJobID, jobID,
		log.FieldCategorized, categorized,
		log.FieldTxnCount, total,
		log.FieldJobStatus, string(job.Status),
	)

	switch job.Status {
	case core.JobCompleted:
		// Refresh downstream data before surfacing success, so categorized
		// transactions vanish from the uncategorized list atomically with
		// completion from the observer's point of view.
		if o.opts.OnCompleted != nil {
			o.opts.OnCompleted(ctx)
		}
		o.transition(stopCh, StateCompleted, "")
		o.logger.Info("categorization job completed", log.FieldJobID, jobID, log.FieldCategorized, categorized)
		return true
	case core.JobFailed:
		o.fail(stopCh, job.ErrorMessage)
		o.logger.Error("categorization job failed", log.FieldJobID, jobID, log.FieldError, job.ErrorMessage)
		return true
	default:
		return false
	}
}

func (o *Orchestrator) fail(stopCh chan struct{}, message string) {
	o.transition(stopCh, StateFailed, message)
}

// transition applies a terminal state unless the observer already cancelled.
func (o *Orchestrator) transition(stopCh chan struct{}, state State, message string) {
	select {
	case <-stopCh:
		return
	default:
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = state
	o.errMessage = message
}
