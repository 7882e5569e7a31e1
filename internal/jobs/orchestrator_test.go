package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *log.Logger {
	return log.NewWithHandler(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedAPI replays a fixed sequence of job statuses; the final status
// repeats once the script is exhausted.
type scriptedAPI struct {
	mu        sync.Mutex
	submitErr error
	submits   int
	statuses  []core.CategorizationJob
	idx       int
}

func (a *scriptedAPI) SubmitCategorizationJob(_ context.Context, ids []string, _ bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submits++
	if a.submitErr != nil {
		return "", a.submitErr
	}
	return "job-1", nil
}

func (a *scriptedAPI) GetCategorizationJob(_ context.Context, jobID string) (core.CategorizationJob, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.statuses) == 0 {
		return core.CategorizationJob{}, errors.New("no script")
	}
	job := a.statuses[a.idx]
	if a.idx < len(a.statuses)-1 {
		a.idx++
	}
	job.ID = jobID
	return job, nil
}

func (a *scriptedAPI) submitCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submits
}

func waitState(t *testing.T, o *Orchestrator, want State) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := o.Snapshot()
		if snap.State == want {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", snap.State, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubmitEmptyBatchIsNoOp(t *testing.T) {
	o := NewOrchestrator(&scriptedAPI{}, testLogger(), Options{PollInterval: time.Millisecond})
	o.Submit(context.Background(), nil, false)

	if snap := o.Snapshot(); snap.State != StateIdle {
		t.Fatalf("state = %s, want idle", snap.State)
	}
}

func TestSubmitToCompletion(t *testing.T) {
	api := &scriptedAPI{statuses: []core.CategorizationJob{
		{Status: core.JobPending, TotalTransactions: 4},
		{Status: core.JobRunning, TotalTransactions: 4, CategorizedCount: 2},
		{Status: core.JobCompleted, TotalTransactions: 4, CategorizedCount: 4},
	}}

	var completedHookRan atomic.Bool
	o := NewOrchestrator(api, testLogger(), Options{
		PollInterval: time.Millisecond,
		OnCompleted: func(context.Context) {
			completedHookRan.Store(true)
		},
	})

	o.Submit(context.Background(), []string{"t1", "t2", "t3", "t4"}, false)
	snap := waitState(t, o, StateCompleted)

	if !completedHookRan.Load() {
		t.Error("completion hook did not run before Completed was surfaced")
	}
	if snap.JobID != "job-1" || snap.CategorizedCount != 4 || snap.Progress != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestSubmitOutlivesCallerContext(t *testing.T) {
	api := &scriptedAPI{statuses: []core.CategorizationJob{
		{Status: core.JobRunning, TotalTransactions: 2, CategorizedCount: 1},
		{Status: core.JobCompleted, TotalTransactions: 2, CategorizedCount: 2},
	}}
	o := NewOrchestrator(api, testLogger(), Options{PollInterval: time.Millisecond})

	// The caller's context dies right after submission, as a request-scoped
	// context does once its handler returns. Polling must carry on.
	ctx, cancel := context.WithCancel(context.Background())
	o.Submit(ctx, []string{"t1", "t2"}, false)
	cancel()

	waitState(t, o, StateCompleted)

	// The orchestrator settled, so a fresh batch is accepted.
	api.mu.Lock()
	api.statuses = []core.CategorizationJob{{Status: core.JobCompleted, TotalTransactions: 1, CategorizedCount: 1}}
	api.idx = 0
	api.mu.Unlock()

	o.Submit(context.Background(), []string{"t3"}, false)
	waitState(t, o, StateCompleted)
	if got := api.submitCount(); got != 2 {
		t.Fatalf("submits = %d, want 2", got)
	}
}

func TestSecondSubmitWhileInFlightIsIgnored(t *testing.T) {
	api := &scriptedAPI{statuses: []core.CategorizationJob{
		{Status: core.JobRunning, TotalTransactions: 2},
	}}
	o := NewOrchestrator(api, testLogger(), Options{PollInterval: time.Millisecond})

	o.Submit(context.Background(), []string{"t1", "t2"}, false)
	waitState(t, o, StatePolling)
	o.Submit(context.Background(), []string{"t9"}, false)

	time.Sleep(20 * time.Millisecond)
	if got := api.submitCount(); got != 1 {
		t.Fatalf("submits = %d, want 1 (reentrancy guard)", got)
	}
	o.Cancel()
}

func TestSubmitFailureSurfacesError(t *testing.T) {
	api := &scriptedAPI{submitErr: errors.New("quota exceeded")}
	o := NewOrchestrator(api, testLogger(), Options{PollInterval: time.Millisecond})

	o.Submit(context.Background(), []string{"t1"}, false)
	snap := waitState(t, o, StateFailed)

	if !strings.Contains(snap.ErrorMessage, "quota exceeded") {
		t.Fatalf("error message = %q", snap.ErrorMessage)
	}
}

func TestRemoteFailureAndRetry(t *testing.T) {
	api := &scriptedAPI{statuses: []core.CategorizationJob{
		{Status: core.JobFailed, TotalTransactions: 1, ErrorMessage: "classifier crashed"},
	}}
	o := NewOrchestrator(api, testLogger(), Options{PollInterval: time.Millisecond})

	o.Submit(context.Background(), []string{"t1"}, true)
	snap := waitState(t, o, StateFailed)
	if snap.ErrorMessage != "classifier crashed" {
		t.Fatalf("error message = %q, want verbatim remote message", snap.ErrorMessage)
	}

	// Retry reuses the failed batch; no automatic retry happened meanwhile.
	if got := api.submitCount(); got != 1 {
		t.Fatalf("submits before retry = %d, want 1", got)
	}

	api.mu.Lock()
	api.statuses = []core.CategorizationJob{{Status: core.JobCompleted, TotalTransactions: 1, CategorizedCount: 1}}
	api.idx = 0
	api.mu.Unlock()

	o.Retry(context.Background())
	waitState(t, o, StateCompleted)
	if got := api.submitCount(); got != 2 {
		t.Fatalf("submits after retry = %d, want 2", got)
	}
}

func TestRetryOnlyFromFailed(t *testing.T) {
	api := &scriptedAPI{}
	o := NewOrchestrator(api, testLogger(), Options{PollInterval: time.Millisecond})

	o.Retry(context.Background())
	time.Sleep(10 * time.Millisecond)
	if got := api.submitCount(); got != 0 {
		t.Fatalf("submits = %d, want 0", got)
	}
	if snap := o.Snapshot(); snap.State != StateIdle {
		t.Fatalf("state = %s, want idle", snap.State)
	}
}

func TestCancelStopsObservingWithoutFailing(t *testing.T) {
	api := &scriptedAPI{statuses: []core.CategorizationJob{
		{Status: core.JobRunning, TotalTransactions: 10, CategorizedCount: 1},
	}}
	o := NewOrchestrator(api, testLogger(), Options{PollInterval: time.Millisecond})

	o.Submit(context.Background(), []string{"t1"}, false)
	waitState(t, o, StatePolling)
	o.Cancel()

	snap := o.Snapshot()
	if snap.State != StateIdle {
		t.Fatalf("state = %s, want idle after cancel", snap.State)
	}
	if snap.ErrorMessage != "" {
		t.Fatalf("cancel must not be reported as failure, got %q", snap.ErrorMessage)
	}

	// A cancelled observer can always come back.
	api.mu.Lock()
	api.statuses = []core.CategorizationJob{{Status: core.JobCompleted, TotalTransactions: 1, CategorizedCount: 1}}
	api.idx = 0
	api.mu.Unlock()
	o.Submit(context.Background(), []string{"t2"}, false)
	waitState(t, o, StateCompleted)
}

func TestProgressIsMonotonic(t *testing.T) {
	// The remote reports 3, 7, then regresses to 5. Observed progress must
	// clamp at 7, never move backwards.
	api := &scriptedAPI{statuses: []core.CategorizationJob{
		{Status: core.JobRunning, TotalTransactions: 10, CategorizedCount: 3},
		{Status: core.JobRunning, TotalTransactions: 10, CategorizedCount: 7},
		{Status: core.JobRunning, TotalTransactions: 10, CategorizedCount: 5},
		{Status: core.JobCompleted, TotalTransactions: 10, CategorizedCount: 10},
	}}
	o := NewOrchestrator(api, testLogger(), Options{PollInterval: time.Millisecond})

	o.Submit(context.Background(), []string{"t1"}, false)

	last := -1
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := o.Snapshot()
		if snap.CategorizedCount < last {
			t.Fatalf("progress regressed: %d after %d", snap.CategorizedCount, last)
		}
		last = snap.CategorizedCount
		if snap.State == StateCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never completed")
		}
		time.Sleep(time.Millisecond)
	}
}
