package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMonth reports a malformed or out-of-range calendar month.
	ErrInvalidMonth = errors.New("invalid month")

	// ErrNoBudgetConfigured is the legitimate new-user empty state: no month
	// override and no default budget exist. Callers route this to a first-run
	// flow, not an error banner.
	ErrNoBudgetConfigured = errors.New("no budget configured")

	// ErrUpstreamUnavailable reports that one of the summary sub-fetches
	// failed. A summary is all-or-nothing per request.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrStaleResult marks a summary superseded by a newer request. Never
	// surfaced to users; discarded silently at the publish point.
	ErrStaleResult = errors.New("stale result")

	// ErrJobSubmitFailed reports that the categorization job could not be
	// created on the backend.
	ErrJobSubmitFailed = errors.New("job submit failed")

	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyCategory    = errors.New("empty category id")
	ErrEmptyBudgetName  = errors.New("empty budget name")
	ErrBudgetNotFound   = errors.New("budget not found")
	ErrOverrideConflict = errors.New("month already has a budget override")
)

// JobError carries the remote classifier's failure message verbatim.
type JobError struct {
	Message string
}

func (e *JobError) Error() string {
	if e.Message == "" {
		return "categorization job failed"
	}
	return fmt.Sprintf("categorization job failed: %s", e.Message)
}
