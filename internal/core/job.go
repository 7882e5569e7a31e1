package core

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type JobStatus string

// Terminal reports whether the status is one the remote classifier will not
// move out of.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CategorizationJob is the read-only projection of a remote classification
// job. Created by a submit call, mutated only by the classifier; the client
// polls it.
type CategorizationJob struct {
	ID                string    `json:"id"`
	Status            JobStatus `json:"status"`
	TransactionIDs    []string  `json:"transaction_ids,omitempty"`
	TotalTransactions int       `json:"total_transactions"`
	CategorizedCount  int       `json:"categorized_count"`
	ErrorMessage      string    `json:"error_message,omitempty"`
}

// Progress returns categorized/total in [0,1]. Zero-total jobs report 0.
func (j CategorizationJob) Progress() float64 {
	if j.TotalTransactions <= 0 {
		return 0
	}
	p := float64(j.CategorizedCount) / float64(j.TotalTransactions)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
