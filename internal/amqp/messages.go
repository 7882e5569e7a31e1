package amqp

import (
	"encoding/json"
	"time"
)

// CategorizationCompletedMessage announces that a remote categorization job
// finished. Carries only identifiers and counts; consumers refetch whatever
// detail they need.
type CategorizationCompletedMessage struct {
	JobID            string    `json:"job_id"`
	CategorizedCount int       `json:"categorized_count"`
	TransactionIDs   []string  `json:"transaction_ids,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewCategorizationCompletedMessage creates a completion message stamped now.
func NewCategorizationCompletedMessage(jobID string, categorizedCount int, transactionIDs []string) *CategorizationCompletedMessage {
	return &CategorizationCompletedMessage{
		JobID:            jobID,
		CategorizedCount: categorizedCount,
		TransactionIDs:   transactionIDs,
		Timestamp:        time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *CategorizationCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CategorizationCompletedMessageFromJSON creates a message from JSON bytes
func CategorizationCompletedMessageFromJSON(data []byte) (*CategorizationCompletedMessage, error) {
	var msg CategorizationCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SummaryInvalidatedMessage tells consumers that cached month summaries are
// stale. Month is "YYYY-MM", or empty when every month is affected.
type SummaryInvalidatedMessage struct {
	Month     string    `json:"month,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSummaryInvalidatedMessage creates an invalidation message stamped now.
func NewSummaryInvalidatedMessage(month, reason string) *SummaryInvalidatedMessage {
	return &SummaryInvalidatedMessage{
		Month:     month,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SummaryInvalidatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SummaryInvalidatedMessageFromJSON creates a message from JSON bytes
func SummaryInvalidatedMessageFromJSON(data []byte) (*SummaryInvalidatedMessage, error) {
	var msg SummaryInvalidatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
