// Package memory keeps exported summaries in process, for development and
// tests where no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"bilancio/internal/core"
	"bilancio/internal/export"
)

type Store struct {
	mu    sync.Mutex
	items []core.BudgetSummary
}

var _ export.SummaryWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendSummary stores the summary and returns a synthetic reference.
func (s *Store) AppendSummary(_ context.Context, summary core.BudgetSummary) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, summary)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Exported returns a copy of everything appended so far.
func (s *Store) Exported() []core.BudgetSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.BudgetSummary(nil), s.items...)
}
