// Package export defines the outbound report ports: a computed month
// summary written somewhere a human reads it.
package export

import (
	"context"

	"bilancio/internal/core"
)

// SummaryWriter appends a month summary as a report block and returns a
// reference to where it landed.
type SummaryWriter interface {
	AppendSummary(ctx context.Context, s core.BudgetSummary) (ref string, err error)
}
