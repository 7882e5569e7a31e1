// Package budget resolves which budget is active for a calendar month.
package budget

import (
	"fmt"

	"bilancio/internal/core"
)

// Resolution is the outcome of resolving a month: the active budget and
// whether a month override (rather than the default) selected it.
type Resolution struct {
	Budget     core.Budget
	Overridden bool
}

// AccountScope returns the account ids transactions must be filtered by.
// Empty means unrestricted.
func (r Resolution) AccountScope() []string {
	return r.Budget.AccountIDs
}

// Resolve determines the active budget for a month: an explicit BudgetMonth
// override wins, otherwise the default budget. Pure lookup over already
// fetched collections.
//
// core.ErrNoBudgetConfigured is the new-user terminal case, distinct from a
// data error; callers route it to a zero-state, not an error banner.
func Resolve(month core.Month, budgets []core.Budget, overrides []core.BudgetMonth) (Resolution, error) {
	if err := month.Validate(); err != nil {
		return Resolution{}, err
	}

	for _, o := range overrides {
		if o.Month != month {
			continue
		}
		for _, b := range budgets {
			if b.ID == o.BudgetID {
				return Resolution{Budget: b, Overridden: true}, nil
			}
		}
		// Dangling override: the pinned budget no longer exists. Fall
		// through to the default rather than failing the month.
		break
	}

	for _, b := range budgets {
		if b.IsDefault {
			return Resolution{Budget: b}, nil
		}
	}

	return Resolution{}, fmt.Errorf("%w: month %s", core.ErrNoBudgetConfigured, month)
}
