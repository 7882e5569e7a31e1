// Package backend defines the ports this core uses to reach the
// authoritative remote records. Implementations live in the subpackages
// (rest, sqlite mirror via storage, in-memory fixtures); the factory
// subpackage selects one from configuration.
package backend

import (
	"context"
	"time"

	"bilancio/internal/core"
)

// TransactionQuery scopes a ledger listing. From/To form a half-open
// interval [From, To); a zero time leaves that side unbounded. An empty
// AccountIDs slice means no account filter.
type TransactionQuery struct {
	From       time.Time
	To         time.Time
	AccountIDs []string
	Limit      int
	Offset     int
}

// TransactionPage is one page of a ledger listing. Total counts all
// matches, not just the page, so navigation probes can rely on it.
type TransactionPage struct {
	Items  []core.Transaction
	Total  int
	Limit  int
	Offset int
}

type (
	// CategoryReader provides the remote category tree.
	CategoryReader interface {
		FetchCategoryTree(ctx context.Context) ([]core.Category, error)
	}

	// BudgetReader provides budgets, month overrides, and line items.
	BudgetReader interface {
		FetchBudgets(ctx context.Context) ([]core.Budget, error)
		FetchBudgetMonths(ctx context.Context) ([]core.BudgetMonth, error)
		FetchLineItems(ctx context.Context, budgetID string) ([]core.LineItem, error)
	}

	// BudgetWriter covers the two write paths this core owns: the
	// default-uniqueness invariant and month override management. Setting a
	// default must clear sibling defaults atomically.
	BudgetWriter interface {
		SetDefaultBudget(ctx context.Context, budgetID string) error
		AssignBudgetMonth(ctx context.Context, budgetID string, month core.Month) (core.BudgetMonth, error)
		RemoveBudgetMonth(ctx context.Context, overrideID string) error
	}

	// TransactionLister provides paged, date-and-account filtered read
	// access to the transaction feed.
	TransactionLister interface {
		ListTransactions(ctx context.Context, q TransactionQuery) (TransactionPage, error)
	}

	// CategorizationAPI drives the remote classification job. Status reads
	// are idempotent and never act on the job itself.
	CategorizationAPI interface {
		SubmitCategorizationJob(ctx context.Context, transactionIDs []string, force bool) (jobID string, err error)
		GetCategorizationJob(ctx context.Context, jobID string) (core.CategorizationJob, error)
	}
)

// Backend bundles every port a full deployment needs.
type Backend interface {
	CategoryReader
	BudgetReader
	BudgetWriter
	TransactionLister
	CategorizationAPI
}
