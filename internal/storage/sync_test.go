package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/backend"
	"bilancio/internal/backend/memory"
	"bilancio/internal/core"
	"bilancio/internal/log"
)

func TestSyncerRefreshesMirror(t *testing.T) {
	mirror := newTestMirror(t)
	ctx := context.Background()

	source := memory.New()
	source.SetCategories([]core.Category{
		{ID: "cat-food", Name: "Food", Kind: core.ExpenseCategory,
			Subcategories: []core.Subcategory{{ID: "sub-groceries", Name: "Groceries"}}},
	})
	source.SetBudgets([]core.Budget{
		{ID: "b1", Name: "Everyday", IsDefault: true, AccountIDs: []string{"a1"}},
	})
	source.SetBudgetMonths([]core.BudgetMonth{
		{ID: "bm1", BudgetID: "b1", Month: core.Month{Year: 2026, Month: time.August}},
	})
	source.SetLineItems([]core.LineItem{
		{ID: "li1", BudgetID: "b1", CategoryID: "cat-food", Amount: decimal.NewFromInt(400)},
	})
	source.SetTransactions([]core.Transaction{
		{ID: "t1", AccountID: "a1", Amount: decimal.RequireFromString("-52.10"),
			Posted: time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC), CategoryID: "cat-food"},
		{ID: "t2", AccountID: "a1", Amount: decimal.RequireFromString("-20"),
			Posted: time.Date(2026, 8, 9, 0, 0, 0, 0, time.UTC)},
	})

	logger := log.NewWithHandler(slog.NewTextHandler(io.Discard, nil))
	syncer := NewSyncer(source, mirror, logger, 1)

	stats, err := syncer.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Categories != 1 || stats.Budgets != 1 || stats.BudgetMonths != 1 ||
		stats.LineItems != 1 || stats.Transactions != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	cats, err := mirror.FetchCategoryTree(ctx)
	if err != nil {
		t.Fatalf("FetchCategoryTree: %v", err)
	}
	if len(cats) != 1 || len(cats[0].Subcategories) != 1 {
		t.Fatalf("cats = %+v", cats)
	}

	months, err := mirror.FetchBudgetMonths(ctx)
	if err != nil {
		t.Fatalf("FetchBudgetMonths: %v", err)
	}
	if len(months) != 1 || months[0].Month.String() != "2026-08" {
		t.Fatalf("months = %+v", months)
	}

	page, err := mirror.ListTransactions(ctx, backend.TransactionQuery{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want 2", page.Total)
	}

	// A second sync replaces rather than appends.
	source.SetTransactions([]core.Transaction{
		{ID: "t3", AccountID: "a1", Amount: decimal.RequireFromString("-7"),
			Posted: time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC)},
	})
	if _, err := syncer.Sync(ctx); err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	page, err = mirror.ListTransactions(ctx, backend.TransactionQuery{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != "t3" {
		t.Fatalf("page = %+v", page)
	}
}
