package storage

import (
	"context"
	"fmt"
	"time"

	"bilancio/internal/backend"
	"bilancio/internal/core"
	"bilancio/internal/log"
)

// Source is the set of read ports a mirror refresh pulls from, typically the
// REST backend.
type Source interface {
	backend.CategoryReader
	backend.BudgetReader
	backend.TransactionLister
}

// SyncStats counts the records written by one refresh.
type SyncStats struct {
	Categories   int
	Budgets      int
	BudgetMonths int
	LineItems    int
	Transactions int
}

// Syncer refreshes the local mirror from the remote source of truth. Each
// table is replaced wholesale inside its own transaction; the mirror is a
// cache, not a ledger, so partial-refresh bookkeeping is not worth carrying.
type Syncer struct {
	source   Source
	mirror   *SQLiteMirror
	logger   *log.Logger
	pageSize int
}

func NewSyncer(source Source, mirror *SQLiteMirror, logger *log.Logger, pageSize int) *Syncer {
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Syncer{
		source:   source,
		mirror:   mirror,
		logger:   logger.WithComponent(log.ComponentStorage),
		pageSize: pageSize,
	}
}

// Sync pulls every mirrored record set and replaces the local tables.
func (s *Syncer) Sync(ctx context.Context) (SyncStats, error) {
	start := time.Now()
	var stats SyncStats

	cats, err := s.source.FetchCategoryTree(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch category tree: %w", err)
	}
	if err := s.mirror.ReplaceCategoryTree(ctx, cats); err != nil {
		return stats, fmt.Errorf("mirror category tree: %w", err)
	}
	stats.Categories = len(cats)

	budgets, err := s.source.FetchBudgets(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch budgets: %w", err)
	}
	if err := s.mirror.ReplaceBudgets(ctx, budgets); err != nil {
		return stats, fmt.Errorf("mirror budgets: %w", err)
	}
	stats.Budgets = len(budgets)

	months, err := s.source.FetchBudgetMonths(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch budget months: %w", err)
	}
	if err := s.mirror.ReplaceBudgetMonths(ctx, months); err != nil {
		return stats, fmt.Errorf("mirror budget months: %w", err)
	}
	stats.BudgetMonths = len(months)

	var items []core.LineItem
	for _, b := range budgets {
		bi, err := s.source.FetchLineItems(ctx, b.ID)
		if err != nil {
			return stats, fmt.Errorf("fetch line items for %s: %w", b.ID, err)
		}
		items = append(items, bi...)
	}
	if err := s.mirror.ReplaceLineItems(ctx, items); err != nil {
		return stats, fmt.Errorf("mirror line items: %w", err)
	}
	stats.LineItems = len(items)

	txns, err := s.listAllTransactions(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch transactions: %w", err)
	}
	if err := s.mirror.ReplaceTransactions(ctx, txns); err != nil {
		return stats, fmt.Errorf("mirror transactions: %w", err)
	}
	stats.Transactions = len(txns)

	s.logger.Info("mirror refreshed",
		"categories", stats.Categories,
		"budgets", stats.Budgets,
		"budget_months", stats.BudgetMonths,
		"line_items", stats.LineItems,
		"transactions", stats.Transactions,
		log.FieldDuration, time.Since(start).Milliseconds(),
	)
	return stats, nil
}

func (s *Syncer) listAllTransactions(ctx context.Context) ([]core.Transaction, error) {
	q := backend.TransactionQuery{Limit: s.pageSize}

	var all []core.Transaction
	for {
		page, err := s.source.ListTransactions(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if len(page.Items) == 0 || len(all) >= page.Total {
			return all, nil
		}
		q.Offset += len(page.Items)
	}
}
