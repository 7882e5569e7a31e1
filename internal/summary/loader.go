package summary

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/backend"
	"bilancio/internal/budget"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/log"
)

// Options tunes the loader. Zero values fall back to sane defaults.
type Options struct {
	PageSize  int
	CacheSize int
	CacheTTL  time.Duration
}

const (
	defaultPageSize  = 200
	defaultCacheSize = 24
	defaultCacheTTL  = 5 * time.Minute
)

// Loader produces month summaries from the backend ports: resolve the active
// budget, fan out the three source fetches, aggregate, cache.
//
// Sequential loads race when the caller flips through months quickly. Each
// load takes a generation number; a load whose generation is no longer the
// newest at publish time returns core.ErrStaleResult instead of its summary,
// so a slow older response can never overwrite a fast newer one.
type Loader struct {
	categories backend.CategoryReader
	budgets    backend.BudgetReader
	ledger     backend.TransactionLister

	cache    *cache.LRUCache[core.BudgetSummary]
	logger   *log.Logger
	pageSize int

	mu  sync.Mutex
	gen uint64
}

func NewLoader(b backend.Backend, logger *log.Logger, opts Options) *Loader {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	return &Loader{
		categories: b,
		budgets:    b,
		ledger:     b,
		cache:      cache.NewLRUCache[core.BudgetSummary](opts.CacheSize, opts.CacheTTL),
		logger:     logger.WithComponent(log.ComponentSummary),
		pageSize:   opts.PageSize,
	}
}

// Cache returns the summary cache, so the cleanup manager can register it.
func (l *Loader) Cache() *cache.LRUCache[core.BudgetSummary] {
	return l.cache
}

// Invalidate drops every cached month. Called after a categorization run
// completes or a budget write lands, since any cached month may be stale.
func (l *Loader) Invalidate() {
	l.cache.Clear()
	l.logger.Debug("summary cache invalidated")
}

func (l *Loader) nextGeneration() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	return l.gen
}

func (l *Loader) currentGeneration() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}

// Load computes the BudgetSummary for a month. All-or-nothing: any source
// fetch failure fails the whole load with core.ErrUpstreamUnavailable.
// core.ErrNoBudgetConfigured passes through untouched for zero-state routing.
func (l *Loader) Load(ctx context.Context, month core.Month) (core.BudgetSummary, error) {
	if err := month.Validate(); err != nil {
		return core.BudgetSummary{}, err
	}

	key := month.String()
	if cached, ok := l.cache.Get(key); ok {
		l.logger.Debug("summary cache hit", log.FieldMonth, key)
		return cached, nil
	}

	gen := l.nextGeneration()
	logger := l.logger.With(log.FieldMonth, key, log.FieldGeneration, gen)
	start := time.Now()

	// Budgets and overrides come first: the resolver's output decides the
	// account scope every other fetch depends on.
	var (
		budgets   []core.Budget
		overrides []core.BudgetMonth
	)
	pre, preCtx := errgroup.WithContext(ctx)
	pre.Go(func() error {
		var err error
		if budgets, err = l.budgets.FetchBudgets(preCtx); err != nil {
			return fmt.Errorf("fetch budgets: %w", err)
		}
		return nil
	})
	pre.Go(func() error {
		var err error
		if overrides, err = l.budgets.FetchBudgetMonths(preCtx); err != nil {
			return fmt.Errorf("fetch budget months: %w", err)
		}
		return nil
	})
	if err := pre.Wait(); err != nil {
		return core.BudgetSummary{}, fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, err)
	}

	resolution, err := budget.Resolve(month, budgets, overrides)
	if err != nil {
		return core.BudgetSummary{}, err
	}
	scope := resolution.AccountScope()
	from, to := month.Range()

	var (
		tree         []core.Category
		lineItems    []core.LineItem
		transactions []core.Transaction
		hasPrev      bool
		hasNext      bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tree, err = l.categories.FetchCategoryTree(gctx); err != nil {
			return fmt.Errorf("fetch category tree: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if lineItems, err = l.budgets.FetchLineItems(gctx, resolution.Budget.ID); err != nil {
			return fmt.Errorf("fetch line items: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if transactions, err = l.listAll(gctx, backend.TransactionQuery{From: from, To: to, AccountIDs: scope}); err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	// Navigation probes run against the full ledger, not the month page, so
	// pagination cannot produce false negatives.
	g.Go(func() error {
		page, err := l.ledger.ListTransactions(gctx, backend.TransactionQuery{To: from, AccountIDs: scope, Limit: 1})
		if err != nil {
			return fmt.Errorf("probe previous months: %w", err)
		}
		hasPrev = page.Total > 0
		return nil
	})
	g.Go(func() error {
		page, err := l.ledger.ListTransactions(gctx, backend.TransactionQuery{From: to, AccountIDs: scope, Limit: 1})
		if err != nil {
			return fmt.Errorf("probe next months: %w", err)
		}
		hasNext = page.Total > 0
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.BudgetSummary{}, fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, err)
	}

	result, err := Aggregate(month, resolution.Budget, tree, lineItems, transactions, hasPrev, hasNext)
	if err != nil {
		return core.BudgetSummary{}, err
	}

	if l.currentGeneration() != gen {
		logger.Debug("discarding stale summary")
		return core.BudgetSummary{}, core.ErrStaleResult
	}
	l.cache.Set(key, result)

	logger.Info("summary computed",
		log.FieldBudgetID, result.BudgetID,
		log.FieldTxnCount, len(transactions),
		log.FieldDuration, time.Since(start).Milliseconds(),
	)
	return result, nil
}

// listAll walks the paged transaction listing until every match is in hand.
func (l *Loader) listAll(ctx context.Context, q backend.TransactionQuery) ([]core.Transaction, error) {
	q.Limit = l.pageSize
	q.Offset = 0

	var all []core.Transaction
	for {
		page, err := l.ledger.ListTransactions(ctx, q)
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
