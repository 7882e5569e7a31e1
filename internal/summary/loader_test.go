package summary

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/backend"
	"bilancio/internal/backend/memory"
	"bilancio/internal/core"
	"bilancio/internal/log"
)

func testLogger() *log.Logger {
	return log.NewWithHandler(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func fixtureStore() *memory.Store {
	s := memory.New()
	s.SetCategories([]core.Category{
		{
			ID: "cat-food", Name: "Food", Kind: core.ExpenseCategory,
			Subcategories: []core.Subcategory{{ID: "sub-groceries", Name: "Groceries"}},
		},
	})
	s.SetBudgets([]core.Budget{{ID: "b1", Name: "Everyday", IsDefault: true}})
	s.SetLineItems([]core.LineItem{
		{ID: "li1", BudgetID: "b1", CategoryID: "cat-food", Amount: decimal.RequireFromString("400")},
	})
	s.SetTransactions([]core.Transaction{
		{ID: "t0", AccountID: "a1", Amount: decimal.RequireFromString("-5"), Posted: time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)},
		{ID: "t1", AccountID: "a1", Amount: decimal.RequireFromString("-30"), Posted: time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC), CategoryID: "cat-food"},
		{ID: "t2", AccountID: "a1", Amount: decimal.RequireFromString("-20"), Posted: time.Date(2026, 8, 9, 0, 0, 0, 0, time.UTC)},
	})
	return s
}

func TestLoadComputesAndCaches(t *testing.T) {
	store := fixtureStore()
	loader := NewLoader(store, testLogger(), Options{})
	month := core.Month{Year: 2026, Month: time.August}

	s, err := loader.Load(context.Background(), month)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.BudgetID != "b1" {
		t.Fatalf("budget = %s", s.BudgetID)
	}
	if !s.UncategorizedSpend.Equal(decimal.RequireFromString("20")) {
		t.Errorf("uncategorized = %s, want 20", s.UncategorizedSpend)
	}
	if !s.HasPreviousMonth {
		t.Error("expected previous-month flag (t0 posted in July)")
	}
	if s.HasNextMonth {
		t.Error("unexpected next-month flag")
	}

	// Second load must hit the cache: mutate the store and observe the old
	// summary until invalidation.
	store.SetTransactions(nil)
	cached, err := loader.Load(context.Background(), month)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cached.UncategorizedSpend.Equal(s.UncategorizedSpend) {
		t.Error("expected cached summary")
	}

	loader.Invalidate()
	fresh, err := loader.Load(context.Background(), month)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !fresh.UncategorizedSpend.IsZero() {
		t.Errorf("post-invalidation uncategorized = %s, want 0", fresh.UncategorizedSpend)
	}
}

func TestLoadNoBudgetConfigured(t *testing.T) {
	store := memory.New()
	loader := NewLoader(store, testLogger(), Options{})

	_, err := loader.Load(context.Background(), core.Month{Year: 2026, Month: time.August})
	if !errors.Is(err, core.ErrNoBudgetConfigured) {
		t.Fatalf("err = %v, want ErrNoBudgetConfigured", err)
	}
}

func TestLoadUpstreamFailure(t *testing.T) {
	store := fixtureStore()
	loader := NewLoader(&failingCategories{Store: store}, testLogger(), Options{})

	_, err := loader.Load(context.Background(), core.Month{Year: 2026, Month: time.August})
	if !errors.Is(err, core.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

// failingCategories fails the tree fetch while the rest of the backend works.
type failingCategories struct {
	*memory.Store
}

func (f *failingCategories) FetchCategoryTree(context.Context) ([]core.Category, error) {
	return nil, errors.New("category service down")
}

// gatedBackend blocks FetchCategoryTree until released, simulating a slow
// upstream for the stale-response test.
type gatedBackend struct {
	*memory.Store
	gate chan struct{}
}

func (g *gatedBackend) FetchCategoryTree(ctx context.Context) ([]core.Category, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Store.FetchCategoryTree(ctx)
}

func TestLoadRejectsStaleResponse(t *testing.T) {
	store := fixtureStore()
	gated := &gatedBackend{Store: store, gate: make(chan struct{})}
	loader := NewLoader(gated, testLogger(), Options{})

	july := core.Month{Year: 2026, Month: time.July}
	august := core.Month{Year: 2026, Month: time.August}

	slowErr := make(chan error, 1)
	go func() {
		_, err := loader.Load(context.Background(), july)
		slowErr <- err
	}()

	// Wait for the slow load to claim its generation before starting the
	// fast one.
	deadline := time.Now().Add(2 * time.Second)
	for loader.currentGeneration() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow load never started")
		}
		time.Sleep(time.Millisecond)
	}

	fastDone := make(chan error, 1)
	go func() {
		_, err := loader.Load(context.Background(), august)
		fastDone <- err
	}()
	for loader.currentGeneration() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("fast load never started")
		}
		time.Sleep(time.Millisecond)
	}

	// Release both fetches; the July response finishes after August claimed
	// the newer generation and must be discarded.
	close(gated.gate)

	if err := <-fastDone; err != nil {
		t.Fatalf("fast load: %v", err)
	}
	if err := <-slowErr; !errors.Is(err, core.ErrStaleResult) {
		t.Fatalf("slow load err = %v, want ErrStaleResult", err)
	}

	// August stays cached; July was never published.
	if _, ok := loader.Cache().Get(august.String()); !ok {
		t.Error("august summary missing from cache")
	}
	if _, ok := loader.Cache().Get(july.String()); ok {
		t.Error("stale july summary was published")
	}
}

func TestLoadPaginatesLedger(t *testing.T) {
	store := fixtureStore()
	var txns []core.Transaction
	for i := 0; i < 7; i++ {
		txns = append(txns, core.Transaction{
			ID:        string(rune('a' + i)),
			AccountID: "a1",
			Amount:    decimal.RequireFromString("-1"),
			Posted:    time.Date(2026, 8, 1+i, 0, 0, 0, 0, time.UTC),
		})
	}
	store.SetTransactions(txns)

	loader := NewLoader(store, testLogger(), Options{PageSize: 3})
	s, err := loader.Load(context.Background(), core.Month{Year: 2026, Month: time.August})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.UncategorizedSpend.Equal(decimal.RequireFromString("7")) {
		t.Errorf("uncategorized = %s, want 7 (all pages walked)", s.UncategorizedSpend)
	}
	if len(s.UncategorizedTransactionIDs) != 7 {
		t.Errorf("ids = %d, want 7", len(s.UncategorizedTransactionIDs))
	}
}

var _ backend.Backend = (*gatedBackend)(nil)
