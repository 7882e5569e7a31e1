// Package memory provides an in-memory Backend used for local development
// and as the fixture store in tests. The categorization "classifier" is a
// deterministic fake that advances a little on every status poll.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bilancio/internal/backend"
	"bilancio/internal/core"
)

type jobState struct {
	job  core.CategorizationJob
	step int
}

type Store struct {
	mu         sync.Mutex
	categories []core.Category
	budgets    []core.Budget
	months     []core.BudgetMonth
	lineItems  []core.LineItem
	txns       []core.Transaction
	jobs       map[string]*jobState

	// FailSubmit makes the next submit call fail; used by tests.
	FailSubmit error
	// FailStatus makes status polls fail; used by tests.
	FailStatus error
}

var _ backend.Backend = (*Store)(nil)

func New() *Store {
	return &Store{jobs: make(map[string]*jobState)}
}

// SetCategories replaces the category tree fixture.
func (s *Store) SetCategories(cats []core.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append([]core.Category(nil), cats...)
}

// SetBudgets replaces the budget fixtures.
func (s *Store) SetBudgets(budgets []core.Budget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets = append([]core.Budget(nil), budgets...)
}

// SetBudgetMonths replaces the month override fixtures.
func (s *Store) SetBudgetMonths(months []core.BudgetMonth) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.months = append([]core.BudgetMonth(nil), months...)
}

// SetLineItems replaces the line item fixtures.
func (s *Store) SetLineItems(items []core.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lineItems = append([]core.LineItem(nil), items...)
}

// SetTransactions replaces the ledger fixtures.
func (s *Store) SetTransactions(txns []core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns = append([]core.Transaction(nil), txns...)
}

// FetchCategoryTree implements backend.CategoryReader.
func (s *Store) FetchCategoryTree(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.categories...), nil
}

// FetchBudgets implements backend.BudgetReader.
func (s *Store) FetchBudgets(_ context.Context) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Budget(nil), s.budgets...), nil
}

// FetchBudgetMonths implements backend.BudgetReader.
func (s *Store) FetchBudgetMonths(_ context.Context) ([]core.BudgetMonth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.BudgetMonth(nil), s.months...), nil
}

// FetchLineItems implements backend.BudgetReader.
func (s *Store) FetchLineItems(_ context.Context, budgetID string) ([]core.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.LineItem
	for _, li := range s.lineItems {
		if li.BudgetID == budgetID {
			out = append(out, li)
		}
	}
	return out, nil
}

// SetDefaultBudget implements backend.BudgetWriter. Sibling defaults are
// cleared in the same critical section, so exactly one default survives.
func (s *Store) SetDefaultBudget(_ context.Context, budgetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.budgets {
		if s.budgets[i].ID == budgetID {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", core.ErrBudgetNotFound, budgetID)
	}
	for i := range s.budgets {
		s.budgets[i].IsDefault = s.budgets[i].ID == budgetID
	}
	return nil
}

// AssignBudgetMonth implements backend.BudgetWriter.
func (s *Store) AssignBudgetMonth(_ context.Context, budgetID string, month core.Month) (core.BudgetMonth, error) {
	if err := month.Validate(); err != nil {
		return core.BudgetMonth{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, b := range s.budgets {
		if b.ID == budgetID {
			found = true
			break
		}
	}
	if !found {
		return core.BudgetMonth{}, fmt.Errorf("%w: %s", core.ErrBudgetNotFound, budgetID)
	}
	for _, m := range s.months {
		if m.Month == month {
			return core.BudgetMonth{}, fmt.Errorf("%w: %s", core.ErrOverrideConflict, month)
		}
	}

	created := core.BudgetMonth{
		ID:       uuid.NewString(),
		BudgetID: budgetID,
		Month:    month,
	}
	s.months = append(s.months, created)
	return created, nil
}

// RemoveBudgetMonth implements backend.BudgetWriter.
func (s *Store) RemoveBudgetMonth(_ context.Context, overrideID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.months {
		if m.ID == overrideID {
			s.months = append(s.months[:i], s.months[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("budget month %s not found", overrideID)
}

// ListTransactions implements backend.TransactionLister. Results are ordered
// newest first; Total counts every match regardless of paging.
func (s *Store) ListTransactions(_ context.Context, q backend.TransactionQuery) (backend.TransactionPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accountSet := map[string]struct{}{}
	for _, id := range q.AccountIDs {
		accountSet[id] = struct{}{}
	}

	var matched []core.Transaction
	for _, t := range s.txns {
		if !q.From.IsZero() && t.Posted.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !t.Posted.Before(q.To) {
			continue
		}
		if len(accountSet) > 0 {
			if _, ok := accountSet[t.AccountID]; !ok {
				continue
			}
		}
		matched = append(matched, t)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Posted.After(matched[j].Posted)
	})

	page := backend.TransactionPage{Total: len(matched), Limit: q.Limit, Offset: q.Offset}
	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	page.Items = append([]core.Transaction(nil), matched[start:end]...)
	return page, nil
}

// SubmitCategorizationJob implements backend.CategorizationAPI. The fake
// classifier works through roughly a third of the batch per poll.
func (s *Store) SubmitCategorizationJob(_ context.Context, transactionIDs []string, force bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSubmit != nil {
		err := s.FailSubmit
		s.FailSubmit = nil
		return "", err
	}

	ids := make([]string, 0, len(transactionIDs))
	for _, id := range transactionIDs {
		if t, ok := s.findTxn(id); ok {
			if t.Categorized() && !force {
				continue
			}
			ids = append(ids, id)
		}
	}

	job := core.CategorizationJob{
		ID:                uuid.NewString(),
		Status:            core.JobPending,
		TransactionIDs:    ids,
		TotalTransactions: len(ids),
	}
	step := (len(ids) + 2) / 3
	if step < 1 {
		step = 1
	}
	s.jobs[job.ID] = &jobState{job: job, step: step}
	return job.ID, nil
}

// GetCategorizationJob implements backend.CategorizationAPI. Each poll
// advances the fake job; on completion the batch is assigned to the first
// matching expense category.
func (s *Store) GetCategorizationJob(_ context.Context, jobID string) (core.CategorizationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailStatus != nil {
		return core.CategorizationJob{}, s.FailStatus
	}

	state, ok := s.jobs[jobID]
	if !ok {
		return core.CategorizationJob{}, fmt.Errorf("categorization job %s not found", jobID)
	}

	switch state.job.Status {
	case core.JobPending:
		state.job.Status = core.JobRunning
	case core.JobRunning:
		state.job.CategorizedCount += state.step
		if state.job.CategorizedCount >= state.job.TotalTransactions {
			state.job.CategorizedCount = state.job.TotalTransactions
			state.job.Status = core.JobCompleted
			s.applyCategorization(state.job.TransactionIDs)
		}
	}
	return state.job, nil
}

func (s *Store) findTxn(id string) (core.Transaction, bool) {
	for _, t := range s.txns {
		if t.ID == id {
			return t, true
		}
	}
	return core.Transaction{}, false
}

func (s *Store) applyCategorization(ids []string) {
	var catID, subID string
	for _, c := range s.categories {
		if c.Kind == core.ExpenseCategory {
			catID = c.ID
			if len(c.Subcategories) > 0 {
				subID = c.Subcategories[0].ID
			}
			break
		}
	}
	if catID == "" {
		return
	}
	want := map[string]struct{}{}
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range s.txns {
		if _, ok := want[s.txns[i].ID]; ok {
			s.txns[i].CategoryID = catID
			s.txns[i].SubcategoryID = subID
		}
	}
}

// NewSeeded builds a store with a small but representative fixture set:
// two budgets (one default, account-scoped), category and subcategory line
// items, and transactions spanning three months with an uncategorized tail.
func NewSeeded() *Store {
	s := New()

	groceries := core.Subcategory{ID: "sub-groceries", Name: "Groceries", Icon: "cart"}
	restaurants := core.Subcategory{ID: "sub-restaurants", Name: "Restaurants", Icon: "fork"}
	fuel := core.Subcategory{ID: "sub-fuel", Name: "Fuel", Icon: "pump"}

	s.SetCategories([]core.Category{
		{ID: "cat-food", Name: "Food", Icon: "basket", ColorHex: "#E94F37", Kind: core.ExpenseCategory,
			Subcategories: []core.Subcategory{groceries, restaurants}},
		{ID: "cat-transport", Name: "Transport", Icon: "car", ColorHex: "#3F88C5", Kind: core.ExpenseCategory,
			Subcategories: []core.Subcategory{fuel}},
		{ID: "cat-salary", Name: "Salary", Icon: "bank", ColorHex: "#44BBA4", Kind: core.IncomeCategory},
	})

	s.SetBudgets([]core.Budget{
		{ID: "budget-everyday", Name: "Everyday", IsDefault: true, Emoji: "🏠", ColorHex: "#44BBA4",
			AccountIDs: []string{"acct-checking"}},
		{ID: "budget-travel", Name: "Travel", Emoji: "✈️", ColorHex: "#E94F37"},
	})

	s.SetLineItems([]core.LineItem{
		{ID: "li-food", BudgetID: "budget-everyday", CategoryID: "cat-food", Amount: decimal.NewFromInt(400)},
		{ID: "li-groceries", BudgetID: "budget-everyday", CategoryID: "cat-food", SubcategoryID: "sub-groceries", Amount: decimal.NewFromInt(150)},
		{ID: "li-transport", BudgetID: "budget-everyday", CategoryID: "cat-transport", Amount: decimal.NewFromInt(120)},
		{ID: "li-travel-food", BudgetID: "budget-travel", CategoryID: "cat-food", Amount: decimal.NewFromInt(250)},
	})

	now := time.Now().UTC()
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	mid := thisMonth.AddDate(0, 0, 14)
	lastMonth := thisMonth.AddDate(0, -1, 4)
	twoBack := thisMonth.AddDate(0, -2, 9)

	s.SetTransactions([]core.Transaction{
		{ID: "txn-1", AccountID: "acct-checking", Amount: decimal.RequireFromString("-52.10"), Posted: mid,
			CategoryID: "cat-food", SubcategoryID: "sub-groceries", Payee: "Esselunga", Description: "Weekly shop"},
		{ID: "txn-2", AccountID: "acct-checking", Amount: decimal.RequireFromString("-31.00"), Posted: mid.AddDate(0, 0, 1),
			CategoryID: "cat-food", Payee: "Trattoria da Mario", Description: "Dinner"},
		{ID: "txn-3", AccountID: "acct-checking", Amount: decimal.RequireFromString("-45.80"), Posted: mid.AddDate(0, 0, 2),
			CategoryID: "cat-transport", SubcategoryID: "sub-fuel", Payee: "Eni", Description: "Fuel"},
		{ID: "txn-4", AccountID: "acct-checking", Amount: decimal.RequireFromString("-18.99"), Posted: mid.AddDate(0, 0, 3),
			Payee: "Amazon", Description: "Household"},
		{ID: "txn-5", AccountID: "acct-checking", Amount: decimal.RequireFromString("-9.50"), Posted: mid.AddDate(0, 0, 3),
			Payee: "Bar Centrale", Description: "Coffee"},
		{ID: "txn-6", AccountID: "acct-checking", Amount: decimal.RequireFromString("2100.00"), Posted: thisMonth.AddDate(0, 0, 1),
			CategoryID: "cat-salary", Payee: "ACME S.p.A.", Description: "Salary"},
		{ID: "txn-7", AccountID: "acct-checking", Amount: decimal.RequireFromString("-210.40"), Posted: lastMonth,
			CategoryID: "cat-food", SubcategoryID: "sub-groceries", Payee: "Esselunga", Description: "Monthly shop"},
		{ID: "txn-8", AccountID: "acct-savings", Amount: decimal.RequireFromString("-75.00"), Posted: lastMonth.AddDate(0, 0, 2),
			Payee: "Trenitalia", Description: "Tickets"},
		{ID: "txn-9", AccountID: "acct-checking", Amount: decimal.RequireFromString("-64.30"), Posted: twoBack,
			CategoryID: "cat-transport", Payee: "Autostrade", Description: "Tolls"},
	})

	return s
}
