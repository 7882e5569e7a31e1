// Package summary computes the per-month budget projection: budgeted versus
// spent amounts per category and subcategory, uncategorized spend, and month
// navigation flags.
package summary

import (
	"sort"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// accumulator carries the working state for one category while transactions
// are folded in.
type accumulator struct {
	budget *decimal.Decimal
	spent  decimal.Decimal
	subs   map[string]*subAccumulator
}

type subAccumulator struct {
	budget *decimal.Decimal
	spent  decimal.Decimal
}

// Aggregate merges the category tree, the active budget's line items and the
// month's transactions into a BudgetSummary. Pure and deterministic: the same
// inputs always produce the same summary. Transactions outside the budget's
// account scope or outside the month are ignored, so callers may pass a
// wider slice than strictly necessary.
func Aggregate(
	month core.Month,
	budget core.Budget,
	categoryTree []core.Category,
	lineItems []core.LineItem,
	transactions []core.Transaction,
	hasPrev, hasNext bool,
) (core.BudgetSummary, error) {
	if err := month.Validate(); err != nil {
		return core.BudgetSummary{}, err
	}

	// Subcategory membership per the tree. A transaction's subcategory id is
	// only honored when it actually belongs to the transaction's category;
	// orphaned ids attribute spend to the category alone.
	subsOf := make(map[string]map[string]bool, len(categoryTree))
	for _, cat := range categoryTree {
		members := make(map[string]bool, len(cat.Subcategories))
		for _, sub := range cat.Subcategories {
			members[sub.ID] = true
		}
		subsOf[cat.ID] = members
	}

	accs := make(map[string]*accumulator)
	acc := func(categoryID string) *accumulator {
		a, ok := accs[categoryID]
		if !ok {
			a = &accumulator{subs: make(map[string]*subAccumulator)}
			accs[categoryID] = a
		}
		return a
	}
	subAcc := func(a *accumulator, subID string) *subAccumulator {
		s, ok := a.subs[subID]
		if !ok {
			s = &subAccumulator{}
			a.subs[subID] = s
		}
		return s
	}

	// Line items partition into category-level and subcategory-level
	// allocations. Several items for the same target sum up.
	for _, li := range lineItems {
		a := acc(li.CategoryID)
		if li.IsCategoryLevel() {
			a.budget = addAllocation(a.budget, li.Amount)
			continue
		}
		s := subAcc(a, li.SubcategoryID)
		s.budget = addAllocation(s.budget, li.Amount)
	}

	uncategorized := decimal.Zero
	var uncategorizedIDs []string

	for _, txn := range transactions {
		if !budget.Includes(txn.AccountID) || !month.Contains(txn.Posted) {
			continue
		}
		if !txn.Categorized() {
			uncategorized = uncategorized.Add(txn.Outflow())
			uncategorizedIDs = append(uncategorizedIDs, txn.ID)
			continue
		}

		a := acc(txn.CategoryID)
		a.spent = a.spent.Add(txn.Outflow())

		if txn.SubcategoryID != "" && subsOf[txn.CategoryID][txn.SubcategoryID] {
			s := subAcc(a, txn.SubcategoryID)
			s.spent = s.spent.Add(txn.Outflow())
		}
	}

	summary := core.BudgetSummary{
		BudgetID:                    budget.ID,
		BudgetName:                  budget.Name,
		AccountIDs:                  budget.AccountIDs,
		Month:                       month,
		TotalBudgeted:               decimal.Zero,
		TotalSpent:                  decimal.Zero,
		UncategorizedSpend:          uncategorized,
		UncategorizedTransactionIDs: uncategorizedIDs,
		HasPreviousMonth:            hasPrev,
		HasNextMonth:                hasNext,
	}

	// Emit categories in tree order. A category appears when it carries any
	// allocation or any spend; everything else is dropped from the payload.
	emitted := make(map[string]bool, len(accs))
	for _, cat := range categoryTree {
		a, ok := accs[cat.ID]
		if !ok || (a.budget == nil && a.spent.Sign() <= 0 && len(a.subs) == 0) {
			continue
		}
		emitted[cat.ID] = true
		summary.Categories = append(summary.Categories, buildCategory(cat, a))
	}

	// Spend attributed to category ids absent from the tree still surfaces,
	// ordered by id for determinism.
	var unknown []string
	for id, a := range accs {
		if !emitted[id] && (a.budget != nil || a.spent.Sign() > 0 || len(a.subs) > 0) {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		summary.Categories = append(summary.Categories, buildCategory(core.Category{ID: id}, accs[id]))
	}

	for _, bc := range summary.Categories {
		summary.TotalSpent = summary.TotalSpent.Add(bc.SpentAmount)
		summary.TotalBudgeted = summary.TotalBudgeted.Add(allocationOf(bc))
	}
	return summary, nil
}

// buildCategory turns an accumulator into the output slice entry, or skips
// sub entries with neither budget nor spend.
func buildCategory(cat core.Category, a *accumulator) core.BudgetCategory {
	bc := core.BudgetCategory{
		CategoryID:   cat.ID,
		Name:         cat.Name,
		Icon:         cat.Icon,
		ColorHex:     cat.ColorHex,
		Kind:         cat.Kind,
		BudgetAmount: a.budget,
		SpentAmount:  a.spent,
	}

	emitted := make(map[string]bool, len(a.subs))
	for _, sub := range cat.Subcategories {
		s, ok := a.subs[sub.ID]
		if !ok || (s.budget == nil && s.spent.Sign() <= 0) {
			continue
		}
		emitted[sub.ID] = true
		bc.Subcategories = append(bc.Subcategories, core.BudgetSubcategory{
			SubcategoryID: sub.ID,
			Name:          sub.Name,
			Icon:          sub.Icon,
			BudgetAmount:  s.budget,
			SpentAmount:   s.spent,
		})
	}

	var unknown []string
	for id, s := range a.subs {
		if !emitted[id] && (s.budget != nil || s.spent.Sign() > 0) {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		s := a.subs[id]
		bc.Subcategories = append(bc.Subcategories, core.BudgetSubcategory{
			SubcategoryID: id,
			BudgetAmount:  s.budget,
			SpentAmount:   s.spent,
		})
	}
	return bc
}

// allocationOf is the category's contribution to the total budgeted amount:
// the category-level allocation when present, otherwise the sum of its
// subcategory allocations. Counting both would double-count.
func allocationOf(bc core.BudgetCategory) decimal.Decimal {
	if bc.BudgetAmount != nil {
		return *bc.BudgetAmount
	}
	total := decimal.Zero
	for _, sub := range bc.Subcategories {
		if sub.BudgetAmount != nil {
			total = total.Add(*sub.BudgetAmount)
		}
	}
	return total
}

func addAllocation(current *decimal.Decimal, amount decimal.Decimal) *decimal.Decimal {
	if current == nil {
		return &amount
	}
	sum := current.Add(amount)
	return &sum
}
