package core

import "github.com/shopspring/decimal"

// BudgetSubcategory is the per-subcategory slice of a summary. BudgetAmount
// is nil when no subcategory line item exists; spend is still reported.
type BudgetSubcategory struct {
	SubcategoryID string           `json:"subcategory_id"`
	Name          string           `json:"name"`
	Icon          string           `json:"icon"`
	BudgetAmount  *decimal.Decimal `json:"budget_amount,omitempty"`
	SpentAmount   decimal.Decimal  `json:"spent_amount"`
}

// BudgetCategory is the per-category slice of a summary. BudgetAmount is nil
// for unbudgeted-but-active categories.
type BudgetCategory struct {
	CategoryID    string              `json:"category_id"`
	Name          string              `json:"name"`
	Icon          string              `json:"icon"`
	ColorHex      string              `json:"color"`
	Kind          CategoryKind        `json:"kind"`
	BudgetAmount  *decimal.Decimal    `json:"budget_amount,omitempty"`
	SpentAmount   decimal.Decimal     `json:"spent_amount"`
	Subcategories []BudgetSubcategory `json:"subcategories,omitempty"`
}

// Remaining returns budget minus spend, or nil when the category carries no
// budget allocation.
func (c BudgetCategory) Remaining() *decimal.Decimal {
	if c.BudgetAmount == nil {
		return nil
	}
	r := c.BudgetAmount.Sub(c.SpentAmount)
	return &r
}

// Remaining returns budget minus spend for a subcategory entry, or nil when
// unbudgeted.
func (s BudgetSubcategory) Remaining() *decimal.Decimal {
	if s.BudgetAmount == nil {
		return nil
	}
	r := s.BudgetAmount.Sub(s.SpentAmount)
	return &r
}

// BudgetSummary is the derived, per-month, per-budget projection of budgeted
// versus spent amounts. Fully recomputed per request; never persisted.
type BudgetSummary struct {
	BudgetID   string   `json:"budget_id"`
	BudgetName string   `json:"budget_name"`
	AccountIDs []string `json:"account_ids"`
	Month      Month    `json:"month"`

	Categories []BudgetCategory `json:"categories"`

	TotalBudgeted decimal.Decimal `json:"total_budgeted"`
	TotalSpent    decimal.Decimal `json:"total_spent"`

	UncategorizedSpend          decimal.Decimal `json:"uncategorized_spend"`
	UncategorizedTransactionIDs []string        `json:"uncategorized_transaction_ids,omitempty"`

	HasPreviousMonth bool `json:"has_previous_month"`
	HasNextMonth     bool `json:"has_next_month"`
}
