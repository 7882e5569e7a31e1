package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ExpenseCategory CategoryKind = "expense"
	IncomeCategory  CategoryKind = "income"
)

type (
	CategoryKind string

	// Category is a node of the remote category tree. Immutable within a
	// single aggregation pass; owned by the category service.
	Category struct {
		ID            string        `json:"id"`
		Name          string        `json:"name"`
		Icon          string        `json:"icon"`
		ColorHex      string        `json:"color"`
		Kind          CategoryKind  `json:"kind"`
		Subcategories []Subcategory `json:"subcategories"`
	}

	Subcategory struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Icon string `json:"icon"`
	}

	// Budget is a named allocation container. AccountIDs empty means the
	// budget is scoped to all accounts.
	Budget struct {
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		IsDefault  bool     `json:"is_default"`
		Emoji      string   `json:"emoji"`
		ColorHex   string   `json:"color"`
		AccountIDs []string `json:"account_ids"`
	}

	// BudgetMonth pins a specific budget to one calendar month, superseding
	// the default budget for that month only.
	BudgetMonth struct {
		ID       string `json:"id"`
		BudgetID string `json:"budget_id"`
		Month    Month  `json:"month"`
	}

	// LineItem is a budgeted amount scoped to a category, or to a
	// (category, subcategory) pair when SubcategoryID is set.
	LineItem struct {
		ID            string          `json:"id"`
		BudgetID      string          `json:"budget_id"`
		CategoryID    string          `json:"category_id"`
		SubcategoryID string          `json:"subcategory_id,omitempty"`
		Amount        decimal.Decimal `json:"amount"`
	}

	// Transaction is one ledger entry. Amount is signed; negative is an
	// outflow. SubcategoryID is only meaningful when CategoryID is set and
	// the subcategory belongs to that category, which the data model does
	// not guarantee.
	Transaction struct {
		ID            string          `json:"id"`
		AccountID     string          `json:"account_id"`
		Amount        decimal.Decimal `json:"amount"`
		Posted        time.Time       `json:"posted"`
		CategoryID    string          `json:"category_id,omitempty"`
		SubcategoryID string          `json:"subcategory_id,omitempty"`
		Payee         string          `json:"payee"`
		Description   string          `json:"description"`
	}
)

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyBudgetName
	}
	return nil
}

// Includes reports whether the account falls inside the budget's scope.
// A budget with no linked accounts covers every account.
func (b Budget) Includes(accountID string) bool {
	if len(b.AccountIDs) == 0 {
		return true
	}
	for _, id := range b.AccountIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

// IsCategoryLevel reports whether the line item budgets the whole category
// rather than one of its subcategories.
func (li LineItem) IsCategoryLevel() bool {
	return li.SubcategoryID == ""
}

func (li LineItem) Validate() error {
	if strings.TrimSpace(li.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if li.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Categorized reports whether the transaction carries a category assignment.
func (t Transaction) Categorized() bool {
	return t.CategoryID != ""
}

// Outflow returns the absolute amount, the unit spend is accumulated in.
func (t Transaction) Outflow() decimal.Decimal {
	return t.Amount.Abs()
}
