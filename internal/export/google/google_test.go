package google

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

func TestSummaryRows(t *testing.T) {
	foodBudget := decimal.RequireFromString("400")
	groceriesBudget := decimal.RequireFromString("150")

	s := core.BudgetSummary{
		BudgetName: "Everyday",
		Month:      core.Month{Year: 2026, Month: time.August},
		Categories: []core.BudgetCategory{
			{
				Name:         "Food",
				BudgetAmount: &foodBudget,
				SpentAmount:  decimal.RequireFromString("80"),
				Subcategories: []core.BudgetSubcategory{
					{Name: "Groceries", BudgetAmount: &groceriesBudget, SpentAmount: decimal.RequireFromString("50")},
				},
			},
			{Name: "Transport", SpentAmount: decimal.RequireFromString("15")},
		},
		TotalBudgeted:      decimal.RequireFromString("400"),
		TotalSpent:         decimal.RequireFromString("95"),
		UncategorizedSpend: decimal.RequireFromString("20"),
	}

	rows := SummaryRows(s)
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5 (2 categories + 1 subcategory + uncategorized + total)", len(rows))
	}

	food := rows[0]
	if food[0] != "2026-08" || food[2] != "Food" || food[4] != "400.00" || food[6] != "320.00" {
		t.Errorf("food row = %v", food)
	}
	groceries := rows[1]
	if groceries[3] != "Groceries" || groceries[5] != "50.00" {
		t.Errorf("groceries row = %v", groceries)
	}

	// Unbudgeted categories leave budget and remaining blank.
	transport := rows[2]
	if transport[2] != "Transport" || transport[4] != "" || transport[6] != "" {
		t.Errorf("transport row = %v", transport)
	}

	uncat := rows[3]
	if uncat[2] != "Uncategorized" || uncat[5] != "20.00" {
		t.Errorf("uncategorized row = %v", uncat)
	}

	total := rows[4]
	if total[2] != "Total" || total[4] != "400.00" || total[5] != "95.00" || total[6] != "305.00" {
		t.Errorf("total row = %v", total)
	}
}

func TestSummaryRowsSkipsZeroUncategorized(t *testing.T) {
	s := core.BudgetSummary{
		BudgetName:    "Everyday",
		Month:         core.Month{Year: 2026, Month: time.January},
		TotalBudgeted: decimal.Zero,
		TotalSpent:    decimal.Zero,
	}
	rows := SummaryRows(s)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want only the total row", len(rows))
	}
}
