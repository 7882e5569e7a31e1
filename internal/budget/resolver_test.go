package budget

import (
	"errors"
	"testing"
	"time"

	"bilancio/internal/core"
)

var (
	everyday = core.Budget{ID: "b-everyday", Name: "Everyday", IsDefault: true, AccountIDs: []string{"a1"}}
	travel   = core.Budget{ID: "b-travel", Name: "Travel"}
)

func TestResolveOverridePrecedence(t *testing.T) {
	budgets := []core.Budget{everyday, travel}
	march := core.Month{Year: 2026, Month: time.March}
	overrides := []core.BudgetMonth{{ID: "bm1", BudgetID: "b-travel", Month: march}}

	// Overridden month resolves to the pinned budget even though another
	// budget is marked default.
	res, err := Resolve(march, budgets, overrides)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Budget.ID != "b-travel" || !res.Overridden {
		t.Fatalf("res = %+v, want travel via override", res)
	}

	// Any other month falls back to the default budget.
	april := core.Month{Year: 2026, Month: time.April}
	res, err = Resolve(april, budgets, overrides)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Budget.ID != "b-everyday" || res.Overridden {
		t.Fatalf("res = %+v, want everyday default", res)
	}
}

func TestResolveDanglingOverrideFallsBack(t *testing.T) {
	march := core.Month{Year: 2026, Month: time.March}
	overrides := []core.BudgetMonth{{ID: "bm1", BudgetID: "b-deleted", Month: march}}

	res, err := Resolve(march, []core.Budget{everyday}, overrides)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Budget.ID != "b-everyday" {
		t.Fatalf("res = %+v, want default fallback", res)
	}
}

func TestResolveNoBudgetConfigured(t *testing.T) {
	month := core.Month{Year: 2026, Month: time.March}

	_, err := Resolve(month, []core.Budget{travel}, nil)
	if !errors.Is(err, core.ErrNoBudgetConfigured) {
		t.Fatalf("err = %v, want ErrNoBudgetConfigured", err)
	}

	_, err = Resolve(month, nil, nil)
	if !errors.Is(err, core.ErrNoBudgetConfigured) {
		t.Fatalf("err = %v, want ErrNoBudgetConfigured", err)
	}
}

func TestResolveInvalidMonth(t *testing.T) {
	_, err := Resolve(core.Month{Year: 2026, Month: 13}, []core.Budget{everyday}, nil)
	if !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("err = %v, want ErrInvalidMonth", err)
	}
}

func TestAccountScope(t *testing.T) {
	res := Resolution{Budget: everyday}
	if got := res.AccountScope(); len(got) != 1 || got[0] != "a1" {
		t.Fatalf("AccountScope = %v", got)
	}
	if got := (Resolution{Budget: travel}).AccountScope(); len(got) != 0 {
		t.Fatalf("AccountScope = %v, want empty (unrestricted)", got)
	}
}
