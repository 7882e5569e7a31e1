package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/backend"
	"bilancio/internal/core"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL, Token: "test-token"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, srv
}

func TestFetchCategoryTree(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/categories" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"id": "cat-food", "name": "Food", "kind": "expense",
					"subcategories": []map[string]any{{"id": "sub-gro", "name": "Groceries"}},
				},
			},
			"total": 1,
		})
	}))

	cats, err := client.FetchCategoryTree(context.Background())
	if err != nil {
		t.Fatalf("FetchCategoryTree: %v", err)
	}
	if len(cats) != 1 || cats[0].ID != "cat-food" || len(cats[0].Subcategories) != 1 {
		t.Fatalf("cats = %+v", cats)
	}
}

func TestListTransactionsQueryAndDecoding(t *testing.T) {
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("date_from") != "1785542400" {
			t.Errorf("date_from = %s", q.Get("date_from"))
		}
		if q.Get("account_ids") != "a1,a2" {
			t.Errorf("account_ids = %s", q.Get("account_ids"))
		}
		if q.Get("limit") != "50" || q.Get("offset") != "100" {
			t.Errorf("limit/offset = %s/%s", q.Get("limit"), q.Get("offset"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"id": "t1", "account_id": "a1", "amount": "-52.10",
					"posted": from.Add(24 * time.Hour).Unix(), "payee": "Esselunga",
				},
			},
			"total": 37, "limit": 50, "offset": 100,
		})
	}))

	page, err := client.ListTransactions(context.Background(), backend.TransactionQuery{
		From: from, To: to, AccountIDs: []string{"a1", "a2"}, Limit: 50, Offset: 100,
	})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if page.Total != 37 || len(page.Items) != 1 {
		t.Fatalf("page = %+v", page)
	}
	txn := page.Items[0]
	if !txn.Outflow().Equal(decimal.RequireFromString("52.10")) {
		t.Fatalf("amount = %s", txn.Amount)
	}
	if txn.Posted != from.Add(24*time.Hour) {
		t.Fatalf("posted = %v", txn.Posted)
	}
}

func TestSubmitAndGetCategorizationJob(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/categories/ai/categorize":
			var body struct {
				TransactionIDs []string `json:"transaction_ids"`
				Force          bool     `json:"force"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if len(body.TransactionIDs) != 2 || !body.Force {
				t.Errorf("body = %+v", body)
			}
			json.NewEncoder(w).Encode(map[string]string{"job_id": "job-9"})
		case r.Method == http.MethodGet && r.URL.Path == "/categories/ai/jobs/job-9":
			json.NewEncoder(w).Encode(map[string]any{
				"id": "job-9", "status": "running",
				"total_transactions": 2, "categorized_count": 1,
			})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	ctx := context.Background()
	jobID, err := client.SubmitCategorizationJob(ctx, []string{"t1", "t2"}, true)
	if err != nil {
		t.Fatalf("SubmitCategorizationJob: %v", err)
	}
	if jobID != "job-9" {
		t.Fatalf("jobID = %s", jobID)
	}

	job, err := client.GetCategorizationJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetCategorizationJob: %v", err)
	}
	if job.Status != core.JobRunning || job.CategorizedCount != 1 {
		t.Fatalf("job = %+v", job)
	}
}

func TestErrorResponsesCarryDetail(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"detail": "month already assigned"})
	}))

	_, err := client.AssignBudgetMonth(context.Background(), "b1", core.Month{Year: 2026, Month: time.May})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "409") || !strings.Contains(got, "month already assigned") {
		t.Fatalf("error = %q", got)
	}
}

func TestSetDefaultBudget(t *testing.T) {
	var called bool
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/budgets/b7/set-default" {
			called = true
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	if err := client.SetDefaultBudget(context.Background(), "b7"); err != nil {
		t.Fatalf("SetDefaultBudget: %v", err)
	}
	if !called {
		t.Fatal("set-default endpoint not called")
	}
}
