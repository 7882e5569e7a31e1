// Package rest implements the backend ports against the remote budgeting
// API over JSON/HTTP. Months cross the wire as "YYYY-MM" strings and
// transaction dates as unix timestamps.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/backend"
	"bilancio/internal/core"
)

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ backend.Backend = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// apiError carries the backend's status code and detail message.
type apiError struct {
	Status int
	Detail string
}

func (e *apiError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Detail)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var detail struct {
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &detail)
		return &apiError{Status: resp.StatusCode, Detail: detail.Detail}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

type listEnvelope[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// FetchCategoryTree implements backend.CategoryReader.
func (c *Client) FetchCategoryTree(ctx context.Context) ([]core.Category, error) {
	var env listEnvelope[core.Category]
	if err := c.do(ctx, http.MethodGet, "/categories", nil, nil, &env); err != nil {
		return nil, fmt.Errorf("fetch category tree: %w", err)
	}
	return env.Items, nil
}

// FetchBudgets implements backend.BudgetReader.
func (c *Client) FetchBudgets(ctx context.Context) ([]core.Budget, error) {
	var env listEnvelope[core.Budget]
	if err := c.do(ctx, http.MethodGet, "/budgets", nil, nil, &env); err != nil {
		return nil, fmt.Errorf("fetch budgets: %w", err)
	}
	return env.Items, nil
}

// FetchBudgetMonths implements backend.BudgetReader.
func (c *Client) FetchBudgetMonths(ctx context.Context) ([]core.BudgetMonth, error) {
	var env listEnvelope[core.BudgetMonth]
	if err := c.do(ctx, http.MethodGet, "/budgets/months", nil, nil, &env); err != nil {
		return nil, fmt.Errorf("fetch budget months: %w", err)
	}
	return env.Items, nil
}

// FetchLineItems implements backend.BudgetReader.
func (c *Client) FetchLineItems(ctx context.Context, budgetID string) ([]core.LineItem, error) {
	path := fmt.Sprintf("/budgets/%s/line-items", url.PathEscape(budgetID))
	var env listEnvelope[core.LineItem]
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &env); err != nil {
		return nil, fmt.Errorf("fetch line items for budget %s: %w", budgetID, err)
	}
	return env.Items, nil
}

// SetDefaultBudget implements backend.BudgetWriter. The backend clears
// sibling defaults in the same transaction.
func (c *Client) SetDefaultBudget(ctx context.Context, budgetID string) error {
	path := fmt.Sprintf("/budgets/%s/set-default", url.PathEscape(budgetID))
	if err := c.do(ctx, http.MethodPost, path, nil, nil, nil); err != nil {
		return fmt.Errorf("set default budget %s: %w", budgetID, err)
	}
	return nil
}

// AssignBudgetMonth implements backend.BudgetWriter.
func (c *Client) AssignBudgetMonth(ctx context.Context, budgetID string, month core.Month) (core.BudgetMonth, error) {
	if err := month.Validate(); err != nil {
		return core.BudgetMonth{}, err
	}
	body := struct {
		BudgetID string `json:"budget_id"`
		Month    string `json:"month"`
	}{BudgetID: budgetID, Month: month.String()}

	var created core.BudgetMonth
	if err := c.do(ctx, http.MethodPost, "/budgets/months", nil, body, &created); err != nil {
		return core.BudgetMonth{}, fmt.Errorf("assign budget month: %w", err)
	}
	return created, nil
}

// RemoveBudgetMonth implements backend.BudgetWriter.
func (c *Client) RemoveBudgetMonth(ctx context.Context, overrideID string) error {
	path := fmt.Sprintf("/budgets/months/%s", url.PathEscape(overrideID))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("remove budget month %s: %w", overrideID, err)
	}
	return nil
}

type transactionDTO struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Posted        int64           `json:"posted"`
	CategoryID    string          `json:"category_id"`
	SubcategoryID string          `json:"subcategory_id"`
	Payee         string          `json:"payee"`
	Description   string          `json:"description"`
}

func (d transactionDTO) toDomain() core.Transaction {
	return core.Transaction{
		ID:            d.ID,
		AccountID:     d.AccountID,
		Amount:        d.Amount,
		Posted:        time.Unix(d.Posted, 0).UTC(),
		CategoryID:    d.CategoryID,
		SubcategoryID: d.SubcategoryID,
		Payee:         d.Payee,
		Description:   d.Description,
	}
}

// ListTransactions implements backend.TransactionLister.
func (c *Client) ListTransactions(ctx context.Context, q backend.TransactionQuery) (backend.TransactionPage, error) {
	query := url.Values{}
	if !q.From.IsZero() {
		query.Set("date_from", strconv.FormatInt(q.From.Unix(), 10))
	}
	if !q.To.IsZero() {
		query.Set("date_to", strconv.FormatInt(q.To.Unix(), 10))
	}
	if len(q.AccountIDs) > 0 {
		query.Set("account_ids", strings.Join(q.AccountIDs, ","))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		query.Set("offset", strconv.Itoa(q.Offset))
	}

	var env struct {
		Items  []transactionDTO `json:"items"`
		Total  int              `json:"total"`
		Limit  int              `json:"limit"`
		Offset int              `json:"offset"`
	}
	if err := c.do(ctx, http.MethodGet, "/transactions", query, nil, &env); err != nil {
		return backend.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}

	page := backend.TransactionPage{Total: env.Total, Limit: env.Limit, Offset: env.Offset}
	page.Items = make([]core.Transaction, 0, len(env.Items))
	for _, dto := range env.Items {
		page.Items = append(page.Items, dto.toDomain())
	}
	return page, nil
}

// SubmitCategorizationJob implements backend.CategorizationAPI.
func (c *Client) SubmitCategorizationJob(ctx context.Context, transactionIDs []string, force bool) (string, error) {
	body := struct {
		TransactionIDs []string `json:"transaction_ids"`
		Force          bool     `json:"force"`
	}{TransactionIDs: transactionIDs, Force: force}

	var created struct {
		JobID string `json:"job_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/categories/ai/categorize", nil, body, &created); err != nil {
		return "", fmt.Errorf("submit categorization job: %w", err)
	}
	if created.JobID == "" {
		return "", fmt.Errorf("submit categorization job: backend returned empty job id")
	}
	return created.JobID, nil
}

// GetCategorizationJob implements backend.CategorizationAPI.
func (c *Client) GetCategorizationJob(ctx context.Context, jobID string) (core.CategorizationJob, error) {
	path := fmt.Sprintf("/categories/ai/jobs/%s", url.PathEscape(jobID))
	var job core.CategorizationJob
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &job); err != nil {
		return core.CategorizationJob{}, fmt.Errorf("get categorization job %s: %w", jobID, err)
	}
	return job, nil
}
