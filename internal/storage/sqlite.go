// Package storage implements the backend ports on a local SQLite mirror of
// the remote budgeting records, for offline use and fast local reads. The
// categorization job lifecycle is simulated locally so the orchestrator
// behaves identically against every backend.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bilancio/internal/backend"
	"bilancio/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteMirror struct {
	db *sql.DB
}

var _ backend.Backend = (*SQLiteMirror)(nil)

func NewSQLiteMirror(dbPath string) (*SQLiteMirror, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteMirror{db: db}, nil
}

func (m *SQLiteMirror) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// FetchCategoryTree implements backend.CategoryReader.
func (m *SQLiteMirror) FetchCategoryTree(ctx context.Context) ([]core.Category, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, icon, color, kind FROM categories ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	index := make(map[string]int)
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.ColorHex, &c.Kind); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		index[c.ID] = len(cats)
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	subRows, err := m.db.QueryContext(ctx,
		`SELECT id, category_id, name, icon FROM subcategories ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("query subcategories: %w", err)
	}
	defer subRows.Close()

	for subRows.Next() {
		var sub core.Subcategory
		var categoryID string
		if err := subRows.Scan(&sub.ID, &categoryID, &sub.Name, &sub.Icon); err != nil {
			return nil, fmt.Errorf("scan subcategory: %w", err)
		}
		if i, ok := index[categoryID]; ok {
			cats[i].Subcategories = append(cats[i].Subcategories, sub)
		}
	}
	if err := subRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subcategories: %w", err)
	}
	return cats, nil
}

// FetchBudgets implements backend.BudgetReader.
func (m *SQLiteMirror) FetchBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, is_default, emoji, color FROM budgets ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var budgets []core.Budget
	index := make(map[string]int)
	for rows.Next() {
		var b core.Budget
		var isDefault int
		if err := rows.Scan(&b.ID, &b.Name, &isDefault, &b.Emoji, &b.ColorHex); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.IsDefault = isDefault != 0
		index[b.ID] = len(budgets)
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}

	accRows, err := m.db.QueryContext(ctx,
		`SELECT budget_id, account_id FROM budget_accounts ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("query budget accounts: %w", err)
	}
	defer accRows.Close()

	for accRows.Next() {
		var budgetID, accountID string
		if err := accRows.Scan(&budgetID, &accountID); err != nil {
			return nil, fmt.Errorf("scan budget account: %w", err)
		}
		if i, ok := index[budgetID]; ok {
			budgets[i].AccountIDs = append(budgets[i].AccountIDs, accountID)
		}
	}
	if err := accRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budget accounts: %w", err)
	}
	return budgets, nil
}

// FetchBudgetMonths implements backend.BudgetReader.
func (m *SQLiteMirror) FetchBudgetMonths(ctx context.Context) ([]core.BudgetMonth, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, budget_id, month FROM budget_months ORDER BY month`)
	if err != nil {
		return nil, fmt.Errorf("query budget months: %w", err)
	}
	defer rows.Close()

	var months []core.BudgetMonth
	for rows.Next() {
		var bm core.BudgetMonth
		var raw string
		if err := rows.Scan(&bm.ID, &bm.BudgetID, &raw); err != nil {
			return nil, fmt.Errorf("scan budget month: %w", err)
		}
		month, err := core.ParseMonth(raw)
		if err != nil {
			return nil, fmt.Errorf("parse stored month %q: %w", raw, err)
		}
		bm.Month = month
		months = append(months, bm)
	}
	return months, rows.Err()
}

// FetchLineItems implements backend.BudgetReader.
func (m *SQLiteMirror) FetchLineItems(ctx context.Context, budgetID string) ([]core.LineItem, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, budget_id, category_id, subcategory_id, amount FROM line_items WHERE budget_id = ? ORDER BY id`,
		budgetID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	var items []core.LineItem
	for rows.Next() {
		var li core.LineItem
		var amount string
		if err := rows.Scan(&li.ID, &li.BudgetID, &li.CategoryID, &li.SubcategoryID, &amount); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		li.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse stored amount %q: %w", amount, err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

// SetDefaultBudget implements backend.BudgetWriter. Sibling defaults clear in
// the same transaction, so exactly one default ever exists.
func (m *SQLiteMirror) SetDefaultBudget(ctx context.Context, budgetID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM budgets WHERE id = ?`, budgetID).Scan(&exists); err != nil {
		return fmt.Errorf("check budget: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", core.ErrBudgetNotFound, budgetID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE budgets SET is_default = (id = ?)`, budgetID); err != nil {
		return fmt.Errorf("set default budget: %w", err)
	}
	return tx.Commit()
}

// AssignBudgetMonth implements backend.BudgetWriter. At most one override
// may exist per month.
func (m *SQLiteMirror) AssignBudgetMonth(ctx context.Context, budgetID string, month core.Month) (core.BudgetMonth, error) {
	if err := month.Validate(); err != nil {
		return core.BudgetMonth{}, err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return core.BudgetMonth{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM budgets WHERE id = ?`, budgetID).Scan(&exists); err != nil {
		return core.BudgetMonth{}, fmt.Errorf("check budget: %w", err)
	}
	if exists == 0 {
		return core.BudgetMonth{}, fmt.Errorf("%w: %s", core.ErrBudgetNotFound, budgetID)
	}

	var taken int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM budget_months WHERE month = ?`, month.String()).Scan(&taken); err != nil {
		return core.BudgetMonth{}, fmt.Errorf("check month override: %w", err)
	}
	if taken > 0 {
		return core.BudgetMonth{}, fmt.Errorf("%w: month %s", core.ErrOverrideConflict, month)
	}

	bm := core.BudgetMonth{ID: uuid.NewString(), BudgetID: budgetID, Month: month}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO budget_months (id, budget_id, month) VALUES (?, ?, ?)`,
		bm.ID, bm.BudgetID, bm.Month.String()); err != nil {
		return core.BudgetMonth{}, fmt.Errorf("insert budget month: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.BudgetMonth{}, fmt.Errorf("commit: %w", err)
	}
	return bm, nil
}

// RemoveBudgetMonth implements backend.BudgetWriter.
func (m *SQLiteMirror) RemoveBudgetMonth(ctx context.Context, overrideID string) error {
	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM budget_months WHERE id = ?`, overrideID); err != nil {
		return fmt.Errorf("delete budget month: %w", err)
	}
	return nil
}

// ListTransactions implements backend.TransactionLister.
func (m *SQLiteMirror) ListTransactions(ctx context.Context, q backend.TransactionQuery) (backend.TransactionPage, error) {
	where := "1 = 1"
	var args []any
	if !q.From.IsZero() {
		where += " AND posted >= ?"
		args = append(args, q.From.Unix())
	}
	if !q.To.IsZero() {
		where += " AND posted < ?"
		args = append(args, q.To.Unix())
	}
	if len(q.AccountIDs) > 0 {
		where += " AND account_id IN (?" + strings.Repeat(", ?", len(q.AccountIDs)-1) + ")"
		for _, id := range q.AccountIDs {
			args = append(args, id)
		}
	}

	page := backend.TransactionPage{Limit: q.Limit, Offset: q.Offset}
	if err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE `+where, args...).Scan(&page.Total); err != nil {
		return backend.TransactionPage{}, fmt.Errorf("count transactions: %w", err)
	}

	query := `SELECT id, account_id, amount, posted, category_id, subcategory_id, payee, description
		FROM transactions WHERE ` + where + ` ORDER BY posted DESC, id DESC`
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	} else if q.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, q.Offset)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return backend.TransactionPage{}, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return backend.TransactionPage{}, err
		}
		page.Items = append(page.Items, txn)
	}
	if err := rows.Err(); err != nil {
		return backend.TransactionPage{}, fmt.Errorf("iterate transactions: %w", err)
	}
	return page, nil
}

func scanTransaction(rows *sql.Rows) (core.Transaction, error) {
	var txn core.Transaction
	var amount string
	var posted int64
	if err := rows.Scan(&txn.ID, &txn.AccountID, &amount, &posted,
		&txn.CategoryID, &txn.SubcategoryID, &txn.Payee, &txn.Description); err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	txn.Amount = parsed
	txn.Posted = time.Unix(posted, 0).UTC()
	return txn, nil
}

// SubmitCategorizationJob implements backend.CategorizationAPI. Transactions
// that already carry a category are skipped unless force is set.
func (m *SQLiteMirror) SubmitCategorizationJob(ctx context.Context, transactionIDs []string, force bool) (string, error) {
	var batch []string
	for _, id := range transactionIDs {
		var categoryID string
		err := m.db.QueryRowContext(ctx,
			`SELECT category_id FROM transactions WHERE id = ?`, id).Scan(&categoryID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("check transaction %s: %w", id, err)
		}
		if categoryID == "" || force {
			batch = append(batch, id)
		}
	}

	jobID := uuid.NewString()
	if _, err := m.db.ExecContext(ctx,
		`INSERT INTO categorization_jobs (id, status, transaction_ids, total_transactions, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		jobID, string(core.JobPending), strings.Join(batch, ","), len(batch), time.Now().Unix()); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return jobID, nil
}

// GetCategorizationJob implements backend.CategorizationAPI. The simulated
// classifier advances roughly a third of the batch per status read and
// assigns the first expense category on completion.
func (m *SQLiteMirror) GetCategorizationJob(ctx context.Context, jobID string) (core.CategorizationJob, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return core.CategorizationJob{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var job core.CategorizationJob
	var status, ids string
	err = tx.QueryRowContext(ctx,
		`SELECT id, status, transaction_ids, total_transactions, categorized_count, error_message
		 FROM categorization_jobs WHERE id = ?`, jobID).
		Scan(&job.ID, &status, &ids, &job.TotalTransactions, &job.CategorizedCount, &job.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CategorizationJob{}, fmt.Errorf("job %s not found", jobID)
	}
	if err != nil {
		return core.CategorizationJob{}, fmt.Errorf("query job: %w", err)
	}
	job.Status = core.JobStatus(status)
	if ids != "" {
		job.TransactionIDs = strings.Split(ids, ",")
	}

	if job.Status.Terminal() {
		return job, tx.Commit()
	}

	if job.Status == core.JobPending {
		job.Status = core.JobRunning
	}
	step := (job.TotalTransactions + 2) / 3
	if step < 1 {
		step = 1
	}
	job.CategorizedCount += step
	if job.CategorizedCount >= job.TotalTransactions {
		job.CategorizedCount = job.TotalTransactions
		job.Status = core.JobCompleted
		if err := m.applyCategorization(ctx, tx, job.TransactionIDs); err != nil {
			return core.CategorizationJob{}, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE categorization_jobs SET status = ?, categorized_count = ? WHERE id = ?`,
		string(job.Status), job.CategorizedCount, jobID); err != nil {
		return core.CategorizationJob{}, fmt.Errorf("update job: %w", err)
	}
	return job, tx.Commit()
}

func (m *SQLiteMirror) applyCategorization(ctx context.Context, tx *sql.Tx, transactionIDs []string) error {
	var categoryID string
	var subcategoryID sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT c.id, (SELECT s.id FROM subcategories s WHERE s.category_id = c.id ORDER BY s.sort_order, s.id LIMIT 1)
		 FROM categories c WHERE c.kind = 'expense' ORDER BY c.sort_order, c.id LIMIT 1`).
		Scan(&categoryID, &subcategoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pick fallback category: %w", err)
	}

	for _, id := range transactionIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET category_id = ?, subcategory_id = ? WHERE id = ?`,
			categoryID, subcategoryID.String, id); err != nil {
			return fmt.Errorf("categorize transaction %s: %w", id, err)
		}
	}
	return nil
}

// Mirror sync: bulk-replace operations used to refresh local tables from the
// remote source of truth.

func (m *SQLiteMirror) ReplaceCategoryTree(ctx context.Context, cats []core.Category) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subcategories`); err != nil {
		return fmt.Errorf("clear subcategories: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}

	for i, c := range cats {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (id, name, icon, color, kind, sort_order) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Icon, c.ColorHex, string(c.Kind), i); err != nil {
			return fmt.Errorf("insert category %s: %w", c.ID, err)
		}
		for j, s := range c.Subcategories {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO subcategories (id, category_id, name, icon, sort_order) VALUES (?, ?, ?, ?, ?)`,
				s.ID, c.ID, s.Name, s.Icon, j); err != nil {
				return fmt.Errorf("insert subcategory %s: %w", s.ID, err)
			}
		}
	}
	return tx.Commit()
}

func (m *SQLiteMirror) ReplaceBudgets(ctx context.Context, budgets []core.Budget) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM budget_accounts`); err != nil {
		return fmt.Errorf("clear budget accounts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM budgets`); err != nil {
		return fmt.Errorf("clear budgets: %w", err)
	}

	for _, b := range budgets {
		isDefault := 0
		if b.IsDefault {
			isDefault = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO budgets (id, name, is_default, emoji, color) VALUES (?, ?, ?, ?, ?)`,
			b.ID, b.Name, isDefault, b.Emoji, b.ColorHex); err != nil {
			return fmt.Errorf("insert budget %s: %w", b.ID, err)
		}
		for _, accountID := range b.AccountIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO budget_accounts (budget_id, account_id) VALUES (?, ?)`,
				b.ID, accountID); err != nil {
				return fmt.Errorf("insert budget account: %w", err)
			}
		}
	}
	return tx.Commit()
}

func (m *SQLiteMirror) ReplaceBudgetMonths(ctx context.Context, months []core.BudgetMonth) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM budget_months`); err != nil {
		return fmt.Errorf("clear budget months: %w", err)
	}
	for _, bm := range months {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO budget_months (id, budget_id, month) VALUES (?, ?, ?)`,
			bm.ID, bm.BudgetID, bm.Month.String()); err != nil {
			return fmt.Errorf("insert budget month %s: %w", bm.ID, err)
		}
	}
	return tx.Commit()
}

func (m *SQLiteMirror) ReplaceLineItems(ctx context.Context, items []core.LineItem) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM line_items`); err != nil {
		return fmt.Errorf("clear line items: %w", err)
	}
	for _, li := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO line_items (id, budget_id, category_id, subcategory_id, amount) VALUES (?, ?, ?, ?, ?)`,
			li.ID, li.BudgetID, li.CategoryID, li.SubcategoryID, li.Amount.String()); err != nil {
			return fmt.Errorf("insert line item %s: %w", li.ID, err)
		}
	}
	return tx.Commit()
}

func (m *SQLiteMirror) ReplaceTransactions(ctx context.Context, txns []core.Transaction) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}
	for _, t := range txns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (id, account_id, amount, posted, category_id, subcategory_id, payee, description)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.AccountID, t.Amount.String(), t.Posted.Unix(),
			t.CategoryID, t.SubcategoryID, t.Payee, t.Description); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}
