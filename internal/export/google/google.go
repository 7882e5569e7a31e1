// Package google writes month summaries to a Google Sheets report tab.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/export"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ export.SummaryWriter = (*Client)(nil)

// NewFromConfig creates a Sheets client from the export settings: a
// spreadsheet id plus OAuth client and token material, inline or from files.
func NewFromConfig(ctx context.Context, cfg config.Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.GoogleSpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(cfg.GoogleSheetName)
	if sheetName == "" {
		sheetName = "Bilancio"
	}

	clientJSON, err := readCredential(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client credentials: %w", err)
	}
	tokenJSON, err := readCredential(cfg.GoogleOAuthTokenJSON, cfg.GoogleOAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	oauthCfg, err := oauthgoogle.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(oauthCfg.Client(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

func readCredential(inline, file string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case strings.TrimSpace(file) != "":
		return os.ReadFile(file)
	default:
		return nil, errors.New("not configured")
	}
}

// AppendSummary appends one report block: a row per category, indented rows
// per subcategory, then totals and the uncategorized remainder.
func (c *Client) AppendSummary(ctx context.Context, s core.BudgetSummary) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:G", c.sheetName)
	vr := &gsheet.ValueRange{Values: SummaryRows(s)}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append summary to sheet %s: %w", c.sheetName, err)
	}

	if resp.Updates != nil {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// SummaryRows flattens a summary into spreadsheet rows:
// month, budget, category, subcategory, budgeted, spent, remaining.
func SummaryRows(s core.BudgetSummary) [][]any {
	month := s.Month.String()
	rows := make([][]any, 0, len(s.Categories)+2)

	for _, cat := range s.Categories {
		rows = append(rows, []any{
			month, s.BudgetName, cat.Name, "",
			amountCell(cat.BudgetAmount),
			cat.SpentAmount.StringFixed(2),
			amountCell(cat.Remaining()),
		})
		for _, sub := range cat.Subcategories {
			rows = append(rows, []any{
				month, s.BudgetName, cat.Name, sub.Name,
				amountCell(sub.BudgetAmount),
				sub.SpentAmount.StringFixed(2),
				amountCell(sub.Remaining()),
			})
		}
	}

	if s.UncategorizedSpend.Sign() > 0 {
		rows = append(rows, []any{
			month, s.BudgetName, "Uncategorized", "",
			"", s.UncategorizedSpend.StringFixed(2), "",
		})
	}

	remaining := s.TotalBudgeted.Sub(s.TotalSpent)
	rows = append(rows, []any{
		month, s.BudgetName, "Total", "",
		s.TotalBudgeted.StringFixed(2),
		s.TotalSpent.StringFixed(2),
		remaining.StringFixed(2),
	})
	return rows
}

// amountCell renders an optional amount; unbudgeted entries stay blank.
func amountCell(d *decimal.Decimal) any {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
