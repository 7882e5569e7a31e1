// Command bilancioctl drives the budgeting core from the terminal: compute a
// month summary, run a categorization batch, or export a report.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bilancio/internal/backend"
	"bilancio/internal/backend/factory"
	"bilancio/internal/backend/rest"
	"bilancio/internal/cli"
	"bilancio/internal/config"
	"bilancio/internal/core"
	exportgoogle "bilancio/internal/export/google"
	"bilancio/internal/jobs"
	"bilancio/internal/log"
	"bilancio/internal/storage"
	"bilancio/internal/summary"
)

var (
	flagMonth string
	flagForce bool
)

func main() {
	root := &cobra.Command{
		Use:           "bilancioctl",
		Short:         "Budget summaries and categorization from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagMonth, "month", "", "target month (YYYY-MM, default: current)")

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Compute and print the month's budget summary",
		RunE:  runSummary,
	}

	categorizeCmd := &cobra.Command{
		Use:   "categorize [transaction-id...]",
		Short: "Run a categorization job over the given transactions",
		Long: "Run a categorization job over the given transactions. Without " +
			"arguments the month's uncategorized transactions are submitted.",
		RunE: runCategorize,
	}
	categorizeCmd.Flags().BoolVar(&flagForce, "force", false, "recategorize already categorized transactions")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Append the month's summary to the configured report sheet",
		RunE:  runExport,
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh the local SQLite mirror from the remote backend",
		RunE:  runSync,
	}

	root.AddCommand(summaryCmd, categorizeCmd, exportCmd, syncCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type env struct {
	cfg     *config.Config
	logger  *log.Logger
	backend backend.Backend
	cleanup factory.CleanupFunc
	loader  *summary.Loader
}

func setup() (*env, error) {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	result, err := factory.Create(context.Background(), cfg, logger.Logger)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:     cfg,
		logger:  logger,
		backend: result.Backend,
		cleanup: result.Cleanup,
		loader: summary.NewLoader(result.Backend, logger, summary.Options{
			PageSize:  cfg.TransactionPageSize,
			CacheSize: cfg.SummaryCacheSize,
			CacheTTL:  cfg.SummaryCacheTTL,
		}),
	}, nil
}

func (e *env) close() {
	if e.cleanup != nil {
		_ = e.cleanup()
	}
}

func targetMonth() (core.Month, error) {
	if flagMonth == "" {
		now := time.Now()
		return core.NewMonth(now.Year(), int(now.Month()))
	}
	return core.ParseMonth(flagMonth)
}

func runSummary(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	month, err := targetMonth()
	if err != nil {
		return err
	}

	s, err := e.loader.Load(cmd.Context(), month)
	if errors.Is(err, core.ErrNoBudgetConfigured) {
		fmt.Printf("No budget configured for %s.\n", month)
		return nil
	}
	if err != nil {
		return err
	}

	printSummary(s)
	return nil
}

func printSummary(s core.BudgetSummary) {
	fmt.Printf("%s / %s\n\n", s.Month, s.BudgetName)
	fmt.Printf("%-28s %12s %12s %12s\n", "Category", "Budgeted", "Spent", "Remaining")

	for _, cat := range s.Categories {
		fmt.Printf("%-28s %12s %12s %12s\n",
			cat.Name, amount(cat.BudgetAmount), cat.SpentAmount.StringFixed(2), amount(cat.Remaining()))
		for _, sub := range cat.Subcategories {
			fmt.Printf("  %-26s %12s %12s %12s\n",
				sub.Name, amount(sub.BudgetAmount), sub.SpentAmount.StringFixed(2), amount(sub.Remaining()))
		}
	}

	if s.UncategorizedSpend.Sign() > 0 {
		fmt.Printf("%-28s %12s %12s\n", "Uncategorized", "", s.UncategorizedSpend.StringFixed(2))
	}
	fmt.Printf("\n%-28s %12s %12s %12s\n", "Total",
		s.TotalBudgeted.StringFixed(2),
		s.TotalSpent.StringFixed(2),
		s.TotalBudgeted.Sub(s.TotalSpent).StringFixed(2))
}

func amount(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}

func runCategorize(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	ids := args
	if len(ids) == 0 {
		month, err := targetMonth()
		if err != nil {
			return err
		}
		s, err := e.loader.Load(cmd.Context(), month)
		if err != nil {
			return err
		}
		ids = s.UncategorizedTransactionIDs
	}
	if len(ids) == 0 {
		fmt.Println("Nothing to categorize.")
		return nil
	}

	orch := jobs.NewOrchestrator(e.backend, e.logger, jobs.Options{
		PollInterval: e.cfg.JobPollInterval,
	})
	orch.Submit(cmd.Context(), ids, flagForce)
	fmt.Printf("Submitted %d transactions.\n", len(ids))

	for {
		snap := orch.Snapshot()
		switch snap.State {
		case jobs.StateCompleted:
			fmt.Printf("Done: %d of %d categorized.\n", snap.CategorizedCount, snap.TotalCount)
			return nil
		case jobs.StateFailed:
			return errors.New(snap.ErrorMessage)
		}
		if snap.TotalCount > 0 {
			fmt.Printf("  %d/%d (%.0f%%)\n", snap.CategorizedCount, snap.TotalCount, snap.Progress*100)
		}
		select {
		case <-cmd.Context().Done():
			orch.Cancel()
			return cmd.Context().Err()
		case <-time.After(e.cfg.JobPollInterval):
		}
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	source, err := rest.NewClient(rest.Config{
		BaseURL: cfg.BackendBaseURL,
		Token:   cfg.BackendToken,
		Timeout: cfg.BackendTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect remote backend: %w", err)
	}

	mirror := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer mirror.Close()

	syncer := storage.NewSyncer(source, mirror, logger, cfg.TransactionPageSize)
	stats, err := syncer.Sync(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Synced %d categories, %d budgets, %d overrides, %d line items, %d transactions.\n",
		stats.Categories, stats.Budgets, stats.BudgetMonths, stats.LineItems, stats.Transactions)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	month, err := targetMonth()
	if err != nil {
		return err
	}

	s, err := e.loader.Load(cmd.Context(), month)
	if err != nil {
		return err
	}

	writer, err := exportgoogle.NewFromConfig(cmd.Context(), *e.cfg)
	if err != nil {
		return fmt.Errorf("configure export: %w", err)
	}
	ref, err := writer.AppendSummary(cmd.Context(), s)
	if err != nil {
		return err
	}

	fmt.Printf("Exported %s to %s.\n", month, ref)
	return nil
}
