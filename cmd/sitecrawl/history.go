package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/websearchtool/sitecrawl/internal/config"
	"github.com/websearchtool/sitecrawl/internal/database"
)

// defaultHistoryLimit is the number of runs listed without --limit.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List stored crawl runs or show one of them",
		Long: `History reads the results database written by 'sitecrawl crawl'.

Without arguments it lists the most recent runs. With a run ID it prints the
stored report of that run in the requested format.

Examples:
  # List the 20 most recent runs
  sitecrawl history

  # List every stored run
  sitecrawl history --limit 0

  # Show a stored run as JSON
  sitecrawl history --json 6f1c2b4e-8a53-4d6f-9d1e-3b7a0c5e2f10`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 lists every run)")
	cmd.Flags().String("db-dir", "",
		"Directory of the results database (default: XDG data directory)")
	cmd.Flags().BoolP("json", "j", false,
		"Show the run as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Show the run as Markdown (mutually exclusive with --json)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	cfg, err := reportFormatConfig(cmd)
	if err != nil {
		return err
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	db, err := openResultsDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if len(args) == 1 {
		return showRun(ctx, db, cfg, args[0], out)
	}
	return listRuns(ctx, db, limit, out)
}

// reportFormatConfig reads the --json and --markdown flags into a Config
// that newReportWriter understands.
func reportFormatConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return nil, config.ErrConflictingReportFormats
	}
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	return cfg, nil
}

// openResultsDB opens an existing results database from --db-dir or the
// XDG data directory. It never creates one.
func openResultsDB(cmd *cobra.Command) (*database.ResultsDB, error) {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbDir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database in %s (run 'sitecrawl crawl' first): %w", dbDir, err)
	}
	return db, nil
}

// listRuns prints one line per stored run, most recent first.
func listRuns(ctx context.Context, db *database.ResultsDB, limit int, out io.Writer) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No crawl runs found in the database.")
		fmt.Fprintln(out, "\nUse 'sitecrawl crawl <url>' to crawl a site.")
		return nil
	}

	fmt.Fprintf(out, "Crawl runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-36s  %-19s  %7s  %6s  %6s  %s\n", "ID", "Started", "Domains", "URLs", "Failed", "Duration")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 96))

	for _, run := range runs {
		duration := "-"
		if !run.FinishedAt.IsZero() {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		if run.Cancelled {
			duration += " (interrupted)"
		}
		fmt.Fprintf(out, "  %-36s  %-19s  %7d  %6d  %6d  %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Domains,
			run.URLs,
			run.FailedDomains,
			duration,
		)
	}

	fmt.Fprintln(out, "\nUse 'sitecrawl history <id>' to show a run.")
	return nil
}

// showRun prints the stored report of run id.
func showRun(ctx context.Context, db *database.ResultsDB, cfg *config.Config, id string, out io.Writer) error {
	stored, err := db.GetReport(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			return fmt.Errorf("no run with ID %q (use 'sitecrawl history' to list runs)", id)
		}
		return fmt.Errorf("failed to load run: %w", err)
	}

	if _, err := newReportWriter(cfg, out).Write(stored); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
