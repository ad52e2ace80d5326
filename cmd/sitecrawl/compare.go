package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/websearchtool/sitecrawl/internal/crawler"
	"github.com/websearchtool/sitecrawl/internal/database"
	"github.com/websearchtool/sitecrawl/internal/report"
)

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <domain>",
		Short: "Compare the URLs found for a site across crawl runs",
		Long: `Compare shows how the URLs discovered on a site changed between two
stored crawl runs:
- URLs that appeared since the older run
- URLs that are gone
- URLs found at a different depth

By default the two most recent runs that crawled the site are compared.

Examples:
  # Compare the latest two runs for a site
  sitecrawl compare example.com

  # A seed URL works too
  sitecrawl compare https://example.com/

  # List the runs that crawled a site
  sitecrawl compare --list example.com

  # Compare the latest run with a specific older run
  sitecrawl compare --with-run 6f1c2b4e-8a53-4d6f-9d1e-3b7a0c5e2f10 example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List the runs that crawled the domain")
	cmd.Flags().StringP("with-run", "r", "",
		"Compare the latest run with this run ID instead of the previous one")
	cmd.Flags().String("db-dir", "",
		"Directory of the results database (default: XDG data directory)")
	cmd.Flags().BoolP("json", "j", false,
		"Output the comparison as JSON")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output the comparison as Markdown")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	domain := domainArg(args[0])
	if domain == "" {
		return fmt.Errorf("invalid domain: %q", args[0])
	}

	cfg, err := reportFormatConfig(cmd)
	if err != nil {
		return err
	}

	listHistory, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	withRun, err := cmd.Flags().GetString("with-run")
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
	if listHistory {
		return listDomainHistory(ctx, db, domain, out)
	}

	diff, err := compareRuns(ctx, db, domain, withRun)
	if err != nil {
		return err
	}
	if _, err := newReportWriter(cfg, out).WriteDiff(diff); err != nil {
		return fmt.Errorf("failed to write comparison: %w", err)
	}
	return nil
}

// domainArg accepts a bare host[:port] or a URL and returns the domain key
// results are stored under.
func domainArg(arg string) string {
	arg = strings.TrimSpace(arg)
	if strings.Contains(arg, "://") {
		return crawler.DomainOf(arg)
	}
	return strings.ToLower(strings.TrimSuffix(arg, "/"))
}

// compareRuns diffs the latest run of domain against withRun, or against
// the run before it when withRun is empty.
func compareRuns(ctx context.Context, db *database.ResultsDB, domain, withRun string) (*report.Diff, error) {
	history, err := db.DomainHistory(ctx, domain, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for %s: %w", domain, err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no crawl results found for %s (use 'sitecrawl crawl' first)", domain)
	}

	newer := history[0]
	var older *database.DomainRun
	if withRun == "" {
		if len(history) < 2 {
			return nil, fmt.Errorf("only one crawl of %s is stored; at least two are needed to compare", domain)
		}
		older = &history[1]
	} else {
		for i := range history {
			if history[i].RunID == withRun {
				older = &history[i]
				break
			}
		}
		if older == nil {
			return nil, fmt.Errorf("run %q did not crawl %s (use --list to see runs)", withRun, domain)
		}
	}

	olderURLs, err := db.DiscoveredURLs(ctx, older.RunID, domain)
	if err != nil {
		return nil, err
	}
	newerURLs, err := db.DiscoveredURLs(ctx, newer.RunID, domain)
	if err != nil {
		return nil, err
	}

	return report.NewDiff(domain, older.RunID, newer.RunID, olderURLs, newerURLs), nil
}

// listDomainHistory prints the runs that crawled domain, most recent first.
func listDomainHistory(ctx context.Context, db *database.ResultsDB, domain string, out io.Writer) error {
	history, err := db.DomainHistory(ctx, domain, 0)
	if err != nil {
		return fmt.Errorf("failed to get history for %s: %w", domain, err)
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No crawl history found for %s\n", domain)
		return nil
	}

	fmt.Fprintf(out, "Crawl history for %s (%d runs):\n\n", domain, len(history))
	fmt.Fprintf(out, "  %-36s  %-19s  %6s  %6s  %s\n", "Run ID", "Started", "Pages", "URLs", "Status")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 84))

	for _, run := range history {
		status := "ok"
		if run.Error != "" {
			status = "error: " + run.Error
		} else if run.FetchFailures > 0 {
			status = fmt.Sprintf("%d failed fetches", run.FetchFailures)
		}
		fmt.Fprintf(out, "  %-36s  %-19s  %6d  %6d  %s\n",
			run.RunID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.PagesAdmitted,
			run.URLs,
			status,
		)
	}
	return nil
}
