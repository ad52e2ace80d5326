package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/websearchtool/sitecrawl/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "sitecrawl.db"

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("crawl run not found")

// ResultsDB stores crawl reports in SQLite so runs can be listed and compared
// later. Each report is kept whole as JSON and also split into per-domain
// and per-URL rows for querying.
type ResultsDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures Open.
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing.
	CreateIfNotExists bool

	// EnableWAL switches the journal to write-ahead logging.
	EnableWAL bool
}

// DefaultOptions creates the database on demand and enables WAL.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens the results database in dbDir.
func Open(dbDir string, opts Options) (*ResultsDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	mode := "rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		mode = "rwc"
	} else if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		}
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?mode="+mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &ResultsDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return rdb, nil
}

// Path returns the database file path.
func (r *ResultsDB) Path() string {
	return r.dbPath
}

// Close closes the database.
func (r *ResultsDB) Close() error {
	return r.db.Close()
}

func (r *ResultsDB) createTables(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		seed_count INTEGER NOT NULL,
		domain_count INTEGER NOT NULL,
		url_count INTEGER NOT NULL,
		failed_domains INTEGER NOT NULL,
		cancelled INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS domain_results (
		run_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		seed TEXT NOT NULL,
		pages_admitted INTEGER NOT NULL,
		fetch_failures INTEGER NOT NULL,
		url_count INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		PRIMARY KEY (run_id, domain)
	);

	CREATE INDEX IF NOT EXISTS idx_domain_results_domain ON domain_results(domain);

	CREATE TABLE IF NOT EXISTS discovered_urls (
		run_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		depth INTEGER NOT NULL,
		url TEXT NOT NULL,
		PRIMARY KEY (run_id, domain, url)
	);
	`
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// SaveReport stores report, replacing any earlier save of the same run.
func (r *ResultsDB) SaveReport(ctx context.Context, report *model.CrawlReport) (err error) {
	if report == nil || report.ID == "" {
		return errors.New("report has no run ID")
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"discovered_urls", "domain_results"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", report.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT OR REPLACE INTO runs
		(id, started_at, finished_at, seed_count, domain_count, url_count, failed_domains, cancelled, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		len(report.Seeds),
		len(report.Domains),
		report.TotalURLs(),
		report.FailedDomains(),
		report.Cancelled,
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, res := range report.SortedDomains() {
		if res == nil {
			continue
		}
		if err = insertDomain(ctx, tx, report.ID, res); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

func insertDomain(ctx context.Context, tx *sql.Tx, runID string, res *model.DomainResult) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO domain_results
		(run_id, domain, seed, pages_admitted, fetch_failures, url_count, error, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, res.Domain, res.Seed, res.PagesAdmitted, res.FetchFailures,
		res.Discovered.Total(), res.Error,
		formatTimestamp(res.StartedAt), formatTimestamp(res.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert domain %s: %w", res.Domain, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO discovered_urls (run_id, domain, depth, url) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare url insert: %w", err)
	}
	defer stmt.Close()

	for _, depth := range res.Discovered.Depths() {
		for _, u := range res.Discovered[depth].Sorted() {
			if _, err := stmt.ExecContext(ctx, runID, res.Domain, depth, u); err != nil {
				return fmt.Errorf("failed to insert url %s: %w", u, err)
			}
		}
	}
	return nil
}

// GetReport loads the report saved under id.
func (r *ResultsDB) GetReport(ctx context.Context, id string) (*model.CrawlReport, error) {
	var reportJSON string
	err := r.db.QueryRowContext(ctx, "SELECT report_json FROM runs WHERE id = ?", id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse stored report %s: %w", id, err)
	}
	return &report, nil
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	Seeds         int
	Domains       int
	URLs          int
	FailedDomains int
	Cancelled     bool
}

// ListRuns returns the most recent runs first. A non-positive limit returns
// every run.
func (r *ResultsDB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, started_at, finished_at, seed_count, domain_count, url_count, failed_domains, cancelled
	FROM runs
	ORDER BY started_at DESC, id
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			s                 RunSummary
			started, finished string
		)
		if err := rows.Scan(&s.ID, &started, &finished, &s.Seeds, &s.Domains, &s.URLs, &s.FailedDomains, &s.Cancelled); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.StartedAt = parseTimestamp(started)
		s.FinishedAt = parseTimestamp(finished)
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// DomainRun is one domain's outcome within a stored run.
type DomainRun struct {
	RunID         string
	Domain        string
	Seed          string
	StartedAt     time.Time
	PagesAdmitted int
	FetchFailures int
	URLs          int
	Error         string
}

// DomainHistory returns the runs that crawled domain, most recent first.
func (r *ResultsDB) DomainHistory(ctx context.Context, domain string, limit int) ([]DomainRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT d.run_id, d.domain, d.seed, d.started_at, d.pages_admitted, d.fetch_failures, d.url_count, d.error
	FROM domain_results d
	JOIN runs r ON r.id = d.run_id
	WHERE d.domain = ?
	ORDER BY r.started_at DESC, d.run_id
	LIMIT ?`, domain, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get domain history: %w", err)
	}
	defer rows.Close()

	var out []DomainRun
	for rows.Next() {
		var (
			d       DomainRun
			started string
		)
		if err := rows.Scan(&d.RunID, &d.Domain, &d.Seed, &started, &d.PagesAdmitted, &d.FetchFailures, &d.URLs, &d.Error); err != nil {
			return nil, fmt.Errorf("failed to scan domain run: %w", err)
		}
		d.StartedAt = parseTimestamp(started)
		out = append(out, d)
	}
	return out, rows.Err()
}

// DiscoveredURLs returns the depth map stored for domain in run runID.
// A domain that was not part of the run yields an empty map.
func (r *ResultsDB) DiscoveredURLs(ctx context.Context, runID, domain string) (model.DepthMap, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT depth, url FROM discovered_urls WHERE run_id = ? AND domain = ?", runID, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to get discovered urls: %w", err)
	}
	defer rows.Close()

	out := make(model.DepthMap)
	for rows.Next() {
		var (
			depth int
			u     string
		)
		if err := rows.Scan(&depth, &u); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		out.Add(depth, u)
	}
	return out, rows.Err()
}

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

var timestampFormats = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// parseTimestamp returns the zero time for values in no known format.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
