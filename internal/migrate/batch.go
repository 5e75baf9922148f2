package migrate

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/JakeFAU/talkmigrate/internal/logging"
	"github.com/JakeFAU/talkmigrate/internal/policy/platform"
	"github.com/JakeFAU/talkmigrate/internal/record"
	"github.com/JakeFAU/talkmigrate/internal/urlnorm"
)

// LinkSource lists the anchors of a page.
type LinkSource interface {
	Links(ctx context.Context, pageURL string) ([]string, error)
}

// Scanner lists already migrated records.
type Scanner interface {
	Scan() ([]record.Entry, error)
}

// Sleeper paces batch runs.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Migrator is satisfied by *Orchestrator.
type Migrator interface {
	Migrate(ctx context.Context, sourceURL string, opts Options) Result
}

// LedgerEntry is one line of a batch report.
type LedgerEntry struct {
	URL     string
	Outcome string
	Path    string
	Detail  string
}

// Report summarizes a batch run.
type Report struct {
	IndexURL   string
	Discovered int
	// AlreadyMigrated counts talks filtered out before the run.
	AlreadyMigrated int
	Ledger          []LedgerEntry
	// Err aggregates every failed migration, or is nil.
	Err error
}

// Count returns the number of ledger entries with outcome.
func (r Report) Count(outcome string) int {
	n := 0
	for _, e := range r.Ledger {
		if e.Outcome == outcome {
			n++
		}
	}
	return n
}

// Summary renders the ledger for the operator.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s: %d discovered, %d already migrated, %d migrated, %d skipped, %d failed\n",
		r.IndexURL, r.Discovered, r.AlreadyMigrated,
		r.Count(OutcomeMigrated), r.Count(OutcomeSkipped), r.Count(OutcomeFailed))
	for _, e := range r.Ledger {
		line := fmt.Sprintf("  [%s] %s", e.Outcome, e.URL)
		if e.Path != "" {
			line += " -> " + e.Path
		}
		if e.Detail != "" {
			line += ": " + e.Detail
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// Batch discovers a speaker's talks and migrates them one at a time.
type Batch struct {
	links    LinkSource
	scanner  Scanner
	migrator Migrator
	sleeper  Sleeper
	platform platform.Platform
	pause    time.Duration
	logger   *zap.Logger
}

// NewBatch wires a Batch.
func NewBatch(links LinkSource, scanner Scanner, migrator Migrator, sleeper Sleeper,
	p platform.Platform, pause time.Duration, logger *zap.Logger,
) *Batch {
	return &Batch{
		links:    links,
		scanner:  scanner,
		migrator: migrator,
		sleeper:  sleeper,
		platform: p,
		pause:    pause,
		logger:   logging.Named(logger, "batch"),
	}
}

// Discover returns the distinct talk URLs linked from indexURL, in page order,
// without query or fragment. The index page itself is excluded.
func (b *Batch) Discover(ctx context.Context, indexURL string) ([]string, error) {
	hrefs, err := b.links.Links(ctx, indexURL)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, href := range hrefs {
		if !b.platform.IsTalkURL(href) {
			continue
		}
		clean := stripQuery(href)
		if urlnorm.Equal(clean, indexURL) {
			continue
		}
		key := urlnorm.Normalize(clean)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, clean)
	}
	b.logger.Info("Discovered talks", zap.String("index", indexURL), zap.Int("count", len(out)))
	return out, nil
}

// Pending filters out URLs that already have a record.
func (b *Batch) Pending(urls []string) ([]string, error) {
	entries, err := b.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("scan existing records: %w", err)
	}
	var out []string
	for _, u := range urls {
		if _, done := record.AlreadyMigrated(u, entries); done {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// Run discovers and migrates every pending talk under indexURL. A failed
// talk never stops the run; cancellation does.
func (b *Batch) Run(ctx context.Context, indexURL string, opts Options) (Report, error) {
	report := Report{IndexURL: indexURL}
	found, err := b.Discover(ctx, indexURL)
	if err != nil {
		return report, fmt.Errorf("discover talks: %w", err)
	}
	report.Discovered = len(found)
	pending, err := b.Pending(found)
	if err != nil {
		return report, err
	}
	report.AlreadyMigrated = len(found) - len(pending)

	var result *multierror.Error
	for i, u := range pending {
		if i > 0 {
			if err := b.sleeper.Sleep(ctx, b.pause); err != nil {
				report.Err = result.ErrorOrNil()
				return report, err
			}
		}
		b.logger.Info("Migrating talk", zap.Int("n", i+1), zap.Int("of", len(pending)), zap.String("url", u))
		res := b.migrator.Migrate(ctx, u, opts)
		entry := LedgerEntry{URL: u, Outcome: res.Outcome(), Path: res.Path}
		if !res.OK() {
			entry.Detail = strings.Join(res.Errors, "; ")
			result = multierror.Append(result, fmt.Errorf("%s: %s", u, entry.Detail))
		}
		report.Ledger = append(report.Ledger, entry)
	}
	report.Err = result.ErrorOrNil()
	return report, nil
}

func stripQuery(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
