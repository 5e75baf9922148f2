// Package migrate sequences the pipeline that turns one presentation page
// into an accepted talk record, and drives it across a speaker's talks.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/talkmigrate/internal/acquire"
	"github.com/JakeFAU/talkmigrate/internal/extract"
	"github.com/JakeFAU/talkmigrate/internal/logging"
	"github.com/JakeFAU/talkmigrate/internal/metrics"
	"github.com/JakeFAU/talkmigrate/internal/notify"
	"github.com/JakeFAU/talkmigrate/internal/record"
	"github.com/JakeFAU/talkmigrate/internal/slug"
	"github.com/JakeFAU/talkmigrate/internal/talk"
	"github.com/JakeFAU/talkmigrate/internal/validate"
)

// State names a pipeline step.
type State int

// Pipeline steps in execution order.
const (
	StateCheckExisting State = iota
	StateFetch
	StateExtractMetadata
	StateExtractResources
	StateAcquirePDF
	StateResolveVideo
	StateAssembleAndWrite
	StateValidateProvenance
	StateValidateRecord
	StateRebuild
	StateRunTests
	StateDone
)

var stateNames = [...]string{
	"check-existing",
	"fetch",
	"extract-metadata",
	"extract-resources",
	"acquire-pdf",
	"resolve-video",
	"assemble-and-write",
	"validate-provenance",
	"validate-record",
	"rebuild",
	"run-tests",
	"done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result outcomes used in metrics, events and the batch ledger.
const (
	OutcomeMigrated = "migrated"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// PageFetcher retrieves and parses a page.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*talk.Page, error)
}

// VideoResolver finds the talk recording.
type VideoResolver interface {
	Resolve(ctx context.Context, page *talk.Page) (*talk.Resource, talk.Status)
}

// PDFAcquirer re-hosts the deck.
type PDFAcquirer interface {
	Acquire(ctx context.Context, page *talk.Page, base string) (acquire.Outcome, error)
}

// RecordFinder looks up an existing record by source URL.
type RecordFinder interface {
	Find(sourceURL string) (record.Entry, bool, error)
}

// RecordStore is the records directory.
type RecordStore interface {
	RecordFinder
	Stage(ctx context.Context, filename, sourceURL string, content []byte) (*record.Staged, error)
}

// Clock supplies event timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator issues run IDs.
type IDGenerator interface {
	RunID() string
}

// Deps are the collaborators of an Orchestrator. Existing, Publisher, Clock
// and IDs are optional.
type Deps struct {
	Fetcher    PageFetcher
	Parser     extract.Parser
	Resolver   VideoResolver
	Acquirer   PDFAcquirer
	Store      RecordStore
	// Existing answers the already-migrated check when records are written
	// somewhere other than the site, as in a dry run. Defaults to Store.
	Existing   RecordFinder
	Provenance *validate.Provenance
	Hooks      []Hook
	Publisher  notify.Publisher
	Clock      Clock
	IDs        IDGenerator
	Logger     *zap.Logger
}

// Options tune a single run.
type Options struct {
	SkipTests bool
	// DryRun skips downstream hooks and notifications.
	DryRun bool
}

// Result is the outcome of one migration attempt.
type Result struct {
	RunID     string
	SourceURL string
	// State is the last step reached; on failure, the step that failed.
	State    State
	Skipped  bool
	Path     string
	Record   talk.Record
	Errors   []string
	Warnings []string
}

// OK reports success, including the already-migrated short circuit.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Outcome classifies the result for reporting.
func (r Result) Outcome() string {
	switch {
	case !r.OK():
		return OutcomeFailed
	case r.Skipped:
		return OutcomeSkipped
	default:
		return OutcomeMigrated
	}
}

// Summary renders the operator-facing report.
func (r Result) Summary() string {
	var b strings.Builder
	switch r.Outcome() {
	case OutcomeFailed:
		fmt.Fprintf(&b, "Migration of %s failed at %s:\n", r.SourceURL, r.State)
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	case OutcomeSkipped:
		fmt.Fprintf(&b, "Already migrated: %s -> %s\n", r.SourceURL, r.Path)
	default:
		slides := "none"
		if s, ok := r.Record.Slides(); ok {
			slides = s.URL
		}
		video := "pending"
		if v, ok := r.Record.Video(); ok {
			video = v.URL
		}
		fmt.Fprintf(&b, "Migrated %s -> %s\n", r.SourceURL, r.Path)
		fmt.Fprintf(&b, "  title:     %s\n", r.Record.Title)
		fmt.Fprintf(&b, "  status:    %s\n", r.Record.Status)
		fmt.Fprintf(&b, "  resources: %d (slides %d, video %d, code %d, links %d)\n",
			len(r.Record.Resources),
			r.Record.Count(talk.ResourceSlides), r.Record.Count(talk.ResourceVideo),
			r.Record.Count(talk.ResourceCode), r.Record.Count(talk.ResourceLink))
		fmt.Fprintf(&b, "  pdf:       %s\n", slides)
		fmt.Fprintf(&b, "  video:     %s\n", video)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	return b.String()
}

// Orchestrator runs the single-talk pipeline.
type Orchestrator struct {
	deps   Deps
	logger *zap.Logger
}

// New wires an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Existing == nil {
		deps.Existing = deps.Store
	}
	if deps.Publisher == nil {
		deps.Publisher = notify.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = wallClock{}
	}
	if deps.IDs == nil {
		deps.IDs = staticIDs{}
	}
	return &Orchestrator{deps: deps, logger: logging.Named(deps.Logger, "migrate")}
}

// run is the state carried between steps of one attempt.
type run struct {
	res    Result
	errs   talk.MigrationErrors
	logger *zap.Logger
}

func (r *run) fail(state State, err error) Result {
	r.errs.Add(err)
	r.res.State = state
	r.res.Errors = r.errs.List()
	r.logger.Error("Migration failed", zap.Stringer("state", state), zap.Error(err))
	return r.res
}

// Migrate runs every step for sourceURL. It never panics on bad input; every
// failure is reported through Result.Errors.
func (o *Orchestrator) Migrate(ctx context.Context, sourceURL string, opts Options) Result {
	sourceURL = strings.TrimSpace(sourceURL)
	r := &run{res: Result{RunID: o.deps.IDs.RunID(), SourceURL: sourceURL}}
	r.logger = o.logger.With(zap.String("run_id", r.res.RunID), zap.String("url", sourceURL))

	res := o.migrate(ctx, r, opts)
	metrics.ObserveMigration(res.Outcome())
	if !opts.DryRun {
		o.publish(ctx, r, res)
	}
	return res
}

func (o *Orchestrator) migrate(ctx context.Context, r *run, opts Options) Result {
	sourceURL := r.res.SourceURL

	if entry, ok, err := o.deps.Existing.Find(sourceURL); err != nil {
		return r.fail(StateCheckExisting, fmt.Errorf("scan existing records: %w", err))
	} else if ok {
		return o.skip(r, entry.Path)
	}

	r.res.State = StateFetch
	page, err := o.deps.Fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return r.fail(StateFetch, err)
	}

	r.res.State = StateExtractMetadata
	meta, err := o.deps.Parser.Metadata(page)
	if err != nil {
		return r.fail(StateExtractMetadata, err)
	}
	rec := talk.NewRecord(sourceURL)
	rec.Metadata = meta
	r.logger.Info("Metadata extracted",
		zap.String("title", meta.Title),
		zap.String("date", meta.DateString()),
		zap.String("conference", meta.Conference))

	r.res.State = StateExtractResources
	rec = rec.WithResources(o.deps.Parser.Resources(page))

	filename := slug.Filename(meta.DateString(), meta.Conference, meta.Title)
	base := strings.TrimSuffix(filename, slug.Extension)
	rec.Filename = base

	r.res.State = StateAcquirePDF
	outcome, err := o.deps.Acquirer.Acquire(ctx, page, base)
	if err != nil {
		return r.fail(StateAcquirePDF, err)
	}
	if outcome.Slides != nil {
		rec = rec.WithSlides(*outcome.Slides)
		rec.ThumbnailPath = outcome.ThumbnailPath
	}

	r.res.State = StateResolveVideo
	if video, status := o.deps.Resolver.Resolve(ctx, page); video != nil {
		rec = rec.WithVideo(*video)
	} else if _, ok := rec.Video(); ok {
		rec.Status = talk.StatusCompleted
	} else {
		rec.Status = status
	}
	r.res.Record = rec

	r.res.State = StateAssembleAndWrite
	content, err := record.Assemble(rec)
	if err != nil {
		return r.fail(StateAssembleAndWrite, err)
	}
	staged, err := o.deps.Store.Stage(ctx, filename, sourceURL, content)
	if errors.Is(err, record.ErrAlreadyMigrated) {
		// Another run committed this source after our initial check.
		return o.skip(r, "")
	}
	if err != nil {
		return r.fail(StateAssembleAndWrite, err)
	}
	defer staged.Discard()

	r.res.State = StateValidateProvenance
	if v := o.deps.Provenance.Validate(rec.Resources); !v.OK {
		return r.fail(StateValidateProvenance, talk.NewProvenanceError(v.Errors[0]))
	}

	r.res.State = StateValidateRecord
	written, err := staged.Content()
	if err != nil {
		return r.fail(StateValidateRecord, err)
	}
	if v := validate.Record(written, rec.Resources); !v.OK {
		return r.fail(StateValidateRecord, talk.NewValidationError(v.Errors))
	}
	path, err := staged.Commit()
	if err != nil {
		return r.fail(StateValidateRecord, err)
	}
	r.res.Path = path
	for _, res := range rec.Resources {
		metrics.ObserveResource(string(res.Type))
	}
	r.logger.Info("Record accepted",
		zap.String("path", path),
		zap.String("status", string(rec.Status)),
		zap.Int("resources", len(rec.Resources)))

	if !opts.DryRun {
		o.runHooks(ctx, r, opts)
	}
	r.res.State = StateDone
	return r.res
}

func (o *Orchestrator) skip(r *run, path string) Result {
	if path == "" {
		if entry, ok, err := o.deps.Store.Find(r.res.SourceURL); err == nil && ok {
			path = entry.Path
		}
	}
	r.res.Skipped = true
	r.res.Path = path
	r.res.State = StateDone
	r.logger.Info("Already migrated; skipping", zap.String("path", path))
	return r.res
}

// runHooks executes downstream steps. Failures become warnings.
func (o *Orchestrator) runHooks(ctx context.Context, r *run, opts Options) {
	for _, h := range o.deps.Hooks {
		state := StateRebuild
		if h.Stage() == HookTest {
			if opts.SkipTests {
				r.logger.Info("Skipping downstream tests", zap.String("hook", h.Name()))
				continue
			}
			state = StateRunTests
		}
		r.res.State = state
		if err := h.Run(ctx); err != nil {
			msg := fmt.Sprintf("%s: %v", h.Name(), err)
			r.res.Warnings = append(r.res.Warnings, msg)
			r.logger.Warn("Downstream step failed", zap.String("hook", h.Name()), zap.Error(err))
			continue
		}
		r.logger.Info("Downstream step passed", zap.String("hook", h.Name()))
	}
}

func (o *Orchestrator) publish(ctx context.Context, r *run, res Result) {
	event := notify.Event{
		RunID:     res.RunID,
		SourceURL: res.SourceURL,
		Title:     res.Record.Title,
		Status:    string(res.Record.Status),
		Result:    res.Outcome(),
		Errors:    res.Errors,
		At:        o.deps.Clock.Now(),
	}
	if res.Path != "" {
		event.File = res.Path
	}
	if _, err := o.deps.Publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("Could not publish migration event", zap.Error(err))
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

type staticIDs struct{}

func (staticIDs) RunID() string { return "" }
