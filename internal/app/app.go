// Package app wires the long-lived migration services from configuration. It
// is the composition root shared by every CLI command.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	gcsapi "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/talkmigrate/internal/acquire"
	"github.com/JakeFAU/talkmigrate/internal/clock/system"
	"github.com/JakeFAU/talkmigrate/internal/config"
	"github.com/JakeFAU/talkmigrate/internal/extract"
	"github.com/JakeFAU/talkmigrate/internal/fetcher"
	collyfetcher "github.com/JakeFAU/talkmigrate/internal/fetcher/colly"
	"github.com/JakeFAU/talkmigrate/internal/id/uuid"
	"github.com/JakeFAU/talkmigrate/internal/metrics"
	"github.com/JakeFAU/talkmigrate/internal/migrate"
	"github.com/JakeFAU/talkmigrate/internal/notify"
	"github.com/JakeFAU/talkmigrate/internal/notify/pubsub"
	"github.com/JakeFAU/talkmigrate/internal/policy/platform"
	"github.com/JakeFAU/talkmigrate/internal/policy/ratelimit"
	"github.com/JakeFAU/talkmigrate/internal/record"
	"github.com/JakeFAU/talkmigrate/internal/storage"
	"github.com/JakeFAU/talkmigrate/internal/storage/drive"
	"github.com/JakeFAU/talkmigrate/internal/storage/gcs"
	"github.com/JakeFAU/talkmigrate/internal/storage/memory"
	"github.com/JakeFAU/talkmigrate/internal/validate"
	"github.com/JakeFAU/talkmigrate/internal/video"
)

// Options alter wiring for a single invocation.
type Options struct {
	// DryRun keeps uploads in memory and writes records under the staging
	// directory instead of the site.
	DryRun bool
	// ClientOptions are passed to every Google API client.
	ClientOptions []option.ClientOption
}

// App holds the services one CLI invocation needs.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	platform  platform.Platform
	uploader  storage.Uploader
	publisher notify.Publisher
	store     *record.Store
	existing  *record.Index
	orch      *migrate.Orchestrator
	batch     *migrate.Batch
	gcsClient *gcsapi.Client
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Orchestrator returns the single-talk pipeline.
func (a *App) Orchestrator() *migrate.Orchestrator { return a.orch }

// Batch returns the speaker-level runner.
func (a *App) Batch() *migrate.Batch { return a.batch }

// Store returns the records directory.
func (a *App) Store() *record.Store { return a.store }

// Existing returns the view of the site's records used for the already
// migrated check. In a dry run it differs from Store.
func (a *App) Existing() *record.Index { return a.existing }

// Uploader returns the configured slide host.
func (a *App) Uploader() storage.Uploader { return a.uploader }

// New builds every service from cfg. It fails fast when a backing service
// cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	logger.Info("Initializing migration services...", zap.Bool("dry_run", opts.DryRun))

	p, err := cfg.Policy.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile platform policy: %w", err)
	}
	a := &App{cfg: cfg, logger: logger, platform: p}

	if err := a.initUploader(ctx, opts); err != nil {
		return nil, err
	}

	recordsDir := cfg.Content.RecordsDir
	thumbsDir := cfg.Content.ThumbnailsDir
	if opts.DryRun {
		recordsDir = filepath.Join(cfg.Content.StagingDir, "dry-run", "records")
		thumbsDir = filepath.Join(cfg.Content.StagingDir, "dry-run", "thumbnails")
	}
	store, err := record.NewStore(recordsDir, logger.Named("records"))
	if err != nil {
		return nil, fmt.Errorf("open records directory: %w", err)
	}
	a.store = store
	a.existing = record.NewIndex(cfg.Content.RecordsDir, logger.Named("records"))

	if err := a.initPublisher(ctx, opts); err != nil {
		return nil, err
	}

	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.HTTP.RatePerHost, DefaultBurst: cfg.HTTP.Burst})
	web := fetcher.New(fetcher.Config{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      cfg.Timeout(),
		MaxRedirects: cfg.HTTP.MaxRedirects,
		MaxBodyBytes: int64(cfg.HTTP.MaxBodyMB) << 20,
	}, limiter, logger)
	parser := extract.NewNotist(p)

	clock := system.New()
	a.orch = migrate.New(migrate.Deps{
		Fetcher:  web,
		Parser:   parser,
		Resolver: video.NewResolver(web, parser, p, logger),
		Acquirer: acquire.New(acquire.Config{
			StagingDir:    cfg.Content.StagingDir,
			ThumbnailDir:  thumbsDir,
			ThumbnailPath: cfg.Content.ThumbnailURLPath,
		}, parser, web, a.uploader, p, logger.Named("acquire")),
		Store:      store,
		Existing:   a.existing,
		Provenance: validate.NewProvenance(p),
		Hooks:      hooks(cfg.Downstream, cfg.DownstreamTimeout()),
		Publisher:  a.publisher,
		Clock:      clock,
		IDs:        uuid.NewGenerator(),
		Logger:     logger,
	})

	harvester := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.Timeout(),
	}, logger.Named("harvester"))
	a.batch = migrate.NewBatch(harvester, a.existing, a.orch, clock, p, cfg.Pause(), logger)

	logger.Info("Migration services initialized")
	return a, nil
}

func (a *App) initUploader(ctx context.Context, opts Options) error {
	provider := a.cfg.Storage.Provider
	if opts.DryRun {
		provider = config.ProviderMemory
	}
	clientOpts := opts.ClientOptions
	if a.cfg.Storage.CredentialsFile != "" && provider != config.ProviderMemory && len(clientOpts) == 0 {
		clientOpts = append(clientOpts, option.WithCredentialsFile(a.cfg.Storage.CredentialsFile))
	}

	switch provider {
	case config.ProviderDrive:
		a.logger.Info("Using Google Drive for slides")
		p, err := drive.New(ctx, a.logger.Named("drive"), clientOpts...)
		if err != nil {
			return fmt.Errorf("initialize drive: %w", err)
		}
		a.uploader = p
	case config.ProviderGCS:
		a.logger.Info("Using GCS for slides", zap.String("bucket", a.cfg.Storage.GCSBucket))
		client, err := gcsapi.NewClient(ctx, clientOpts...)
		if err != nil {
			return fmt.Errorf("initialize gcs client: %w", err)
		}
		p, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.GCSPrefix}, a.logger.Named("gcs"))
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("initialize gcs: %w", err)
		}
		a.gcsClient = client
		a.uploader = p
	case config.ProviderMemory:
		a.logger.Info("Using in-memory slide storage; nothing leaves this machine")
		a.uploader = memory.New("", storage.Folder{ID: "dry-run", Name: "Dry run"})
	default:
		return fmt.Errorf("unknown storage provider: %s", provider)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context, opts Options) error {
	if a.cfg.Notify.TopicName == "" || opts.DryRun {
		a.publisher = notify.Nop{}
		return nil
	}
	a.logger.Info("Connecting to Pub/Sub", zap.String("topic", a.cfg.Notify.TopicName))
	pub, err := pubsub.New(ctx, a.cfg.Notify.ProjectID, a.cfg.Notify.TopicName, a.logger.Named("notify"), opts.ClientOptions...)
	if err != nil {
		return fmt.Errorf("initialize notifications: %w", err)
	}
	a.publisher = pub
	return nil
}

func hooks(cfg config.DownstreamConfig, timeout time.Duration) []migrate.Hook {
	if !cfg.Enabled {
		return nil
	}
	var out []migrate.Hook
	if len(cfg.BuildCommand) > 0 {
		out = append(out, migrate.CommandHook{
			Label: "site build", Kind: migrate.HookBuild, Command: cfg.BuildCommand, Dir: cfg.Dir, Timeout: timeout,
		})
	}
	if len(cfg.TestCommand) > 0 {
		out = append(out, migrate.CommandHook{
			Label: "site tests", Kind: migrate.HookTest, Command: cfg.TestCommand, Dir: cfg.Dir, Timeout: timeout,
		})
	}
	return out
}

// Close releases clients and flushes run metrics. It is safe to call once.
func (a *App) Close() {
	a.logger.Info("Shutting down migration services...")
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("Error closing publisher", zap.Error(err))
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("Error closing storage client", zap.Error(err))
		}
	}
	if path := a.cfg.Metrics.TextfilePath; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			a.logger.Warn("Error writing metrics textfile", zap.Error(err))
		}
	}
	// Sync fails on terminals; nothing useful to do about it.
	_ = a.logger.Sync()
}

// Migrate runs the pipeline for one talk.
func (a *App) Migrate(ctx context.Context, sourceURL string, opts migrate.Options) migrate.Result {
	return a.orch.Migrate(ctx, sourceURL, opts)
}

// MigrateSpeaker discovers and migrates every talk linked from indexURL.
func (a *App) MigrateSpeaker(ctx context.Context, indexURL string, opts migrate.Options) (migrate.Report, error) {
	return a.batch.Run(ctx, indexURL, opts)
}
