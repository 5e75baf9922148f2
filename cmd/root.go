// Package cmd defines the talkmigrate CLI.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/talkmigrate/internal/app"
	"github.com/JakeFAU/talkmigrate/internal/config"
	"github.com/JakeFAU/talkmigrate/internal/logging"
	"github.com/JakeFAU/talkmigrate/internal/migrate"
)

type ctxKey string

const (
	configKey ctxKey = "config"
	loggerKey ctxKey = "logger"
)

// App is the slice of *app.App the commands use. Tests swap in a fake via
// newApp.
type App interface {
	Migrate(ctx context.Context, sourceURL string, opts migrate.Options) migrate.Result
	MigrateSpeaker(ctx context.Context, indexURL string, opts migrate.Options) (migrate.Report, error)
	Close()
}

var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, dryRun bool) (App, error) {
	return app.New(ctx, cfg, logger, app.Options{DryRun: dryRun})
}

func newRootCmd(out io.Writer) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "talkmigrate",
		Short: "Migrate conference talks from a hosted presentation page into site records.",
		Long: `talkmigrate copies a talk from its presentation-hosting page into the
site's content directory. The slide deck is re-hosted on cloud storage, the
recording is linked at its original video platform, and the generated record
is validated before it is accepted.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
			if err != nil {
				return err
			}
			ctx := context.WithValue(cmd.Context(), configKey, cfg)
			ctx = context.WithValue(ctx, loggerKey, logger)
			cmd.SetContext(ctx)
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in settings plus TALKMIGRATE_* env)")
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

func fromContext(ctx context.Context) (config.Config, *zap.Logger, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return config.Config{}, nil, fmt.Errorf("configuration not loaded")
	}
	logger, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok || logger == nil {
		logger = zap.NewNop()
	}
	return cfg, logger, nil
}

// Execute runs the CLI and exits 1 on any failure.
func Execute() {
	root := newRootCmd(os.Stdout)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
