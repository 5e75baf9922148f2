package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/talkmigrate/internal/migrate"
)

var errFailed = errors.New("migration failed")

func newMigrateCmd() *cobra.Command {
	var (
		speaker   bool
		skipTests bool
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "migrate <url>",
		Short: "Migrate one talk, or every talk of a speaker with --speaker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := fromContext(cmd.Context())
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger, dryRun)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			defer a.Close()

			opts := migrate.Options{SkipTests: skipTests, DryRun: dryRun}
			out := cmd.OutOrStdout()
			if speaker {
				report, err := a.MigrateSpeaker(cmd.Context(), args[0], opts)
				fmt.Fprint(out, report.Summary())
				if err != nil {
					return err
				}
				if report.Err != nil {
					return errFailed
				}
				return nil
			}

			res := a.Migrate(cmd.Context(), args[0], opts)
			fmt.Fprint(out, res.Summary())
			if !res.OK() {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&speaker, "speaker", false, "treat the URL as a speaker index and migrate every talk on it")
	cmd.Flags().BoolVar(&skipTests, "skip-tests", false, "skip the downstream site tests after a migration")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "keep uploads in memory and write records under the staging directory")
	return cmd
}
