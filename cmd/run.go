package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/pipeline"
	"github.com/sells-group/jobdb/internal/schema"
	"github.com/sells-group/jobdb/internal/source"
	"github.com/sells-group/jobdb/internal/transform"
)

var (
	runCompanies  string
	runJobs       string
	runMode       string
	runDedup      bool
	runLock       string
	runSummaryOut string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Import company and job files into jobdb",
	Long:  "Stages the company and job files, transforms them into the jobdb schema in insert or upsert mode, and optionally merges duplicate founders.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode, err := transform.ParseMode(runMode)
		if err != nil {
			return err
		}

		release, err := acquireLock(runLock)
		if err != nil {
			return err
		}
		defer release()

		cols, err := source.ReadAll(ctx, runCompanies, runJobs)
		if err != nil {
			return eris.Wrap(err, "jobdb run: read sources")
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if _, err := schema.Migrate(ctx, pool, cfg.Store.MigrateTimeout); err != nil {
			return eris.Wrap(err, "jobdb run: migrate")
		}

		coord, err := pipeline.NewFromConfig(pool, cfg)
		if err != nil {
			return err
		}

		sum, runErr := coord.Run(ctx, pipeline.Input{
			Companies: cols.Companies.Items,
			Jobs:      cols.Jobs.Items,
			Mode:      mode,
			Dedup:     runDedup,
		})
		return finish(cmd, sum, cols, runSummaryOut, runErr)
	},
}

// finish folds decode failures into the summary, prints it, and writes it
// to summaryOut when set. runErr is returned unchanged so the process exits
// non-zero on a fatal run error.
func finish(cmd *cobra.Command, sum *pipeline.Summary, cols source.Collections, summaryOut string, runErr error) error {
	if sum == nil {
		return runErr
	}
	sum.CompaniesInvalid += cols.Companies.Malformed
	sum.JobsInvalid += cols.Jobs.Malformed

	if err := printJSON(cmd.OutOrStdout(), sum); err != nil {
		zap.L().Warn("failed to print summary", zap.Error(err))
	}
	if summaryOut != "" {
		if err := sum.WriteFile(summaryOut); err != nil {
			if runErr != nil {
				zap.L().Warn("failed to write summary", zap.Error(err))
				return runErr
			}
			return err
		}
	}
	return runErr
}

// requireSources rejects a run with neither input file.
func requireSources(companies, jobs string) error {
	if companies == "" && jobs == "" {
		return eris.New("jobdb: at least one of --companies or --jobs is required")
	}
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runCompanies, "companies", "", "path to the company JSON array (or .jsonl)")
	runCmd.Flags().StringVar(&runJobs, "jobs", "", "path to the job JSON array (or .jsonl)")
	runCmd.Flags().StringVar(&runMode, "mode", string(transform.ModeInsert), "transform mode: insert or upsert")
	runCmd.Flags().BoolVar(&runDedup, "dedup", false, "merge duplicate founders after the transform")
	runCmd.Flags().StringVar(&runLock, "lock", "", "lockfile path guarding against concurrent runs")
	runCmd.Flags().StringVar(&runSummaryOut, "summary-out", "", "write the run summary to this file (.json, .yaml or .yml)")
	runCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		return requireSources(runCompanies, runJobs)
	}
	rootCmd.AddCommand(runCmd)
}
