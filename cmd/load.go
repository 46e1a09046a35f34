package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobdb/internal/pipeline"
	"github.com/sells-group/jobdb/internal/source"
)

var (
	loadCompanies  string
	loadJobs       string
	loadLock       string
	loadSummaryOut string
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Stage company and job files without transforming them",
	Long:  "Prepares the staging schema and loads the company and job files into it. Run 'jobdb transform' afterwards to normalize the staged rows.",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return requireSources(loadCompanies, loadJobs)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		release, err := acquireLock(loadLock)
		if err != nil {
			return err
		}
		defer release()

		cols, err := source.ReadAll(ctx, loadCompanies, loadJobs)
		if err != nil {
			return eris.Wrap(err, "jobdb load: read sources")
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		coord, err := pipeline.NewFromConfig(pool, cfg)
		if err != nil {
			return err
		}

		sum, stageErr := coord.Stage(ctx, pipeline.Input{
			Companies: cols.Companies.Items,
			Jobs:      cols.Jobs.Items,
		})
		return finish(cmd, sum, cols, loadSummaryOut, stageErr)
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadCompanies, "companies", "", "path to the company JSON array (or .jsonl)")
	loadCmd.Flags().StringVar(&loadJobs, "jobs", "", "path to the job JSON array (or .jsonl)")
	loadCmd.Flags().StringVar(&loadLock, "lock", "", "lockfile path guarding against concurrent runs")
	loadCmd.Flags().StringVar(&loadSummaryOut, "summary-out", "", "write the load summary to this file (.json, .yaml or .yml)")
	rootCmd.AddCommand(loadCmd)
}
