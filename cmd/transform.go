package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/pipeline"
	"github.com/sells-group/jobdb/internal/schema"
	"github.com/sells-group/jobdb/internal/transform"
)

var (
	transformMode string
	transformLock string
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Transform staged rows into the jobdb schema",
	Long:  "Runs the companies, references, jobs, job relations and counters phases over rows staged by a previous 'jobdb load'.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode, err := transform.ParseMode(transformMode)
		if err != nil {
			return err
		}

		release, err := acquireLock(transformLock)
		if err != nil {
			return err
		}
		defer release()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if _, err := schema.Migrate(ctx, pool, cfg.Store.MigrateTimeout); err != nil {
			return eris.Wrap(err, "jobdb transform: migrate")
		}

		stg, err := openStaging(pool)
		if err != nil {
			return err
		}

		res, runErr := transform.New(stg, pipeline.TransformOptions(cfg)).Run(ctx, mode)
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			zap.L().Warn("failed to print transform result", zap.Error(err))
		}
		if runErr != nil {
			return eris.Wrap(runErr, "jobdb transform")
		}
		return nil
	},
}

func init() {
	transformCmd.Flags().StringVar(&transformMode, "mode", string(transform.ModeInsert), "transform mode: insert or upsert")
	transformCmd.Flags().StringVar(&transformLock, "lock", "", "lockfile path guarding against concurrent runs")
	rootCmd.AddCommand(transformCmd)
}
