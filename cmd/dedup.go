package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/dedup"
)

var dedupLock string

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Merge duplicate founders",
	Long:  "Finds founders sharing a name and a LinkedIn or Twitter handle and merges each pair into the more complete record.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		release, err := acquireLock(dedupLock)
		if err != nil {
			return err
		}
		defer release()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		res, err := dedup.New(pool, dedup.Options{TxTimeout: cfg.Dedup.TxTimeout}).Run(ctx)
		if err != nil {
			return eris.Wrap(err, "jobdb dedup")
		}
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			zap.L().Warn("failed to print dedup result", zap.Error(err))
		}
		return nil
	},
}

func init() {
	dedupCmd.Flags().StringVar(&dedupLock, "lock", "", "lockfile path guarding against concurrent runs")
	rootCmd.AddCommand(dedupCmd)
}
