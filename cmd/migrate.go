package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/schema"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply jobdb schema migrations",
	Long:  "Applies all pending SQL migrations to the jobdb schema in lexicographic order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		applied, err := schema.Migrate(ctx, pool, cfg.Store.MigrateTimeout)
		if err != nil {
			return eris.Wrap(err, "jobdb migrate")
		}

		zap.L().Info("all migrations applied successfully", zap.Strings("applied", applied))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
