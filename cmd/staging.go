package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobdb/internal/staging"
)

var stagingCmd = &cobra.Command{
	Use:   "staging",
	Short: "Inspect or drop the staging schema",
}

var stagingStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show staging table row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		stg, err := openStaging(pool)
		if err != nil {
			return err
		}

		counts, err := stg.Counts(ctx)
		if err != nil {
			return eris.Wrap(err, "jobdb staging status")
		}
		formatCounts(cmd.OutOrStdout(), stg.Schema(), counts)
		return nil
	},
}

var stagingDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the staging schema and all staged rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		stg, err := openStaging(pool)
		if err != nil {
			return err
		}
		return stg.Teardown(ctx)
	},
}

func init() {
	stagingCmd.AddCommand(stagingStatusCmd, stagingDropCmd)
	rootCmd.AddCommand(stagingCmd)
}

// formatCounts writes a table of staging row counts to out.
func formatCounts(out io.Writer, schemaName string, counts []staging.Count) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tROWS")
	_, _ = fmt.Fprintln(w, "-----\t----")

	var total int64
	for _, c := range counts {
		_, _ = fmt.Fprintf(w, "%s.%s\t%d\n", schemaName, c.Table, c.Rows)
		total += c.Rows
	}
	_, _ = fmt.Fprintf(w, "total\t%d\n", total)
	_ = w.Flush()
}
