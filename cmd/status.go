package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/laborlens/archetype-cli/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-tier row counts and the last batch run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.CountByTier(ctx)
		if err != nil {
			return eris.Wrap(err, "count archetypes")
		}

		fmt.Println("Archetype rows by tier:")
		for _, tier := range []model.RecordType{
			model.RecordObserved,
			model.RecordKnownEmployerInferred,
			model.RecordCbpSynthetic,
		} {
			fmt.Printf("  %-26s %d\n", tier, counts[tier])
		}

		last, err := st.LastRun(ctx)
		if err != nil {
			return eris.Wrap(err, "fetch last run")
		}
		if last == nil {
			fmt.Println("No batch runs recorded.")
			return nil
		}

		fmt.Printf("\nLast run %s (%s)\n", last.ID, last.Status)
		fmt.Printf("  started:   %s\n", last.StartedAt.Format(time.RFC3339))
		if last.FinishedAt != nil {
			fmt.Printf("  finished:  %s\n", last.FinishedAt.Format(time.RFC3339))
		}
		fmt.Printf("  year:      %d\n", last.Params.Year)
		fmt.Printf("  processed: %d  skipped: %d  failed: %d  rows: %d\n",
			last.Summary.CellsProcessed, last.Summary.CellsSkipped,
			last.Summary.CellsFailed, last.Summary.RowsWritten)
		if last.Error != "" {
			fmt.Printf("  error:     %s\n", last.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
