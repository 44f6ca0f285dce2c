package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/laborlens/archetype-cli/internal/reconcile"
	"github.com/laborlens/archetype-cli/internal/store"
)

var reconcileDryRun bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Subtract known employment from the synthetic tier",
	Long:  "Groups all archetype tiers by industry, scales each synthetic row by the fraction of its industry's employment not already attributed to named employers, discounts its confidence, and replaces the synthetic tier in place.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := st.ListArchetypes(ctx, store.ArchetypeFilter{})
		if err != nil {
			return eris.Wrap(err, "list archetypes")
		}
		if len(records) == 0 {
			zap.L().Info("no archetype records to reconcile")
			return nil
		}

		result := reconcile.NewReconciler(cfg.Engine).Reconcile(records)

		zap.L().Info("reconciliation computed",
			zap.Int("industries_seen", result.IndustriesSeen),
			zap.Int("industries_adjusted", result.IndustriesAdjusted),
			zap.Int("rows_dropped", result.RowsDropped),
			zap.Int("headcount_removed", result.HeadcountRemoved),
			zap.Int("synthetic_rows", len(result.Synthetic)),
			zap.Bool("dry_run", reconcileDryRun),
		)

		if reconcileDryRun {
			return nil
		}
		if err := st.ReplaceSyntheticTier(ctx, result.Synthetic); err != nil {
			return eris.Wrap(err, "replace synthetic tier")
		}
		return nil
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "compute the adjustment without writing")
	rootCmd.AddCommand(reconcileCmd)
}
