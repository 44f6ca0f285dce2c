package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/laborlens/archetype-cli/internal/config"
	"github.com/laborlens/archetype-cli/internal/engine"
	"github.com/laborlens/archetype-cli/internal/evidence"
	"github.com/laborlens/archetype-cli/internal/prior"
)

var (
	inferYear        int
	inferLimitMetros int
	inferLimitRoles  int
	inferDryRun      bool
	inferSamples     int
	inferSeed        uint64
	inferConcurrency int
	inferWeightsFile string
)

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Run batch inference over every metro-role cell",
	Long:  "For each cell with a macro prior, aggregates company evidence, allocates the employment total via Dirichlet Monte Carlo, estimates salary posteriors, and upserts the resulting archetype rows.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if inferWeightsFile != "" {
			if err := config.LoadWeightsFile(cfg, inferWeightsFile); err != nil {
				return eris.Wrap(err, "load weights file")
			}
		}
		if inferSamples > 0 {
			cfg.Engine.MonteCarloSamples = inferSamples
		}
		if cmd.Flags().Changed("seed") {
			cfg.Engine.RandomSeed = inferSeed
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		concurrency := inferConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentCells
		}

		eng := engine.New(
			prior.NewPostgresProvider(pool),
			evidence.NewAggregator(pool, cfg.Weights, cfg.Engine.MinEvidenceThreshold),
			st,
			cfg.Engine,
		)

		start := time.Now()
		summary, err := eng.Run(ctx, engine.Options{
			Year:        inferYear,
			Concurrency: concurrency,
			LimitMetros: inferLimitMetros,
			LimitRoles:  inferLimitRoles,
			DryRun:      inferDryRun,
		})
		if err != nil {
			return eris.Wrap(err, "run inference")
		}

		zap.L().Info("inference finished",
			zap.Int("year", inferYear),
			zap.Int("processed", summary.CellsProcessed),
			zap.Int("skipped", summary.CellsSkipped),
			zap.Int("failed", summary.CellsFailed),
			zap.Int64("rows_written", summary.RowsWritten),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	},
}

func init() {
	inferCmd.Flags().IntVar(&inferYear, "year", time.Now().Year()-1, "OEWS reference year")
	inferCmd.Flags().IntVar(&inferLimitMetros, "limit-metros", 0, "cap the number of metros processed (0 = all)")
	inferCmd.Flags().IntVar(&inferLimitRoles, "limit-roles", 0, "cap the number of roles per metro (0 = all)")
	inferCmd.Flags().BoolVar(&inferDryRun, "dry-run", false, "run inference without persisting results")
	inferCmd.Flags().IntVar(&inferSamples, "samples", 0, "Monte Carlo sample count override")
	inferCmd.Flags().Uint64Var(&inferSeed, "seed", 0, "random seed override")
	inferCmd.Flags().IntVar(&inferConcurrency, "concurrency", 0, "max concurrent cells (0 = config default)")
	inferCmd.Flags().StringVar(&inferWeightsFile, "weights-file", "", "YAML file overriding evidence weights")
	rootCmd.AddCommand(inferCmd)
}
