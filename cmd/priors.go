package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/laborlens/archetype-cli/internal/fetcher"
	"github.com/laborlens/archetype-cli/internal/oews"
)

var (
	priorsYear      int
	priorsStartYear int
)

var priorsCmd = &cobra.Command{
	Use:   "priors",
	Short: "Manage the OEWS macro prior table",
}

var priorsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download BLS OEWS metro research files and load prior rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		tempDir := cfg.Priors.TempDir
		if tempDir == "" {
			tempDir, err = os.MkdirTemp("", "archetype-priors-*")
			if err != nil {
				return eris.Wrap(err, "create temp dir")
			}
			defer os.RemoveAll(tempDir) //nolint:errcheck
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent: cfg.Priors.UserAgent,
		})
		loader := oews.NewLoader(pool, f, nil)

		startYear := priorsStartYear
		if startYear == 0 {
			startYear = cfg.Priors.StartYear
		}
		endYear := priorsYear
		if startYear == 0 || startYear > endYear {
			startYear = endYear
		}

		var total int64
		for year := startYear; year <= endYear; year++ {
			n, err := loader.Sync(ctx, year, tempDir)
			if err != nil {
				return eris.Wrapf(err, "sync priors for %d", year)
			}
			total += n
		}

		zap.L().Info("priors sync complete",
			zap.Int("start_year", startYear),
			zap.Int("end_year", endYear),
			zap.Int64("rows", total),
		)
		return nil
	},
}

func init() {
	priorsSyncCmd.Flags().IntVar(&priorsYear, "year", time.Now().Year()-1, "latest OEWS reference year to load")
	priorsSyncCmd.Flags().IntVar(&priorsStartYear, "start-year", 0, "earliest year to load (0 = config default, falling back to --year)")
	priorsCmd.AddCommand(priorsSyncCmd)
	rootCmd.AddCommand(priorsCmd)
}
