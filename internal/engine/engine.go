// Package engine orchestrates per-cell inference: prior lookup, evidence
// aggregation, headcount allocation, salary posterior estimation, and
// archetype assembly.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/laborlens/archetype-cli/internal/allocate"
	"github.com/laborlens/archetype-cli/internal/config"
	"github.com/laborlens/archetype-cli/internal/model"
	"github.com/laborlens/archetype-cli/internal/prior"
	"github.com/laborlens/archetype-cli/internal/salary"
	"github.com/laborlens/archetype-cli/internal/store"
)

// EvidenceSource supplies per-cell evidence. Satisfied by
// evidence.Aggregator and by test fakes.
type EvidenceSource interface {
	HeadcountEvidence(ctx context.Context, key model.MetroRoleKey) ([]model.CompanyEvidence, error)
	SalaryObservations(ctx context.Context, key model.MetroRoleKey) (map[string][]model.SalaryObservation, error)
}

// Options controls one batch run.
type Options struct {
	Year        int
	Concurrency int
	LimitMetros int
	LimitRoles  int
	DryRun      bool
}

// Engine runs the inference pipeline over every cell of a reference year.
type Engine struct {
	priors   prior.Provider
	evidence EvidenceSource
	store    store.Store
	alloc    *allocate.Allocator
	salaries *salary.Estimator
	cfg      config.EngineConfig
}

// New builds an Engine. The store may be nil for dry runs.
func New(priors prior.Provider, evidence EvidenceSource, st store.Store, cfg config.EngineConfig) *Engine {
	return &Engine{
		priors:   priors,
		evidence: evidence,
		store:    st,
		alloc:    allocate.NewAllocator(cfg),
		salaries: salary.NewEstimator(cfg),
		cfg:      cfg,
	}
}

// Run processes every cell for the year. Per-cell failures are isolated and
// counted; the returned error is non-nil only for infrastructure failures.
func (e *Engine) Run(ctx context.Context, opts Options) (store.RunSummary, error) {
	var summary store.RunSummary

	cells, err := e.priors.Cells(ctx, opts.Year, opts.LimitMetros, opts.LimitRoles)
	if err != nil {
		return summary, eris.Wrap(err, "engine: enumerate cells")
	}
	if len(cells) == 0 {
		zap.L().Info("no prior cells found", zap.Int("year", opts.Year))
		return summary, nil
	}

	persist := !opts.DryRun && e.store != nil
	var runID string
	if persist {
		runID, err = e.store.StartRun(ctx, store.RunParams{
			Year:        opts.Year,
			Samples:     e.cfg.MonteCarloSamples,
			Seed:        e.cfg.RandomSeed,
			Persist:     true,
			LimitMetros: opts.LimitMetros,
			LimitRoles:  opts.LimitRoles,
		})
		if err != nil {
			return summary, eris.Wrap(err, "engine: start run")
		}
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	zap.L().Info("processing cells",
		zap.Int("cells", len(cells)),
		zap.Int("year", opts.Year),
		zap.Int("concurrency", concurrency),
		zap.Bool("dry_run", opts.DryRun),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var processed, skipped, failed atomic.Int64
	var mu sync.Mutex
	var rows []model.Archetype

	for _, cell := range cells {
		g.Go(func() error {
			log := zap.L().With(zap.String("cell", cell.String()))

			cellRows, ok, err := e.processCell(gctx, cell, opts.Year)
			if err != nil {
				failed.Add(1)
				log.Error("cell inference failed", zap.Error(err))
				return nil // don't abort the batch on individual failure
			}
			if !ok {
				skipped.Add(1)
				return nil
			}

			processed.Add(1)
			mu.Lock()
			rows = append(rows, cellRows...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if persist {
			_ = e.store.FailRun(ctx, runID, err.Error())
		}
		return summary, eris.Wrap(err, "engine: batch processing")
	}

	summary = store.RunSummary{
		CellsProcessed: int(processed.Load()),
		CellsSkipped:   int(skipped.Load()),
		CellsFailed:    int(failed.Load()),
	}

	if persist && len(rows) > 0 {
		n, err := e.store.UpsertArchetypes(ctx, rows)
		if err != nil {
			_ = e.store.FailRun(ctx, runID, err.Error())
			return summary, eris.Wrap(err, "engine: persist archetypes")
		}
		summary.RowsWritten = n
	}
	if persist {
		if err := e.store.CompleteRun(ctx, runID, summary); err != nil {
			return summary, eris.Wrap(err, "engine: complete run")
		}
	}

	zap.L().Info("batch complete",
		zap.Int("processed", summary.CellsProcessed),
		zap.Int("skipped", summary.CellsSkipped),
		zap.Int("failed", summary.CellsFailed),
		zap.Int64("rows_written", summary.RowsWritten),
	)
	return summary, nil
}

// processCell infers all archetype rows for one cell. ok=false means the
// cell was skipped (no prior, or an unusable one).
func (e *Engine) processCell(ctx context.Context, key model.MetroRoleKey, year int) ([]model.Archetype, bool, error) {
	p, err := e.priors.Get(ctx, key, year)
	if err != nil {
		return nil, false, eris.Wrap(err, "engine: fetch prior")
	}
	if p == nil || p.EmploymentTotal <= 0 {
		zap.L().Debug("missing prior, skipping cell", zap.String("cell", key.String()))
		return nil, false, nil
	}

	companies, err := e.evidence.HeadcountEvidence(ctx, key)
	if err != nil {
		return nil, false, eris.Wrap(err, "engine: aggregate evidence")
	}

	estimates, err := e.alloc.Allocate(key, p.EmploymentTotal, companies)
	if err != nil {
		return nil, false, eris.Wrap(err, "engine: allocate headcount")
	}

	var obs map[string][]model.SalaryObservation
	if len(estimates) > 0 {
		obs, err = e.evidence.SalaryObservations(ctx, key)
		if err != nil {
			return nil, false, eris.Wrap(err, "engine: fetch salary observations")
		}
	}

	rows := make([]model.Archetype, 0, len(estimates)+1)
	attributed := 0
	for _, h := range estimates {
		s, err := e.salaries.Estimate(h.CompanyID, *p, obs[h.CompanyID])
		if err != nil {
			return nil, false, eris.Wrapf(err, "engine: salary posterior for %s", h.CompanyID)
		}

		rows = append(rows, model.Archetype{
			CompanyID:    h.CompanyID,
			Key:          key,
			NAICSSector:  p.NAICSSector,
			Seniority:    model.SeniorityAll,
			RecordType:   model.RecordKnownEmployerInferred,
			HeadcountP10: h.P10,
			HeadcountP50: h.P50,
			HeadcountP90: h.P90,
			SalaryP25:    s.P25,
			SalaryP50:    s.P50,
			SalaryP75:    s.P75,
			CompositeConfidence: compositeConfidence(
				model.RecordKnownEmployerInferred, h.EvidenceScore, s.ShrinkageFactor,
			),
		})
		attributed += h.P50
	}

	// Allocation sums exactly to the macro total, so a remainder exists
	// only when no company cleared the evidence threshold. That remainder
	// becomes the cell's synthetic row for the reconciler to adjust.
	if remainder := p.EmploymentTotal - attributed; remainder > 0 {
		rows = append(rows, model.Archetype{
			Key:                 key,
			NAICSSector:         p.NAICSSector,
			Seniority:           model.SeniorityAll,
			RecordType:          model.RecordCbpSynthetic,
			HeadcountP10:        remainder,
			HeadcountP50:        remainder,
			HeadcountP90:        remainder,
			SalaryP25:           p.WageP25,
			SalaryP50:           p.WageP50,
			SalaryP75:           p.WageP75,
			CompositeConfidence: compositeConfidence(model.RecordCbpSynthetic, 0, 0),
		})
	}

	return rows, true, nil
}
