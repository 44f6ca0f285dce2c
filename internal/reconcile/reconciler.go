// Package reconcile adjusts the statistically-synthesized archetype tier so
// employment already attributed to named employers is never counted twice.
package reconcile

import (
	"math"

	"go.uber.org/zap"

	"github.com/laborlens/archetype-cli/internal/config"
	"github.com/laborlens/archetype-cli/internal/model"
)

// Reconciler subtracts known employment from the CbpSynthetic tier per
// industry. It mutates only synthetic rows; observed and known-inferred rows
// pass through untouched.
type Reconciler struct {
	discount float64
}

// NewReconciler creates a reconciler from engine configuration.
func NewReconciler(cfg config.EngineConfig) *Reconciler {
	discount := cfg.ConfidenceDiscount
	if discount <= 0 || discount > 1 {
		discount = 0.9
	}
	return &Reconciler{discount: discount}
}

// Result summarizes a reconciliation pass.
type Result struct {
	// Synthetic holds the adjusted CbpSynthetic rows to persist. Rows whose
	// adjusted headcount rounds to zero are dropped.
	Synthetic []model.Archetype

	IndustriesSeen     int
	IndustriesAdjusted int
	RowsDropped        int
	HeadcountRemoved   int
}

type industryTotals struct {
	known     int
	synthetic int
}

// Reconcile runs once over the full dataset, after all per-cell estimates
// for all tiers have been produced. Post-adjustment synthetic headcount per
// industry is always <= the pre-adjustment value and never negative.
func (r *Reconciler) Reconcile(records []model.Archetype) Result {
	log := zap.L().With(zap.String("component", "reconcile"))

	totals := make(map[string]*industryTotals)
	for _, rec := range records {
		t, ok := totals[rec.NAICSSector]
		if !ok {
			t = &industryTotals{}
			totals[rec.NAICSSector] = t
		}
		switch rec.RecordType {
		case model.RecordObserved, model.RecordKnownEmployerInferred:
			t.known += rec.HeadcountP50
		case model.RecordCbpSynthetic:
			t.synthetic += rec.HeadcountP50
		}
	}

	var res Result
	res.IndustriesSeen = len(totals)

	adjusted := make(map[string]bool)
	for _, rec := range records {
		if rec.RecordType != model.RecordCbpSynthetic {
			continue
		}

		t := totals[rec.NAICSSector]
		if t.known == 0 || t.synthetic == 0 {
			// Nothing attributed to named employers in this industry; the
			// synthetic row passes through unchanged.
			res.Synthetic = append(res.Synthetic, rec)
			continue
		}

		fraction := 1 - float64(t.known)/float64(t.synthetic)
		if fraction < 0 {
			fraction = 0
		}

		before := rec.HeadcountP50
		rec.HeadcountP10 = int(math.Round(float64(rec.HeadcountP10) * fraction))
		rec.HeadcountP50 = int(math.Round(float64(rec.HeadcountP50) * fraction))
		rec.HeadcountP90 = int(math.Round(float64(rec.HeadcountP90) * fraction))
		rec.CompositeConfidence *= r.discount
		res.HeadcountRemoved += before - rec.HeadcountP50
		adjusted[rec.NAICSSector] = true

		if rec.HeadcountP50 == 0 {
			res.RowsDropped++
			continue
		}
		res.Synthetic = append(res.Synthetic, rec)
	}
	res.IndustriesAdjusted = len(adjusted)

	log.Info("synthetic tier reconciled",
		zap.Int("industries", res.IndustriesSeen),
		zap.Int("adjusted", res.IndustriesAdjusted),
		zap.Int("rows_dropped", res.RowsDropped),
		zap.Int("headcount_removed", res.HeadcountRemoved),
	)

	return res
}
