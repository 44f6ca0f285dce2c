// Package allocate distributes a macro employment total across companies in
// proportion to evidence strength, with shrinkage toward a uniform prior.
package allocate

import (
	"hash/fnv"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/laborlens/archetype-cli/internal/config"
	"github.com/laborlens/archetype-cli/internal/model"
)

// Allocator implements Dirichlet-shrinkage Monte Carlo headcount allocation.
// Company shares of a cell's total are modeled as Dirichlet(alpha) where
// alpha_i = prior_weight/n + evidence_i * concentration_scale.
type Allocator struct {
	priorWeight        float64
	concentrationScale float64
	samples            int
	seed               uint64
}

// NewAllocator creates an allocator from engine configuration.
func NewAllocator(cfg config.EngineConfig) *Allocator {
	samples := cfg.MonteCarloSamples
	if samples <= 0 {
		samples = 1000
	}
	return &Allocator{
		priorWeight:        cfg.PriorWeight,
		concentrationScale: cfg.ConcentrationScale,
		samples:            samples,
		seed:               cfg.RandomSeed,
	}
}

// Allocate produces one HeadcountEstimate per company for a single cell.
// The returned P50 values sum exactly to total. Companies must already have
// cleared the minimum-evidence threshold; an empty slice yields no rows.
func (a *Allocator) Allocate(key model.MetroRoleKey, total int, evidence []model.CompanyEvidence) ([]model.HeadcountEstimate, error) {
	if total <= 0 {
		return nil, eris.Errorf("allocate: employment total must be positive, got %d for %s", total, key)
	}
	if len(evidence) == 0 {
		// No company cleared the evidence threshold; the whole total stays
		// unattributed and the synthetic tier covers it.
		return nil, nil
	}

	if len(evidence) == 1 {
		ev := evidence[0]
		return []model.HeadcountEstimate{{
			CompanyID:     ev.CompanyID,
			Key:           key,
			P10:           total,
			P50:           total,
			P90:           total,
			EvidenceScore: ev.TotalWeightedEvidence,
			ShareOfMetro:  1.0,
			Method:        model.MethodDirichletShrinkage,
		}}, nil
	}

	n := len(evidence)
	alpha := make([]float64, n)
	for i, ev := range evidence {
		alpha[i] = a.priorWeight/float64(n) + ev.TotalWeightedEvidence*a.concentrationScale
	}

	src := rand.NewSource(cellSeed(key, a.seed))
	dir := distmv.NewDirichlet(alpha, src)

	// counts[i] holds this company's integer headcount across all samples.
	counts := make([][]float64, n)
	for i := range counts {
		counts[i] = make([]float64, a.samples)
	}

	shares := make([]float64, n)
	for s := 0; s < a.samples; s++ {
		dir.Rand(shares)

		// Round each share and push the rounding drift onto the company with
		// the largest share in this sample, so every row sums exactly to total.
		sampleSum := 0
		largest := 0
		for i, share := range shares {
			c := int(math.Round(share * float64(total)))
			counts[i][s] = float64(c)
			sampleSum += c
			if share > shares[largest] {
				largest = i
			}
		}
		counts[largest][s] += float64(total - sampleSum)
	}

	// A company with nonzero evidence is known to employ at least one person
	// in the cell, but the floor can only hold when the total has a head to
	// spare for every such company. With floors relaxed the floor sum never
	// exceeds the total, so the residual pass below can restore the exact sum.
	nonzero := 0
	for _, ev := range evidence {
		if ev.TotalWeightedEvidence > 0 {
			nonzero++
		}
	}
	floors := make([]int, n)
	if total >= nonzero {
		for i, ev := range evidence {
			if ev.TotalWeightedEvidence > 0 {
				floors[i] = 1
			}
		}
	}

	estimates := make([]model.HeadcountEstimate, n)
	biggest := 0 // index of the company with the strongest evidence
	for i, ev := range evidence {
		sort.Float64s(counts[i])
		p10 := int(math.Round(stat.Quantile(0.10, stat.Empirical, counts[i], nil)))
		p50 := int(math.Round(stat.Quantile(0.50, stat.Empirical, counts[i], nil)))
		p90 := int(math.Round(stat.Quantile(0.90, stat.Empirical, counts[i], nil)))

		if p10 < floors[i] {
			p10 = floors[i]
		}
		if p50 < floors[i] {
			p50 = floors[i]
		}
		if p90 < p50 {
			p90 = p50
		}
		if p10 > p50 {
			p10 = p50
		}

		estimates[i] = model.HeadcountEstimate{
			CompanyID:     ev.CompanyID,
			Key:           key,
			P10:           p10,
			P50:           p50,
			P90:           p90,
			EvidenceScore: ev.TotalWeightedEvidence,
			Method:        model.MethodDirichletShrinkage,
		}
		if ev.TotalWeightedEvidence > evidence[biggest].TotalWeightedEvidence {
			biggest = i
		}
	}

	// Medians are computed per company, so their sum can drift off the macro
	// total by a few heads. A shortfall goes to the strongest company; an
	// excess is taken back from the weakest companies first, never below
	// their floor.
	sum := 0
	for _, est := range estimates {
		sum += est.P50
	}
	if residual := total - sum; residual > 0 {
		estimates[biggest].P50 += residual
	} else if residual < 0 {
		deficit := -residual
		for _, i := range byAscendingEvidence(evidence) {
			if deficit == 0 {
				break
			}
			take := estimates[i].P50 - floors[i]
			if take <= 0 {
				continue
			}
			if take > deficit {
				take = deficit
			}
			estimates[i].P50 -= take
			deficit -= take
		}
	}

	for i := range estimates {
		if estimates[i].P10 > estimates[i].P50 {
			estimates[i].P10 = estimates[i].P50
		}
		if estimates[i].P90 < estimates[i].P50 {
			estimates[i].P90 = estimates[i].P50
		}
		estimates[i].ShareOfMetro = float64(estimates[i].P50) / float64(total)
	}

	return estimates, nil
}

// byAscendingEvidence returns company indices ordered weakest first, ties
// broken by index so corrections are deterministic.
func byAscendingEvidence(evidence []model.CompanyEvidence) []int {
	order := make([]int, len(evidence))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return evidence[order[a]].TotalWeightedEvidence < evidence[order[b]].TotalWeightedEvidence
	})
	return order
}

// cellSeed derives a deterministic per-cell seed so runs are reproducible and
// concurrent cells stay independent.
func cellSeed(key model.MetroRoleKey, seed uint64) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key.String()))
	return h.Sum64() ^ seed
}
