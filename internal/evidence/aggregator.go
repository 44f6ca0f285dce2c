// Package evidence aggregates per-company observation counts and salary
// observations for one labor-market cell.
package evidence

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/laborlens/archetype-cli/internal/config"
	"github.com/laborlens/archetype-cli/internal/db"
	"github.com/laborlens/archetype-cli/internal/model"
)

// Aggregator is a pure read over the labor.evidence table. Evidence rows are
// produced upstream by the collection connectors; this component only weighs
// and groups them.
type Aggregator struct {
	pool         db.Pool
	weights      config.WeightsConfig
	minThreshold float64
}

// NewAggregator creates a new aggregator. Returns nil if pool is nil.
func NewAggregator(pool db.Pool, weights config.WeightsConfig, minThreshold float64) *Aggregator {
	if pool == nil {
		return nil
	}
	return &Aggregator{pool: pool, weights: weights, minThreshold: minThreshold}
}

// HeadcountWeight returns the headcount reliability weight for a source type.
func HeadcountWeight(w config.SourceWeights, st model.SourceType) float64 {
	switch st {
	case model.SourcePosting:
		return w.Posting
	case model.SourceVisa:
		return w.Visa
	case model.SourcePayroll:
		return w.Payroll
	default:
		return 0
	}
}

// HeadcountEvidence returns one CompanyEvidence per company with any
// observation in the cell, sorted by company ID. Evidence shares are computed
// over every company in the cell before the minimum-evidence filter, so they
// sum to 1 across the cell; companies below the threshold are then excluded
// from the result.
func (a *Aggregator) HeadcountEvidence(ctx context.Context, key model.MetroRoleKey) ([]model.CompanyEvidence, error) {
	if !key.Valid() {
		return nil, eris.Errorf("evidence: invalid cell key %q", key)
	}

	rows, err := a.pool.Query(ctx, `
		SELECT company_id, source_type, COUNT(*)
		FROM labor.evidence
		WHERE metro_area_id = $1 AND canonical_role_id = $2
		GROUP BY company_id, source_type`,
		key.MetroAreaID, key.CanonicalRoleID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "evidence: query headcount evidence for %s", key)
	}
	defer rows.Close()

	byCompany := make(map[string]*model.CompanyEvidence)
	for rows.Next() {
		var companyID, sourceType string
		var count int
		if err := rows.Scan(&companyID, &sourceType, &count); err != nil {
			return nil, eris.Wrap(err, "evidence: scan headcount row")
		}

		st := model.SourceType(sourceType)
		if !st.Valid() {
			zap.L().Warn("evidence: unknown source type, skipping",
				zap.String("source_type", sourceType),
				zap.String("cell", key.String()),
			)
			continue
		}

		ev, ok := byCompany[companyID]
		if !ok {
			ev = &model.CompanyEvidence{CompanyID: companyID}
			byCompany[companyID] = ev
		}
		switch st {
		case model.SourcePosting:
			ev.PostingCount += count
		case model.SourceVisa:
			ev.VisaCount += count
		case model.SourcePayroll:
			ev.PayrollCount += count
		}
		ev.TotalWeightedEvidence += float64(count) * HeadcountWeight(a.weights.Headcount, st)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "evidence: iterate headcount rows")
	}

	if len(byCompany) == 0 {
		return nil, nil
	}

	var cellTotal float64
	for _, ev := range byCompany {
		cellTotal += ev.TotalWeightedEvidence
	}

	out := make([]model.CompanyEvidence, 0, len(byCompany))
	for _, ev := range byCompany {
		if cellTotal > 0 {
			ev.EvidenceShare = ev.TotalWeightedEvidence / cellTotal
		}
		if ev.TotalWeightedEvidence < a.minThreshold {
			continue
		}
		out = append(out, *ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })

	return out, nil
}

// SalaryObservations returns every salary observation in the cell grouped by
// company, with the configured source-type weight attached to each.
func (a *Aggregator) SalaryObservations(ctx context.Context, key model.MetroRoleKey) (map[string][]model.SalaryObservation, error) {
	if !key.Valid() {
		return nil, eris.Errorf("evidence: invalid cell key %q", key)
	}

	rows, err := a.pool.Query(ctx, `
		SELECT company_id, source_type, salary_min, salary_max, salary_point
		FROM labor.evidence
		WHERE metro_area_id = $1 AND canonical_role_id = $2
		  AND (salary_min IS NOT NULL OR salary_max IS NOT NULL OR salary_point IS NOT NULL)`,
		key.MetroAreaID, key.CanonicalRoleID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "evidence: query salary observations for %s", key)
	}
	defer rows.Close()

	out := make(map[string][]model.SalaryObservation)
	for rows.Next() {
		var companyID, sourceType string
		var salaryMin, salaryMax, salaryPoint *float64
		if err := rows.Scan(&companyID, &sourceType, &salaryMin, &salaryMax, &salaryPoint); err != nil {
			return nil, eris.Wrap(err, "evidence: scan salary row")
		}

		st := model.SourceType(sourceType)
		if !st.Valid() {
			continue
		}

		out[companyID] = append(out[companyID], model.SalaryObservation{
			CompanyID:   companyID,
			SourceType:  st,
			SalaryMin:   salaryMin,
			SalaryMax:   salaryMax,
			SalaryPoint: salaryPoint,
			Weight:      salaryWeight(a.weights.Salary, st),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "evidence: iterate salary rows")
	}

	return out, nil
}

func salaryWeight(w config.SourceWeights, st model.SourceType) float64 {
	switch st {
	case model.SourcePosting:
		return w.Posting
	case model.SourceVisa:
		return w.Visa
	case model.SourcePayroll:
		return w.Payroll
	default:
		return 0
	}
}
