package model

// Method tags identify which algorithm produced an estimate.
const (
	MethodDirichletShrinkage = "dirichlet_shrinkage"
	MethodBayesianShrinkage  = "bayesian_shrinkage"
)

// HeadcountEstimate is the allocator's output for one company in one cell.
// P10 <= P50 <= P90 always holds, and within a cell the P50 values sum
// exactly to the cell's macro employment total.
type HeadcountEstimate struct {
	CompanyID     string       `json:"company_id"`
	Key           MetroRoleKey `json:"metro_role_key"`
	P10           int          `json:"p10"`
	P50           int          `json:"p50"`
	P90           int          `json:"p90"`
	EvidenceScore float64      `json:"evidence_score"`
	ShareOfMetro  float64      `json:"share_of_metro"`
	Method        string       `json:"method"` // MethodDirichletShrinkage
}

// SalaryEstimate is the posterior wage distribution for one company in one
// cell. Percentiles are monotone: P10 <= P25 <= P50 <= P75 <= P90.
type SalaryEstimate struct {
	CompanyID           string       `json:"company_id"`
	Key                 MetroRoleKey `json:"metro_role_key"`
	P10                 float64      `json:"p10"`
	P25                 float64      `json:"p25"`
	P50                 float64      `json:"p50"`
	P75                 float64      `json:"p75"`
	P90                 float64      `json:"p90"`
	Mean                float64      `json:"mean"`
	StdDev              float64      `json:"stddev"`
	ObservationCount    int          `json:"observation_count"`
	EffectiveSampleSize float64      `json:"effective_sample_size"`
	// ShrinkageFactor is the fraction of posterior precision contributed by
	// observed data, in [0,1]. With zero valid observations it is 0.0 (the
	// posterior is the prior; no certainty is data-attributable).
	ShrinkageFactor float64 `json:"shrinkage_factor"`
	OEWSMedian      float64 `json:"oews_median"`
	Method          string  `json:"method"` // MethodBayesianShrinkage
}
