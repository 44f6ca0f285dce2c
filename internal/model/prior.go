package model

// OEWSPrior is one row of the macro prior table: total employment and wage
// percentiles for a metro×role cell in a reference year. Loaded once per
// batch run and read-only thereafter.
type OEWSPrior struct {
	MetroAreaID     string  `json:"metro_area_id"`
	CanonicalRoleID string  `json:"canonical_role_id"`
	NAICSSector     string  `json:"naics_sector"` // 2-digit sector for tier reconciliation
	Year            int     `json:"year"`
	EmploymentTotal int     `json:"employment_total"`
	WageP10         float64 `json:"wage_p10"`
	WageP25         float64 `json:"wage_p25"`
	WageP50         float64 `json:"wage_p50"`
	WageP75         float64 `json:"wage_p75"`
	WageP90         float64 `json:"wage_p90"`
	WageMean        float64 `json:"wage_mean"`
}

// Key returns the cell identity for this prior row.
func (p OEWSPrior) Key() MetroRoleKey {
	return MetroRoleKey{MetroAreaID: p.MetroAreaID, CanonicalRoleID: p.CanonicalRoleID}
}
