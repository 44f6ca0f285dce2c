package model

// SourceType is the closed set of evidence sources. Weight tables are keyed
// on it so the compiler can check coverage when matching exhaustively.
type SourceType string

const (
	SourcePosting SourceType = "posting" // ATS/job-board posting
	SourceVisa    SourceType = "visa"    // LCA/PERM visa filing
	SourcePayroll SourceType = "payroll" // payroll extract or negotiated wage table
)

// SourceTypes lists every valid source type.
func SourceTypes() []SourceType {
	return []SourceType{SourcePosting, SourceVisa, SourcePayroll}
}

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	switch s {
	case SourcePosting, SourceVisa, SourcePayroll:
		return true
	}
	return false
}

// CompanyEvidence is the per-company headcount evidence for one cell:
// raw observation counts by source plus the derived weighted totals.
type CompanyEvidence struct {
	CompanyID             string  `json:"company_id"`
	PostingCount          int     `json:"posting_count"`
	VisaCount             int     `json:"visa_count"`
	PayrollCount          int     `json:"payroll_count"`
	TotalWeightedEvidence float64 `json:"total_weighted_evidence"`
	// EvidenceShare is this company's fraction of the cell's total weighted
	// evidence. Shares across a cell sum to 1 unless the cell is empty.
	EvidenceShare float64 `json:"evidence_share"`
}

// SalaryObservation is one salary data point for a company in a cell. At
// least one of Min/Max/Point is set; Weight comes from the source-type table.
type SalaryObservation struct {
	CompanyID   string     `json:"company_id"`
	SourceType  SourceType `json:"source_type"`
	SalaryMin   *float64   `json:"salary_min,omitempty"`
	SalaryMax   *float64   `json:"salary_max,omitempty"`
	SalaryPoint *float64   `json:"salary_point,omitempty"`
	Weight      float64    `json:"weight"`
}

// HasValue reports whether the observation carries at least one salary figure.
func (o SalaryObservation) HasValue() bool {
	return o.SalaryPoint != nil || o.SalaryMin != nil || o.SalaryMax != nil
}
