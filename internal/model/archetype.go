package model

// RecordType is the closed confidence-tier tag for an archetype. It is never
// a free-form string: an inferred row can never masquerade as an observed one.
type RecordType string

const (
	RecordObserved              RecordType = "observed"
	RecordKnownEmployerInferred RecordType = "known_employer_inferred"
	RecordCbpSynthetic          RecordType = "cbp_synthetic"
)

// Valid reports whether r is a known record type.
func (r RecordType) Valid() bool {
	switch r {
	case RecordObserved, RecordKnownEmployerInferred, RecordCbpSynthetic:
		return true
	}
	return false
}

// Seniority buckets archetypes within a role. Engine-produced rows are
// role-level (SeniorityAll); observed-tier rows may carry specific levels.
type Seniority string

const (
	SeniorityAll    Seniority = "all"
	SeniorityJunior Seniority = "junior"
	SeniorityMid    Seniority = "mid"
	SenioritySenior Seniority = "senior"
)

// Archetype is the persisted, merged estimate for one
// (company, metro, role, seniority, record_type) combination.
type Archetype struct {
	CompanyID   string       `json:"company_id"` // empty for CbpSynthetic rows
	Key         MetroRoleKey `json:"metro_role_key"`
	NAICSSector string       `json:"naics_sector"`
	Seniority   Seniority    `json:"seniority"`
	RecordType  RecordType   `json:"record_type"`

	HeadcountP10 int `json:"headcount_p10"`
	HeadcountP50 int `json:"headcount_p50"`
	HeadcountP90 int `json:"headcount_p90"`

	SalaryP25 float64 `json:"salary_p25"`
	SalaryP50 float64 `json:"salary_p50"`
	SalaryP75 float64 `json:"salary_p75"`

	// CompositeConfidence is in [0,1] and ordered by tier:
	// observed > known-employer-inferred > synthetic.
	CompositeConfidence float64 `json:"composite_confidence"`
}
