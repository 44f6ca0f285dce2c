// Package oews ingests BLS Occupational Employment and Wage Statistics
// metro research files into the macro prior table.
package oews

// RoleMapping ties a SOC occupation code to the canonical role it feeds and
// the 2-digit NAICS sector its employment is attributed to during
// reconciliation.
type RoleMapping struct {
	CanonicalRoleID string `yaml:"canonical_role_id"`
	NAICSSector     string `yaml:"naics_sector"`
}

// DefaultRoleMap covers the SOC codes the inference engine consumes.
// Occupation codes not present here are skipped during ingest.
var DefaultRoleMap = map[string]RoleMapping{
	"15-1252": {CanonicalRoleID: "software_engineer", NAICSSector: "54"},
	"15-1244": {CanonicalRoleID: "systems_administrator", NAICSSector: "54"},
	"15-1232": {CanonicalRoleID: "it_support_specialist", NAICSSector: "54"},
	"15-2051": {CanonicalRoleID: "data_scientist", NAICSSector: "54"},
	"13-2011": {CanonicalRoleID: "accountant", NAICSSector: "52"},
	"13-1071": {CanonicalRoleID: "recruiter", NAICSSector: "56"},
	"11-2021": {CanonicalRoleID: "marketing_manager", NAICSSector: "54"},
	"29-1141": {CanonicalRoleID: "registered_nurse", NAICSSector: "62"},
	"31-1131": {CanonicalRoleID: "nursing_assistant", NAICSSector: "62"},
	"41-2031": {CanonicalRoleID: "retail_salesperson", NAICSSector: "44"},
	"41-3091": {CanonicalRoleID: "sales_representative", NAICSSector: "42"},
	"43-4051": {CanonicalRoleID: "customer_service_rep", NAICSSector: "56"},
	"53-7062": {CanonicalRoleID: "warehouse_associate", NAICSSector: "49"},
	"53-3032": {CanonicalRoleID: "truck_driver", NAICSSector: "48"},
	"35-3023": {CanonicalRoleID: "food_service_worker", NAICSSector: "72"},
	"37-2011": {CanonicalRoleID: "janitor", NAICSSector: "56"},
	"47-2061": {CanonicalRoleID: "construction_laborer", NAICSSector: "23"},
	"51-2098": {CanonicalRoleID: "assembler", NAICSSector: "33"},
}
