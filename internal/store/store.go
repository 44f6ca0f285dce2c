// Package store persists archetype records and batch run history.
package store

import (
	"context"
	"time"

	"github.com/laborlens/archetype-cli/internal/model"
)

// ArchetypeFilter specifies criteria for listing archetypes.
type ArchetypeFilter struct {
	RecordType  model.RecordType `json:"record_type,omitempty"`
	MetroAreaID string           `json:"metro_area_id,omitempty"`
	NAICSSector string           `json:"naics_sector,omitempty"`
	Limit       int              `json:"limit,omitempty"`
}

// RunParams records the control surface of one batch run.
type RunParams struct {
	Year        int    `json:"year"`
	Samples     int    `json:"samples"`
	Seed        uint64 `json:"seed"`
	Persist     bool   `json:"persist"`
	LimitMetros int    `json:"limit_metros,omitempty"`
	LimitRoles  int    `json:"limit_roles,omitempty"`
}

// RunSummary records the outcome of one batch run.
type RunSummary struct {
	CellsProcessed int   `json:"cells_processed"`
	CellsSkipped   int   `json:"cells_skipped"`
	CellsFailed    int   `json:"cells_failed"`
	RowsWritten    int64 `json:"rows_written"`
}

// RunStatus is the lifecycle state of a batch run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// RunRecord is a persisted batch run.
type RunRecord struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Params     RunParams  `json:"params"`
	Summary    RunSummary `json:"summary"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Store defines the persistence interface for the inference engine. Upserts
// are keyed by the natural key (company_id, metro_area_id, canonical_role_id,
// seniority, record_type), so whole-batch re-runs are idempotent.
type Store interface {
	// Archetypes
	UpsertArchetypes(ctx context.Context, records []model.Archetype) (int64, error)
	ListArchetypes(ctx context.Context, filter ArchetypeFilter) ([]model.Archetype, error)
	// ReplaceSyntheticTier atomically swaps the CbpSynthetic tier for the
	// reconciler's adjusted rows. Other tiers are never touched.
	ReplaceSyntheticTier(ctx context.Context, records []model.Archetype) error
	CountByTier(ctx context.Context) (map[model.RecordType]int64, error)

	// Run log
	StartRun(ctx context.Context, params RunParams) (string, error)
	CompleteRun(ctx context.Context, runID string, summary RunSummary) error
	FailRun(ctx context.Context, runID string, message string) error
	LastRun(ctx context.Context) (*RunRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// archetypeColumns is the column order shared by both backends.
var archetypeColumns = []string{
	"company_id", "metro_area_id", "canonical_role_id", "naics_sector",
	"seniority", "record_type",
	"headcount_p10", "headcount_p50", "headcount_p90",
	"salary_p25", "salary_p50", "salary_p75",
	"composite_confidence",
}

// archetypeConflictKeys is the natural key for upserts.
var archetypeConflictKeys = []string{
	"company_id", "metro_area_id", "canonical_role_id", "seniority", "record_type",
}

func archetypeRow(a model.Archetype) []any {
	return []any{
		a.CompanyID, a.Key.MetroAreaID, a.Key.CanonicalRoleID, a.NAICSSector,
		string(a.Seniority), string(a.RecordType),
		a.HeadcountP10, a.HeadcountP50, a.HeadcountP90,
		a.SalaryP25, a.SalaryP50, a.SalaryP75,
		a.CompositeConfidence,
	}
}
