package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laborlens/archetype-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func archetypeRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"company_id", "metro_area_id", "canonical_role_id", "naics_sector",
		"seniority", "record_type",
		"headcount_p10", "headcount_p50", "headcount_p90",
		"salary_p25", "salary_p50", "salary_p75",
		"composite_confidence",
	})
}

func TestListArchetypes_NoFilter(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT company_id, metro_area_id").
		WillReturnRows(archetypeRows().
			AddRow("acme", "35620", "swe", "54", "all", "known_employer_inferred",
				40, 52, 70, 140000.0, 165000.0, 190000.0, 0.55).
			AddRow("", "35620", "swe", "54", "all", "cbp_synthetic",
				800, 950, 1100, 120000.0, 150000.0, 180000.0, 0.3))

	got, err := store.ListArchetypes(context.Background(), ArchetypeFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "acme", got[0].CompanyID)
	assert.Equal(t, model.RecordKnownEmployerInferred, got[0].RecordType)
	assert.Equal(t, model.SeniorityAll, got[0].Seniority)
	assert.Equal(t, 52, got[0].HeadcountP50)
	assert.Equal(t, model.RecordCbpSynthetic, got[1].RecordType)
	assert.Empty(t, got[1].CompanyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListArchetypes_FilterArgsInOrder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("record_type = \\$1 AND metro_area_id = \\$2 AND naics_sector = \\$3").
		WithArgs("cbp_synthetic", "35620", "54", 10).
		WillReturnRows(archetypeRows())

	got, err := store.ListArchetypes(context.Background(), ArchetypeFilter{
		RecordType:  model.RecordCbpSynthetic,
		MetroAreaID: "35620",
		NAICSSector: "54",
		Limit:       10,
	})
	assert.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceSyntheticTier(t *testing.T) {
	store, mock := newMockStore(t)

	records := []model.Archetype{{
		Key:          model.MetroRoleKey{MetroAreaID: "35620", CanonicalRoleID: "swe"},
		NAICSSector:  "54",
		Seniority:    model.SeniorityAll,
		RecordType:   model.RecordCbpSynthetic,
		HeadcountP50: 950,
		SalaryP50:    150000,
	}}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM labor.archetypes WHERE record_type").
		WithArgs("cbp_synthetic").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCopyFrom(pgx.Identifier{"labor", "archetypes"}, archetypeColumns).
		WillReturnResult(1)
	mock.ExpectCommit()

	err := store.ReplaceSyntheticTier(context.Background(), records)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByTier(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT record_type, COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"record_type", "count"}).
			AddRow("known_employer_inferred", int64(1200)).
			AddRow("cbp_synthetic", int64(340)))

	counts, err := store.CountByTier(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1200), counts[model.RecordKnownEmployerInferred])
	assert.Equal(t, int64(340), counts[model.RecordCbpSynthetic])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_StartAndComplete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO labor.batch_runs").
		WithArgs(pgxmock.AnyArg(), "running", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	runID, err := store.StartRun(context.Background(), RunParams{Year: 2023, Samples: 1000})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	mock.ExpectExec("UPDATE labor.batch_runs SET status").
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg(), runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.CompleteRun(context.Background(), runID, RunSummary{CellsProcessed: 40, RowsWritten: 180})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastRun_Empty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM labor.batch_runs").WillReturnError(pgx.ErrNoRows)

	rec, err := store.LastRun(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}
