package prior

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laborlens/archetype-cli/internal/model"
)

func testKey() model.MetroRoleKey {
	return model.MetroRoleKey{MetroAreaID: "41860", CanonicalRoleID: "15-1252"}
}

func TestNewPostgresProvider_NilPool(t *testing.T) {
	assert.Nil(t, NewPostgresProvider(nil))
}

func TestGet_Found(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT metro_area_id, canonical_role_id, naics_sector").
		WithArgs("41860", "15-1252", 2023).
		WillReturnRows(pgxmock.NewRows([]string{
			"metro_area_id", "canonical_role_id", "naics_sector", "year", "employment_total",
			"wage_p10", "wage_p25", "wage_p50", "wage_p75", "wage_p90", "wage_mean",
		}).AddRow("41860", "15-1252", "54", 2023, 52340,
			92000.0, 118000.0, 152000.0, 193000.0, 239000.0, 161500.0))

	p := NewPostgresProvider(mock)
	row, err := p.Get(context.Background(), testKey(), 2023)
	require.NoError(t, err)
	require.NotNil(t, row)

	assert.Equal(t, 52340, row.EmploymentTotal)
	assert.Equal(t, 152000.0, row.WageP50)
	assert.Equal(t, "54", row.NAICSSector)
	assert.Equal(t, testKey(), row.Key())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_Missing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT metro_area_id, canonical_role_id, naics_sector").
		WithArgs("41860", "15-1252", 2023).
		WillReturnRows(pgxmock.NewRows([]string{"metro_area_id"}))

	p := NewPostgresProvider(mock)
	row, err := p.Get(context.Background(), testKey(), 2023)
	require.NoError(t, err)
	assert.Nil(t, row, "missing prior returns nil, not an error")
}

func TestGet_InvalidKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := NewPostgresProvider(mock)
	_, err = p.Get(context.Background(), model.MetroRoleKey{}, 2023)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cell key")
}

func TestCells_DebugCaps(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT metro_area_id, canonical_role_id").
		WithArgs(2023).
		WillReturnRows(pgxmock.NewRows([]string{"metro_area_id", "canonical_role_id"}).
			AddRow("10420", "15-1252").
			AddRow("10420", "29-1141").
			AddRow("41860", "15-1252").
			AddRow("41860", "29-1141"),
		)

	p := NewPostgresProvider(mock)
	keys, err := p.Cells(context.Background(), 2023, 1, 0)
	require.NoError(t, err)

	require.Len(t, keys, 2, "one metro cap keeps only the first metro's cells")
	for _, k := range keys {
		assert.Equal(t, "10420", k.MetroAreaID)
	}
}

func TestStaticProvider(t *testing.T) {
	priors := []model.OEWSPrior{
		{MetroAreaID: "41860", CanonicalRoleID: "15-1252", Year: 2023, EmploymentTotal: 100, WageP50: 150000},
		{MetroAreaID: "35620", CanonicalRoleID: "15-1252", Year: 2023, EmploymentTotal: 200, WageP50: 140000},
		{MetroAreaID: "41860", CanonicalRoleID: "29-1141", Year: 2022, EmploymentTotal: 300, WageP50: 90000},
	}
	p := NewStaticProvider(priors)

	row, err := p.Get(context.Background(), testKey(), 2023)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 100, row.EmploymentTotal)

	// Year mismatch behaves like a missing prior.
	row, err = p.Get(context.Background(), model.MetroRoleKey{MetroAreaID: "41860", CanonicalRoleID: "29-1141"}, 2023)
	require.NoError(t, err)
	assert.Nil(t, row)

	keys, err := p.Cells(context.Background(), 2023, 0, 0)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	capped, err := p.Cells(context.Background(), 2023, 1, 0)
	require.NoError(t, err)
	require.Len(t, capped, 1)
	assert.Equal(t, "35620", capped[0].MetroAreaID, "cells are sorted so the cap is deterministic")
}
