package evidence

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laborlens/archetype-cli/internal/config"
	"github.com/laborlens/archetype-cli/internal/model"
)

func defaultWeights() config.WeightsConfig {
	return config.WeightsConfig{
		Headcount: config.SourceWeights{Posting: 0.5, Visa: 2.0, Payroll: 3.0},
		Salary:    config.SourceWeights{Posting: 1.5, Visa: 4.0, Payroll: 5.0},
	}
}

func testKey() model.MetroRoleKey {
	return model.MetroRoleKey{MetroAreaID: "41860", CanonicalRoleID: "15-1252"}
}

func TestNewAggregator_NilPool(t *testing.T) {
	assert.Nil(t, NewAggregator(nil, defaultWeights(), 1.0))
}

func TestHeadcountEvidence_InvalidKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := NewAggregator(mock, defaultWeights(), 1.0)
	_, err = a.HeadcountEvidence(context.Background(), model.MetroRoleKey{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cell key")
}

func TestHeadcountEvidence_WeightsAndShares(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT company_id, source_type").
		WithArgs("41860", "15-1252").
		WillReturnRows(pgxmock.NewRows([]string{"company_id", "source_type", "count"}).
			AddRow("acme", "posting", 4).
			AddRow("acme", "visa", 3).
			AddRow("globex", "payroll", 2).
			AddRow("initech", "posting", 1),
		)

	a := NewAggregator(mock, defaultWeights(), 1.0)
	evidence, err := a.HeadcountEvidence(context.Background(), testKey())
	require.NoError(t, err)

	// acme: 4*0.5 + 3*2.0 = 8.0; globex: 2*3.0 = 6.0; initech: 1*0.5 = 0.5.
	// Cell total 14.5; initech falls below the 1.0 threshold.
	require.Len(t, evidence, 2)
	assert.Equal(t, "acme", evidence[0].CompanyID)
	assert.InDelta(t, 8.0, evidence[0].TotalWeightedEvidence, 0.0001)
	assert.InDelta(t, 8.0/14.5, evidence[0].EvidenceShare, 0.0001)
	assert.Equal(t, 4, evidence[0].PostingCount)
	assert.Equal(t, 3, evidence[0].VisaCount)

	assert.Equal(t, "globex", evidence[1].CompanyID)
	assert.InDelta(t, 6.0, evidence[1].TotalWeightedEvidence, 0.0001)
	assert.Equal(t, 2, evidence[1].PayrollCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHeadcountEvidence_AllBelowThreshold(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT company_id, source_type").
		WithArgs("41860", "15-1252").
		WillReturnRows(pgxmock.NewRows([]string{"company_id", "source_type", "count"}).
			AddRow("acme", "posting", 1),
		)

	a := NewAggregator(mock, defaultWeights(), 1.0)
	evidence, err := a.HeadcountEvidence(context.Background(), testKey())
	require.NoError(t, err)
	assert.Empty(t, evidence, "no company clears the minimum evidence threshold")
}

func TestHeadcountEvidence_UnknownSourceSkipped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT company_id, source_type").
		WithArgs("41860", "15-1252").
		WillReturnRows(pgxmock.NewRows([]string{"company_id", "source_type", "count"}).
			AddRow("acme", "carrier_pigeon", 50).
			AddRow("acme", "visa", 1),
		)

	a := NewAggregator(mock, defaultWeights(), 1.0)
	evidence, err := a.HeadcountEvidence(context.Background(), testKey())
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.InDelta(t, 2.0, evidence[0].TotalWeightedEvidence, 0.0001)
}

func TestHeadcountEvidence_EmptyCell(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT company_id, source_type").
		WithArgs("41860", "15-1252").
		WillReturnRows(pgxmock.NewRows([]string{"company_id", "source_type", "count"}))

	a := NewAggregator(mock, defaultWeights(), 1.0)
	evidence, err := a.HeadcountEvidence(context.Background(), testKey())
	require.NoError(t, err)
	assert.Nil(t, evidence)
}

func TestSalaryObservations_GroupedAndWeighted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	point := 120000.0
	low, high := 90000.0, 130000.0
	mock.ExpectQuery("SELECT company_id, source_type, salary_min").
		WithArgs("41860", "15-1252").
		WillReturnRows(pgxmock.NewRows([]string{"company_id", "source_type", "salary_min", "salary_max", "salary_point"}).
			AddRow("acme", "visa", nil, nil, &point).
			AddRow("acme", "posting", &low, &high, nil).
			AddRow("globex", "payroll", nil, nil, &point),
		)

	a := NewAggregator(mock, defaultWeights(), 1.0)
	obs, err := a.SalaryObservations(context.Background(), testKey())
	require.NoError(t, err)

	require.Len(t, obs["acme"], 2)
	require.Len(t, obs["globex"], 1)

	assert.Equal(t, model.SourceVisa, obs["acme"][0].SourceType)
	assert.Equal(t, 4.0, obs["acme"][0].Weight)
	assert.Equal(t, 120000.0, *obs["acme"][0].SalaryPoint)

	assert.Equal(t, model.SourcePosting, obs["acme"][1].SourceType)
	assert.Equal(t, 1.5, obs["acme"][1].Weight)
	assert.Equal(t, 90000.0, *obs["acme"][1].SalaryMin)

	assert.Equal(t, 5.0, obs["globex"][0].Weight)
	assert.NoError(t, mock.ExpectationsWereMet())
}
