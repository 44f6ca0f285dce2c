package salary

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laborlens/archetype-cli/internal/config"
	"github.com/laborlens/archetype-cli/internal/model"
)

func testPrior() model.OEWSPrior {
	return model.OEWSPrior{
		MetroAreaID:     "41860",
		CanonicalRoleID: "15-1252",
		Year:            2023,
		EmploymentTotal: 50000,
		WageP10:         52_000,
		WageP25:         64_000,
		WageP50:         80_000,
		WageP75:         101_000,
		WageP90:         128_000,
		WageMean:        86_500,
	}
}

func newTestEstimator() *Estimator {
	return NewEstimator(config.EngineConfig{
		PriorEffectiveN: 10.0,
		PriorCV:         0.25,
		SalaryFloor:     20_000,
		SalaryCeiling:   1_000_000,
	})
}

func fp(v float64) *float64 { return &v }

func TestEstimate_InvalidPrior(t *testing.T) {
	e := newTestEstimator()
	prior := testPrior()
	prior.WageP50 = 0
	_, err := e.Estimate("acme", prior, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prior median must be positive")
}

func TestEstimate_NoObservations(t *testing.T) {
	e := newTestEstimator()
	prior := testPrior()

	est, err := e.Estimate("acme", prior, nil)
	require.NoError(t, err)

	// Round-trip property: zero observations return the prior unchanged.
	assert.Equal(t, prior.WageP10, est.P10)
	assert.Equal(t, prior.WageP25, est.P25)
	assert.Equal(t, prior.WageP50, est.P50)
	assert.Equal(t, prior.WageP75, est.P75)
	assert.Equal(t, prior.WageP90, est.P90)
	assert.Equal(t, prior.WageMean, est.Mean)
	assert.Equal(t, 0, est.ObservationCount)
	assert.Equal(t, 0.0, est.EffectiveSampleSize)
	// precision_obs is zero with no observations, so no posterior certainty
	// is data-attributable.
	assert.Equal(t, 0.0, est.ShrinkageFactor)
	assert.Equal(t, model.MethodBayesianShrinkage, est.Method)
}

func TestEstimate_AllObservationsDegenerate(t *testing.T) {
	e := newTestEstimator()
	obs := []model.SalaryObservation{
		{CompanyID: "acme", SourceType: model.SourcePosting, SalaryPoint: fp(5_000), Weight: 1.5},
		{CompanyID: "acme", SourceType: model.SourcePayroll, SalaryPoint: fp(3_000_000), Weight: 5.0},
		{CompanyID: "acme", SourceType: model.SourceVisa, Weight: 4.0}, // no value at all
	}

	est, err := e.Estimate("acme", testPrior(), obs)
	require.NoError(t, err)
	assert.Equal(t, testPrior().WageP50, est.P50)
	assert.Equal(t, 0, est.ObservationCount)
	assert.Equal(t, 0.0, est.ShrinkageFactor)
}

// A single $100k payroll observation against an $80k prior median must pull
// the posterior strictly between the two.
func TestEstimate_SingleObservationScenario(t *testing.T) {
	e := newTestEstimator()
	obs := []model.SalaryObservation{
		{CompanyID: "acme", SourceType: model.SourcePayroll, SalaryPoint: fp(100_000), Weight: 5.0},
	}

	est, err := e.Estimate("acme", testPrior(), obs)
	require.NoError(t, err)

	assert.Greater(t, est.ShrinkageFactor, 0.0)
	assert.Less(t, est.ShrinkageFactor, 1.0)
	assert.Greater(t, est.P50, 80_000.0)
	assert.Less(t, est.P50, 100_000.0)
	assert.Equal(t, 1, est.ObservationCount)
	assert.Equal(t, 5.0, est.EffectiveSampleSize)
	assert.Equal(t, 80_000.0, est.OEWSMedian)
}

func TestEstimate_PercentilesMonotone(t *testing.T) {
	e := newTestEstimator()
	obs := []model.SalaryObservation{
		{CompanyID: "acme", SourceType: model.SourcePayroll, SalaryPoint: fp(95_000), Weight: 5.0},
		{CompanyID: "acme", SourceType: model.SourceVisa, SalaryPoint: fp(110_000), Weight: 4.0},
		{CompanyID: "acme", SourceType: model.SourcePosting, SalaryMin: fp(90_000), SalaryMax: fp(130_000), Weight: 1.5},
	}

	est, err := e.Estimate("acme", testPrior(), obs)
	require.NoError(t, err)

	assert.LessOrEqual(t, est.P10, est.P25)
	assert.LessOrEqual(t, est.P25, est.P50)
	assert.LessOrEqual(t, est.P50, est.P75)
	assert.LessOrEqual(t, est.P75, est.P90)
	assert.Greater(t, est.P10, 0.0)
}

func TestEstimate_MoreEvidenceMoreShrinkage(t *testing.T) {
	e := newTestEstimator()

	one := []model.SalaryObservation{
		{CompanyID: "acme", SourceType: model.SourcePosting, SalaryPoint: fp(100_000), Weight: 1.5},
	}
	weak, err := e.Estimate("acme", testPrior(), one)
	require.NoError(t, err)

	heavy := []model.SalaryObservation{
		{CompanyID: "acme", SourceType: model.SourcePayroll, SalaryPoint: fp(100_000), Weight: 5.0},
		{CompanyID: "acme", SourceType: model.SourcePayroll, SalaryPoint: fp(101_000), Weight: 5.0},
		{CompanyID: "acme", SourceType: model.SourceVisa, SalaryPoint: fp(99_000), Weight: 4.0},
	}
	strong, err := e.Estimate("acme", testPrior(), heavy)
	require.NoError(t, err)

	assert.Greater(t, strong.ShrinkageFactor, weak.ShrinkageFactor)
	assert.Greater(t, strong.P50, weak.P50, "more high observations pull the posterior further from the prior")
}

func TestReduceOne(t *testing.T) {
	tests := []struct {
		name string
		obs  model.SalaryObservation
		want float64
		ok   bool
	}{
		{"point wins", model.SalaryObservation{SalaryPoint: fp(90_000), SalaryMin: fp(50_000)}, 90_000, true},
		{"range midpoint", model.SalaryObservation{SalaryMin: fp(80_000), SalaryMax: fp(120_000)}, 100_000, true},
		{"min only", model.SalaryObservation{SalaryMin: fp(100_000)}, 110_000, true},
		{"max only", model.SalaryObservation{SalaryMax: fp(100_000)}, 90_000, true},
		{"empty", model.SalaryObservation{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := reduceOne(tt.obs)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestSampleStdDev(t *testing.T) {
	assert.InDelta(t, 1.0, sampleStdDev([]float64{1, 2, 3}), 0.001)
	assert.Equal(t, 0.0, sampleStdDev([]float64{5, 5, 5}))
}

func TestLognormalParams_MomentMatch(t *testing.T) {
	mu, sigma := lognormalParams(100_000, 10_000)
	// Lognormal mean = exp(mu + sigma^2/2) should recover the input mean.
	meanBack := math.Exp(mu + sigma*sigma/2)
	assert.InDelta(t, 100_000, meanBack, 1)
}
