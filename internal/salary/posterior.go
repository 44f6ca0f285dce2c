// Package salary infers a company's posterior wage distribution by updating
// the macro OEWS prior with weighted company observations.
package salary

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/laborlens/archetype-cli/internal/config"
	"github.com/laborlens/archetype-cli/internal/model"
)

// Estimator implements conjugate normal updating with lognormal quantile
// reporting. The prior is Normal(wage_p50, (cv*wage_p50)^2) with effective
// sample size prior_effective_n.
type Estimator struct {
	priorEffectiveN float64
	priorCV         float64
	floor           float64
	ceiling         float64
}

// NewEstimator creates an estimator from engine configuration.
func NewEstimator(cfg config.EngineConfig) *Estimator {
	e := &Estimator{
		priorEffectiveN: cfg.PriorEffectiveN,
		priorCV:         cfg.PriorCV,
		floor:           cfg.SalaryFloor,
		ceiling:         cfg.SalaryCeiling,
	}
	if e.priorEffectiveN <= 0 {
		e.priorEffectiveN = 10.0
	}
	if e.priorCV <= 0 {
		e.priorCV = 0.25
	}
	if e.floor <= 0 {
		e.floor = 20_000
	}
	if e.ceiling <= e.floor {
		e.ceiling = 1_000_000
	}
	return e
}

// Estimate produces the posterior wage distribution for one company in one
// cell. With zero valid observations the prior percentiles are returned
// unchanged, which is how callers distinguish "no company signal" from
// "weak signal".
func (e *Estimator) Estimate(companyID string, prior model.OEWSPrior, obs []model.SalaryObservation) (model.SalaryEstimate, error) {
	if prior.WageP50 <= 0 {
		return model.SalaryEstimate{}, eris.Errorf("salary: prior median must be positive for %s", prior.Key())
	}

	muPrior := prior.WageP50
	sigmaPrior := muPrior * e.priorCV

	values, weights := e.reduce(companyID, prior.Key(), obs)

	est := model.SalaryEstimate{
		CompanyID:  companyID,
		Key:        prior.Key(),
		OEWSMedian: prior.WageP50,
		Method:     model.MethodBayesianShrinkage,
	}

	if len(values) == 0 {
		// Prior pass-through: the cell's macro distribution, untouched.
		est.P10 = prior.WageP10
		est.P25 = prior.WageP25
		est.P50 = prior.WageP50
		est.P75 = prior.WageP75
		est.P90 = prior.WageP90
		est.Mean = prior.WageMean
		if est.Mean <= 0 {
			est.Mean = prior.WageP50
		}
		est.StdDev = sigmaPrior
		est.ShrinkageFactor = 0.0
		return est, nil
	}

	var weightSum, weightedTotal float64
	for i, v := range values {
		weightSum += weights[i]
		weightedTotal += weights[i] * v
	}
	muObs := weightedTotal / weightSum
	nObs := weightSum

	sigmaObs := sigmaPrior
	if len(values) > 1 {
		if s := sampleStdDev(values); s > 0 {
			sigmaObs = s
		}
	}

	precisionPrior := e.priorEffectiveN / (sigmaPrior * sigmaPrior)
	precisionObs := nObs / (sigmaObs * sigmaObs)
	precisionPost := precisionPrior + precisionObs

	muPost := (precisionPrior*muPrior + precisionObs*muObs) / precisionPost
	sigmaPost := math.Sqrt(1 / precisionPost)

	// Salaries are non-negative, so report quantiles from a lognormal with
	// the posterior's first two moments.
	muLog, sigmaLog := lognormalParams(muPost, sigmaPost)
	ln := distuv.LogNormal{Mu: muLog, Sigma: sigmaLog}

	est.P10 = ln.Quantile(0.10)
	est.P25 = ln.Quantile(0.25)
	est.P50 = ln.Quantile(0.50)
	est.P75 = ln.Quantile(0.75)
	est.P90 = ln.Quantile(0.90)
	est.Mean = muPost
	est.StdDev = sigmaPost
	est.ObservationCount = len(values)
	est.EffectiveSampleSize = nObs
	est.ShrinkageFactor = precisionObs / precisionPost

	return est, nil
}

// reduce collapses each observation to a single point value, dropping
// observations with no figure or with values outside the sane range.
func (e *Estimator) reduce(companyID string, key model.MetroRoleKey, obs []model.SalaryObservation) (values, weights []float64) {
	for _, o := range obs {
		v, ok := reduceOne(o)
		if !ok {
			continue
		}
		if v < e.floor || v > e.ceiling {
			zap.L().Debug("salary: discarding degenerate observation",
				zap.String("company", companyID),
				zap.String("cell", key.String()),
				zap.String("source", string(o.SourceType)),
				zap.Float64("value", v),
			)
			continue
		}
		w := o.Weight
		if w <= 0 {
			w = 1.0
		}
		values = append(values, v)
		weights = append(weights, w)
	}
	return values, weights
}

func reduceOne(o model.SalaryObservation) (float64, bool) {
	switch {
	case o.SalaryPoint != nil:
		return *o.SalaryPoint, true
	case o.SalaryMin != nil && o.SalaryMax != nil:
		return (*o.SalaryMin + *o.SalaryMax) / 2, true
	case o.SalaryMin != nil:
		// One-sided range: assume the midpoint sits a bit above the floor.
		return *o.SalaryMin * 1.1, true
	case o.SalaryMax != nil:
		return *o.SalaryMax * 0.9, true
	default:
		return 0, false
	}
}

func sampleStdDev(values []float64) float64 {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / (n - 1))
}

// lognormalParams moment-matches a lognormal to the given mean and standard
// deviation.
func lognormalParams(mean, stddev float64) (mu, sigma float64) {
	cv2 := (stddev * stddev) / (mean * mean)
	sigma2 := math.Log(1 + cv2)
	mu = math.Log(mean) - sigma2/2
	return mu, math.Sqrt(sigma2)
}
