package engine

import (
	"math"

	"github.com/laborlens/archetype-cli/internal/model"
)

// Per-tier confidence caps keep the ordering
// observed > known-employer-inferred > synthetic regardless of bumps.
const (
	observedCap  = 0.95
	inferredCap  = 0.80
	syntheticCap = 0.40
	floorConf    = 0.05
)

// compositeConfidence scores one archetype from its tier base plus bounded
// bumps for evidence volume and salary shrinkage.
func compositeConfidence(rt model.RecordType, evidenceScore, shrinkage float64) float64 {
	var confidence, ceiling float64
	switch rt {
	case model.RecordObserved:
		confidence, ceiling = 0.9, observedCap
	case model.RecordKnownEmployerInferred:
		confidence, ceiling = 0.55, inferredCap
	case model.RecordCbpSynthetic:
		confidence, ceiling = 0.3, syntheticCap
	default:
		return floorConf
	}

	if evidenceScore >= 5 {
		confidence += 0.05
	}
	if evidenceScore >= 20 {
		confidence += 0.05
	}
	confidence += 0.1 * shrinkage

	confidence = math.Min(confidence, ceiling)
	return math.Max(confidence, floorConf)
}
