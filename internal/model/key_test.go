package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetroRoleKey_String(t *testing.T) {
	key := MetroRoleKey{MetroAreaID: "41860", CanonicalRoleID: "software_engineer"}
	assert.Equal(t, "41860|software_engineer", key.String())
}

func TestMetroRoleKey_Valid(t *testing.T) {
	assert.True(t, MetroRoleKey{MetroAreaID: "41860", CanonicalRoleID: "x"}.Valid())
	assert.False(t, MetroRoleKey{MetroAreaID: "41860"}.Valid())
	assert.False(t, MetroRoleKey{CanonicalRoleID: "x"}.Valid())
	assert.False(t, MetroRoleKey{}.Valid())
}

func TestSourceType_Valid(t *testing.T) {
	for _, s := range SourceTypes() {
		assert.True(t, s.Valid())
	}
	assert.False(t, SourceType("scraped_guess").Valid())
	assert.False(t, SourceType("").Valid())
}

func TestRecordType_Valid(t *testing.T) {
	assert.True(t, RecordObserved.Valid())
	assert.True(t, RecordKnownEmployerInferred.Valid())
	assert.True(t, RecordCbpSynthetic.Valid())
	assert.False(t, RecordType("estimated").Valid())
}

func TestSalaryObservation_HasValue(t *testing.T) {
	v := 100000.0
	assert.True(t, SalaryObservation{SalaryPoint: &v}.HasValue())
	assert.True(t, SalaryObservation{SalaryMin: &v}.HasValue())
	assert.True(t, SalaryObservation{SalaryMax: &v}.HasValue())
	assert.False(t, SalaryObservation{}.HasValue())
}
