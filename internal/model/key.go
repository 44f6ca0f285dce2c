// Package model defines the core data types for the archetype inference engine.
package model

import "fmt"

// MetroRoleKey identifies one labor-market cell: a metro area crossed with a
// canonical job role. It is the unit of work for the whole engine.
type MetroRoleKey struct {
	MetroAreaID     string `json:"metro_area_id"`     // CBSA code, e.g. "41860"
	CanonicalRoleID string `json:"canonical_role_id"` // SOC-derived role code, e.g. "15-1252"
}

// String returns the canonical "metro|role" form used in logs and seeds.
func (k MetroRoleKey) String() string {
	return fmt.Sprintf("%s|%s", k.MetroAreaID, k.CanonicalRoleID)
}

// Valid reports whether both components are present.
func (k MetroRoleKey) Valid() bool {
	return k.MetroAreaID != "" && k.CanonicalRoleID != ""
}
