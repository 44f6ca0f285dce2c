package oews

import (
	"strconv"
	"strings"
)

// mapColumns builds a case-insensitive column name to index map.
func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return m
}

// getCol gets a column value by name from a record, returning empty string if not found.
func getCol(record []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[strings.ToLower(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}

// trimQuotes removes surrounding double quotes from a field.
func trimQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

// suppressed reports whether the field carries a BLS suppression flag.
func suppressed(s string) bool {
	switch s {
	case "", "*", "**", "#":
		return true
	}
	return false
}

// parseEmployment parses a tot_emp field. BLS uses thousands separators and
// suppression flags; suppressed values return ok=false.
func parseEmployment(s string) (int, bool) {
	s = trimQuotes(s)
	if suppressed(s) {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

// parseWage parses an annual wage field, returning 0 for suppressed values.
// "#" marks wages above the BLS top-code threshold and is treated as missing.
func parseWage(s string) float64 {
	s = trimQuotes(s)
	if suppressed(s) {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
