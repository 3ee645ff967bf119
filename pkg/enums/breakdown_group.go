package enums

import (
	"fmt"
	"strings"
)

// BreakdownGroup names a grouping dimension requested alongside core
// metrics. Each breakdown group loads into its own fact table.
type BreakdownGroup string

const (
	BreakdownPlacement BreakdownGroup = "placement"
	BreakdownAgeGender BreakdownGroup = "age_gender"
	BreakdownCountry   BreakdownGroup = "country"
)

var validBreakdownGroups = []BreakdownGroup{
	BreakdownPlacement,
	BreakdownAgeGender,
	BreakdownCountry,
}

// AllBreakdownGroups returns every supported breakdown group.
func AllBreakdownGroups() []BreakdownGroup {
	groups := make([]BreakdownGroup, len(validBreakdownGroups))
	copy(groups, validBreakdownGroups)
	return groups
}

// String implements fmt.Stringer.
func (b BreakdownGroup) String() string {
	return string(b)
}

// IsValid reports whether the value is known.
func (b BreakdownGroup) IsValid() bool {
	for _, candidate := range validBreakdownGroups {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBreakdownGroup converts raw input into a BreakdownGroup.
func ParseBreakdownGroup(value string) (BreakdownGroup, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validBreakdownGroups {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid breakdown group %q", value)
}
