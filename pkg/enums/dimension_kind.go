package enums

import (
	"fmt"
	"strings"
)

// DimensionKind identifies an attribute dimension resolved through the
// per-run lookup cache. Entity dimensions (campaign, adset, ad, creative)
// carry their upstream numeric ID and are not listed here.
type DimensionKind string

const (
	DimensionPlacement  DimensionKind = "placement"
	DimensionCountry    DimensionKind = "country"
	DimensionAgeGroup   DimensionKind = "age_group"
	DimensionGender     DimensionKind = "gender"
	DimensionActionType DimensionKind = "action_type"
)

var validDimensionKinds = []DimensionKind{
	DimensionPlacement,
	DimensionCountry,
	DimensionAgeGroup,
	DimensionGender,
	DimensionActionType,
}

// AllDimensionKinds returns every attribute dimension, in warm-up order.
func AllDimensionKinds() []DimensionKind {
	kinds := make([]DimensionKind, len(validDimensionKinds))
	copy(kinds, validDimensionKinds)
	return kinds
}

// String implements fmt.Stringer.
func (d DimensionKind) String() string {
	return string(d)
}

// IsValid reports whether the value is known.
func (d DimensionKind) IsValid() bool {
	for _, candidate := range validDimensionKinds {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDimensionKind converts raw input into a DimensionKind.
func ParseDimensionKind(value string) (DimensionKind, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validDimensionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dimension kind %q", value)
}
