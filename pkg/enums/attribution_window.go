package enums

import (
	"fmt"
	"strings"
)

// AttributionWindow is the horizon over which an action is credited to an ad.
type AttributionWindow string

const (
	AttributionOneDayView     AttributionWindow = "1d_view"
	AttributionOneDayClick    AttributionWindow = "1d_click"
	AttributionSevenDayClick  AttributionWindow = "7d_click"
	AttributionTwentyEightDay AttributionWindow = "28d_click"
)

var validAttributionWindows = []AttributionWindow{
	AttributionOneDayView,
	AttributionOneDayClick,
	AttributionSevenDayClick,
	AttributionTwentyEightDay,
}

// AllAttributionWindows returns every tracked attribution window.
func AllAttributionWindows() []AttributionWindow {
	windows := make([]AttributionWindow, len(validAttributionWindows))
	copy(windows, validAttributionWindows)
	return windows
}

// String implements fmt.Stringer.
func (a AttributionWindow) String() string {
	return string(a)
}

// IsValid reports whether the value is known.
func (a AttributionWindow) IsValid() bool {
	for _, candidate := range validAttributionWindows {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAttributionWindow converts raw input into an AttributionWindow.
func ParseAttributionWindow(value string) (AttributionWindow, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validAttributionWindows {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid attribution window %q", value)
}
