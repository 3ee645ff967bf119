package enums

import (
	"fmt"
	"strings"
)

// RunStatus summarizes a completed (or in-flight) sync run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusAborted   RunStatus = "aborted"
)

var validRunStatuses = []RunStatus{
	RunStatusRunning,
	RunStatusSucceeded,
	RunStatusPartial,
	RunStatusAborted,
}

// String implements fmt.Stringer.
func (s RunStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s RunStatus) IsValid() bool {
	for _, candidate := range validRunStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRunStatus converts raw input into a RunStatus.
func ParseRunStatus(value string) (RunStatus, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validRunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid run status %q", value)
}
