package enums

import (
	"fmt"
	"strings"
)

// RunStage names a pipeline state. Transitions follow
// init → fetch_core/fetch_breakdowns → normalize → resolve_dimensions →
// guard_integrity → load_facts → done, with failed reachable from any stage.
type RunStage string

const (
	StageInit              RunStage = "init"
	StageFetchCore         RunStage = "fetch_core"
	StageFetchBreakdowns   RunStage = "fetch_breakdowns"
	StageNormalize         RunStage = "normalize"
	StageResolveDimensions RunStage = "resolve_dimensions"
	StageGuardIntegrity    RunStage = "guard_integrity"
	StageLoadFacts         RunStage = "load_facts"
	StageDone              RunStage = "done"
	StageFailed            RunStage = "failed"
)

var validRunStages = []RunStage{
	StageInit,
	StageFetchCore,
	StageFetchBreakdowns,
	StageNormalize,
	StageResolveDimensions,
	StageGuardIntegrity,
	StageLoadFacts,
	StageDone,
	StageFailed,
}

// String implements fmt.Stringer.
func (s RunStage) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s RunStage) IsValid() bool {
	for _, candidate := range validRunStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRunStage converts raw input into a RunStage.
func ParseRunStage(value string) (RunStage, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validRunStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid run stage %q", value)
}
