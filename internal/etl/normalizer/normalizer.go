package normalizer

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/adsynchq/adsync-backend/pkg/adsapi"
	"github.com/adsynchq/adsync-backend/pkg/enums"
)

// NormalizedAction is one flattened (type, window) counter produced from
// the nested upstream action lists.
type NormalizedAction struct {
	Type   enums.ActionType
	Window enums.AttributionWindow
	Count  int64
	Value  decimal.Decimal
}

// Normalizer collapses raw upstream action-type strings into the
// canonical vocabulary and filters them through an allow-list. It is
// pure and safe for concurrent use.
type Normalizer struct {
	allow map[enums.ActionType]bool
}

// New builds a Normalizer retaining only the given canonical types. An
// empty allow-list keeps the full vocabulary.
func New(allowList []enums.ActionType) *Normalizer {
	if len(allowList) == 0 {
		allowList = enums.AllActionTypes()
	}
	allow := make(map[enums.ActionType]bool, len(allowList))
	for _, t := range allowList {
		allow[t] = true
	}
	return &Normalizer{allow: allow}
}

// CanonicalType maps a raw upstream action-type string to the canonical
// vocabulary. The mapping is a deliberately fuzzy substring classifier;
// unrecognized types report ok=false and are dropped by the caller.
func CanonicalType(raw string) (enums.ActionType, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case value == "":
		return "", false
	case strings.Contains(value, "purchase"):
		return enums.ActionPurchase, true
	case strings.Contains(value, "lead"):
		switch {
		case strings.Contains(value, "form"):
			return enums.ActionLeadForm, true
		case strings.Contains(value, "website"), strings.Contains(value, "offsite"):
			return enums.ActionLeadWebsite, true
		default:
			return enums.ActionLeadTotal, true
		}
	case strings.Contains(value, "add_to_cart"):
		return enums.ActionAddToCart, true
	case strings.Contains(value, "initiate_checkout"):
		return enums.ActionInitiateCheckout, true
	case strings.Contains(value, "complete_registration"):
		return enums.ActionCompleteRegistration, true
	case strings.Contains(value, "landing_page_view"):
		return enums.ActionLandingPageView, true
	default:
		return "", false
	}
}

type actionKey struct {
	Type   enums.ActionType
	Window enums.AttributionWindow
}

// Normalize flattens the nested action counters of one insight row into
// per-window records. Zero counts are dropped; monetary values are
// matched by canonical type and window and default to zero when the
// values list has no matching entry.
func (n *Normalizer) Normalize(actions, actionValues []adsapi.ActionEntry) []NormalizedAction {
	counts := make(map[actionKey]int64)
	var order []actionKey

	for _, entry := range actions {
		canonical, ok := CanonicalType(entry.ActionType)
		if !ok || !n.allow[canonical] {
			continue
		}
		for _, wc := range windowCounts(entry) {
			count := parseCount(wc.Raw)
			if count == 0 {
				continue
			}
			key := actionKey{Type: canonical, Window: wc.Window}
			if _, seen := counts[key]; !seen {
				order = append(order, key)
			}
			counts[key] += count
		}
	}

	values := make(map[actionKey]decimal.Decimal)
	for _, entry := range actionValues {
		canonical, ok := CanonicalType(entry.ActionType)
		if !ok || !n.allow[canonical] {
			continue
		}
		for _, wc := range windowCounts(entry) {
			amount := parseValue(wc.Raw)
			if amount.IsZero() {
				continue
			}
			key := actionKey{Type: canonical, Window: wc.Window}
			values[key] = values[key].Add(amount)
		}
	}

	out := make([]NormalizedAction, 0, len(order))
	for _, key := range order {
		out = append(out, NormalizedAction{
			Type:   key.Type,
			Window: key.Window,
			Count:  counts[key],
			Value:  values[key],
		})
	}
	return out
}

// TotalCount sums the aggregate counter of every entry collapsing to the
// target canonical type, regardless of attribution window.
func (n *Normalizer) TotalCount(actions []adsapi.ActionEntry, target enums.ActionType) int64 {
	var total int64
	for _, entry := range actions {
		canonical, ok := CanonicalType(entry.ActionType)
		if !ok || canonical != target {
			continue
		}
		total += parseCount(entry.Value)
	}
	return total
}

// SumEntryValues adds up the aggregate counters of a nested entry list,
// used for the video percentile watch counts.
func SumEntryValues(entries []adsapi.ActionEntry) int64 {
	var total int64
	for _, entry := range entries {
		total += parseCount(entry.Value)
	}
	return total
}

type windowCount struct {
	Window enums.AttributionWindow
	Raw    string
}

func windowCounts(entry adsapi.ActionEntry) []windowCount {
	return []windowCount{
		{enums.AttributionOneDayView, entry.OneDayView},
		{enums.AttributionOneDayClick, entry.OneDayClick},
		{enums.AttributionSevenDayClick, entry.SevenDayClick},
		{enums.AttributionTwentyEightDay, entry.TwentyEightDayClick},
	}
}

func parseCount(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	// The upstream occasionally reports counts as decimals ("3.0").
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseValue(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return amount
}
