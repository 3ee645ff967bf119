package adsapi

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adsynchq/adsync-backend/pkg/enums"
)

const dateLayout = "2006-01-02"

var defaultFields = []string{
	"date_start", "date_stop", "account_id",
	"campaign_id", "campaign_name",
	"adset_id", "adset_name",
	"ad_id", "ad_name",
	"spend", "impressions", "clicks",
	"actions", "action_values",
	"video_p25_watched_actions", "video_p50_watched_actions",
	"video_p75_watched_actions", "video_p95_watched_actions",
}

// InsightsParams describes one insights request window.
type InsightsParams struct {
	AccountID string
	Since     time.Time
	Until     time.Time
	Breakdown enums.BreakdownGroup // zero value requests core metrics
	PageSize  int
}

func (p InsightsParams) breakdownFields() []string {
	switch p.Breakdown {
	case enums.BreakdownPlacement:
		return []string{"publisher_platform"}
	case enums.BreakdownAgeGender:
		return []string{"age", "gender"}
	case enums.BreakdownCountry:
		return []string{"country"}
	default:
		return nil
	}
}

func (p InsightsParams) query() (url.Values, error) {
	timeRange, err := json.Marshal(map[string]string{
		"since": p.Since.Format(dateLayout),
		"until": p.Until.Format(dateLayout),
	})
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("level", "ad")
	values.Set("time_increment", "1")
	values.Set("time_range", string(timeRange))
	values.Set("fields", strings.Join(defaultFields, ","))
	values.Set("action_breakdowns", "action_type")
	if breakdowns := p.breakdownFields(); len(breakdowns) > 0 {
		values.Set("breakdowns", strings.Join(breakdowns, ","))
	}
	if p.PageSize > 0 {
		values.Set("limit", strconv.Itoa(p.PageSize))
	}
	return values, nil
}
