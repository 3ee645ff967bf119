package adsapi

// ActionEntry is one nested action counter on an insight row. The upstream
// API reports every numeric field as a string and splits counts per
// attribution window.
type ActionEntry struct {
	ActionType          string `json:"action_type"`
	Value               string `json:"value"`
	OneDayView          string `json:"1d_view"`
	OneDayClick         string `json:"1d_click"`
	SevenDayClick       string `json:"7d_click"`
	TwentyEightDayClick string `json:"28d_click"`
}

// InsightRow is one daily performance row returned by the insights endpoint.
// Breakdown fields are only populated when the matching breakdown was
// requested.
type InsightRow struct {
	DateStart    string `json:"date_start"`
	DateStop     string `json:"date_stop"`
	AccountID    string `json:"account_id"`
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	AdsetID      string `json:"adset_id"`
	AdsetName    string `json:"adset_name"`
	AdID         string `json:"ad_id"`
	AdName       string `json:"ad_name"`
	CreativeID   string `json:"creative_id"`
	CreativeName string `json:"creative_name"`

	Spend       string `json:"spend"`
	Impressions string `json:"impressions"`
	Clicks      string `json:"clicks"`

	Actions      []ActionEntry `json:"actions"`
	ActionValues []ActionEntry `json:"action_values"`

	VideoP25Watched []ActionEntry `json:"video_p25_watched_actions"`
	VideoP50Watched []ActionEntry `json:"video_p50_watched_actions"`
	VideoP75Watched []ActionEntry `json:"video_p75_watched_actions"`
	VideoP95Watched []ActionEntry `json:"video_p95_watched_actions"`

	Age       string `json:"age"`
	Gender    string `json:"gender"`
	Country   string `json:"country"`
	Placement string `json:"publisher_platform"`
}

type insightsPage struct {
	Data   []InsightRow `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message     string `json:"message"`
	Code        int    `json:"code"`
	Subcode     int    `json:"error_subcode"`
	IsTransient bool   `json:"is_transient"`
}
