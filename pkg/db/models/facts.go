package models

import "github.com/shopspring/decimal"

// FactCoreMetrics holds the additive daily measures at the
// {date, campaign, adset, ad, creative} grain.
type FactCoreMetrics struct {
	DateKey      int             `gorm:"column:date_key;primaryKey;autoIncrement:false"`
	CampaignID   int64           `gorm:"column:campaign_id;primaryKey;autoIncrement:false"`
	AdSetID      int64           `gorm:"column:adset_id;primaryKey;autoIncrement:false"`
	AdID         int64           `gorm:"column:ad_id;primaryKey;autoIncrement:false"`
	CreativeID   int64           `gorm:"column:creative_id;primaryKey;autoIncrement:false"`
	AccountID    string          `gorm:"column:account_id;not null;default:''"`
	Spend        decimal.Decimal `gorm:"column:spend;type:numeric(18,6);not null;default:0"`
	Impressions  int64           `gorm:"column:impressions;not null;default:0"`
	Clicks       int64           `gorm:"column:clicks;not null;default:0"`
	Purchases    int64           `gorm:"column:purchases;not null;default:0"`
	VideoWatch25 int64           `gorm:"column:video_watch_p25;not null;default:0"`
	VideoWatch50 int64           `gorm:"column:video_watch_p50;not null;default:0"`
	VideoWatch75 int64           `gorm:"column:video_watch_p75;not null;default:0"`
	VideoWatch95 int64           `gorm:"column:video_watch_p95;not null;default:0"`
}

func (FactCoreMetrics) TableName() string { return "fact_core_metrics" }

// FactPlacementMetrics extends the core grain with the placement dimension.
type FactPlacementMetrics struct {
	DateKey      int             `gorm:"column:date_key;primaryKey;autoIncrement:false"`
	CampaignID   int64           `gorm:"column:campaign_id;primaryKey;autoIncrement:false"`
	AdSetID      int64           `gorm:"column:adset_id;primaryKey;autoIncrement:false"`
	AdID         int64           `gorm:"column:ad_id;primaryKey;autoIncrement:false"`
	CreativeID   int64           `gorm:"column:creative_id;primaryKey;autoIncrement:false"`
	PlacementKey int64           `gorm:"column:placement_key;primaryKey;autoIncrement:false"`
	AccountID    string          `gorm:"column:account_id;not null;default:''"`
	Spend        decimal.Decimal `gorm:"column:spend;type:numeric(18,6);not null;default:0"`
	Impressions  int64           `gorm:"column:impressions;not null;default:0"`
	Clicks       int64           `gorm:"column:clicks;not null;default:0"`
}

func (FactPlacementMetrics) TableName() string { return "fact_placement_metrics" }

// FactAgeGenderMetrics extends the core grain with age and gender.
type FactAgeGenderMetrics struct {
	DateKey     int             `gorm:"column:date_key;primaryKey;autoIncrement:false"`
	CampaignID  int64           `gorm:"column:campaign_id;primaryKey;autoIncrement:false"`
	AdSetID     int64           `gorm:"column:adset_id;primaryKey;autoIncrement:false"`
	AdID        int64           `gorm:"column:ad_id;primaryKey;autoIncrement:false"`
	CreativeID  int64           `gorm:"column:creative_id;primaryKey;autoIncrement:false"`
	AgeGroupKey int64           `gorm:"column:age_group_key;primaryKey;autoIncrement:false"`
	GenderKey   int64           `gorm:"column:gender_key;primaryKey;autoIncrement:false"`
	AccountID   string          `gorm:"column:account_id;not null;default:''"`
	Spend       decimal.Decimal `gorm:"column:spend;type:numeric(18,6);not null;default:0"`
	Impressions int64           `gorm:"column:impressions;not null;default:0"`
	Clicks      int64           `gorm:"column:clicks;not null;default:0"`
}

func (FactAgeGenderMetrics) TableName() string { return "fact_age_gender_metrics" }

// FactCountryMetrics extends the core grain with the country dimension.
type FactCountryMetrics struct {
	DateKey     int             `gorm:"column:date_key;primaryKey;autoIncrement:false"`
	CampaignID  int64           `gorm:"column:campaign_id;primaryKey;autoIncrement:false"`
	AdSetID     int64           `gorm:"column:adset_id;primaryKey;autoIncrement:false"`
	AdID        int64           `gorm:"column:ad_id;primaryKey;autoIncrement:false"`
	CreativeID  int64           `gorm:"column:creative_id;primaryKey;autoIncrement:false"`
	CountryKey  int64           `gorm:"column:country_key;primaryKey;autoIncrement:false"`
	AccountID   string          `gorm:"column:account_id;not null;default:''"`
	Spend       decimal.Decimal `gorm:"column:spend;type:numeric(18,6);not null;default:0"`
	Impressions int64           `gorm:"column:impressions;not null;default:0"`
	Clicks      int64           `gorm:"column:clicks;not null;default:0"`
}

func (FactCountryMetrics) TableName() string { return "fact_country_metrics" }

// FactActionMetrics holds count and monetary value per normalized action
// type and attribution window.
type FactActionMetrics struct {
	DateKey           int             `gorm:"column:date_key;primaryKey;autoIncrement:false"`
	AccountID         string          `gorm:"column:account_id;primaryKey"`
	CampaignID        int64           `gorm:"column:campaign_id;primaryKey;autoIncrement:false"`
	AdSetID           int64           `gorm:"column:adset_id;primaryKey;autoIncrement:false"`
	AdID              int64           `gorm:"column:ad_id;primaryKey;autoIncrement:false"`
	CreativeID        int64           `gorm:"column:creative_id;primaryKey;autoIncrement:false"`
	ActionTypeKey     int64           `gorm:"column:action_type_key;primaryKey;autoIncrement:false"`
	AttributionWindow string          `gorm:"column:attribution_window;primaryKey"`
	Count             int64           `gorm:"column:count;not null;default:0"`
	Value             decimal.Decimal `gorm:"column:value;type:numeric(18,6);not null;default:0"`
}

func (FactActionMetrics) TableName() string { return "fact_action_metrics" }
