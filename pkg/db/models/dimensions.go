package models

import "time"

// UnknownMemberKey is the reserved surrogate key present in every dimension
// table. Fact rows reference it whenever the true dimension value is missing
// or unmapped.
const UnknownMemberKey = 0

// DimDate is the calendar dimension keyed by a YYYYMMDD integer.
type DimDate struct {
	DateKey   int       `gorm:"column:date_key;primaryKey"`
	FullDate  time.Time `gorm:"column:full_date;not null"`
	Year      int       `gorm:"column:year;not null"`
	Month     int       `gorm:"column:month;not null"`
	Day       int       `gorm:"column:day;not null"`
	DayOfWeek int       `gorm:"column:day_of_week;not null"`
}

func (DimDate) TableName() string { return "dim_date" }

// DimCampaign is an entity dimension; its key is the upstream campaign ID.
type DimCampaign struct {
	CampaignID int64     `gorm:"column:campaign_id;primaryKey"`
	AccountID  string    `gorm:"column:account_id;not null;default:''"`
	Name       string    `gorm:"column:name;not null"`
	Status     string    `gorm:"column:status;not null;default:''"`
	Objective  string    `gorm:"column:objective;not null;default:''"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DimCampaign) TableName() string { return "dim_campaign" }

// DimAdSet is an entity dimension keyed by the upstream adset ID.
type DimAdSet struct {
	AdSetID    int64     `gorm:"column:adset_id;primaryKey"`
	CampaignID int64     `gorm:"column:campaign_id;not null;default:0"`
	Name       string    `gorm:"column:name;not null"`
	Status     string    `gorm:"column:status;not null;default:''"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DimAdSet) TableName() string { return "dim_adset" }

// DimAd is an entity dimension keyed by the upstream ad ID.
type DimAd struct {
	AdID      int64     `gorm:"column:ad_id;primaryKey"`
	AdSetID   int64     `gorm:"column:adset_id;not null;default:0"`
	Name      string    `gorm:"column:name;not null"`
	Status    string    `gorm:"column:status;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DimAd) TableName() string { return "dim_ad" }

// DimCreative is an entity dimension keyed by the upstream creative ID.
type DimCreative struct {
	CreativeID int64     `gorm:"column:creative_id;primaryKey"`
	Name       string    `gorm:"column:name;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DimCreative) TableName() string { return "dim_creative" }

// DimPlacement is an attribute dimension keyed by a generated surrogate ID;
// the placement name is the unique business key.
type DimPlacement struct {
	PlacementKey int64  `gorm:"column:placement_key;primaryKey;autoIncrement"`
	Name         string `gorm:"column:name;uniqueIndex;not null"`
}

func (DimPlacement) TableName() string { return "dim_placement" }

// DimCountry is an attribute dimension keyed by a generated surrogate ID;
// the ISO country code is the unique business key.
type DimCountry struct {
	CountryKey int64  `gorm:"column:country_key;primaryKey;autoIncrement"`
	Name       string `gorm:"column:name;uniqueIndex;not null"`
}

func (DimCountry) TableName() string { return "dim_country" }

// DimAgeGroup is an attribute dimension for upstream age buckets ("25-34").
type DimAgeGroup struct {
	AgeGroupKey int64  `gorm:"column:age_group_key;primaryKey;autoIncrement"`
	Name        string `gorm:"column:name;uniqueIndex;not null"`
}

func (DimAgeGroup) TableName() string { return "dim_age_group" }

// DimGender is an attribute dimension for upstream gender values.
type DimGender struct {
	GenderKey int64  `gorm:"column:gender_key;primaryKey;autoIncrement"`
	Name      string `gorm:"column:name;uniqueIndex;not null"`
}

func (DimGender) TableName() string { return "dim_gender" }

// DimActionType holds the canonical action vocabulary.
type DimActionType struct {
	ActionTypeKey int64  `gorm:"column:action_type_key;primaryKey;autoIncrement"`
	Name          string `gorm:"column:name;uniqueIndex;not null"`
}

func (DimActionType) TableName() string { return "dim_action_type" }
