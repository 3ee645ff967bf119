package loader

import "github.com/adsynchq/adsync-backend/pkg/db/models"

var entityGrain = []string{"date_key", "campaign_id", "adset_id", "ad_id", "creative_id"}

var coreAdditive = []string{
	"spend", "impressions", "clicks", "purchases",
	"video_watch_p25", "video_watch_p50", "video_watch_p75", "video_watch_p95",
}

var breakdownAdditive = []string{"spend", "impressions", "clicks"}

// CoreBatch returns an empty batch bound to the core fact table's grain.
func CoreBatch() Batch {
	return Batch{
		Table:        models.FactCoreMetrics{}.TableName(),
		GrainCols:    entityGrain,
		AdditiveCols: coreAdditive,
	}
}

func PlacementBatch() Batch {
	return Batch{
		Table:        models.FactPlacementMetrics{}.TableName(),
		GrainCols:    append(append([]string{}, entityGrain...), "placement_key"),
		AdditiveCols: breakdownAdditive,
	}
}

func AgeGenderBatch() Batch {
	return Batch{
		Table:        models.FactAgeGenderMetrics{}.TableName(),
		GrainCols:    append(append([]string{}, entityGrain...), "age_group_key", "gender_key"),
		AdditiveCols: breakdownAdditive,
	}
}

func CountryBatch() Batch {
	return Batch{
		Table:        models.FactCountryMetrics{}.TableName(),
		GrainCols:    append(append([]string{}, entityGrain...), "country_key"),
		AdditiveCols: breakdownAdditive,
	}
}

func ActionBatch() Batch {
	return Batch{
		Table: models.FactActionMetrics{}.TableName(),
		GrainCols: []string{
			"date_key", "account_id", "campaign_id", "adset_id",
			"ad_id", "creative_id", "action_type_key", "attribution_window",
		},
		AdditiveCols: []string{"count", "value"},
	}
}
