package orchestrator

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adsynchq/adsync-backend/internal/etl/normalizer"
	"github.com/adsynchq/adsync-backend/internal/warehouse/guard"
	"github.com/adsynchq/adsync-backend/internal/warehouse/loader"
	"github.com/adsynchq/adsync-backend/internal/warehouse/resolver"
	"github.com/adsynchq/adsync-backend/pkg/adsapi"
	"github.com/adsynchq/adsync-backend/pkg/db/models"
	"github.com/adsynchq/adsync-backend/pkg/enums"
)

// record is one insight row with upstream strings already parsed into
// warehouse-ready values. Attribute dimension values stay as names until
// the load stage resolves them against the warmed cache.
type record struct {
	DateKey   int
	AccountID string

	CampaignID   int64
	CampaignName string
	AdSetID      int64
	AdSetName    string
	AdID         int64
	AdName       string
	CreativeID   int64
	CreativeName string

	Spend       decimal.Decimal
	Impressions int64
	Clicks      int64
	Purchases   int64

	Video25 int64
	Video50 int64
	Video75 int64
	Video95 int64

	Age       string
	Gender    string
	Country   string
	Placement string

	Actions []normalizer.NormalizedAction
}

func parseRecords(rows []adsapi.InsightRow, norm *normalizer.Normalizer) []record {
	records := make([]record, 0, len(rows))
	for _, row := range rows {
		dateKey := dateKeyFromISO(row.DateStart)
		if dateKey <= 0 {
			// A fact without a real date has no grain to land on.
			continue
		}
		records = append(records, record{
			DateKey:      dateKey,
			AccountID:    strings.TrimSpace(row.AccountID),
			CampaignID:   resolver.EntityID(row.CampaignID),
			CampaignName: strings.TrimSpace(row.CampaignName),
			AdSetID:      resolver.EntityID(row.AdsetID),
			AdSetName:    strings.TrimSpace(row.AdsetName),
			AdID:         resolver.EntityID(row.AdID),
			AdName:       strings.TrimSpace(row.AdName),
			CreativeID:   resolver.EntityID(row.CreativeID),
			CreativeName: strings.TrimSpace(row.CreativeName),
			Spend:        parseDecimal(row.Spend),
			Impressions:  parseInt(row.Impressions),
			Clicks:       parseInt(row.Clicks),
			Purchases:    norm.TotalCount(row.Actions, enums.ActionPurchase),
			Video25:      normalizer.SumEntryValues(row.VideoP25Watched),
			Video50:      normalizer.SumEntryValues(row.VideoP50Watched),
			Video75:      normalizer.SumEntryValues(row.VideoP75Watched),
			Video95:      normalizer.SumEntryValues(row.VideoP95Watched),
			Age:          strings.TrimSpace(row.Age),
			Gender:       strings.TrimSpace(row.Gender),
			Country:      strings.TrimSpace(row.Country),
			Placement:    strings.TrimSpace(row.Placement),
			Actions:      norm.Normalize(row.Actions, row.ActionValues),
		})
	}
	return records
}

// dateKeyFromISO turns "2024-01-05" into 20240105. Unparseable dates
// yield 0; parseRecords drops those rows before they reach a batch.
func dateKeyFromISO(value string) int {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return parsed.Year()*10000 + int(parsed.Month())*100 + parsed.Day()
}

func parseInt(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseDecimal(raw string) decimal.Decimal {
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

func collectDateKeys(recordSets ...[]record) []int {
	var keys []int
	for _, records := range recordSets {
		for _, rec := range records {
			if rec.DateKey > 0 {
				keys = append(keys, rec.DateKey)
			}
		}
	}
	return keys
}

type entityMemberSet struct {
	Campaigns []guard.EntityMember
	AdSets    []guard.EntityMember
	Ads       []guard.EntityMember
	Creatives []guard.EntityMember
}

func collectEntityMembers(recordSets ...[]record) entityMemberSet {
	campaigns := map[int64]guard.EntityMember{}
	adsets := map[int64]guard.EntityMember{}
	ads := map[int64]guard.EntityMember{}
	creatives := map[int64]guard.EntityMember{}

	for _, records := range recordSets {
		for _, rec := range records {
			addMember(campaigns, rec.CampaignID, rec.CampaignName)
			addMember(adsets, rec.AdSetID, rec.AdSetName)
			addMember(ads, rec.AdID, rec.AdName)
			addMember(creatives, rec.CreativeID, rec.CreativeName)
		}
	}

	return entityMemberSet{
		Campaigns: memberList(campaigns),
		AdSets:    memberList(adsets),
		Ads:       memberList(ads),
		Creatives: memberList(creatives),
	}
}

func addMember(into map[int64]guard.EntityMember, id int64, name string) {
	if id == models.UnknownMemberKey || name == "" {
		return
	}
	if _, seen := into[id]; !seen {
		into[id] = guard.EntityMember{ID: id, Name: name}
	}
}

func memberList(members map[int64]guard.EntityMember) []guard.EntityMember {
	out := make([]guard.EntityMember, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return out
}

// collectAttributeNames gathers the distinct attribute values seen in a
// run so the guard can upsert new dimension members before facts load.
func collectAttributeNames(core, placement, ageGender, country []record) map[enums.DimensionKind][]string {
	names := map[enums.DimensionKind]map[string]bool{
		enums.DimensionPlacement:  {},
		enums.DimensionCountry:    {},
		enums.DimensionAgeGroup:   {},
		enums.DimensionGender:     {},
		enums.DimensionActionType: {},
	}

	for _, rec := range placement {
		markName(names[enums.DimensionPlacement], rec.Placement)
	}
	for _, rec := range country {
		markName(names[enums.DimensionCountry], rec.Country)
	}
	for _, rec := range ageGender {
		markName(names[enums.DimensionAgeGroup], rec.Age)
		markName(names[enums.DimensionGender], rec.Gender)
	}
	for _, rec := range core {
		for _, action := range rec.Actions {
			markName(names[enums.DimensionActionType], action.Type.String())
		}
	}

	out := make(map[enums.DimensionKind][]string, len(names))
	for kind, set := range names {
		list := make([]string, 0, len(set))
		for name := range set {
			list = append(list, name)
		}
		out[kind] = list
	}
	return out
}

func markName(into map[string]bool, name string) {
	if name = strings.TrimSpace(name); name != "" {
		into[name] = true
	}
}

func entityColumns(rec record) map[string]any {
	return map[string]any{
		"date_key":    rec.DateKey,
		"campaign_id": rec.CampaignID,
		"adset_id":    rec.AdSetID,
		"ad_id":       rec.AdID,
		"creative_id": rec.CreativeID,
		"account_id":  rec.AccountID,
	}
}

func buildCoreBatch(records []record) loader.Batch {
	batch := loader.CoreBatch()
	for _, rec := range records {
		row := entityColumns(rec)
		row["spend"] = rec.Spend
		row["impressions"] = rec.Impressions
		row["clicks"] = rec.Clicks
		row["purchases"] = rec.Purchases
		row["video_watch_p25"] = rec.Video25
		row["video_watch_p50"] = rec.Video50
		row["video_watch_p75"] = rec.Video75
		row["video_watch_p95"] = rec.Video95
		batch.Rows = append(batch.Rows, row)
	}
	return batch
}

func buildPlacementBatch(ctx context.Context, records []record, cache *resolver.Cache) loader.Batch {
	batch := loader.PlacementBatch()
	for _, rec := range records {
		row := entityColumns(rec)
		row["placement_key"] = cache.Resolve(ctx, enums.DimensionPlacement, rec.Placement)
		row["spend"] = rec.Spend
		row["impressions"] = rec.Impressions
		row["clicks"] = rec.Clicks
		batch.Rows = append(batch.Rows, row)
	}
	return batch
}

func buildAgeGenderBatch(ctx context.Context, records []record, cache *resolver.Cache) loader.Batch {
	batch := loader.AgeGenderBatch()
	for _, rec := range records {
		row := entityColumns(rec)
		row["age_group_key"] = cache.Resolve(ctx, enums.DimensionAgeGroup, rec.Age)
		row["gender_key"] = cache.Resolve(ctx, enums.DimensionGender, rec.Gender)
		row["spend"] = rec.Spend
		row["impressions"] = rec.Impressions
		row["clicks"] = rec.Clicks
		batch.Rows = append(batch.Rows, row)
	}
	return batch
}

func buildCountryBatch(ctx context.Context, records []record, cache *resolver.Cache) loader.Batch {
	batch := loader.CountryBatch()
	for _, rec := range records {
		row := entityColumns(rec)
		row["country_key"] = cache.Resolve(ctx, enums.DimensionCountry, rec.Country)
		row["spend"] = rec.Spend
		row["impressions"] = rec.Impressions
		row["clicks"] = rec.Clicks
		batch.Rows = append(batch.Rows, row)
	}
	return batch
}

func buildActionBatch(ctx context.Context, records []record, cache *resolver.Cache) loader.Batch {
	batch := loader.ActionBatch()
	for _, rec := range records {
		for _, action := range rec.Actions {
			row := entityColumns(rec)
			row["action_type_key"] = cache.Resolve(ctx, enums.DimensionActionType, action.Type.String())
			row["attribution_window"] = action.Window.String()
			row["count"] = action.Count
			row["value"] = action.Value
			batch.Rows = append(batch.Rows, row)
		}
	}
	return batch
}
