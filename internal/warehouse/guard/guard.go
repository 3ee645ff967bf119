package guard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adsynchq/adsync-backend/internal/warehouse/loader"
	"github.com/adsynchq/adsync-backend/pkg/db/models"
	"github.com/adsynchq/adsync-backend/pkg/enums"
	pkgerrors "github.com/adsynchq/adsync-backend/pkg/errors"
	"github.com/adsynchq/adsync-backend/pkg/logger"
)

const dateKeyLayout = "20060102"

// Guard makes sure every dimension key a fact batch references exists
// before the fact load runs. Its methods are called sequentially by the
// orchestrator; none of them is safe for concurrent use on the same
// tables.
type Guard struct {
	db     *gorm.DB
	loader *loader.Loader
	logger *logger.Logger
}

func New(db *gorm.DB, ldr *loader.Loader, logg *logger.Logger) (*Guard, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db handle is required")
	}
	if ldr == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loader is required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &Guard{db: db, loader: ldr, logger: logg}, nil
}

// EnsureDates inserts a dim_date row for every key in the batch that
// does not exist yet. A failure here aborts the whole run: facts cannot
// be loaded without their date parent.
func (g *Guard) EnsureDates(ctx context.Context, dateKeys []int) error {
	distinct := distinctDateKeys(dateKeys)
	if len(distinct) == 0 {
		return nil
	}

	var existing []int
	err := g.db.WithContext(ctx).
		Model(&models.DimDate{}).
		Where("date_key IN ?", distinct).
		Pluck("date_key", &existing).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeFatal, err, "query existing date keys")
	}

	present := make(map[int]bool, len(existing))
	for _, key := range existing {
		present[key] = true
	}

	var missing []models.DimDate
	for _, key := range distinct {
		if present[key] {
			continue
		}
		record, err := dateFromKey(key)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeFatal, err, "derive date record")
		}
		missing = append(missing, record)
	}
	if len(missing) == 0 {
		return nil
	}

	err = g.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&missing).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeFatal, err, "insert missing date rows")
	}

	g.logger.Info(g.logger.WithField(ctx, "dates", len(missing)), "preloaded missing date dimension rows")
	return nil
}

func distinctDateKeys(keys []int) []int {
	seen := make(map[int]bool, len(keys))
	distinct := make([]int, 0, len(keys))
	for _, key := range keys {
		if key <= 0 || seen[key] {
			continue
		}
		seen[key] = true
		distinct = append(distinct, key)
	}
	sort.Ints(distinct)
	return distinct
}

func dateFromKey(key int) (models.DimDate, error) {
	parsed, err := time.Parse(dateKeyLayout, fmt.Sprintf("%08d", key))
	if err != nil {
		return models.DimDate{}, fmt.Errorf("date key %d: %w", key, err)
	}
	return models.DimDate{
		DateKey:   key,
		FullDate:  parsed,
		Year:      parsed.Year(),
		Month:     int(parsed.Month()),
		Day:       parsed.Day(),
		DayOfWeek: int(parsed.Weekday()),
	}, nil
}

type sentinelTarget struct {
	table  string
	keyCol string
	row    map[string]any
}

func sentinelTargets() []sentinelTarget {
	epoch, _ := time.Parse(dateKeyLayout, "19700101")
	return []sentinelTarget{
		{models.DimDate{}.TableName(), "date_key", map[string]any{
			"date_key": 0, "full_date": epoch, "year": 1970, "month": 1, "day": 1, "day_of_week": 4,
		}},
		{models.DimCampaign{}.TableName(), "campaign_id", map[string]any{"campaign_id": 0, "name": "unknown"}},
		{models.DimAdSet{}.TableName(), "adset_id", map[string]any{"adset_id": 0, "name": "unknown"}},
		{models.DimAd{}.TableName(), "ad_id", map[string]any{"ad_id": 0, "name": "unknown"}},
		{models.DimCreative{}.TableName(), "creative_id", map[string]any{"creative_id": 0, "name": "unknown"}},
		{models.DimPlacement{}.TableName(), "placement_key", map[string]any{"placement_key": 0, "name": "unknown"}},
		{models.DimCountry{}.TableName(), "country_key", map[string]any{"country_key": 0, "name": "unknown"}},
		{models.DimAgeGroup{}.TableName(), "age_group_key", map[string]any{"age_group_key": 0, "name": "unknown"}},
		{models.DimGender{}.TableName(), "gender_key", map[string]any{"gender_key": 0, "name": "unknown"}},
		{models.DimActionType{}.TableName(), "action_type_key", map[string]any{"action_type_key": 0, "name": "unknown"}},
	}
}

// EnsureUnknownMembers inserts the reserved key 0 row into every
// dimension table that is missing it. Check-then-insert is safe here
// only because dimension loads never run concurrently.
func (g *Guard) EnsureUnknownMembers(ctx context.Context) error {
	for _, target := range sentinelTargets() {
		var count int64
		err := g.db.WithContext(ctx).
			Table(target.table).
			Where(target.keyCol+" = ?", models.UnknownMemberKey).
			Count(&count).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("check sentinel in %s", target.table))
		}
		if count > 0 {
			continue
		}
		if err := g.db.WithContext(ctx).Table(target.table).Create(target.row).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("insert sentinel into %s", target.table))
		}
	}
	return nil
}

// EntityMember is a distinct (id, name) pair observed in a fetch batch.
type EntityMember struct {
	ID     int64
	Name   string
	Status string
}

// DiscoverEntities upserts campaign/adset/ad/creative members seen in
// the batch ahead of the fact load. Members carrying the reserved key
// are skipped by the loader's dimension filter.
func (g *Guard) DiscoverEntities(ctx context.Context, table, keyCol string, members []EntityMember) error {
	if len(members) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(members))
	for _, m := range members {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		row := map[string]any{keyCol: m.ID, "name": name, "updated_at": time.Now().UTC()}
		if m.Status != "" {
			row["status"] = m.Status
		}
		rows = append(rows, row)
	}

	_, err := g.loader.Load(ctx, loader.Batch{
		Table:     table,
		Dimension: true,
		GrainCols: []string{keyCol},
		Rows:      rows,
	})
	return err
}

// DiscoverAttributes upserts attribute dimension members by natural
// name, deduplicated, leaving surrogate key assignment to the table.
func (g *Guard) DiscoverAttributes(ctx context.Context, kind enums.DimensionKind, names []string) error {
	table, ok := attributeTables[kind]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown attribute dimension %q", kind))
	}

	seen := make(map[string]bool, len(names))
	rows := make([]map[string]any, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || name == "unknown" || seen[name] {
			continue
		}
		seen[name] = true
		rows = append(rows, map[string]any{"name": name})
	}

	_, err := g.loader.Load(ctx, loader.Batch{
		Table:     table,
		Dimension: true,
		GrainCols: []string{"name"},
		Rows:      rows,
	})
	return err
}

var attributeTables = map[enums.DimensionKind]string{
	enums.DimensionPlacement:  models.DimPlacement{}.TableName(),
	enums.DimensionCountry:    models.DimCountry{}.TableName(),
	enums.DimensionAgeGroup:   models.DimAgeGroup{}.TableName(),
	enums.DimensionGender:     models.DimGender{}.TableName(),
	enums.DimensionActionType: models.DimActionType{}.TableName(),
}
