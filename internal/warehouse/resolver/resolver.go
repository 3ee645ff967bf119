package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/adsynchq/adsync-backend/pkg/db/models"
	"github.com/adsynchq/adsync-backend/pkg/enums"
	pkgerrors "github.com/adsynchq/adsync-backend/pkg/errors"
	"github.com/adsynchq/adsync-backend/pkg/logger"
)

type dimensionTable struct {
	table  string
	keyCol string
}

var tablesByKind = map[enums.DimensionKind]dimensionTable{
	enums.DimensionPlacement:  {models.DimPlacement{}.TableName(), "placement_key"},
	enums.DimensionCountry:    {models.DimCountry{}.TableName(), "country_key"},
	enums.DimensionAgeGroup:   {models.DimAgeGroup{}.TableName(), "age_group_key"},
	enums.DimensionGender:     {models.DimGender{}.TableName(), "gender_key"},
	enums.DimensionActionType: {models.DimActionType{}.TableName(), "action_type_key"},
}

// Cache maps attribute dimension names to their surrogate keys for one
// run. It is warmed once, read concurrently after that, and discarded
// when the run ends. Never share one across runs.
type Cache struct {
	db     *gorm.DB
	logger *logger.Logger

	mu       sync.Mutex
	byKind   map[enums.DimensionKind]map[string]int64
	reloaded map[enums.DimensionKind]bool
}

func NewCache(db *gorm.DB, logg *logger.Logger) (*Cache, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db handle is required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &Cache{
		db:       db,
		logger:   logg,
		byKind:   make(map[enums.DimensionKind]map[string]int64),
		reloaded: make(map[enums.DimensionKind]bool),
	}, nil
}

// WarmUp loads the full name-to-key mapping for every attribute
// dimension, one query per dimension.
func (c *Cache) WarmUp(ctx context.Context) error {
	for _, kind := range enums.AllDimensionKinds() {
		if err := c.reload(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the surrogate key for a dimension value. Unmapped
// values resolve to the reserved key 0 instead of failing the row.
func (c *Cache) Resolve(ctx context.Context, kind enums.DimensionKind, value string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return models.UnknownMemberKey
	}

	c.mu.Lock()
	entries := c.byKind[kind]
	if len(entries) == 0 && !c.reloaded[kind] {
		// Guards against a lookup before WarmUp ran. One attempt only;
		// a genuinely empty dimension stays empty for the run.
		c.reloaded[kind] = true
		if err := c.reloadLocked(ctx, kind); err != nil {
			c.logger.Warn(c.logger.WithField(ctx, "dimension", kind.String()), "lazy cache reload failed")
		}
		entries = c.byKind[kind]
	}
	key, ok := entries[value]
	c.mu.Unlock()

	if !ok {
		return models.UnknownMemberKey
	}
	return key
}

// Size reports how many members are cached for a dimension.
func (c *Cache) Size(kind enums.DimensionKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byKind[kind])
}

func (c *Cache) reload(ctx context.Context, kind enums.DimensionKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reloaded[kind] = true
	return c.reloadLocked(ctx, kind)
}

func (c *Cache) reloadLocked(ctx context.Context, kind enums.DimensionKind) error {
	target, ok := tablesByKind[kind]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown dimension kind %q", kind))
	}

	type member struct {
		Key  int64
		Name string
	}
	var members []member
	err := c.db.WithContext(ctx).
		Table(target.table).
		Select(target.keyCol + " AS key, name").
		Find(&members).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("load %s members", target.table))
	}

	entries := make(map[string]int64, len(members))
	for _, m := range members {
		if m.Key == models.UnknownMemberKey {
			continue
		}
		entries[strings.TrimSpace(m.Name)] = m.Key
	}
	c.byKind[kind] = entries
	return nil
}

// EntityID converts an upstream entity ID (campaign, adset, ad,
// creative) to its surrogate key. The upstream numeric ID is the key
// itself; anything unparseable falls back to the reserved key 0.
func EntityID(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.UnknownMemberKey
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return models.UnknownMemberKey
	}
	return id
}
