package loader

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adsynchq/adsync-backend/pkg/db/models"
	pkgerrors "github.com/adsynchq/adsync-backend/pkg/errors"
	"github.com/adsynchq/adsync-backend/pkg/logger"
)

// Batch is a set of rows destined for a single table. GrainCols is the
// table's declared primary key; AdditiveCols are measures that sum when
// duplicate grains are merged. Everything else is descriptive and takes
// the first seen value.
type Batch struct {
	Table        string
	Dimension    bool
	GrainCols    []string
	AdditiveCols []string
	Rows         []map[string]any
}

// Result reports what a single table load did with its batch.
type Result struct {
	Table            string
	RowsLoaded       int
	DroppedNullGrain int
	DroppedReserved  int
	MergedDuplicates int
}

// Loader writes batches into warehouse tables with upsert semantics.
type Loader struct {
	db     *gorm.DB
	logger *logger.Logger
}

func New(db *gorm.DB, logg *logger.Logger) (*Loader, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db handle is required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &Loader{db: db, logger: logg}, nil
}

// Load filters, de-duplicates, and upserts the batch as one statement.
// Existing grain keys have their non-key columns overwritten; new grain
// keys are inserted.
func (l *Loader) Load(ctx context.Context, batch Batch) (Result, error) {
	res := Result{Table: batch.Table}

	if batch.Table == "" {
		return res, pkgerrors.New(pkgerrors.CodeValidation, "batch table name is required")
	}
	if len(batch.GrainCols) == 0 {
		return res, pkgerrors.New(pkgerrors.CodeValidation, "batch grain columns are required")
	}
	if len(batch.Rows) == 0 {
		return res, nil
	}

	rows := batch.Rows

	rows, res.DroppedNullGrain = dropNullGrains(rows, batch.GrainCols)
	if res.DroppedNullGrain > 0 {
		l.logger.Warn(l.logger.WithFields(ctx, map[string]any{
			"table":   batch.Table,
			"dropped": res.DroppedNullGrain,
		}), "dropped rows with incomplete grain")
	}

	// The sentinel row in a dimension table belongs to the integrity
	// guard; discovery must never rewrite it.
	if batch.Dimension {
		rows, res.DroppedReserved = dropReservedKeys(rows, batch.GrainCols)
	}

	rows, res.MergedDuplicates = mergeDuplicateGrains(rows, batch.GrainCols, batch.AdditiveCols)
	if len(rows) == 0 {
		return res, nil
	}

	cols := columnSet(rows)
	normalizeRows(rows, cols)

	assign := assignmentColumns(cols, batch.GrainCols)

	conflict := clause.OnConflict{Columns: conflictColumns(batch.GrainCols)}
	if len(assign) > 0 {
		conflict.DoUpdates = clause.AssignmentColumns(assign)
	} else {
		conflict.DoNothing = true
	}

	if err := l.db.WithContext(ctx).Table(batch.Table).Clauses(conflict).Create(rows).Error; err != nil {
		return res, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("upsert into %s", batch.Table))
	}

	res.RowsLoaded = len(rows)
	l.logger.Info(l.logger.WithFields(ctx, map[string]any{
		"table":  batch.Table,
		"rows":   res.RowsLoaded,
		"merged": res.MergedDuplicates,
	}), "table load complete")
	return res, nil
}

func dropNullGrains(rows []map[string]any, grainCols []string) ([]map[string]any, int) {
	kept := rows[:0:0]
	dropped := 0
	for _, row := range rows {
		if hasCompleteGrain(row, grainCols) {
			kept = append(kept, row)
			continue
		}
		dropped++
	}
	return kept, dropped
}

func hasCompleteGrain(row map[string]any, grainCols []string) bool {
	for _, col := range grainCols {
		value, ok := row[col]
		if !ok || value == nil {
			return false
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

func dropReservedKeys(rows []map[string]any, grainCols []string) ([]map[string]any, int) {
	kept := rows[:0:0]
	dropped := 0
	for _, row := range rows {
		if grainHasReservedKey(row, grainCols) {
			dropped++
			continue
		}
		kept = append(kept, row)
	}
	return kept, dropped
}

func grainHasReservedKey(row map[string]any, grainCols []string) bool {
	for _, col := range grainCols {
		if n, ok := asInt64(row[col]); ok && n == models.UnknownMemberKey {
			return true
		}
	}
	return false
}

func mergeDuplicateGrains(rows []map[string]any, grainCols, additiveCols []string) ([]map[string]any, int) {
	additive := make(map[string]bool, len(additiveCols))
	for _, col := range additiveCols {
		additive[col] = true
	}

	merged := make([]map[string]any, 0, len(rows))
	index := make(map[string]int, len(rows))
	duplicates := 0

	for _, row := range rows {
		key := grainKey(row, grainCols)
		at, seen := index[key]
		if !seen {
			index[key] = len(merged)
			merged = append(merged, row)
			continue
		}

		duplicates++
		target := merged[at]
		for col, value := range row {
			if additive[col] {
				target[col] = sumValues(target[col], value)
				continue
			}
			// Descriptive columns keep the first seen value.
			if _, exists := target[col]; !exists {
				target[col] = value
			}
		}
	}
	return merged, duplicates
}

func grainKey(row map[string]any, grainCols []string) string {
	parts := make([]string, len(grainCols))
	for i, col := range grainCols {
		parts[i] = fmt.Sprintf("%v", row[col])
	}
	return strings.Join(parts, "\x1f")
}

func sumValues(current, incoming any) any {
	if current == nil {
		return incoming
	}
	switch cv := current.(type) {
	case decimal.Decimal:
		if iv, ok := incoming.(decimal.Decimal); ok {
			return cv.Add(iv)
		}
	case float64:
		if iv, ok := asFloat64(incoming); ok {
			return cv + iv
		}
	default:
		if cn, ok := asInt64(current); ok {
			if in, ok := asInt64(incoming); ok {
				return cn + in
			}
		}
	}
	return current
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

func asFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func columnSet(rows []map[string]any) []string {
	seen := map[string]bool{}
	cols := []string{}
	for _, row := range rows {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				cols = append(cols, col)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// normalizeRows gives every row the same column set so the generated
// insert covers one stable column list.
func normalizeRows(rows []map[string]any, cols []string) {
	for _, row := range rows {
		for _, col := range cols {
			if _, ok := row[col]; !ok {
				row[col] = nil
			}
		}
	}
}

func assignmentColumns(cols, grainCols []string) []string {
	grain := make(map[string]bool, len(grainCols))
	for _, col := range grainCols {
		grain[col] = true
	}
	assign := make([]string, 0, len(cols))
	for _, col := range cols {
		if !grain[col] {
			assign = append(assign, col)
		}
	}
	return assign
}

func conflictColumns(grainCols []string) []clause.Column {
	cols := make([]clause.Column, len(grainCols))
	for i, col := range grainCols {
		cols[i] = clause.Column{Name: col}
	}
	return cols
}
