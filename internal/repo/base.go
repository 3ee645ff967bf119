package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base holds the warehouse connection shared by the run repositories.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx so queries inherit deadlines
// and cancellation from the run.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}
