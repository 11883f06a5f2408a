// Package store persists detection records, alerts, zones and users with gorm.
package store

import (
	"errors"

	"behavior-backend/internal/apperr"

	"gorm.io/gorm"
)

// ErrNotProcessing is returned when a terminal transition targets a record
// that already left PROCESSING.
var ErrNotProcessing = errors.New("record is not in PROCESSING state")

// Page selects a slice of a newest-first listing. Page is zero-based.
type Page struct {
	Page int
	Size int
}

const (
	defaultPageSize = 10
	maxPageSize     = 200
)

// Normalized clamps the page to valid bounds and applies the default size.
func (p Page) Normalized() Page {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	p = p.Normalized()
	return q.Offset(p.Page * p.Size).Limit(p.Size)
}

// notFoundOr translates gorm.ErrRecordNotFound into a NotFound error.
func notFoundOr(op string, err error, what string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(op, "%s %d not found", what, id)
	}
	return apperr.Internal(op, err)
}
