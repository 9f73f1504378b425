// Package category holds the catalog taxonomy read model. Categories and
// subcategories are managed by an administrative workflow elsewhere; the
// catalog core only validates references against them.
package category

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrSubcategoryNotFound is returned when a subcategory does not exist or is
// soft-deleted.
var ErrSubcategoryNotFound = errors.New("subcategory not found")

// Category is a top-level product classification.
type Category struct {
	ID   int64
	Name string
}

// Subcategory is a second-level classification nested under a Category.
type Subcategory struct {
	ID         int64
	CategoryID int64
	Name       string
}

// Repository provides taxonomy lookups. Soft-deleted rows are treated as
// absent.
type Repository interface {
	// CategoryExists reports whether a live category with the given ID exists.
	CategoryExists(ctx context.Context, id int64) (bool, error)
	// GetSubcategory returns a live subcategory by ID, or ErrSubcategoryNotFound.
	GetSubcategory(ctx context.Context, id int64) (*Subcategory, error)
}
