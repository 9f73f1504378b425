package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keramo/craftmarket/internal/domain/category"
)

const (
	categoryExistsSQL = `SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1 AND NOT deleted)`

	getSubcategorySQL = `SELECT id, category_id, name
		FROM subcategories WHERE id = $1 AND NOT deleted`
)

var _ category.Repository = (*CategoryRepository)(nil)

// CategoryRepository implements category.Repository backed by PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// CategoryExists reports whether a live category with the given ID exists.
func (r *CategoryRepository) CategoryExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, categoryExistsSQL, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking category %d: %w", id, err)
	}
	return exists, nil
}

// GetSubcategory returns a live subcategory by ID, or
// category.ErrSubcategoryNotFound.
func (r *CategoryRepository) GetSubcategory(ctx context.Context, id int64) (*category.Subcategory, error) {
	var sub category.Subcategory
	err := r.pool.QueryRow(ctx, getSubcategorySQL, id).Scan(&sub.ID, &sub.CategoryID, &sub.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, category.ErrSubcategoryNotFound
		}
		return nil, fmt.Errorf("getting subcategory %d: %w", id, err)
	}
	return &sub, nil
}
