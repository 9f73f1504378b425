package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keramo/craftmarket/internal/domain/shop"
)

const getShopByIDSQL = `SELECT id, owner_user_id, name, status, created_at, updated_at
	FROM shops WHERE id = $1 AND NOT deleted`

var _ shop.Repository = (*ShopRepository)(nil)

// ShopRepository implements shop.Repository backed by PostgreSQL.
type ShopRepository struct {
	pool *pgxpool.Pool
}

// NewShopRepository returns a ShopRepository that uses the given pool.
func NewShopRepository(pool *pgxpool.Pool) *ShopRepository {
	return &ShopRepository{pool: pool}
}

// GetByID returns a live shop by its identifier, or shop.ErrNotFound.
func (r *ShopRepository) GetByID(ctx context.Context, id int64) (*shop.Shop, error) {
	var s shop.Shop
	err := r.pool.QueryRow(ctx, getShopByIDSQL, id).Scan(
		&s.ID, &s.OwnerUserID, &s.Name, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shop.ErrNotFound
		}
		return nil, fmt.Errorf("getting shop %d: %w", id, err)
	}
	return &s, nil
}
