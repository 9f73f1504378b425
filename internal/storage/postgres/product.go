package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keramo/craftmarket/internal/domain/catalog"
)

const (
	getProductSQL = `SELECT id, shop_id, category_id, subcategory_id, title, sku, price, published, created_at, updated_at
		FROM products WHERE id = $1 AND NOT deleted`

	listProductImagesSQL = `SELECT id, product_id, url, alt_text, sort_order, is_primary, created_at, updated_at
		FROM product_images WHERE product_id = $1 ORDER BY sort_order, id`

	skuExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE shop_id = $1 AND sku = $2 AND NOT deleted)`

	insertProductSQL = `INSERT INTO products (shop_id, category_id, subcategory_id, title, sku, price, published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`

	updateProductSQL = `UPDATE products
		SET title = $2, price = $3, category_id = $4, subcategory_id = $5, updated_at = $6
		WHERE id = $1 AND NOT deleted`

	insertProductImageSQL = `INSERT INTO product_images (product_id, url, alt_text, sort_order, is_primary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	updateProductImageSQL = `UPDATE product_images
		SET url = $2, alt_text = $3, sort_order = $4, is_primary = $5, updated_at = $6
		WHERE id = $1`

	deleteProductImagesSQL = `DELETE FROM product_images WHERE product_id = $1 AND id = ANY($2)`
)

// skuUniqueConstraint is the partial unique index guarding per-shop SKUs.
const skuUniqueConstraint = "uq_products_shop_sku"

var (
	_ catalog.ProductStore = (*ProductRepository)(nil)
	_ catalog.ImageStore   = (*ProductRepository)(nil)
)

// ProductRepository implements catalog.ProductStore and catalog.ImageStore.
// It runs against the pool for plain reads and against a transaction when
// obtained through a unit of work.
type ProductRepository struct {
	q querier
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{q: pool}
}

// GetWithImages returns a live product and its gallery ordered by sort order,
// or catalog.ErrProductNotFound.
func (r *ProductRepository) GetWithImages(ctx context.Context, id int64) (*catalog.Product, error) {
	var p catalog.Product
	err := r.q.QueryRow(ctx, getProductSQL, id).Scan(
		&p.ID, &p.ShopID, &p.CategoryID, &p.SubcategoryID,
		&p.Title, &p.SKU, &p.Price, &p.Published, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	rows, err := r.q.Query(ctx, listProductImagesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing images of product %d: %w", id, err)
	}
	p.Images, err = pgx.CollectRows(rows, scanProductImage)
	if err != nil {
		return nil, fmt.Errorf("listing images of product %d: %w", id, err)
	}

	return &p, nil
}

// SKUExists reports whether a live product of the shop already carries the SKU.
func (r *ProductRepository) SKUExists(ctx context.Context, shopID int64, sku string) (bool, error) {
	var exists bool
	if err := r.q.QueryRow(ctx, skuExistsSQL, shopID, sku).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking sku %q in shop %d: %w", sku, shopID, err)
	}
	return exists, nil
}

// Insert persists a new product and assigns its identity. A violation of the
// per-shop SKU index surfaces as catalog.ErrSKUTaken so callers can allocate
// again.
func (r *ProductRepository) Insert(ctx context.Context, p *catalog.Product) error {
	err := r.q.QueryRow(ctx, insertProductSQL,
		p.ShopID, p.CategoryID, p.SubcategoryID, p.Title, p.SKU, p.Price,
		p.Published, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err, skuUniqueConstraint) {
			return catalog.ErrSKUTaken
		}
		return fmt.Errorf("inserting product with sku %q: %w", p.SKU, err)
	}
	return nil
}

// Update overwrites the mutable fields of a product row. The SKU and
// published flag are deliberately not part of the statement.
func (r *ProductRepository) Update(ctx context.Context, p *catalog.Product) error {
	tag, err := r.q.Exec(ctx, updateProductSQL,
		p.ID, p.Title, p.Price, p.CategoryID, p.SubcategoryID, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating product %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

// InsertMany persists new gallery images, assigning identities in place.
func (r *ProductRepository) InsertMany(ctx context.Context, images []catalog.ProductImage) error {
	for i := range images {
		img := &images[i]
		err := r.q.QueryRow(ctx, insertProductImageSQL,
			img.ProductID, img.URL, img.AltText, img.SortOrder, img.IsPrimary,
			img.CreatedAt, img.UpdatedAt,
		).Scan(&img.ID)
		if err != nil {
			return fmt.Errorf("inserting image for product %d: %w", img.ProductID, err)
		}
	}
	return nil
}

// UpdateMany overwrites the given gallery images in place.
func (r *ProductRepository) UpdateMany(ctx context.Context, images []catalog.ProductImage) error {
	for _, img := range images {
		_, err := r.q.Exec(ctx, updateProductImageSQL,
			img.ID, img.URL, img.AltText, img.SortOrder, img.IsPrimary, img.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("updating image %d: %w", img.ID, err)
		}
	}
	return nil
}

// DeleteMany removes the given images of one product.
func (r *ProductRepository) DeleteMany(ctx context.Context, productID int64, ids []int64) error {
	if _, err := r.q.Exec(ctx, deleteProductImagesSQL, productID, ids); err != nil {
		return fmt.Errorf("deleting images of product %d: %w", productID, err)
	}
	return nil
}

func scanProductImage(row pgx.CollectableRow) (catalog.ProductImage, error) {
	var img catalog.ProductImage
	err := row.Scan(
		&img.ID, &img.ProductID, &img.URL, &img.AltText,
		&img.SortOrder, &img.IsPrimary, &img.CreatedAt, &img.UpdatedAt,
	)
	return img, err
}

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (SQLSTATE 23505) on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		pgErr.ConstraintName == constraint
}

var _ catalog.TxManager = (*TxManager)(nil)

// TxManager opens catalog units of work as PostgreSQL transactions.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager returns a TxManager over the given pool.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// Begin starts a transaction and returns it wrapped as a unit of work.
func (m *TxManager) Begin(ctx context.Context) (catalog.UnitOfWork, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &unitOfWork{tx: tx, repo: &ProductRepository{q: tx}}, nil
}

// unitOfWork scopes product and image writes to one transaction.
type unitOfWork struct {
	tx   pgx.Tx
	repo *ProductRepository
}

func (u *unitOfWork) Products() catalog.ProductStore { return u.repo }
func (u *unitOfWork) Images() catalog.ImageStore     { return u.repo }

func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. After a successful Commit it is a no-op,
// so it can stay deferred on every path.
func (u *unitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}
