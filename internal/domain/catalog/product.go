// Package catalog implements the product catalog lifecycle: authorization of
// catalog mutations, SKU allocation, image gallery reconciliation, and the
// create/update/read orchestration over an explicit unit of work.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors raised by the catalog core.
var (
	// ErrProductNotFound is returned when a product does not exist or is
	// soft-deleted.
	ErrProductNotFound = errors.New("product not found")
	// ErrEmptyTitle is returned when a create or update request carries a
	// blank title.
	ErrEmptyTitle = errors.New("title required")
	// ErrNegativePrice is returned when a create or update request carries a
	// negative price.
	ErrNegativePrice = errors.New("price must not be negative")
	// ErrSKUTaken is reported by product stores when an insert violates the
	// per-shop SKU uniqueness constraint.
	ErrSKUTaken = errors.New("sku already taken")
	// ErrSKUAllocationExhausted is returned when the allocator gives up after
	// its attempt budget. Hitting it suggests a broken randomness source, not
	// a crowded shop.
	ErrSKUAllocationExhausted = errors.New("sku allocation attempts exhausted")
)

// InvalidCategoryError indicates the referenced category does not exist or is
// soft-deleted.
type InvalidCategoryError struct {
	CategoryID int64
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("invalid category %d", e.CategoryID)
}

// InvalidSubcategoryError indicates the referenced subcategory does not
// exist, is soft-deleted, or does not belong to the stated category.
type InvalidSubcategoryError struct {
	SubcategoryID int64
	CategoryID    int64
}

func (e *InvalidSubcategoryError) Error() string {
	return fmt.Sprintf("invalid subcategory %d for category %d", e.SubcategoryID, e.CategoryID)
}

// ImageNotFoundError indicates a desired image entry referenced an image
// identity that is not part of the product's persisted gallery.
type ImageNotFoundError struct {
	ImageID   int64
	ProductID int64
}

func (e *ImageNotFoundError) Error() string {
	return fmt.Sprintf("image %d not found on product %d", e.ImageID, e.ProductID)
}

// Product is a catalog item listed by a shop. Products start unpublished;
// publication and deletion are separate workflows that the catalog core only
// tolerates, never triggers.
type Product struct {
	ID            int64
	ShopID        int64
	CategoryID    int64
	SubcategoryID int64
	Title         string
	SKU           string
	Price         decimal.Decimal
	Published     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Images holds the product's gallery ordered by sort order ascending.
	Images []ProductImage
}

// ProductImage is one entry of a product's gallery. The gallery is only ever
// mutated as a whole, through reconciliation.
type ProductImage struct {
	ID        int64
	ProductID int64
	URL       string
	AltText   string
	SortOrder int
	IsPrimary bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateProductRequest is the input for Service.CreateProduct. Any published
// flag a caller may have sent is ignored: products are always created as
// drafts.
type CreateProductRequest struct {
	ShopID        int64
	CategoryID    int64
	SubcategoryID int64
	Title         string
	Price         decimal.Decimal
	Images        []ImageSpec
}

// UpdateProductRequest is the input for Service.UpdateProduct. The SKU is
// immutable and absent here on purpose.
type UpdateProductRequest struct {
	ProductID     int64
	CategoryID    int64
	SubcategoryID int64
	Title         string
	Price         decimal.Decimal

	// Images is the desired gallery state. A nil slice leaves the gallery
	// untouched; an empty non-nil slice deletes every image.
	Images []ImageSpec
}

// ProductReader provides the read side of product persistence, outside any
// transaction.
type ProductReader interface {
	// GetWithImages returns a live product and its gallery ordered by sort
	// order ascending, or ErrProductNotFound.
	GetWithImages(ctx context.Context, id int64) (*Product, error)
	// SKUExists reports whether a live product of the shop already carries
	// the SKU.
	SKUExists(ctx context.Context, shopID int64, sku string) (bool, error)
}

// ProductStore extends ProductReader with writes. Insert assigns the
// product's identity and reports ErrSKUTaken when the per-shop uniqueness
// constraint rejects the row.
type ProductStore interface {
	ProductReader
	Insert(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
}

// ImageStore persists gallery mutations. All operations are scoped to a
// single product.
type ImageStore interface {
	// InsertMany persists new images, assigning their identities in place.
	InsertMany(ctx context.Context, images []ProductImage) error
	UpdateMany(ctx context.Context, images []ProductImage) error
	DeleteMany(ctx context.Context, productID int64, ids []int64) error
}

// UnitOfWork scopes a set of product and image writes to one atomic commit.
// Rollback after a successful Commit is a no-op, so callers can keep it
// deferred on every path.
type UnitOfWork interface {
	Products() ProductStore
	Images() ImageStore
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxManager opens units of work.
type TxManager interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
