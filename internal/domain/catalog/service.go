package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/keramo/craftmarket/internal/domain/category"
	"github.com/keramo/craftmarket/internal/domain/shop"
)

// Service orchestrates the product catalog lifecycle: ownership and shop
// state checks, taxonomy validation, SKU allocation, and atomic persistence
// of products together with their galleries.
type Service struct {
	shops      shop.Repository
	categories category.Repository
	products   ProductReader
	tx         TxManager
	skus       *SKUAllocator

	// now is swappable in tests.
	now func() time.Time
}

// NewService creates a catalog Service with the required collaborators.
func NewService(
	shops shop.Repository,
	categories category.Repository,
	products ProductReader,
	tx TxManager,
	skus *SKUAllocator,
) *Service {
	return &Service{
		shops:      shops,
		categories: categories,
		products:   products,
		tx:         tx,
		skus:       skus,
		now:        time.Now,
	}
}

// CreateProduct creates a draft product in the given shop. The acting user
// must own the shop and the shop must be active. A fresh SKU is allocated;
// the published flag is forced to false regardless of caller input. The
// product row and any initial images are committed as one unit, and the full
// product is reloaded with its gallery ordered.
func (s *Service) CreateProduct(ctx context.Context, actingUserID int64, req CreateProductRequest) (*Product, error) {
	if err := s.authorize(ctx, req.ShopID, actingUserID); err != nil {
		return nil, err
	}
	if err := s.validateTaxonomy(ctx, req.CategoryID, req.SubcategoryID); err != nil {
		return nil, err
	}
	if err := validateFields(req.Title, req.Price); err != nil {
		return nil, err
	}

	// On creation there is no prior gallery, so a spec addressing an existing
	// image can never be satisfied.
	for _, spec := range req.Images {
		if id, ok := spec.Existing(); ok {
			return nil, &ImageNotFoundError{ImageID: id}
		}
	}

	// The allocator's existence check only keeps collisions rare; the unique
	// index decides. When the insert still conflicts with a concurrent
	// writer, allocate again, within the shared attempt budget.
	for attempt := 0; attempt < maxSKUAttempts; attempt++ {
		sku, err := s.skus.Allocate(ctx, req.ShopID, req.CategoryID, func(ctx context.Context, sku string) (bool, error) {
			return s.products.SKUExists(ctx, req.ShopID, sku)
		})
		if err != nil {
			return nil, err
		}

		now := s.now()
		p := &Product{
			ShopID:        req.ShopID,
			CategoryID:    req.CategoryID,
			SubcategoryID: req.SubcategoryID,
			Title:         req.Title,
			SKU:           sku,
			Price:         req.Price,
			Published:     false,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		err = s.insertProduct(ctx, p, req.Images, now)
		if errors.Is(err, ErrSKUTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}

		return s.products.GetWithImages(ctx, p.ID)
	}

	return nil, ErrSKUAllocationExhausted
}

// insertProduct persists the product row and its initial images inside one
// unit of work, so a failed image insert never leaves a bare product behind.
func (s *Service) insertProduct(ctx context.Context, p *Product, specs []ImageSpec, now time.Time) error {
	uow, err := s.tx.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin unit of work")
	}
	defer func() { _ = uow.Rollback(ctx) }()

	if err := uow.Products().Insert(ctx, p); err != nil {
		return err
	}

	if len(specs) > 0 {
		images := make([]ProductImage, len(specs))
		for i, spec := range specs {
			images[i] = ProductImage{
				ProductID: p.ID,
				URL:       spec.URL,
				AltText:   spec.AltText,
				SortOrder: spec.SortOrder,
				IsPrimary: spec.IsPrimary,
				CreatedAt: now,
				UpdatedAt: now,
			}
		}
		if err := uow.Images().InsertMany(ctx, images); err != nil {
			return errors.Wrap(err, "insert images")
		}
	}

	return uow.Commit(ctx)
}

// UpdateProduct overwrites a product's title, price, and taxonomy, and, when
// the request carries a non-nil image list, reconciles the gallery against
// it. The SKU and published flag are never touched. All writes commit as one
// unit; a reconciliation failure rolls back the field changes too.
func (s *Service) UpdateProduct(ctx context.Context, actingUserID int64, req UpdateProductRequest) (*Product, error) {
	p, err := s.products.GetWithImages(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	// Ownership is transitive via the shop; re-check it and the shop state
	// on every update, since moderation may have acted in the meantime.
	if err := s.authorize(ctx, p.ShopID, actingUserID); err != nil {
		return nil, err
	}
	if err := s.validateTaxonomy(ctx, req.CategoryID, req.SubcategoryID); err != nil {
		return nil, err
	}
	if err := validateFields(req.Title, req.Price); err != nil {
		return nil, err
	}

	now := s.now()
	p.Title = req.Title
	p.Price = req.Price
	p.CategoryID = req.CategoryID
	p.SubcategoryID = req.SubcategoryID
	p.UpdatedAt = now

	var changes ImageChangeSet
	if req.Images != nil {
		changes, err = ReconcileImages(p.ID, p.Images, req.Images, now)
		if err != nil {
			return nil, err
		}
	}

	uow, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin unit of work")
	}
	defer func() { _ = uow.Rollback(ctx) }()

	if err := uow.Products().Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}

	if !changes.Empty() {
		images := uow.Images()
		if len(changes.DeleteIDs) > 0 {
			if err := images.DeleteMany(ctx, p.ID, changes.DeleteIDs); err != nil {
				return nil, errors.Wrap(err, "delete images")
			}
		}
		if len(changes.Updates) > 0 {
			if err := images.UpdateMany(ctx, changes.Updates); err != nil {
				return nil, errors.Wrap(err, "update images")
			}
		}
		if len(changes.Inserts) > 0 {
			if err := images.InsertMany(ctx, changes.Inserts); err != nil {
				return nil, errors.Wrap(err, "insert images")
			}
		}
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit unit of work")
	}

	return s.products.GetWithImages(ctx, p.ID)
}

// GetProduct returns the full product with its gallery ordered by sort
// order. No authorization is applied beyond existence; visibility policy for
// unpublished products lives outside the catalog core.
func (s *Service) GetProduct(ctx context.Context, productID int64) (*Product, error) {
	return s.products.GetWithImages(ctx, productID)
}

// authorize loads the shop and runs the ownership/state gate.
func (s *Service) authorize(ctx context.Context, shopID, actingUserID int64) error {
	sh, err := s.shops.GetByID(ctx, shopID)
	if err != nil {
		return err
	}
	return shop.AuthorizeOwner(sh, actingUserID)
}

// validateTaxonomy checks that the category is live and the subcategory is
// live and belongs to it.
func (s *Service) validateTaxonomy(ctx context.Context, categoryID, subcategoryID int64) error {
	ok, err := s.categories.CategoryExists(ctx, categoryID)
	if err != nil {
		return errors.Wrap(err, "check category")
	}
	if !ok {
		return &InvalidCategoryError{CategoryID: categoryID}
	}

	sub, err := s.categories.GetSubcategory(ctx, subcategoryID)
	if err != nil {
		if errors.Is(err, category.ErrSubcategoryNotFound) {
			return &InvalidSubcategoryError{SubcategoryID: subcategoryID, CategoryID: categoryID}
		}
		return errors.Wrap(err, "get subcategory")
	}
	if sub.CategoryID != categoryID {
		return &InvalidSubcategoryError{SubcategoryID: subcategoryID, CategoryID: categoryID}
	}
	return nil
}

func validateFields(title string, price decimal.Decimal) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	if price.IsNegative() {
		return ErrNegativePrice
	}
	return nil
}
