package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/keramo/craftmarket/internal/domain/catalog"
	"github.com/keramo/craftmarket/internal/domain/shop"
)

// imagePayload is one desired gallery entry on the wire. A zero or absent id
// marks a new image; the domain layer receives the tagged ImageSpec form.
type imagePayload struct {
	ID        int64  `json:"id,omitempty"`
	URL       string `json:"url"`
	AltText   string `json:"altText"`
	SortOrder int    `json:"sortOrder"`
	IsPrimary bool   `json:"isPrimary"`
}

type createProductPayload struct {
	ShopID        int64           `json:"shopId"`
	CategoryID    int64           `json:"categoryId"`
	SubcategoryID int64           `json:"subcategoryId"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`
	Images        []imagePayload  `json:"images"`
}

type updateProductPayload struct {
	CategoryID    int64           `json:"categoryId"`
	SubcategoryID int64           `json:"subcategoryId"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`

	// Images distinguishes absent (nil pointer: leave the gallery untouched)
	// from an explicit empty list (delete every image).
	Images *[]imagePayload `json:"images"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var payload createProductPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := catalog.CreateProductRequest{
		ShopID:        payload.ShopID,
		CategoryID:    payload.CategoryID,
		SubcategoryID: payload.SubcategoryID,
		Title:         payload.Title,
		Price:         payload.Price,
		Images:        toImageSpecs(payload.Images),
	}

	p, err := h.catalog.CreateProduct(r.Context(), actingUserID(r.Context()), req)
	if err != nil {
		h.writeCatalogError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.encodeProduct(p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var payload updateProductPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := catalog.UpdateProductRequest{
		ProductID:     productID,
		CategoryID:    payload.CategoryID,
		SubcategoryID: payload.SubcategoryID,
		Title:         payload.Title,
		Price:         payload.Price,
	}
	if payload.Images != nil {
		specs := toImageSpecs(*payload.Images)
		if specs == nil {
			specs = []catalog.ImageSpec{}
		}
		req.Images = specs
	}

	p, err := h.catalog.UpdateProduct(r.Context(), actingUserID(r.Context()), req)
	if err != nil {
		h.writeCatalogError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.encodeProduct(p))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := h.catalog.GetProduct(r.Context(), productID)
	if err != nil {
		h.writeCatalogError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.encodeProduct(p))
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func toImageSpecs(payloads []imagePayload) []catalog.ImageSpec {
	if payloads == nil {
		return nil
	}
	specs := make([]catalog.ImageSpec, len(payloads))
	for i, p := range payloads {
		if p.ID != 0 {
			specs[i] = catalog.ExistingImage(p.ID, p.URL, p.AltText, p.SortOrder, p.IsPrimary)
		} else {
			specs[i] = catalog.NewImage(p.URL, p.AltText, p.SortOrder, p.IsPrimary)
		}
	}
	return specs
}

// encodeProduct builds the product view document: identities, title, SKU,
// price, publication flag, and the ordered gallery.
func (h *Handler) encodeProduct(p *catalog.Product) *jx.Encoder {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
		e.Field("shopId", func(e *jx.Encoder) { e.Int64(p.ShopID) })
		e.Field("categoryId", func(e *jx.Encoder) { e.Int64(p.CategoryID) })
		e.Field("subcategoryId", func(e *jx.Encoder) { e.Int64(p.SubcategoryID) })
		e.Field("title", func(e *jx.Encoder) { e.Str(p.Title) })
		e.Field("sku", func(e *jx.Encoder) { e.Str(p.SKU) })
		e.Field("price", func(e *jx.Encoder) { e.Num(jx.Num(p.Price.String())) })
		e.Field("published", func(e *jx.Encoder) { e.Bool(p.Published) })
		e.Field("images", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, img := range p.Images {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Int64(img.ID) })
						e.Field("url", func(e *jx.Encoder) { e.Str(h.imageURL(img.URL)) })
						e.Field("altText", func(e *jx.Encoder) { e.Str(img.AltText) })
						e.Field("sortOrder", func(e *jx.Encoder) { e.Int(img.SortOrder) })
						e.Field("isPrimary", func(e *jx.Encoder) { e.Bool(img.IsPrimary) })
					})
				}
			})
		})
	})
	return &e
}

// imageURL prefixes relative paths with the configured base URL. Absolute
// URLs pass through untouched.
func (h *Handler) imageURL(url string) string {
	if h.imageBaseURL == "" || strings.Contains(url, "://") {
		return url
	}
	return h.imageBaseURL + url
}

// writeCatalogError maps domain errors to status codes. Anything
// unclassified is logged and reported as a generic 500.
func (h *Handler) writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound), errors.Is(err, shop.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case isAs[*shop.NotOwnerError](err):
		writeError(w, http.StatusForbidden, "you are not the owner of this shop")

	case isAs[*shop.NotActiveError](err):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, catalog.ErrEmptyTitle),
		errors.Is(err, catalog.ErrNegativePrice),
		isAs[*catalog.InvalidCategoryError](err),
		isAs[*catalog.InvalidSubcategoryError](err),
		isAs[*catalog.ImageNotFoundError](err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, catalog.ErrSKUAllocationExhausted):
		writeError(w, http.StatusConflict, err.Error())

	default:
		logError(r, "catalog operation failed", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// isAs reports whether err matches the typed error T.
func isAs[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
