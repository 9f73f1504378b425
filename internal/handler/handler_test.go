package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keramo/craftmarket/internal/domain/auth"
	"github.com/keramo/craftmarket/internal/domain/catalog"
	"github.com/keramo/craftmarket/internal/domain/category"
	"github.com/keramo/craftmarket/internal/domain/shop"
)

// --- Mock implementations ---

type stubShops struct {
	byID map[int64]*shop.Shop
}

func (s *stubShops) GetByID(_ context.Context, id int64) (*shop.Shop, error) {
	sh, ok := s.byID[id]
	if !ok {
		return nil, shop.ErrNotFound
	}
	cp := *sh
	return &cp, nil
}

type stubCategories struct {
	subs map[int64]*category.Subcategory
}

func (s *stubCategories) CategoryExists(_ context.Context, id int64) (bool, error) {
	for _, sub := range s.subs {
		if sub.CategoryID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubCategories) GetSubcategory(_ context.Context, id int64) (*category.Subcategory, error) {
	sub, ok := s.subs[id]
	if !ok {
		return nil, category.ErrSubcategoryNotFound
	}
	cp := *sub
	return &cp, nil
}

// memStore is a direct-apply product store: it doubles as its own unit of
// work since handler tests exercise status mapping, not atomicity.
type memStore struct {
	nextProductID int64
	nextImageID   int64
	products      map[int64]catalog.Product
	images        map[int64]catalog.ProductImage
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[int64]catalog.Product),
		images:   make(map[int64]catalog.ProductImage),
	}
}

func (m *memStore) GetWithImages(_ context.Context, id int64) (*catalog.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	for _, img := range m.images {
		if img.ProductID == id {
			p.Images = append(p.Images, img)
		}
	}
	sort.Slice(p.Images, func(i, j int) bool { return p.Images[i].SortOrder < p.Images[j].SortOrder })
	return &p, nil
}

func (m *memStore) SKUExists(_ context.Context, shopID int64, sku string) (bool, error) {
	for _, p := range m.products {
		if p.ShopID == shopID && p.SKU == sku {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Begin(_ context.Context) (catalog.UnitOfWork, error) { return m, nil }
func (m *memStore) Products() catalog.ProductStore                      { return m }
func (m *memStore) Images() catalog.ImageStore                          { return m }
func (m *memStore) Commit(_ context.Context) error                      { return nil }
func (m *memStore) Rollback(_ context.Context) error                    { return nil }

func (m *memStore) Insert(ctx context.Context, p *catalog.Product) error {
	if taken, _ := m.SKUExists(ctx, p.ShopID, p.SKU); taken {
		return catalog.ErrSKUTaken
	}
	m.nextProductID++
	p.ID = m.nextProductID
	cp := *p
	cp.Images = nil
	m.products[p.ID] = cp
	return nil
}

func (m *memStore) Update(_ context.Context, p *catalog.Product) error {
	cp := *p
	cp.Images = nil
	m.products[p.ID] = cp
	return nil
}

func (m *memStore) InsertMany(_ context.Context, images []catalog.ProductImage) error {
	for i := range images {
		m.nextImageID++
		images[i].ID = m.nextImageID
		m.images[images[i].ID] = images[i]
	}
	return nil
}

func (m *memStore) UpdateMany(_ context.Context, images []catalog.ProductImage) error {
	for _, img := range images {
		m.images[img.ID] = img
	}
	return nil
}

func (m *memStore) DeleteMany(_ context.Context, _ int64, ids []int64) error {
	for _, id := range ids {
		delete(m.images, id)
	}
	return nil
}

type stubAPIKeys struct {
	info *auth.APIKeyInfo
}

func (s *stubAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if s.info == nil || s.info.KeyHash != hash {
		return nil, errors.New("api key not found")
	}
	return s.info, nil
}

// --- Helpers ---

const (
	testPepper = "test-pepper"
	testAPIKey = "shop-owner-key"
	ownerID    = int64(10)
)

type env struct {
	store  *memStore
	shops  *stubShops
	server *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()

	shops := &stubShops{byID: map[int64]*shop.Shop{
		1: {ID: 1, OwnerUserID: ownerID, Name: "Mug Works", Status: shop.StatusActive},
	}}
	categories := &stubCategories{subs: map[int64]*category.Subcategory{
		3: {ID: 3, CategoryID: 2, Name: "Ceramics"},
	}}
	store := newMemStore()

	svc := catalog.NewService(shops, categories, store, store, catalog.NewSKUAllocator(rand.NewPCG(1, 2)))

	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(testAPIKey))
	apikeys := &stubAPIKeys{info: &auth.APIKeyInfo{
		ID:      "key-1",
		KeyHash: hex.EncodeToString(mac.Sum(nil)),
		Name:    "owner key",
		UserID:  ownerID,
	}}

	h := NewHandler(Config{ImageBaseURL: "https://cdn.test/"}, svc, apikeys, []byte(testPepper))
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &env{store: store, shops: shops, server: srv}
}

func (e *env) do(t *testing.T, method, path, apiKey string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("api_key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func validCreate() map[string]any {
	return map[string]any{
		"shopId":        1,
		"categoryId":    2,
		"subcategoryId": 3,
		"title":         "Mug",
		"price":         "9.99",
	}
}

// --- Tests ---

func TestCreateProduct_RequiresAPIKey(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/api/products", "", validCreate())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/products", "wrong-key", validCreate())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Empty(t, e.store.products)
}

func TestCreateProduct_Success(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/api/products", testAPIKey, validCreate())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "Mug", body["title"])
	assert.Regexp(t, `^SHP1-CAT2-[0-9A-Z]{6}$`, body["sku"])
	assert.Equal(t, false, body["published"])
	assert.Equal(t, 9.99, body["price"])
	assert.Empty(t, body["images"])
}

func TestCreateProduct_MalformedBody(t *testing.T) {
	e := newEnv(t)

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/products", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	req.Header.Set("api_key", testAPIKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateProduct_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *env, body map[string]any)
		status int
	}{
		{
			name:   "unknown shop",
			mutate: func(_ *env, b map[string]any) { b["shopId"] = 404 },
			status: http.StatusNotFound,
		},
		{
			name: "not the owner",
			mutate: func(e *env, _ map[string]any) {
				e.shops.byID[1].OwnerUserID = 777
			},
			status: http.StatusForbidden,
		},
		{
			name: "suspended shop",
			mutate: func(e *env, _ map[string]any) {
				e.shops.byID[1].Status = shop.StatusSuspended
			},
			status: http.StatusConflict,
		},
		{
			name:   "unknown category",
			mutate: func(_ *env, b map[string]any) { b["categoryId"] = 404 },
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "unknown subcategory",
			mutate: func(_ *env, b map[string]any) { b["subcategoryId"] = 404 },
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "empty title",
			mutate: func(_ *env, b map[string]any) { b["title"] = "" },
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "negative price",
			mutate: func(_ *env, b map[string]any) { b["price"] = "-5" },
			status: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			body := validCreate()
			tt.mutate(e, body)

			resp := e.do(t, http.MethodPost, "/api/products", testAPIKey, body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Empty(t, e.store.products)
		})
	}
}

func TestGetProduct(t *testing.T) {
	e := newEnv(t)

	create := validCreate()
	create["images"] = []map[string]any{
		{"url": "mug.jpg", "altText": "a mug", "sortOrder": 0, "isPrimary": true},
	}
	resp := e.do(t, http.MethodPost, "/api/products", testAPIKey, create)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	id := int64(created["id"].(float64))

	resp = e.do(t, http.MethodGet, fmt.Sprintf("/api/products/%d", id), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	images := body["images"].([]any)
	require.Len(t, images, 1)
	img := images[0].(map[string]any)
	// Relative paths get the CDN prefix.
	assert.Equal(t, "https://cdn.test/mug.jpg", img["url"])
	assert.Equal(t, true, img["isPrimary"])
}

func TestGetProduct_NotFound(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/api/products/999", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetProduct_BadID(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/api/products/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateProduct_ImagesOmittedVersusEmpty(t *testing.T) {
	e := newEnv(t)

	create := validCreate()
	create["images"] = []map[string]any{
		{"url": "mug.jpg", "altText": "", "sortOrder": 0, "isPrimary": true},
	}
	resp := e.do(t, http.MethodPost, "/api/products", testAPIKey, create)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := int64(decodeBody(t, resp)["id"].(float64))
	path := fmt.Sprintf("/api/products/%d", id)

	update := map[string]any{
		"categoryId":    2,
		"subcategoryId": 3,
		"title":         "Better Mug",
		"price":         "12.00",
	}

	// Omitted image list: gallery untouched.
	resp = e.do(t, http.MethodPut, path, testAPIKey, update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Better Mug", body["title"])
	assert.Len(t, body["images"].([]any), 1)

	// Explicit empty list: gallery cleared.
	update["images"] = []any{}
	resp = e.do(t, http.MethodPut, path, testAPIKey, update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Empty(t, body["images"].([]any))
	assert.Empty(t, e.store.images)
}

func TestUpdateProduct_UnknownImageIdentity(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/api/products", testAPIKey, validCreate())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := int64(decodeBody(t, resp)["id"].(float64))

	update := map[string]any{
		"categoryId":    2,
		"subcategoryId": 3,
		"title":         "Mug",
		"price":         "9.99",
		"images": []map[string]any{
			{"id": 777, "url": "x.jpg", "altText": "", "sortOrder": 0, "isPrimary": false},
		},
	}

	resp = e.do(t, http.MethodPut, fmt.Sprintf("/api/products/%d", id), testAPIKey, update)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
