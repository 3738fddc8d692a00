package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/solocoffee/api/internal/database"
	"github.com/solocoffee/api/internal/handler"
)

// --- Shared test helpers ---

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeObject(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func testNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

// --- Mock store ---

type mockProductStore struct {
	products map[uuid.UUID]database.Product
}

func newMockProductStore() *mockProductStore {
	return &mockProductStore{products: make(map[uuid.UUID]database.Product)}
}

func (m *mockProductStore) ListProducts(_ context.Context) ([]database.Product, error) {
	var result []database.Product
	for _, p := range m.products {
		if p.IsActive {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *mockProductStore) GetProduct(_ context.Context, id uuid.UUID) (database.Product, error) {
	p, ok := m.products[id]
	if !ok || !p.IsActive {
		return database.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockProductStore) CreateProduct(_ context.Context, arg database.CreateProductParams) (database.Product, error) {
	now := time.Now()
	p := database.Product{
		ID:          uuid.New(),
		Name:        arg.Name,
		Description: arg.Description,
		Price:       arg.Price,
		ImageUrl:    arg.ImageUrl,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.products[p.ID] = p
	return p, nil
}

func (m *mockProductStore) UpdateProduct(_ context.Context, arg database.UpdateProductParams) (database.Product, error) {
	p, ok := m.products[arg.ID]
	if !ok || !p.IsActive {
		return database.Product{}, pgx.ErrNoRows
	}
	p.Name = arg.Name
	p.Description = arg.Description
	p.Price = arg.Price
	p.ImageUrl = arg.ImageUrl
	p.UpdatedAt = time.Now()
	m.products[p.ID] = p
	return p, nil
}

func (m *mockProductStore) SoftDeleteProduct(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	p, ok := m.products[id]
	if !ok || !p.IsActive {
		return uuid.Nil, pgx.ErrNoRows
	}
	p.IsActive = false
	m.products[id] = p
	return p.ID, nil
}

func setupProductRouter(store *mockProductStore) *chi.Mux {
	h := handler.NewProductHandler(store)
	r := chi.NewRouter()
	r.Route("/products", h.RegisterRoutes)
	return r
}

// --- List tests ---

func TestProductList_Empty(t *testing.T) {
	router := setupProductRouter(newMockProductStore())

	rr := doRequest(t, router, "GET", "/products", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if resp := decodeList(t, rr); len(resp) != 0 {
		t.Errorf("expected empty list, got %d items", len(resp))
	}
}

func TestProductList_ExcludesInactive(t *testing.T) {
	store := newMockProductStore()
	now := time.Now()

	activeID, inactiveID := uuid.New(), uuid.New()
	store.products[activeID] = database.Product{
		ID: activeID, Name: "Latte", Price: testNumeric("25.00"),
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	store.products[inactiveID] = database.Product{
		ID: inactiveID, Name: "Discontinued", Price: testNumeric("10.00"),
		IsActive: false, CreatedAt: now, UpdatedAt: now,
	}

	router := setupProductRouter(store)
	rr := doRequest(t, router, "GET", "/products", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeList(t, rr)
	if len(resp) != 1 {
		t.Fatalf("expected 1 product, got %d", len(resp))
	}
	if resp[0]["name"] != "Latte" {
		t.Errorf("expected Latte, got %v", resp[0]["name"])
	}
}

// --- Get tests ---

func TestProductGet_Valid(t *testing.T) {
	store := newMockProductStore()
	prodID := uuid.New()
	now := time.Now()

	store.products[prodID] = database.Product{
		ID: prodID, Name: "Flat White",
		Description: pgtype.Text{String: "Double ristretto", Valid: true},
		Price:       testNumeric("26.5"),
		IsActive:    true, CreatedAt: now, UpdatedAt: now,
	}

	router := setupProductRouter(store)
	rr := doRequest(t, router, "GET", "/products/"+prodID.String(), nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeObject(t, rr)
	if resp["name"] != "Flat White" {
		t.Errorf("name: got %v, want 'Flat White'", resp["name"])
	}
	if resp["description"] != "Double ristretto" {
		t.Errorf("description: got %v, want 'Double ristretto'", resp["description"])
	}
	// Price is returned as a string with 2 decimal places
	if resp["price"] != "26.50" {
		t.Errorf("price: got %v, want '26.50'", resp["price"])
	}
}

func TestProductGet_NotFound(t *testing.T) {
	router := setupProductRouter(newMockProductStore())

	rr := doRequest(t, router, "GET", "/products/"+uuid.NewString(), nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestProductGet_InvalidID(t *testing.T) {
	router := setupProductRouter(newMockProductStore())

	rr := doRequest(t, router, "GET", "/products/not-a-uuid", nil)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Create tests ---

func TestProductCreate_Valid(t *testing.T) {
	store := newMockProductStore()
	router := setupProductRouter(store)

	rr := doRequest(t, router, "POST", "/products", map[string]interface{}{
		"name":        "Latte",
		"description": "Double shot with steamed milk",
		"price":       "25.00",
		"image_url":   "https://example.com/latte.jpg",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeObject(t, rr)
	if resp["name"] != "Latte" {
		t.Errorf("name: got %v, want 'Latte'", resp["name"])
	}
	if resp["price"] != "25.00" {
		t.Errorf("price: got %v, want '25.00'", resp["price"])
	}
	if resp["is_active"] != true {
		t.Errorf("is_active: got %v, want true", resp["is_active"])
	}
}

func TestProductCreate_MinimalFields(t *testing.T) {
	router := setupProductRouter(newMockProductStore())

	rr := doRequest(t, router, "POST", "/products", map[string]interface{}{
		"name":  "Espresso",
		"price": "16",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeObject(t, rr)
	if resp["description"] != nil {
		t.Errorf("description: expected null, got %v", resp["description"])
	}
	if resp["image_url"] != nil {
		t.Errorf("image_url: expected null, got %v", resp["image_url"])
	}
}

func TestProductCreate_MissingName(t *testing.T) {
	router := setupProductRouter(newMockProductStore())

	rr := doRequest(t, router, "POST", "/products", map[string]interface{}{
		"price": "10.00",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
	if resp := decodeObject(t, rr); resp["error"] != "name is required" {
		t.Errorf("error: got %v, want 'name is required'", resp["error"])
	}
}

func TestProductCreate_InvalidPrice(t *testing.T) {
	router := setupProductRouter(newMockProductStore())

	rr := doRequest(t, router, "POST", "/products", map[string]interface{}{
		"name":  "Latte",
		"price": "not-a-number",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeObject(t, rr); resp["error"] != "invalid price" {
		t.Errorf("error: got %v, want 'invalid price'", resp["error"])
	}
}

func TestProductCreate_NegativePrice(t *testing.T) {
	router := setupProductRouter(newMockProductStore())

	rr := doRequest(t, router, "POST", "/products", map[string]interface{}{
		"name":  "Latte",
		"price": "-5",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeObject(t, rr); resp["error"] != "price must be >= 0" {
		t.Errorf("error: got %v, want 'price must be >= 0'", resp["error"])
	}
}

func TestProductCreate_InvalidBody(t *testing.T) {
	router := setupProductRouter(newMockProductStore())

	rr := doRequest(t, router, "POST", "/products", "not json")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Update tests ---

func TestProductUpdate_Valid(t *testing.T) {
	store := newMockProductStore()
	prodID := uuid.New()
	now := time.Now()

	store.products[prodID] = database.Product{
		ID: prodID, Name: "Old Name", Price: testNumeric("10.00"),
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}

	router := setupProductRouter(store)
	rr := doRequest(t, router, "PUT", "/products/"+prodID.String(), map[string]interface{}{
		"name":  "New Name",
		"price": "35.50",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeObject(t, rr)
	if resp["name"] != "New Name" {
		t.Errorf("name: got %v, want 'New Name'", resp["name"])
	}
	if resp["price"] != "35.50" {
		t.Errorf("price: got %v, want '35.50'", resp["price"])
	}
}

func TestProductUpdate_NotFound(t *testing.T) {
	router := setupProductRouter(newMockProductStore())

	rr := doRequest(t, router, "PUT", "/products/"+uuid.NewString(), map[string]interface{}{
		"name":  "Whatever",
		"price": "10.00",
	})

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// --- Delete tests ---

func TestProductDelete_Valid(t *testing.T) {
	store := newMockProductStore()
	prodID := uuid.New()
	now := time.Now()

	store.products[prodID] = database.Product{
		ID: prodID, Name: "Delete Me", Price: testNumeric("10.00"),
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}

	router := setupProductRouter(store)
	rr := doRequest(t, router, "DELETE", "/products/"+prodID.String(), nil)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusNoContent, rr.Body.String())
	}

	if store.products[prodID].IsActive {
		t.Error("expected product to be soft-deleted (is_active=false)")
	}
}

func TestProductDelete_NotFound(t *testing.T) {
	router := setupProductRouter(newMockProductStore())

	rr := doRequest(t, router, "DELETE", "/products/"+uuid.NewString(), nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}
