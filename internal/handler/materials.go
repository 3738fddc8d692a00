package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/solocoffee/api/internal/database"
)

// MaterialStore defines the database methods needed by raw-material
// handlers. Satisfied by *database.Queries; narrow interface for testability.
type MaterialStore interface {
	ListRawMaterials(ctx context.Context) ([]database.RawMaterial, error)
	GetRawMaterial(ctx context.Context, id uuid.UUID) (database.RawMaterial, error)
	CreateRawMaterial(ctx context.Context, arg database.CreateRawMaterialParams) (database.RawMaterial, error)
	ListMaterialInventory(ctx context.Context, storeID uuid.UUID) ([]database.MaterialInventory, error)
	ListLowMaterialInventory(ctx context.Context, storeID uuid.UUID) ([]database.MaterialInventory, error)
	CreateMaterialInventory(ctx context.Context, arg database.CreateMaterialInventoryParams) (database.MaterialInventory, error)
	SetMaterialInventoryQuantity(ctx context.Context, arg database.SetMaterialInventoryQuantityParams) (database.MaterialInventory, error)
}

// MaterialHandler handles the raw-material catalog and each store's
// material stock.
type MaterialHandler struct {
	store MaterialStore
}

// NewMaterialHandler creates a new MaterialHandler.
func NewMaterialHandler(store MaterialStore) *MaterialHandler {
	return &MaterialHandler{store: store}
}

// RegisterCatalogRoutes registers raw-material catalog endpoints.
// Mounted at /materials.
func (h *MaterialHandler) RegisterCatalogRoutes(r chi.Router) {
	r.Get("/", h.ListCatalog)
	r.Get("/{id}", h.GetCatalog)
	r.Post("/", h.CreateCatalog)
}

// RegisterInventoryRoutes registers per-store material stock endpoints.
// Mounted at /stores/{sid}/materials.
func (h *MaterialHandler) RegisterInventoryRoutes(r chi.Router) {
	r.Get("/", h.ListStock)
	r.Get("/low", h.ListLowStock)
	r.Post("/", h.CreateStock)
	r.Put("/{materialID}/quantity", h.SetStockQuantity)
}

// --- Request / Response types ---

type createMaterialRequest struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

type materialResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type createMaterialStockRequest struct {
	MaterialID       string `json:"material_id"`
	Quantity         string `json:"quantity"`
	WarningThreshold string `json:"warning_threshold"`
}

type materialInventoryResponse struct {
	ID                uuid.UUID  `json:"id"`
	StoreID           uuid.UUID  `json:"store_id"`
	MaterialID        uuid.UUID  `json:"material_id"`
	Quantity          string     `json:"quantity"`
	WarningThreshold  string     `json:"warning_threshold"`
	LastPurchaseAt    *time.Time `json:"last_purchase_at"`
	LastStocktakingAt *time.Time `json:"last_stocktaking_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func toMaterialResponse(m database.RawMaterial) materialResponse {
	return materialResponse{
		ID:        m.ID,
		Name:      m.Name,
		Unit:      m.Unit,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toMaterialInventoryResponse(mi database.MaterialInventory) materialInventoryResponse {
	resp := materialInventoryResponse{
		ID:               mi.ID,
		StoreID:          mi.StoreID,
		MaterialID:       mi.MaterialID,
		Quantity:         moneyString(mi.Quantity),
		WarningThreshold: moneyString(mi.WarningThreshold),
		CreatedAt:        mi.CreatedAt,
		UpdatedAt:        mi.UpdatedAt,
	}
	if mi.LastPurchaseAt.Valid {
		resp.LastPurchaseAt = &mi.LastPurchaseAt.Time
	}
	if mi.LastStocktakingAt.Valid {
		resp.LastStocktakingAt = &mi.LastStocktakingAt.Time
	}
	return resp
}

func toMaterialInventoryResponses(rows []database.MaterialInventory) []materialInventoryResponse {
	out := make([]materialInventoryResponse, len(rows))
	for i, mi := range rows {
		out[i] = toMaterialInventoryResponse(mi)
	}
	return out
}

// --- Catalog handlers ---

// ListCatalog returns all raw materials.
func (h *MaterialHandler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	materials, err := h.store.ListRawMaterials(r.Context())
	if err != nil {
		log.Printf("ERROR: list materials: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]materialResponse, len(materials))
	for i, m := range materials {
		resp[i] = toMaterialResponse(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCatalog returns a single raw material by ID.
func (h *MaterialHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	materialID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid material ID"})
		return
	}

	material, err := h.store.GetRawMaterial(r.Context(), materialID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "material not found"})
			return
		}
		log.Printf("ERROR: get material: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toMaterialResponse(material))
}

// CreateCatalog adds a raw material to the catalog.
func (h *MaterialHandler) CreateCatalog(w http.ResponseWriter, r *http.Request) {
	var req createMaterialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if !isValidUnit(req.Unit) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid unit"})
		return
	}

	material, err := h.store.CreateRawMaterial(r.Context(), database.CreateRawMaterialParams{
		Name: req.Name,
		Unit: req.Unit,
	})
	if err != nil {
		log.Printf("ERROR: create material: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toMaterialResponse(material))
}

// --- Stock handlers ---

func storeIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return uuid.Nil, false
	}
	return storeID, true
}

// ListStock returns a store's raw-material stock rows.
func (h *MaterialHandler) ListStock(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	rows, err := h.store.ListMaterialInventory(r.Context(), storeID)
	if err != nil {
		log.Printf("ERROR: list material inventory: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toMaterialInventoryResponses(rows))
}

// ListLowStock returns a store's material stock rows at or below their
// warning threshold.
func (h *MaterialHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	rows, err := h.store.ListLowMaterialInventory(r.Context(), storeID)
	if err != nil {
		log.Printf("ERROR: list low material inventory: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toMaterialInventoryResponses(rows))
}

// CreateStock registers a material stock row for a store.
func (h *MaterialHandler) CreateStock(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	var req createMaterialStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	materialID, err := uuid.Parse(req.MaterialID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid material_id"})
		return
	}

	quantity, err := parseAmount(req.Quantity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid quantity"})
		return
	}

	threshold, err := parseAmount(req.WarningThreshold)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid warning_threshold"})
		return
	}

	row, err := h.store.CreateMaterialInventory(r.Context(), database.CreateMaterialInventoryParams{
		StoreID:          storeID,
		MaterialID:       materialID,
		Quantity:         quantity,
		WarningThreshold: threshold,
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown store or material"})
			return
		}
		log.Printf("ERROR: create material inventory: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toMaterialInventoryResponse(row))
}

// SetStockQuantity records a stocktaking count for one material.
func (h *MaterialHandler) SetStockQuantity(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	materialID, err := uuid.Parse(chi.URLParam(r, "materialID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid material ID"})
		return
	}

	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	quantity, err := parseAmount(req.Quantity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid quantity"})
		return
	}

	row, err := h.store.SetMaterialInventoryQuantity(r.Context(), database.SetMaterialInventoryQuantityParams{
		StoreID:    storeID,
		MaterialID: materialID,
		Quantity:   quantity,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "material stock record not found"})
			return
		}
		log.Printf("ERROR: set material inventory quantity: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toMaterialInventoryResponse(row))
}
