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
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/solocoffee/api/internal/database"
	"github.com/solocoffee/api/internal/service"
)

// InventoryStore defines the database methods needed by finished-goods
// inventory handlers. Satisfied by *database.Queries; narrow interface for
// testability.
type InventoryStore interface {
	ListInventory(ctx context.Context) ([]database.Inventory, error)
	ListLowInventory(ctx context.Context) ([]database.Inventory, error)
	GetInventoryByProduct(ctx context.Context, productID uuid.UUID) (database.Inventory, error)
	CreateInventory(ctx context.Context, arg database.CreateInventoryParams) (database.Inventory, error)
	SetInventoryQuantity(ctx context.Context, arg database.SetInventoryQuantityParams) (database.Inventory, error)
	UpdateInventoryThreshold(ctx context.Context, arg database.UpdateInventoryThresholdParams) (database.Inventory, error)
}

// ReorderService refills depleted inventory rows.
// Satisfied by *service.InventoryService.
type ReorderService interface {
	Reorder(ctx context.Context, storeID uuid.UUID) (*service.ReorderResult, error)
}

// InventoryHandler handles finished-goods stock endpoints and the
// replenishment sweep.
type InventoryHandler struct {
	store InventoryStore
	svc   ReorderService
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(store InventoryStore, svc ReorderService) *InventoryHandler {
	return &InventoryHandler{store: store, svc: svc}
}

// RegisterRoutes registers finished-goods inventory endpoints on the given
// Chi router. Mounted at /inventory.
func (h *InventoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/low", h.ListLow)
	r.Get("/{productID}", h.Get)
	r.Post("/", h.Create)
	r.Put("/{productID}/quantity", h.SetQuantity)
	r.Put("/{productID}/threshold", h.UpdateThreshold)
}

// --- Request / Response types ---

type createInventoryRequest struct {
	ProductID        string `json:"product_id"`
	Quantity         string `json:"quantity"`
	Unit             string `json:"unit"`
	WarningThreshold string `json:"warning_threshold"`
}

type setQuantityRequest struct {
	Quantity string `json:"quantity"`
}

type setThresholdRequest struct {
	WarningThreshold string `json:"warning_threshold"`
}

type inventoryResponse struct {
	ID                uuid.UUID  `json:"id"`
	ProductID         uuid.UUID  `json:"product_id"`
	Quantity          string     `json:"quantity"`
	Unit              string     `json:"unit"`
	WarningThreshold  string     `json:"warning_threshold"`
	LastPurchaseAt    *time.Time `json:"last_purchase_at"`
	LastStocktakingAt *time.Time `json:"last_stocktaking_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type reorderResponse struct {
	Finished  []inventoryResponse         `json:"finished"`
	Materials []materialInventoryResponse `json:"materials"`
}

func toInventoryResponse(inv database.Inventory) inventoryResponse {
	resp := inventoryResponse{
		ID:               inv.ID,
		ProductID:        inv.ProductID,
		Quantity:         moneyString(inv.Quantity),
		Unit:             inv.Unit,
		WarningThreshold: moneyString(inv.WarningThreshold),
		CreatedAt:        inv.CreatedAt,
		UpdatedAt:        inv.UpdatedAt,
	}
	if inv.LastPurchaseAt.Valid {
		resp.LastPurchaseAt = &inv.LastPurchaseAt.Time
	}
	if inv.LastStocktakingAt.Valid {
		resp.LastStocktakingAt = &inv.LastStocktakingAt.Time
	}
	return resp
}

func toInventoryResponses(rows []database.Inventory) []inventoryResponse {
	out := make([]inventoryResponse, len(rows))
	for i, inv := range rows {
		out[i] = toInventoryResponse(inv)
	}
	return out
}

// --- Handlers ---

// List returns all finished-goods stock rows.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListInventory(r.Context())
	if err != nil {
		log.Printf("ERROR: list inventory: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toInventoryResponses(rows))
}

// ListLow returns stock rows at or below their warning threshold.
func (h *InventoryHandler) ListLow(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListLowInventory(r.Context())
	if err != nil {
		log.Printf("ERROR: list low inventory: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toInventoryResponses(rows))
}

// Get returns the stock row for a single product.
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	inv, err := h.store.GetInventoryByProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "inventory record not found"})
			return
		}
		log.Printf("ERROR: get inventory: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toInventoryResponse(inv))
}

// Create registers a stock row for a product, marking it as tracked
// finished goods.
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createInventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product_id"})
		return
	}

	quantity, err := parseAmount(req.Quantity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid quantity"})
		return
	}

	threshold := pgtype.Numeric{}
	if req.WarningThreshold != "" {
		threshold, err = parseAmount(req.WarningThreshold)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid warning_threshold"})
			return
		}
	} else {
		if err := threshold.Scan("0"); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
	}

	if !isValidUnit(req.Unit) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid unit"})
		return
	}

	inv, err := h.store.CreateInventory(r.Context(), database.CreateInventoryParams{
		ProductID:        productID,
		Quantity:         quantity,
		Unit:             req.Unit,
		WarningThreshold: threshold,
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown product"})
			return
		}
		log.Printf("ERROR: create inventory: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toInventoryResponse(inv))
}

// SetQuantity records a stocktaking count, overwriting the tracked quantity.
func (h *InventoryHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
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

	inv, err := h.store.SetInventoryQuantity(r.Context(), database.SetInventoryQuantityParams{
		ProductID: productID,
		Quantity:  quantity,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "inventory record not found"})
			return
		}
		log.Printf("ERROR: set inventory quantity: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toInventoryResponse(inv))
}

// UpdateThreshold changes the low-stock warning level for a product.
func (h *InventoryHandler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req setThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	threshold, err := parseAmount(req.WarningThreshold)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid warning_threshold"})
		return
	}

	inv, err := h.store.UpdateInventoryThreshold(r.Context(), database.UpdateInventoryThresholdParams{
		ProductID:        productID,
		WarningThreshold: threshold,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "inventory record not found"})
			return
		}
		log.Printf("ERROR: update inventory threshold: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toInventoryResponse(inv))
}

// Reorder refills every depleted row in both ledgers for a store.
// Mounted at POST /stores/{sid}/reorder.
func (h *InventoryHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	result, err := h.svc.Reorder(r.Context(), storeID)
	if err != nil {
		log.Printf("ERROR: reorder: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, reorderResponse{
		Finished:  toInventoryResponses(result.Finished),
		Materials: toMaterialInventoryResponses(result.Materials),
	})
}
