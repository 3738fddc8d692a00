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
	"github.com/solocoffee/api/internal/enum"
)

// BomStore defines the database methods needed by BOM handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type BomStore interface {
	ListBomByProduct(ctx context.Context, productID uuid.UUID) ([]database.ProductBom, error)
	CreateBomEntry(ctx context.Context, arg database.CreateBomEntryParams) (database.ProductBom, error)
	DeleteBomEntry(ctx context.Context, arg database.DeleteBomEntryParams) (uuid.UUID, error)
}

// BomHandler manages a product's bill of materials. A product with BOM
// entries is accounted against raw materials instead of finished goods.
type BomHandler struct {
	store BomStore
}

// NewBomHandler creates a new BomHandler.
func NewBomHandler(store BomStore) *BomHandler {
	return &BomHandler{store: store}
}

// RegisterRoutes registers BOM endpoints on the given Chi router.
// Mounted at /products/{id}/bom.
func (h *BomHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/{bomID}", h.Delete)
}

// --- Request / Response types ---

type createBomEntryRequest struct {
	MaterialID  string `json:"material_id"`
	Quantity    string `json:"quantity"`
	Unit        string `json:"unit"`
	IsMain      bool   `json:"is_main"`
	Description string `json:"description"`
}

type bomEntryResponse struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	MaterialID  uuid.UUID `json:"material_id"`
	Quantity    string    `json:"quantity"`
	Unit        string    `json:"unit"`
	IsMain      bool      `json:"is_main"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toBomEntryResponse(b database.ProductBom) bomEntryResponse {
	resp := bomEntryResponse{
		ID:         b.ID,
		ProductID:  b.ProductID,
		MaterialID: b.MaterialID,
		Quantity:   moneyString(b.Quantity),
		Unit:       b.Unit,
		IsMain:     b.IsMain,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
	if b.Description.Valid {
		resp.Description = &b.Description.String
	}
	return resp
}

func isValidUnit(s string) bool {
	switch s {
	case enum.UnitGram, enum.UnitMilliliter, enum.UnitPiece:
		return true
	}
	return false
}

// --- Handlers ---

// List returns the product's bill of materials.
func (h *BomHandler) List(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	entries, err := h.store.ListBomByProduct(r.Context(), productID)
	if err != nil {
		log.Printf("ERROR: list bom: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]bomEntryResponse, len(entries))
	for i, b := range entries {
		resp[i] = toBomEntryResponse(b)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create adds a component to the product's bill of materials.
func (h *BomHandler) Create(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req createBomEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	materialID, err := uuid.Parse(req.MaterialID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid material_id"})
		return
	}

	if req.Quantity == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity is required"})
		return
	}
	quantity, err := parseAmount(req.Quantity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid quantity"})
		return
	}

	if !isValidUnit(req.Unit) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid unit"})
		return
	}

	desc := pgtype.Text{}
	if req.Description != "" {
		desc = pgtype.Text{String: req.Description, Valid: true}
	}

	entry, err := h.store.CreateBomEntry(r.Context(), database.CreateBomEntryParams{
		ProductID:   productID,
		MaterialID:  materialID,
		Quantity:    quantity,
		Unit:        req.Unit,
		IsMain:      req.IsMain,
		Description: desc,
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown product or material"})
			return
		}
		log.Printf("ERROR: create bom entry: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toBomEntryResponse(entry))
}

// Delete removes a component from the product's bill of materials.
func (h *BomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	bomID, err := uuid.Parse(chi.URLParam(r, "bomID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bom entry ID"})
		return
	}

	_, err = h.store.DeleteBomEntry(r.Context(), database.DeleteBomEntryParams{
		ID:        bomID,
		ProductID: productID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "bom entry not found"})
			return
		}
		log.Printf("ERROR: delete bom entry: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
