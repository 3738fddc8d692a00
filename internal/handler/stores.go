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
)

// StoreStore defines the database methods needed by store handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type StoreStore interface {
	ListStores(ctx context.Context) ([]database.Store, error)
	GetStore(ctx context.Context, id uuid.UUID) (database.Store, error)
	CreateStore(ctx context.Context, arg database.CreateStoreParams) (database.Store, error)
	UpdateStore(ctx context.Context, arg database.UpdateStoreParams) (database.Store, error)
}

// StoreHandler handles store management endpoints.
type StoreHandler struct {
	store StoreStore
}

// NewStoreHandler creates a new StoreHandler.
func NewStoreHandler(store StoreStore) *StoreHandler {
	return &StoreHandler{store: store}
}

// RegisterRoutes registers store endpoints on the given Chi router.
// Mounted at /stores.
func (h *StoreHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{sid}", h.Get)
	r.Post("/", h.Create)
	r.Put("/{sid}", h.Update)
}

// --- Request / Response types ---

type storeRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type storeResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   *string   `json:"address"`
	Phone     *string   `json:"phone"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toStoreResponse(s database.Store) storeResponse {
	resp := storeResponse{
		ID:        s.ID,
		Name:      s.Name,
		IsActive:  s.IsActive,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Address.Valid {
		resp.Address = &s.Address.String
	}
	if s.Phone.Valid {
		resp.Phone = &s.Phone.String
	}
	return resp
}

// --- Handlers ---

// List returns all active stores.
func (h *StoreHandler) List(w http.ResponseWriter, r *http.Request) {
	stores, err := h.store.ListStores(r.Context())
	if err != nil {
		log.Printf("ERROR: list stores: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]storeResponse, len(stores))
	for i, s := range stores {
		resp[i] = toStoreResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single store by ID.
func (h *StoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	store, err := h.store.GetStore(r.Context(), storeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "store not found"})
			return
		}
		log.Printf("ERROR: get store: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toStoreResponse(store))
}

// Create opens a new store.
func (h *StoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	store, err := h.store.CreateStore(r.Context(), database.CreateStoreParams{
		Name:    req.Name,
		Address: textOrNull(req.Address),
		Phone:   textOrNull(req.Phone),
	})
	if err != nil {
		log.Printf("ERROR: create store: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toStoreResponse(store))
}

// Update modifies an existing store.
func (h *StoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	store, err := h.store.UpdateStore(r.Context(), database.UpdateStoreParams{
		ID:      storeID,
		Name:    req.Name,
		Address: textOrNull(req.Address),
		Phone:   textOrNull(req.Phone),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "store not found"})
			return
		}
		log.Printf("ERROR: update store: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toStoreResponse(store))
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
