package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/solocoffee/api/internal/apperr"
	"github.com/solocoffee/api/internal/database"
	"github.com/solocoffee/api/internal/enum"
	"github.com/solocoffee/api/internal/service"
	"github.com/solocoffee/api/internal/ws"
)

// OrderService abstracts the order lifecycle engine.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderService interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	Pay(ctx context.Context, storeID, orderID uuid.UUID, method string) (*database.Order, error)
	AdvanceStatus(ctx context.Context, storeID, orderID uuid.UUID, next string) (*database.Order, error)
	Refund(ctx context.Context, storeID, orderID uuid.UUID, reason, amount string) (*database.Order, error)
}

// OrderStore defines the read-side database methods needed by order handlers.
// Satisfied by *database.Queries.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// OrderHandler handles order lifecycle endpoints.
type OrderHandler struct {
	svc   OrderService
	store OrderStore
	hub   *ws.Hub
}

// NewOrderHandler creates a new OrderHandler. hub may be nil in tests.
func NewOrderHandler(svc OrderService, store OrderStore, hub *ws.Hub) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, hub: hub}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside a store-scoped subrouter: /stores/{sid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/pay", h.Pay)
	r.Post("/{id}/refund", h.Refund)
}

// --- Request / Response types ---

type createOrderRequest struct {
	CustomerID    string                   `json:"customer_id"`
	PaymentMethod string                   `json:"payment_method"`
	Remarks       string                   `json:"remarks"`
	Items         []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type payOrderRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type refundOrderRequest struct {
	Reason string `json:"reason"`
	Amount string `json:"amount"`
}

type orderResponse struct {
	ID            uuid.UUID           `json:"id"`
	StoreID       uuid.UUID           `json:"store_id"`
	OrderNo       string              `json:"order_no"`
	CustomerID    *uuid.UUID          `json:"customer_id"`
	PaymentMethod *string             `json:"payment_method"`
	Status        string              `json:"status"`
	StatusCode    int32               `json:"status_code"`
	TotalAmount   string              `json:"total_amount"`
	ActualAmount  string              `json:"actual_amount"`
	Remarks       *string             `json:"remarks"`
	TransactionID *string             `json:"transaction_id"`
	RefundReason  *string             `json:"refund_reason"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Items         []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int32     `json:"quantity"`
	Price       string    `json:"price"`
	Subtotal    string    `json:"subtotal"`
}

func dbOrderToResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:           o.ID,
		StoreID:      o.StoreID,
		OrderNo:      o.OrderNo,
		Status:       o.Status,
		StatusCode:   enum.OrderStatusCodes[o.Status],
		TotalAmount:  moneyString(o.TotalAmount),
		ActualAmount: moneyString(o.ActualAmount),
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	if o.CustomerID.Valid {
		cid := uuid.UUID(o.CustomerID.Bytes)
		resp.CustomerID = &cid
	}
	if o.PaymentMethod.Valid {
		resp.PaymentMethod = &o.PaymentMethod.String
	}
	if o.Remarks.Valid {
		resp.Remarks = &o.Remarks.String
	}
	if o.TransactionID.Valid {
		resp.TransactionID = &o.TransactionID.String
	}
	if o.RefundReason.Valid {
		resp.RefundReason = &o.RefundReason.String
	}
	return resp
}

func dbItemToResponse(it database.OrderItem) orderItemResponse {
	return orderItemResponse{
		ID:          it.ID,
		ProductID:   it.ProductID,
		ProductName: it.ProductName,
		Quantity:    it.Quantity,
		Price:       moneyString(it.Price),
		Subtotal:    moneyString(it.Subtotal),
	}
}

// --- Helpers ---

// moneyString formats a numeric column with 2 decimal places for consistent
// money representation.
func moneyString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}

// isValidationError reports whether err is a request validation failure from
// the order service, which maps to 400 with a PARAMETER_ERROR code.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidProductID) ||
		errors.Is(err, service.ErrInvalidCustomerID) ||
		errors.Is(err, service.ErrInvalidPaymentMethod) ||
		errors.Is(err, service.ErrInvalidStatus)
}

// respondServiceError maps order service failures onto HTTP statuses:
// validation errors to 400, classified errors by their code, the rest to 500.
func respondServiceError(w http.ResponseWriter, op string, err error) {
	if isValidationError(err) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
			"code":  string(apperr.CodeParameterError),
		})
		return
	}
	if code, ok := apperr.CodeOf(err); ok {
		writeJSON(w, apperr.HTTPStatus(code), map[string]string{
			"error": err.Error(),
			"code":  string(code),
		})
		return
	}
	log.Printf("ERROR: %s: %v", op, err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func (h *OrderHandler) broadcast(storeID uuid.UUID, eventType string, resp orderResponse) {
	if h.hub == nil {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	h.hub.BroadcastToStore(storeID, ws.Event{Type: eventType, Payload: payload})
}

// --- Handlers ---

// Create takes a new order in PENDING after checking stock.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcReq := service.CreateOrderRequest{
		StoreID:       storeID,
		CustomerID:    req.CustomerID,
		PaymentMethod: req.PaymentMethod,
		Remarks:       req.Remarks,
	}
	for _, item := range req.Items {
		svcReq.Items = append(svcReq.Items, service.CreateOrderItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	result, err := h.svc.CreateOrder(r.Context(), svcReq)
	if err != nil {
		respondServiceError(w, "create order", err)
		return
	}

	resp := dbOrderToResponse(result.Order)
	for _, it := range result.Items {
		resp.Items = append(resp.Items, dbItemToResponse(it))
	}

	h.broadcast(storeID, "order.created", resp)
	writeJSON(w, http.StatusCreated, resp)
}

// List returns the store's orders, newest first, optionally filtered by
// status: GET /stores/{sid}/orders?status=PENDING&limit=20&offset=0
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	status := pgtype.Text{}
	if s := r.URL.Query().Get("status"); s != "" {
		if !enum.IsValidOrderStatus(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
		status = pgtype.Text{String: s, Valid: true}
	}

	limit := int32(50)
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n <= 0 || n > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = int32(n)
	}

	offset := int32(0)
	if s := r.URL.Query().Get("offset"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
			return
		}
		offset = int32(n)
	}

	orders, err := h.store.ListOrders(r.Context(), database.ListOrdersParams{
		StoreID: storeID,
		Status:  status,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single order with its items.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: orderID, StoreID: storeID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := dbOrderToResponse(order)
	for _, it := range items {
		resp.Items = append(resp.Items, dbItemToResponse(it))
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus moves an order along the state machine. Completion deducts
// stock atomically with the status change.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.svc.AdvanceStatus(r.Context(), storeID, orderID, req.Status)
	if err != nil {
		respondServiceError(w, "update order status", err)
		return
	}

	resp := dbOrderToResponse(*order)
	h.broadcast(storeID, "order.status", resp)
	writeJSON(w, http.StatusOK, resp)
}

// Pay confirms payment for a PENDING order.
func (h *OrderHandler) Pay(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req payOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.svc.Pay(r.Context(), storeID, orderID, req.PaymentMethod)
	if err != nil {
		respondServiceError(w, "pay order", err)
		return
	}

	resp := dbOrderToResponse(*order)
	h.broadcast(storeID, "order.status", resp)
	writeJSON(w, http.StatusOK, resp)
}

// Refund finishes the refund flow and restores any consumed stock.
func (h *OrderHandler) Refund(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	// The body is optional; full refunds need no reason or amount.
	var req refundOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.svc.Refund(r.Context(), storeID, orderID, req.Reason, req.Amount)
	if err != nil {
		respondServiceError(w, "refund order", err)
		return
	}

	resp := dbOrderToResponse(*order)
	h.broadcast(storeID, "order.status", resp)
	writeJSON(w, http.StatusOK, resp)
}
