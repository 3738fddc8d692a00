package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/solocoffee/api/internal/apperr"
	"github.com/solocoffee/api/internal/database"
	"github.com/solocoffee/api/internal/enum"
)

const maxOrderSeqRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidProductID     = errors.New("invalid product_id")
	ErrInvalidCustomerID    = errors.New("invalid customer_id")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrInvalidStatus        = errors.New("invalid status")
)

// allowedTransitions is the order state machine. CANCELLED and REFUNDED are
// terminal. REFUNDED is reachable only through Refund, which also restores
// consumed stock.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPending:       {enum.OrderStatusInProgress, enum.OrderStatusCancelled, enum.OrderStatusRefundPending},
	enum.OrderStatusInProgress:    {enum.OrderStatusCompleted, enum.OrderStatusCancelled, enum.OrderStatusRefundPending},
	enum.OrderStatusCompleted:     {enum.OrderStatusRefundPending},
	enum.OrderStatusRefundPending: {enum.OrderStatusRefunded},
}

func transitionAllowed(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to run the order lifecycle.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetNextOrderSeq(ctx context.Context, storeID uuid.UUID) (int32, error)
	GetProductForOrder(ctx context.Context, id uuid.UUID) (database.GetProductForOrderRow, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	CompleteOrder(ctx context.Context, arg database.CompleteOrderParams) (database.Order, error)
	RefundOrder(ctx context.Context, arg database.RefundOrderParams) (database.Order, error)
	MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error)

	InventoryStore
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is the validated input for creating an order.
// PaymentMethod may be empty; it is then chosen at payment time.
type CreateOrderRequest struct {
	StoreID       uuid.UUID
	CustomerID    string
	PaymentMethod string
	Remarks       string
	Items         []CreateOrderItemRequest
}

// CreateOrderItemRequest is a single line in the order.
type CreateOrderItemRequest struct {
	ProductID string
	Quantity  int32
}

// CreateOrderResult is the full created order with items.
type CreateOrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderService handles order business logic.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore) *OrderService {
	return &OrderService{pool: pool, newStore: newStore}
}

// processedItem holds a prepared order line with its price snapshot.
type processedItem struct {
	params database.CreateOrderItemParams
}

// CreateOrder validates, snapshots prices, checks stock, and creates an order
// atomically in PENDING. Retries up to maxOrderSeqRetries times on order_seq
// unique constraint violations (race condition where concurrent transactions
// get the same MAX).
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.PaymentMethod != "" && !enum.IsValidPaymentMethod(req.PaymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		if _, err := uuid.Parse(item.ProductID); err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidProductID)
		}
	}

	// Retry loop: handles order_seq unique constraint race condition.
	var lastErr error
	for attempt := 0; attempt < maxOrderSeqRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req)
		if err == nil {
			return result, nil
		}
		if isOrderSeqConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// isOrderSeqConflict checks if the error is a unique constraint violation on
// the per-store order sequence (pgconn error code 23505).
func isOrderSeqConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_store_id_order_seq_key"
	}
	return false
}

// createOrderTx executes the full order creation in a single transaction.
func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	seq, err := store.GetNextOrderSeq(ctx, req.StoreID)
	if err != nil {
		return nil, fmt.Errorf("get next order seq: %w", err)
	}
	orderNo := fmt.Sprintf("ORD-%06d", seq)

	// Process lines: snapshot name and price, total up, verify stock.
	total := decimal.Zero
	var items []processedItem

	for i, item := range req.Items {
		productID, _ := uuid.Parse(item.ProductID)

		product, err := store.GetProductForOrder(ctx, productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperr.Newf(apperr.CodeResourceNotFound, "item[%d]: product %s not found", i, productID)
			}
			return nil, fmt.Errorf("item[%d]: get product: %w", i, err)
		}

		price := numericToDecimal(product.Price)
		subtotal := price.Mul(decimal.NewFromInt32(item.Quantity))
		total = total.Add(subtotal)

		if err := checkLine(ctx, store, req.StoreID, productID, item.Quantity); err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}

		items = append(items, processedItem{
			params: database.CreateOrderItemParams{
				ProductID:   productID,
				ProductName: product.Name,
				Quantity:    item.Quantity,
				Price:       decimalToNumeric(price),
				Subtotal:    decimalToNumeric(subtotal),
			},
		})
	}

	customerID := pgtype.UUID{}
	if req.CustomerID != "" {
		cid, err := uuid.Parse(req.CustomerID)
		if err != nil {
			return nil, ErrInvalidCustomerID
		}
		customerID = pgtype.UUID{Bytes: cid, Valid: true}
	}

	remarks := pgtype.Text{}
	if req.Remarks != "" {
		remarks = pgtype.Text{String: req.Remarks, Valid: true}
	}

	paymentMethod := pgtype.Text{}
	if req.PaymentMethod != "" {
		paymentMethod = pgtype.Text{String: req.PaymentMethod, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		StoreID:       req.StoreID,
		OrderNo:       orderNo,
		OrderSeq:      seq,
		CustomerID:    customerID,
		PaymentMethod: paymentMethod,
		Status:        enum.OrderStatusPending,
		TotalAmount:   decimalToNumeric(total),
		ActualAmount:  decimalToNumeric(total),
		Remarks:       remarks,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	var itemResults []database.OrderItem
	for _, pi := range items {
		pi.params.OrderID = order.ID
		item, err := store.CreateOrderItem(ctx, pi.params)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		itemResults = append(itemResults, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{Order: order, Items: itemResults}, nil
}

// Pay confirms payment for a PENDING order and advances it to IN_PROGRESS.
// An empty method falls back to the one given at creation. Payment capture
// is simulated; the recorded transaction ID stands in for a gateway
// reference.
func (s *OrderService) Pay(ctx context.Context, storeID, orderID uuid.UUID, method string) (*database.Order, error) {
	if method != "" && !enum.IsValidPaymentMethod(method) {
		return nil, ErrInvalidPaymentMethod
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := s.lockOrder(ctx, store, storeID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enum.OrderStatusPending {
		return nil, apperr.Newf(apperr.CodePaymentFailed,
			"order %s is %s, only PENDING orders can be paid", order.OrderNo, order.Status)
	}

	if method == "" {
		if !order.PaymentMethod.Valid {
			return nil, ErrInvalidPaymentMethod
		}
		method = order.PaymentMethod.String
	}

	txnID := fmt.Sprintf("TXN%d", time.Now().UnixMilli())
	paid, err := store.MarkOrderPaid(ctx, database.MarkOrderPaidParams{
		ID:            orderID,
		StoreID:       storeID,
		PaymentMethod: method,
		TransactionID: txnID,
	})
	if err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &paid, nil
}

// AdvanceStatus moves an order along the state machine. Completing an order
// deducts stock in the same transaction, so the status change and the ledger
// writes land together or not at all.
func (s *OrderService) AdvanceStatus(ctx context.Context, storeID, orderID uuid.UUID, next string) (*database.Order, error) {
	if !enum.IsValidOrderStatus(next) {
		return nil, ErrInvalidStatus
	}
	if next == enum.OrderStatusRefunded {
		return nil, apperr.New(apperr.CodeInvalidStatusTransition,
			"REFUNDED is set through the refund operation")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := s.lockOrder(ctx, store, storeID, orderID)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(order.Status, next) {
		return nil, apperr.Newf(apperr.CodeInvalidStatusTransition,
			"order %s cannot move from %s to %s", order.OrderNo, order.Status, next)
	}

	var updated database.Order
	if next == enum.OrderStatusCompleted {
		if err := s.deductOrder(ctx, store, order); err != nil {
			return nil, err
		}
		updated, err = store.CompleteOrder(ctx, database.CompleteOrderParams{
			ID:         orderID,
			StoreID:    storeID,
			FromStatus: order.Status,
		})
	} else {
		updated, err = store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
			ID:         orderID,
			StoreID:    storeID,
			Status:     next,
			FromStatus: order.Status,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &updated, nil
}

// Refund finishes the refund flow: the order moves to REFUNDED and, if
// completing it had consumed stock, every line is written back to the ledger
// it was deducted from. Only full refunds are supported; a non-empty amount
// must match the order's actual amount.
func (s *OrderService) Refund(ctx context.Context, storeID, orderID uuid.UUID, reason, amount string) (*database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := s.lockOrder(ctx, store, storeID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enum.OrderStatusCompleted && order.Status != enum.OrderStatusRefundPending {
		return nil, apperr.Newf(apperr.CodeRefundFailed,
			"order %s is %s, only COMPLETED or REFUND_PENDING orders can be refunded", order.OrderNo, order.Status)
	}

	if amount != "" {
		requested, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, apperr.Newf(apperr.CodeRefundFailed, "invalid refund amount %q", amount)
		}
		if !requested.Equal(numericToDecimal(order.ActualAmount)) {
			return nil, apperr.Newf(apperr.CodeRefundFailed,
				"refund amount %s does not match order amount %s; partial refunds are not supported",
				requested.StringFixed(2), numericToDecimal(order.ActualAmount).StringFixed(2))
		}
	}

	if order.InventoryDeducted {
		items, err := store.ListOrderItemsByOrder(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("list order items: %w", err)
		}
		for _, item := range items {
			if err := restoreLine(ctx, store, storeID, item.ProductID, item.Quantity); err != nil {
				return nil, apperr.Wrap(apperr.CodeRefundFailed, "restore stock", err)
			}
		}
	}

	refundReason := pgtype.Text{}
	if reason != "" {
		refundReason = pgtype.Text{String: reason, Valid: true}
	}

	refunded, err := store.RefundOrder(ctx, database.RefundOrderParams{
		ID:         orderID,
		StoreID:    storeID,
		FromStatus: order.Status,
		Reason:     refundReason,
	})
	if err != nil {
		return nil, fmt.Errorf("refund order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &refunded, nil
}

// deductOrder consumes stock for every line of the order.
func (s *OrderService) deductOrder(ctx context.Context, store OrderStore, order database.Order) error {
	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	for _, item := range items {
		if err := deductLine(ctx, store, order.StoreID, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *OrderService) lockOrder(ctx context.Context, store OrderStore, storeID, orderID uuid.UUID) (database.Order, error) {
	order, err := store.GetOrderForUpdate(ctx, database.GetOrderParams{ID: orderID, StoreID: storeID})
	if errors.Is(err, pgx.ErrNoRows) {
		return database.Order{}, apperr.Newf(apperr.CodeOrderNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// --- Helpers ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
