package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, store_id, order_no, order_seq, customer_id, payment_method, status,
	total_amount, actual_amount, remarks, transaction_id, refund_reason, inventory_deducted,
	created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.StoreID, &o.OrderNo, &o.OrderSeq, &o.CustomerID, &o.PaymentMethod,
		&o.Status, &o.TotalAmount, &o.ActualAmount, &o.Remarks, &o.TransactionID,
		&o.RefundReason, &o.InventoryDeducted, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// GetNextOrderSeq returns the next per-store order sequence. Concurrent
// transactions can read the same value; the unique constraint on
// (store_id, order_seq) catches the loser, which retries.
func (q *Queries) GetNextOrderSeq(ctx context.Context, storeID uuid.UUID) (int32, error) {
	var seq int32
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(order_seq), 0) + 1 FROM orders WHERE store_id = $1`,
		storeID,
	).Scan(&seq)
	return seq, err
}

type CreateOrderParams struct {
	StoreID       uuid.UUID
	OrderNo       string
	OrderSeq      int32
	CustomerID    pgtype.UUID
	PaymentMethod pgtype.Text
	Status        string
	TotalAmount   pgtype.Numeric
	ActualAmount  pgtype.Numeric
	Remarks       pgtype.Text
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO orders (store_id, order_no, order_seq, customer_id, payment_method,
			status, total_amount, actual_amount, remarks)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+orderColumns,
		arg.StoreID, arg.OrderNo, arg.OrderSeq, arg.CustomerID, arg.PaymentMethod,
		arg.Status, arg.TotalAmount, arg.ActualAmount, arg.Remarks,
	)
	return scanOrder(row)
}

type CreateOrderItemParams struct {
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int32
	Price       pgtype.Numeric
	Subtotal    pgtype.Numeric
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	var it OrderItem
	err := q.db.QueryRow(ctx,
		`INSERT INTO order_items (order_id, product_id, product_name, quantity, price, subtotal)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, order_id, product_id, product_name, quantity, price, subtotal`,
		arg.OrderID, arg.ProductID, arg.ProductName, arg.Quantity, arg.Price, arg.Subtotal,
	).Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price, &it.Subtotal)
	return it, err
}

type GetOrderParams struct {
	ID      uuid.UUID
	StoreID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND store_id = $2`,
		arg.ID, arg.StoreID,
	)
	return scanOrder(row)
}

// GetOrderForUpdate locks the order row so status transitions and their
// inventory side effects serialize per order.
func (q *Queries) GetOrderForUpdate(ctx context.Context, arg GetOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND store_id = $2 FOR NO KEY UPDATE`,
		arg.ID, arg.StoreID,
	)
	return scanOrder(row)
}

type ListOrdersParams struct {
	StoreID uuid.UUID
	Status  pgtype.Text
	Limit   int32
	Offset  int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE store_id = $1 AND ($2::text IS NULL OR status = $2)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		arg.StoreID, arg.Status, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, order_id, product_id, product_name, quantity, price, subtotal
		 FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.Quantity, &it.Price, &it.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	StoreID    uuid.UUID
	Status     string
	FromStatus string
}

// UpdateOrderStatus moves the order to Status only if it is still in
// FromStatus; pgx.ErrNoRows signals the order changed underneath us.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE orders SET status = $3, updated_at = now()
		 WHERE id = $1 AND store_id = $2 AND status = $4
		 RETURNING `+orderColumns,
		arg.ID, arg.StoreID, arg.Status, arg.FromStatus,
	)
	return scanOrder(row)
}

type CompleteOrderParams struct {
	ID         uuid.UUID
	StoreID    uuid.UUID
	FromStatus string
}

// CompleteOrder marks the order COMPLETED and records that stock was
// consumed, so a later refund restores it.
func (q *Queries) CompleteOrder(ctx context.Context, arg CompleteOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE orders SET status = 'COMPLETED', inventory_deducted = true, updated_at = now()
		 WHERE id = $1 AND store_id = $2 AND status = $3
		 RETURNING `+orderColumns,
		arg.ID, arg.StoreID, arg.FromStatus,
	)
	return scanOrder(row)
}

type RefundOrderParams struct {
	ID         uuid.UUID
	StoreID    uuid.UUID
	FromStatus string
	Reason     pgtype.Text
}

// RefundOrder marks the order REFUNDED and clears the deduction flag once
// any restored stock has been written back.
func (q *Queries) RefundOrder(ctx context.Context, arg RefundOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE orders SET status = 'REFUNDED', refund_reason = $4, inventory_deducted = false,
			updated_at = now()
		 WHERE id = $1 AND store_id = $2 AND status = $3
		 RETURNING `+orderColumns,
		arg.ID, arg.StoreID, arg.FromStatus, arg.Reason,
	)
	return scanOrder(row)
}

type MarkOrderPaidParams struct {
	ID            uuid.UUID
	StoreID       uuid.UUID
	PaymentMethod string
	TransactionID string
}

// MarkOrderPaid records the confirmed payment and advances PENDING to
// IN_PROGRESS in one statement.
func (q *Queries) MarkOrderPaid(ctx context.Context, arg MarkOrderPaidParams) (Order, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE orders SET status = 'IN_PROGRESS', payment_method = $3, transaction_id = $4,
			updated_at = now()
		 WHERE id = $1 AND store_id = $2 AND status = 'PENDING'
		 RETURNING `+orderColumns,
		arg.ID, arg.StoreID, arg.PaymentMethod, arg.TransactionID,
	)
	return scanOrder(row)
}
