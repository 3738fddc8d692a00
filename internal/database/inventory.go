package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const inventoryColumns = `id, product_id, quantity, unit, warning_threshold,
	last_purchase_at, last_stocktaking_at, created_at, updated_at`

func scanInventory(row interface{ Scan(dest ...any) error }) (Inventory, error) {
	var inv Inventory
	err := row.Scan(&inv.ID, &inv.ProductID, &inv.Quantity, &inv.Unit, &inv.WarningThreshold,
		&inv.LastPurchaseAt, &inv.LastStocktakingAt, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func (q *Queries) GetInventoryByProduct(ctx context.Context, productID uuid.UUID) (Inventory, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+inventoryColumns+` FROM inventory WHERE product_id = $1`, productID)
	return scanInventory(row)
}

func (q *Queries) ListInventory(ctx context.Context) ([]Inventory, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+inventoryColumns+` FROM inventory ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Inventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ListLowInventory returns finished-goods rows at or below their warning
// threshold.
func (q *Queries) ListLowInventory(ctx context.Context) ([]Inventory, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+inventoryColumns+` FROM inventory
		 WHERE quantity <= warning_threshold ORDER BY quantity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Inventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type DeductInventoryParams struct {
	ProductID uuid.UUID
	Quantity  pgtype.Numeric
}

// DeductInventory subtracts Quantity only when enough stock remains; the
// quantity >= $2 guard returns pgx.ErrNoRows instead of going negative.
func (q *Queries) DeductInventory(ctx context.Context, arg DeductInventoryParams) (Inventory, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE inventory SET quantity = quantity - $2, updated_at = now()
		 WHERE product_id = $1 AND quantity >= $2
		 RETURNING `+inventoryColumns,
		arg.ProductID, arg.Quantity,
	)
	return scanInventory(row)
}

type RestoreInventoryParams struct {
	ProductID uuid.UUID
	Quantity  pgtype.Numeric
}

func (q *Queries) RestoreInventory(ctx context.Context, arg RestoreInventoryParams) (Inventory, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE inventory SET quantity = quantity + $2, updated_at = now()
		 WHERE product_id = $1
		 RETURNING `+inventoryColumns,
		arg.ProductID, arg.Quantity,
	)
	return scanInventory(row)
}

type TopUpAllInventoryParams struct {
	Threshold pgtype.Numeric
	Target    pgtype.Numeric
}

// TopUpAllInventory is the reorder sweep over finished goods.
func (q *Queries) TopUpAllInventory(ctx context.Context, arg TopUpAllInventoryParams) ([]Inventory, error) {
	rows, err := q.db.Query(ctx,
		`UPDATE inventory SET quantity = $2, last_purchase_at = now(), updated_at = now()
		 WHERE quantity <= $1
		 RETURNING `+inventoryColumns,
		arg.Threshold, arg.Target,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Inventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type CreateInventoryParams struct {
	ProductID        uuid.UUID
	Quantity         pgtype.Numeric
	Unit             string
	WarningThreshold pgtype.Numeric
}

func (q *Queries) CreateInventory(ctx context.Context, arg CreateInventoryParams) (Inventory, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO inventory (product_id, quantity, unit, warning_threshold)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+inventoryColumns,
		arg.ProductID, arg.Quantity, arg.Unit, arg.WarningThreshold,
	)
	return scanInventory(row)
}

type SetInventoryQuantityParams struct {
	ProductID uuid.UUID
	Quantity  pgtype.Numeric
}

// SetInventoryQuantity records a stocktaking count.
func (q *Queries) SetInventoryQuantity(ctx context.Context, arg SetInventoryQuantityParams) (Inventory, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE inventory SET quantity = $2, last_stocktaking_at = now(), updated_at = now()
		 WHERE product_id = $1
		 RETURNING `+inventoryColumns,
		arg.ProductID, arg.Quantity,
	)
	return scanInventory(row)
}

type UpdateInventoryThresholdParams struct {
	ProductID        uuid.UUID
	WarningThreshold pgtype.Numeric
}

func (q *Queries) UpdateInventoryThreshold(ctx context.Context, arg UpdateInventoryThresholdParams) (Inventory, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE inventory SET warning_threshold = $2, updated_at = now()
		 WHERE product_id = $1
		 RETURNING `+inventoryColumns,
		arg.ProductID, arg.WarningThreshold,
	)
	return scanInventory(row)
}
