package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ── Raw materials ──

const rawMaterialColumns = `id, name, unit, created_at, updated_at`

func scanRawMaterial(row interface{ Scan(dest ...any) error }) (RawMaterial, error) {
	var m RawMaterial
	err := row.Scan(&m.ID, &m.Name, &m.Unit, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (q *Queries) ListRawMaterials(ctx context.Context) ([]RawMaterial, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+rawMaterialColumns+` FROM raw_materials ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RawMaterial
	for rows.Next() {
		m, err := scanRawMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q *Queries) GetRawMaterial(ctx context.Context, id uuid.UUID) (RawMaterial, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+rawMaterialColumns+` FROM raw_materials WHERE id = $1`, id)
	return scanRawMaterial(row)
}

type CreateRawMaterialParams struct {
	Name string
	Unit string
}

func (q *Queries) CreateRawMaterial(ctx context.Context, arg CreateRawMaterialParams) (RawMaterial, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO raw_materials (name, unit) VALUES ($1, $2)
		 RETURNING `+rawMaterialColumns,
		arg.Name, arg.Unit,
	)
	return scanRawMaterial(row)
}

// ── Material inventory ──

const materialInventoryColumns = `id, store_id, material_id, quantity, warning_threshold,
	last_purchase_at, last_stocktaking_at, created_at, updated_at`

func scanMaterialInventory(row interface{ Scan(dest ...any) error }) (MaterialInventory, error) {
	var inv MaterialInventory
	err := row.Scan(&inv.ID, &inv.StoreID, &inv.MaterialID, &inv.Quantity, &inv.WarningThreshold,
		&inv.LastPurchaseAt, &inv.LastStocktakingAt, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

type GetMaterialInventoryParams struct {
	StoreID    uuid.UUID
	MaterialID uuid.UUID
}

func (q *Queries) GetMaterialInventory(ctx context.Context, arg GetMaterialInventoryParams) (MaterialInventory, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+materialInventoryColumns+` FROM material_inventory
		 WHERE store_id = $1 AND material_id = $2`,
		arg.StoreID, arg.MaterialID,
	)
	return scanMaterialInventory(row)
}

func (q *Queries) ListMaterialInventory(ctx context.Context, storeID uuid.UUID) ([]MaterialInventory, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+materialInventoryColumns+` FROM material_inventory
		 WHERE store_id = $1 ORDER BY created_at`,
		storeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MaterialInventory
	for rows.Next() {
		inv, err := scanMaterialInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (q *Queries) ListLowMaterialInventory(ctx context.Context, storeID uuid.UUID) ([]MaterialInventory, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+materialInventoryColumns+` FROM material_inventory
		 WHERE store_id = $1 AND quantity <= warning_threshold ORDER BY quantity`,
		storeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MaterialInventory
	for rows.Next() {
		inv, err := scanMaterialInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type DeductMaterialInventoryParams struct {
	StoreID    uuid.UUID
	MaterialID uuid.UUID
	Quantity   pgtype.Numeric
}

// DeductMaterialInventory subtracts Quantity only when enough stock remains;
// the quantity >= $3 guard returns pgx.ErrNoRows instead of going negative.
func (q *Queries) DeductMaterialInventory(ctx context.Context, arg DeductMaterialInventoryParams) (MaterialInventory, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE material_inventory SET quantity = quantity - $3, updated_at = now()
		 WHERE store_id = $1 AND material_id = $2 AND quantity >= $3
		 RETURNING `+materialInventoryColumns,
		arg.StoreID, arg.MaterialID, arg.Quantity,
	)
	return scanMaterialInventory(row)
}

type RestoreMaterialInventoryParams struct {
	StoreID    uuid.UUID
	MaterialID uuid.UUID
	Quantity   pgtype.Numeric
}

func (q *Queries) RestoreMaterialInventory(ctx context.Context, arg RestoreMaterialInventoryParams) (MaterialInventory, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE material_inventory SET quantity = quantity + $3, updated_at = now()
		 WHERE store_id = $1 AND material_id = $2
		 RETURNING `+materialInventoryColumns,
		arg.StoreID, arg.MaterialID, arg.Quantity,
	)
	return scanMaterialInventory(row)
}

type TopUpAllMaterialInventoryParams struct {
	StoreID   uuid.UUID
	Threshold pgtype.Numeric
	Target    pgtype.Numeric
}

// TopUpAllMaterialInventory is the reorder sweep over a store's raw materials.
func (q *Queries) TopUpAllMaterialInventory(ctx context.Context, arg TopUpAllMaterialInventoryParams) ([]MaterialInventory, error) {
	rows, err := q.db.Query(ctx,
		`UPDATE material_inventory SET quantity = $3, last_purchase_at = now(), updated_at = now()
		 WHERE store_id = $1 AND quantity <= $2
		 RETURNING `+materialInventoryColumns,
		arg.StoreID, arg.Threshold, arg.Target,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MaterialInventory
	for rows.Next() {
		inv, err := scanMaterialInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type CreateMaterialInventoryParams struct {
	StoreID          uuid.UUID
	MaterialID       uuid.UUID
	Quantity         pgtype.Numeric
	WarningThreshold pgtype.Numeric
}

func (q *Queries) CreateMaterialInventory(ctx context.Context, arg CreateMaterialInventoryParams) (MaterialInventory, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO material_inventory (store_id, material_id, quantity, warning_threshold)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+materialInventoryColumns,
		arg.StoreID, arg.MaterialID, arg.Quantity, arg.WarningThreshold,
	)
	return scanMaterialInventory(row)
}

type SetMaterialInventoryQuantityParams struct {
	StoreID    uuid.UUID
	MaterialID uuid.UUID
	Quantity   pgtype.Numeric
}

// SetMaterialInventoryQuantity records a stocktaking count.
func (q *Queries) SetMaterialInventoryQuantity(ctx context.Context, arg SetMaterialInventoryQuantityParams) (MaterialInventory, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE material_inventory SET quantity = $3, last_stocktaking_at = now(), updated_at = now()
		 WHERE store_id = $1 AND material_id = $2
		 RETURNING `+materialInventoryColumns,
		arg.StoreID, arg.MaterialID, arg.Quantity,
	)
	return scanMaterialInventory(row)
}
