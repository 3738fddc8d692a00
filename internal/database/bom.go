package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const bomColumns = `id, product_id, material_id, quantity, unit, is_main, description, created_at, updated_at`

func scanBom(row interface{ Scan(dest ...any) error }) (ProductBom, error) {
	var b ProductBom
	err := row.Scan(&b.ID, &b.ProductID, &b.MaterialID, &b.Quantity, &b.Unit,
		&b.IsMain, &b.Description, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// ListBomByProduct returns the product's bill of materials. An empty result
// means the product is accounted as finished goods.
func (q *Queries) ListBomByProduct(ctx context.Context, productID uuid.UUID) ([]ProductBom, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+bomColumns+` FROM product_bom WHERE product_id = $1 ORDER BY is_main DESC, created_at`,
		productID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ProductBom
	for rows.Next() {
		b, err := scanBom(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, b)
	}
	return entries, rows.Err()
}

type CreateBomEntryParams struct {
	ProductID   uuid.UUID
	MaterialID  uuid.UUID
	Quantity    pgtype.Numeric
	Unit        string
	IsMain      bool
	Description pgtype.Text
}

func (q *Queries) CreateBomEntry(ctx context.Context, arg CreateBomEntryParams) (ProductBom, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO product_bom (product_id, material_id, quantity, unit, is_main, description)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+bomColumns,
		arg.ProductID, arg.MaterialID, arg.Quantity, arg.Unit, arg.IsMain, arg.Description,
	)
	return scanBom(row)
}

type DeleteBomEntryParams struct {
	ID        uuid.UUID
	ProductID uuid.UUID
}

func (q *Queries) DeleteBomEntry(ctx context.Context, arg DeleteBomEntryParams) (uuid.UUID, error) {
	var out uuid.UUID
	err := q.db.QueryRow(ctx,
		`DELETE FROM product_bom WHERE id = $1 AND product_id = $2 RETURNING id`,
		arg.ID, arg.ProductID,
	).Scan(&out)
	return out, err
}
