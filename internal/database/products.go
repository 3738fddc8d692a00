package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, name, description, price, image_url, is_active, created_at, updated_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageUrl,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *Queries) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 AND is_active`, id)
	return scanProduct(row)
}

// GetProductForOrderRow is the price/name snapshot source for order lines.
type GetProductForOrderRow struct {
	ID    uuid.UUID
	Name  string
	Price pgtype.Numeric
}

func (q *Queries) GetProductForOrder(ctx context.Context, id uuid.UUID) (GetProductForOrderRow, error) {
	var r GetProductForOrderRow
	err := q.db.QueryRow(ctx,
		`SELECT id, name, price FROM products WHERE id = $1 AND is_active`, id,
	).Scan(&r.ID, &r.Name, &r.Price)
	return r, err
}

type CreateProductParams struct {
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	ImageUrl    pgtype.Text
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO products (name, description, price, image_url)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+productColumns,
		arg.Name, arg.Description, arg.Price, arg.ImageUrl,
	)
	return scanProduct(row)
}

type UpdateProductParams struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	ImageUrl    pgtype.Text
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE products SET name = $2, description = $3, price = $4, image_url = $5,
			updated_at = now()
		 WHERE id = $1 AND is_active
		 RETURNING `+productColumns,
		arg.ID, arg.Name, arg.Description, arg.Price, arg.ImageUrl,
	)
	return scanProduct(row)
}

func (q *Queries) SoftDeleteProduct(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var out uuid.UUID
	err := q.db.QueryRow(ctx,
		`UPDATE products SET is_active = false, updated_at = now()
		 WHERE id = $1 AND is_active RETURNING id`, id,
	).Scan(&out)
	return out, err
}
