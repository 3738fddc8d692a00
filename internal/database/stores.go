package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const storeColumns = `id, name, address, phone, is_active, created_at, updated_at`

func scanStore(row interface{ Scan(dest ...any) error }) (Store, error) {
	var s Store
	err := row.Scan(&s.ID, &s.Name, &s.Address, &s.Phone, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (q *Queries) ListStores(ctx context.Context) ([]Store, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

func (q *Queries) GetStore(ctx context.Context, id uuid.UUID) (Store, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE id = $1 AND is_active`, id)
	return scanStore(row)
}

type CreateStoreParams struct {
	Name    string
	Address pgtype.Text
	Phone   pgtype.Text
}

func (q *Queries) CreateStore(ctx context.Context, arg CreateStoreParams) (Store, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO stores (name, address, phone) VALUES ($1, $2, $3)
		 RETURNING `+storeColumns,
		arg.Name, arg.Address, arg.Phone,
	)
	return scanStore(row)
}

type UpdateStoreParams struct {
	ID      uuid.UUID
	Name    string
	Address pgtype.Text
	Phone   pgtype.Text
}

func (q *Queries) UpdateStore(ctx context.Context, arg UpdateStoreParams) (Store, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE stores SET name = $2, address = $3, phone = $4, updated_at = now()
		 WHERE id = $1 AND is_active
		 RETURNING `+storeColumns,
		arg.ID, arg.Name, arg.Address, arg.Phone,
	)
	return scanStore(row)
}
