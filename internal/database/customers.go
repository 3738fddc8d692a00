package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const customerColumns = `id, name, phone, email, created_at, updated_at`

func scanCustomer(row interface{ Scan(dest ...any) error }) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (q *Queries) ListCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (q *Queries) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

type CreateCustomerParams struct {
	Name  string
	Phone pgtype.Text
	Email pgtype.Text
}

func (q *Queries) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO customers (name, phone, email) VALUES ($1, $2, $3)
		 RETURNING `+customerColumns,
		arg.Name, arg.Phone, arg.Email,
	)
	return scanCustomer(row)
}

type UpdateCustomerParams struct {
	ID    uuid.UUID
	Name  string
	Phone pgtype.Text
	Email pgtype.Text
}

func (q *Queries) UpdateCustomer(ctx context.Context, arg UpdateCustomerParams) (Customer, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE customers SET name = $2, phone = $3, email = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING `+customerColumns,
		arg.ID, arg.Name, arg.Phone, arg.Email,
	)
	return scanCustomer(row)
}
