package customer

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

var ErrNotFound = errors.New("customer not found")

func (r *Repository) GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error) {
	var customer Customer
	err := r.db.GetContext(ctx, &customer, getCustomerQuery, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

const getCustomerQuery = "SELECT * FROM customers WHERE id = $1"

func (r *Repository) GetCustomerByAuth0ID(ctx context.Context, auth0ID string) (*Customer, error) {
	var customer Customer
	err := r.db.GetContext(ctx, &customer, getCustomerByAuth0IDQuery, auth0ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, err
	}
	return &customer, nil
}

const getCustomerByAuth0IDQuery = "SELECT * FROM customers WHERE auth0_id = $1"

// CreateCustomer inserts a customer for auth0ID. A concurrent insert for the
// same subject is absorbed and the existing row returned.
func (r *Repository) CreateCustomer(ctx context.Context, auth0ID string) (*Customer, error) {
	var customer Customer
	err := r.db.GetContext(ctx, &customer, createCustomerQuery, uuid.New(), auth0ID)
	return &customer, err
}

const createCustomerQuery = `
INSERT INTO customers (id, auth0_id) VALUES ($1, $2)
ON CONFLICT (auth0_id) DO UPDATE SET auth0_id = EXCLUDED.auth0_id
RETURNING *
`

func (r *Repository) UpdateProfile(ctx context.Context, auth0ID, email, name string) error {
	_, err := r.db.ExecContext(ctx, updateProfileQuery, email, name, auth0ID)
	return err
}

const updateProfileQuery = `UPDATE customers SET email = NULLIF($1, ''), name = NULLIF($2, '') WHERE auth0_id = $3`

func (r *Repository) CountCustomers(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, countCustomersQuery)
	return n, err
}

const countCustomersQuery = "SELECT count(*) FROM customers"
