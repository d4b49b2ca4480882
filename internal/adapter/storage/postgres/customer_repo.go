package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const customerColumns = `customer, total_spent, transaction_count, created_at`

// CustomerRepo implements ports.CustomerRepository.
type CustomerRepo struct {
	pool Pool
}

// NewCustomerRepo creates a new CustomerRepo.
func NewCustomerRepo(pool Pool) *CustomerRepo {
	return &CustomerRepo{pool: pool}
}

// CreateIfAbsent inserts a zeroed customer row unless one already exists.
func (r *CustomerRepo) CreateIfAbsent(ctx context.Context, tx pgx.Tx, customer string, createdAt time.Time) error {
	query := `INSERT INTO customers (` + customerColumns + `)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (customer) DO NOTHING`

	if _, err := tx.Exec(ctx, query, customer, createdAt); err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

// Get fetches a customer (without locking).
func (r *CustomerRepo) Get(ctx context.Context, customer string) (*domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE customer = $1`
	return scanCustomer(r.pool.QueryRow(ctx, query, customer))
}

// GetForUpdate fetches a customer with pessimistic locking.
func (r *CustomerRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, customer string) (*domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE customer = $1 FOR UPDATE`
	return scanCustomer(tx.QueryRow(ctx, query, customer))
}

// Update writes the customer's aggregates.
func (r *CustomerRepo) Update(ctx context.Context, tx pgx.Tx, c *domain.Customer) error {
	query := `UPDATE customers SET total_spent = $1, transaction_count = $2 WHERE customer = $3`

	tag, err := tx.Exec(ctx, query, c.TotalSpent, c.TransactionCount, c.Customer)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer not found: %s", c.Customer)
	}
	return nil
}

func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	c := &domain.Customer{}
	err := row.Scan(&c.Customer, &c.TotalSpent, &c.TransactionCount, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	return c, nil
}
