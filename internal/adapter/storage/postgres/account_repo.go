package postgres

import (
	"context"
	"errors"
	"fmt"

	"settlement-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, address, username, password_hash, access_key, secret_key_enc, status, created_at, updated_at`

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Create inserts a new account.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.Address, a.Username, a.PasswordHash,
		a.AccessKey, a.SecretKeyEnc, a.Status,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByAddress fetches an account by its ledger address.
func (r *AccountRepo) GetByAddress(ctx context.Context, address string) (*domain.Account, error) {
	return r.getBy(ctx, "address", address)
}

// GetByAccessKey fetches an account by its public access key.
func (r *AccountRepo) GetByAccessKey(ctx context.Context, accessKey string) (*domain.Account, error) {
	return r.getBy(ctx, "access_key", accessKey)
}

// GetByUsername fetches an account by username.
func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.getBy(ctx, "username", username)
}

// getBy looks up a single account by a unique column. column is never user input.
func (r *AccountRepo) getBy(ctx context.Context, column, value string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + column + ` = $1`

	a := &domain.Account{}
	err := r.pool.QueryRow(ctx, query, value).Scan(
		&a.ID, &a.Address, &a.Username, &a.PasswordHash,
		&a.AccessKey, &a.SecretKeyEnc, &a.Status,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account by %s: %w", column, err)
	}
	return a, nil
}
