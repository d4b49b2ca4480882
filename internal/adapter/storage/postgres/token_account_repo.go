package postgres

import (
	"context"
	"errors"
	"fmt"

	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const tokenAccountColumns = `id, owner, mint, encrypted_balance, created_at, updated_at`

// TokenAccountRepo implements ports.TokenAccountRepository.
type TokenAccountRepo struct {
	pool Pool
}

// NewTokenAccountRepo creates a new TokenAccountRepo.
func NewTokenAccountRepo(pool Pool) *TokenAccountRepo {
	return &TokenAccountRepo{pool: pool}
}

// Create inserts a token account. An existing (owner, mint) pair yields ports.ErrConflict.
func (r *TokenAccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.TokenAccount) error {
	query := `INSERT INTO token_accounts (` + tokenAccountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner, mint) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		a.ID, a.Owner, a.Mint, a.EncryptedBalance, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert token account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrConflict
	}
	return nil
}

// GetByOwner fetches an owner's account for mint (non-locking read).
func (r *TokenAccountRepo) GetByOwner(ctx context.Context, owner, mint string) (*domain.TokenAccount, error) {
	query := `SELECT ` + tokenAccountColumns + ` FROM token_accounts WHERE owner = $1 AND mint = $2`
	return scanTokenAccount(r.pool.QueryRow(ctx, query, owner, mint))
}

// GetByOwnerForUpdate fetches an owner's account with pessimistic locking.
// This MUST be called within a transaction.
func (r *TokenAccountRepo) GetByOwnerForUpdate(ctx context.Context, tx pgx.Tx, owner, mint string) (*domain.TokenAccount, error) {
	query := `SELECT ` + tokenAccountColumns + ` FROM token_accounts WHERE owner = $1 AND mint = $2 FOR UPDATE`
	return scanTokenAccount(tx.QueryRow(ctx, query, owner, mint))
}

// UpdateBalance replaces an account's sealed balance within a transaction.
func (r *TokenAccountRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, encryptedBalance string) error {
	query := `UPDATE token_accounts SET encrypted_balance = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, encryptedBalance, accountID)
	if err != nil {
		return fmt.Errorf("update token account balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("token account not found: %s", accountID)
	}
	return nil
}

func scanTokenAccount(row pgx.Row) (*domain.TokenAccount, error) {
	a := &domain.TokenAccount{}
	err := row.Scan(&a.ID, &a.Owner, &a.Mint, &a.EncryptedBalance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan token account: %w", err)
	}
	return a, nil
}
