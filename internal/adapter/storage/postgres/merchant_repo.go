package postgres

import (
	"context"
	"errors"
	"fmt"

	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const merchantColumns = `merchant_id, authority, settlement_destination, fee, volume, total_fees, transaction_count, created_at, is_active`

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct {
	pool Pool
}

// NewMerchantRepo creates a new MerchantRepo.
func NewMerchantRepo(pool Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

// Create inserts a new merchant. A taken merchant_id yields ports.ErrConflict.
func (r *MerchantRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.Merchant) error {
	query := `INSERT INTO merchants (` + merchantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (merchant_id) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		m.MerchantID, m.Authority, m.SettlementDestination, m.Fee,
		m.Volume, m.TotalFees, m.TransactionCount, m.CreatedAt, m.IsActive,
	)
	if err != nil {
		return fmt.Errorf("insert merchant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrConflict
	}
	return nil
}

// GetByID fetches a merchant by id (without locking).
func (r *MerchantRepo) GetByID(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE merchant_id = $1`
	return scanMerchant(r.pool.QueryRow(ctx, query, merchantID))
}

// GetByIDForUpdate fetches a merchant with pessimistic locking.
// This MUST be called within a transaction.
func (r *MerchantRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, merchantID string) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE merchant_id = $1 FOR UPDATE`
	return scanMerchant(tx.QueryRow(ctx, query, merchantID))
}

// Update writes aggregates and the active flag.
func (r *MerchantRepo) Update(ctx context.Context, tx pgx.Tx, m *domain.Merchant) error {
	query := `UPDATE merchants
		SET volume = $1, total_fees = $2, transaction_count = $3, is_active = $4
		WHERE merchant_id = $5`

	tag, err := tx.Exec(ctx, query, m.Volume, m.TotalFees, m.TransactionCount, m.IsActive, m.MerchantID)
	if err != nil {
		return fmt.Errorf("update merchant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("merchant not found: %s", m.MerchantID)
	}
	return nil
}

// ListByAuthority returns the merchants controlled by authority, oldest first.
func (r *MerchantRepo) ListByAuthority(ctx context.Context, authority string) ([]domain.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE authority = $1 ORDER BY created_at, merchant_id`

	rows, err := r.pool.Query(ctx, query, authority)
	if err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}
	defer rows.Close()

	var merchants []domain.Merchant
	for rows.Next() {
		var m domain.Merchant
		if err := rows.Scan(
			&m.MerchantID, &m.Authority, &m.SettlementDestination, &m.Fee,
			&m.Volume, &m.TotalFees, &m.TransactionCount, &m.CreatedAt, &m.IsActive,
		); err != nil {
			return nil, fmt.Errorf("scan merchant row: %w", err)
		}
		merchants = append(merchants, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merchant rows: %w", err)
	}
	return merchants, nil
}

func scanMerchant(row pgx.Row) (*domain.Merchant, error) {
	m := &domain.Merchant{}
	err := row.Scan(
		&m.MerchantID, &m.Authority, &m.SettlementDestination, &m.Fee,
		&m.Volume, &m.TotalFees, &m.TransactionCount, &m.CreatedAt, &m.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan merchant: %w", err)
	}
	return m, nil
}
