package postgres

import (
	"context"
	"errors"
	"fmt"

	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const platformColumns = `authority, treasury, recognized_asset, fee_bps, min_payment_amount, is_active`

// PlatformRepo implements ports.PlatformRepository. The table holds at most
// one row, pinned to id = 1.
type PlatformRepo struct {
	pool Pool
}

// NewPlatformRepo creates a new PlatformRepo.
func NewPlatformRepo(pool Pool) *PlatformRepo {
	return &PlatformRepo{pool: pool}
}

// Create inserts the singleton row, or returns ports.ErrConflict if it exists.
func (r *PlatformRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Platform) error {
	query := `INSERT INTO platform (id, ` + platformColumns + `)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		p.Authority, p.Treasury, p.RecognizedAsset,
		p.FeeBps, p.MinPaymentAmount, p.IsActive,
	)
	if err != nil {
		return fmt.Errorf("insert platform: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrConflict
	}
	return nil
}

// Get reads the platform without locking. Returns nil when not initialized.
func (r *PlatformRepo) Get(ctx context.Context) (*domain.Platform, error) {
	query := `SELECT ` + platformColumns + ` FROM platform WHERE id = 1`
	return scanPlatform(r.pool.QueryRow(ctx, query))
}

// GetForShare reads the platform with a share lock held until tx ends.
func (r *PlatformRepo) GetForShare(ctx context.Context, tx pgx.Tx) (*domain.Platform, error) {
	query := `SELECT ` + platformColumns + ` FROM platform WHERE id = 1 FOR SHARE`
	return scanPlatform(tx.QueryRow(ctx, query))
}

// GetForUpdate reads the platform with an exclusive row lock.
func (r *PlatformRepo) GetForUpdate(ctx context.Context, tx pgx.Tx) (*domain.Platform, error) {
	query := `SELECT ` + platformColumns + ` FROM platform WHERE id = 1 FOR UPDATE`
	return scanPlatform(tx.QueryRow(ctx, query))
}

// Update writes the mutable configuration fields.
func (r *PlatformRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Platform) error {
	query := `UPDATE platform SET fee_bps = $1, min_payment_amount = $2, is_active = $3 WHERE id = 1`

	tag, err := tx.Exec(ctx, query, p.FeeBps, p.MinPaymentAmount, p.IsActive)
	if err != nil {
		return fmt.Errorf("update platform: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("platform not initialized")
	}
	return nil
}

func scanPlatform(row pgx.Row) (*domain.Platform, error) {
	p := &domain.Platform{}
	err := row.Scan(
		&p.Authority, &p.Treasury, &p.RecognizedAsset,
		&p.FeeBps, &p.MinPaymentAmount, &p.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan platform: %w", err)
	}
	return p, nil
}
