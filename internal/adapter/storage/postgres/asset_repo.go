package postgres

import (
	"context"
	"errors"
	"fmt"

	"settlement-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// AssetRepo implements ports.AssetRepository.
type AssetRepo struct {
	pool Pool
}

// NewAssetRepo creates a new AssetRepo.
func NewAssetRepo(pool Pool) *AssetRepo {
	return &AssetRepo{pool: pool}
}

// Upsert registers an asset, refreshing symbol and decimals if it exists.
func (r *AssetRepo) Upsert(ctx context.Context, a *domain.Asset) error {
	query := `INSERT INTO assets (mint, symbol, decimals, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (mint) DO UPDATE SET symbol = EXCLUDED.symbol, decimals = EXCLUDED.decimals`

	if _, err := r.pool.Exec(ctx, query, a.Mint, a.Symbol, a.Decimals, a.CreatedAt); err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}

// GetByMint fetches an asset. Returns nil when unknown.
func (r *AssetRepo) GetByMint(ctx context.Context, mint string) (*domain.Asset, error) {
	query := `SELECT mint, symbol, decimals, created_at FROM assets WHERE mint = $1`

	a := &domain.Asset{}
	err := r.pool.QueryRow(ctx, query, mint).Scan(&a.Mint, &a.Symbol, &a.Decimals, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}
