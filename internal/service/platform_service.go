package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"
	"settlement-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// PlatformServiceImpl implements ports.PlatformService: the platform
// registry and the fee treasury it owns.
type PlatformServiceImpl struct {
	platformRepo ports.PlatformRepository
	assetRepo    ports.AssetRepository
	ledger       ports.AssetLedger
	transactor   ports.DBTransactor
	audit        ports.AuditService
	log          zerolog.Logger
}

// NewPlatformService creates a new PlatformServiceImpl.
func NewPlatformService(
	platformRepo ports.PlatformRepository,
	assetRepo ports.AssetRepository,
	ledger ports.AssetLedger,
	transactor ports.DBTransactor,
	audit ports.AuditService,
	log zerolog.Logger,
) *PlatformServiceImpl {
	return &PlatformServiceImpl{
		platformRepo: platformRepo,
		assetRepo:    assetRepo,
		ledger:       ledger,
		transactor:   transactor,
		audit:        audit,
		log:          log,
	}
}

// Initialize creates the singleton platform with the caller as authority and
// opens the treasury account owned by the registry.
func (s *PlatformServiceImpl) Initialize(ctx context.Context, req ports.InitializePlatformRequest) (*domain.Platform, error) {
	if req.FeeBps > domain.MaxFeeBps {
		return nil, apperror.ErrInvalidFeeBps()
	}
	if req.MinPaymentAmount == 0 {
		return nil, apperror.ErrInvalidMinPaymentAmount()
	}

	asset, err := s.assetRepo.GetByMint(ctx, req.RecognizedAsset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get asset: %w", err))
	}
	if asset == nil {
		return nil, apperror.ErrNotFound("asset")
	}
	if !asset.Recognizable() {
		return nil, apperror.ErrInvalidAssetConfiguration()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	treasury, err := s.ledger.OpenAccount(ctx, dbTx, domain.RegistryAddress, asset.Mint)
	if err != nil {
		return nil, asAppError("open treasury", err)
	}

	platform := &domain.Platform{
		Authority:        req.Caller,
		Treasury:         treasury.ID.String(),
		RecognizedAsset:  asset.Mint,
		FeeBps:           req.FeeBps,
		MinPaymentAmount: req.MinPaymentAmount,
		IsActive:         true,
	}
	if err := s.platformRepo.Create(ctx, dbTx, platform); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return nil, apperror.ErrPlatformAlreadyInitialized()
		}
		return nil, apperror.InternalError(fmt.Errorf("create platform: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.audit.Log(ctx, auditEntry(req.Caller, domain.AuditActionPlatformInitialized, "platform", platform.Treasury, req.ClientIP,
		map[string]any{
			"fee_bps":            platform.FeeBps,
			"min_payment_amount": platform.MinPaymentAmount,
			"recognized_asset":   platform.RecognizedAsset,
		}))

	s.log.Info().
		Str("authority", platform.Authority).
		Str("asset", platform.RecognizedAsset).
		Uint64("fee_bps", platform.FeeBps).
		Msg("platform initialized")

	return platform, nil
}

// Update changes fee, minimum or active flag. Only the authority may call it.
func (s *PlatformServiceImpl) Update(ctx context.Context, req ports.UpdatePlatformRequest) (*domain.Platform, error) {
	if req.FeeBps != nil && *req.FeeBps > domain.MaxFeeBps {
		return nil, apperror.ErrInvalidFeeBps()
	}
	if req.MinPaymentAmount != nil && *req.MinPaymentAmount == 0 {
		return nil, apperror.ErrInvalidMinPaymentAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	platform, err := s.platformRepo.GetForUpdate(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock platform: %w", err))
	}
	if platform == nil {
		return nil, apperror.ErrNotFound("platform")
	}
	if !platform.IsAuthority(req.Caller) {
		return nil, apperror.ErrUnauthorized()
	}

	if req.FeeBps != nil {
		platform.FeeBps = *req.FeeBps
	}
	if req.MinPaymentAmount != nil {
		platform.MinPaymentAmount = *req.MinPaymentAmount
	}
	if req.IsActive != nil {
		platform.IsActive = *req.IsActive
	}

	if err := s.platformRepo.Update(ctx, dbTx, platform); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update platform: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.audit.Log(ctx, auditEntry(req.Caller, domain.AuditActionPlatformUpdated, "platform", platform.Treasury, req.ClientIP,
		map[string]any{
			"fee_bps":            platform.FeeBps,
			"min_payment_amount": platform.MinPaymentAmount,
			"is_active":          platform.IsActive,
		}))

	return platform, nil
}

// Get returns the platform configuration.
func (s *PlatformServiceImpl) Get(ctx context.Context) (*domain.Platform, error) {
	platform, err := s.platformRepo.Get(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get platform: %w", err))
	}
	if platform == nil {
		return nil, apperror.ErrNotFound("platform")
	}
	return platform, nil
}

// ClaimFees drains the treasury into the authority's token account.
func (s *PlatformServiceImpl) ClaimFees(ctx context.Context, caller string) (*ports.ClaimResult, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	platform, err := s.platformRepo.GetForShare(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock platform: %w", err))
	}
	if platform == nil {
		return nil, apperror.ErrNotFound("platform")
	}
	if !platform.IsAuthority(caller) {
		return nil, apperror.ErrUnauthorized()
	}

	balance, err := s.ledger.BalanceForUpdate(ctx, dbTx, domain.RegistryAddress, platform.RecognizedAsset)
	if err != nil {
		return nil, asAppError("lock treasury", err)
	}
	if balance == 0 {
		return nil, apperror.ErrNoFeesToClaim()
	}

	if err := s.ledger.Transfer(ctx, dbTx, ports.TransferRequest{
		Mint:      platform.RecognizedAsset,
		From:      domain.RegistryAddress,
		To:        platform.Authority,
		Amount:    balance,
		Authority: domain.RegistryAddress,
	}); err != nil {
		return nil, asAppError("transfer fees", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	result := &ports.ClaimResult{
		Amount:      balance,
		Destination: platform.Authority,
		ClaimedAt:   time.Now().UTC(),
	}

	s.audit.Log(ctx, auditEntry(caller, domain.AuditActionFeesClaimed, "platform", platform.Treasury, "",
		map[string]any{"amount": balance, "destination": platform.Authority}))

	s.log.Info().
		Str("authority", platform.Authority).
		Uint64("amount", balance).
		Msg("platform fees claimed")

	return result, nil
}

// TreasuryBalance reads the accumulated, unclaimed fees.
func (s *PlatformServiceImpl) TreasuryBalance(ctx context.Context) (uint64, error) {
	platform, err := s.Get(ctx)
	if err != nil {
		return 0, err
	}
	balance, err := s.ledger.Balance(ctx, domain.RegistryAddress, platform.RecognizedAsset)
	if err != nil {
		return 0, asAppError("treasury balance", err)
	}
	return balance, nil
}

// Mint credits req.Owner with the recognized asset. It is a faucet for
// development networks and only the platform authority may use it.
func (s *PlatformServiceImpl) Mint(ctx context.Context, req ports.MintRequest) (uint64, error) {
	if req.Amount == 0 {
		return 0, apperror.ErrInvalidAmount()
	}
	if req.Owner == "" || req.Owner == domain.RegistryAddress {
		return 0, apperror.Validation("owner must be an account address")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	platform, err := s.platformRepo.GetForShare(ctx, dbTx)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("lock platform: %w", err))
	}
	if platform == nil {
		return 0, apperror.ErrNotFound("platform")
	}
	if !platform.IsAuthority(req.Caller) {
		return 0, apperror.ErrUnauthorized()
	}

	balance, err := s.ledger.Mint(ctx, dbTx, req.Owner, platform.RecognizedAsset, req.Amount)
	if err != nil {
		return 0, asAppError("mint", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return 0, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.audit.Log(ctx, auditEntry(req.Caller, domain.AuditActionMint, "token_account", req.Owner, "",
		map[string]any{"amount": req.Amount}))

	return balance, nil
}
