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

// MerchantServiceImpl implements ports.MerchantService.
type MerchantServiceImpl struct {
	merchantRepo ports.MerchantRepository
	platformRepo ports.PlatformRepository
	transactor   ports.DBTransactor
	audit        ports.AuditService
	log          zerolog.Logger
}

// NewMerchantService creates a new MerchantServiceImpl.
func NewMerchantService(
	merchantRepo ports.MerchantRepository,
	platformRepo ports.PlatformRepository,
	transactor ports.DBTransactor,
	audit ports.AuditService,
	log zerolog.Logger,
) *MerchantServiceImpl {
	return &MerchantServiceImpl{
		merchantRepo: merchantRepo,
		platformRepo: platformRepo,
		transactor:   transactor,
		audit:        audit,
		log:          log,
	}
}

// Register adds a merchant controlled by the caller.
func (s *MerchantServiceImpl) Register(ctx context.Context, req ports.RegisterMerchantRequest) (*domain.Merchant, error) {
	if !domain.ValidMerchantID(req.MerchantID) {
		return nil, apperror.ErrInvalidMerchantID()
	}

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
	if !platform.IsActive {
		return nil, apperror.ErrPlatformInactive()
	}
	if req.FeeBps > domain.MaxFeeBps {
		return nil, apperror.ErrFeeTooHigh()
	}
	if req.SettlementDestination == "" || req.SettlementDestination == domain.RegistryAddress {
		return nil, apperror.Validation("settlement destination must be an account address")
	}

	merchant := &domain.Merchant{
		MerchantID:            req.MerchantID,
		Authority:             req.Caller,
		SettlementDestination: req.SettlementDestination,
		Fee:                   uint16(req.FeeBps),
		CreatedAt:             time.Now().UTC(),
		IsActive:              true,
	}
	if err := s.merchantRepo.Create(ctx, dbTx, merchant); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return nil, apperror.ErrMerchantAlreadyExists()
		}
		return nil, apperror.InternalError(fmt.Errorf("create merchant: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.audit.Log(ctx, auditEntry(req.Caller, domain.AuditActionMerchantRegistered, "merchant", merchant.MerchantID, req.ClientIP,
		map[string]any{
			"fee":                    merchant.Fee,
			"settlement_destination": merchant.SettlementDestination,
		}))

	s.log.Info().
		Str("merchant_id", merchant.MerchantID).
		Str("authority", merchant.Authority).
		Msg("merchant registered")

	return merchant, nil
}

// SetActive pauses or resumes a merchant. Only its authority may call it.
func (s *MerchantServiceImpl) SetActive(ctx context.Context, caller, merchantID string, active bool) (*domain.Merchant, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	merchant, err := s.merchantRepo.GetByIDForUpdate(ctx, dbTx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}
	if !merchant.IsAuthority(caller) {
		return nil, apperror.ErrUnauthorized()
	}

	merchant.IsActive = active
	if err := s.merchantRepo.Update(ctx, dbTx, merchant); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update merchant: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.audit.Log(ctx, auditEntry(caller, domain.AuditActionMerchantStatus, "merchant", merchantID, "",
		map[string]bool{"is_active": active}))

	return merchant, nil
}

// Get returns a merchant by id.
func (s *MerchantServiceImpl) Get(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}
	return merchant, nil
}

// ListByAuthority returns every merchant the authority controls.
func (s *MerchantServiceImpl) ListByAuthority(ctx context.Context, authority string) ([]domain.Merchant, error) {
	merchants, err := s.merchantRepo.ListByAuthority(ctx, authority)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list merchants: %w", err))
	}
	return merchants, nil
}
