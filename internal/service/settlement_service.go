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

// SettlementServiceImpl implements ports.SettlementService. Each payment or
// refund runs in one transaction: every check, transfer and aggregate update
// commits together or not at all.
type SettlementServiceImpl struct {
	platformRepo ports.PlatformRepository
	merchantRepo ports.MerchantRepository
	customerRepo ports.CustomerRepository
	paymentRepo  ports.PaymentRepository
	ledger       ports.AssetLedger
	transactor   ports.DBTransactor
	cache        ports.PaymentCache
	webhooks     ports.WebhookService
	audit        ports.AuditService
	cacheTTL     time.Duration
	log          zerolog.Logger
}

// NewSettlementService creates a new SettlementServiceImpl.
func NewSettlementService(
	platformRepo ports.PlatformRepository,
	merchantRepo ports.MerchantRepository,
	customerRepo ports.CustomerRepository,
	paymentRepo ports.PaymentRepository,
	ledger ports.AssetLedger,
	transactor ports.DBTransactor,
	cache ports.PaymentCache,
	webhooks ports.WebhookService,
	audit ports.AuditService,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *SettlementServiceImpl {
	return &SettlementServiceImpl{
		platformRepo: platformRepo,
		merchantRepo: merchantRepo,
		customerRepo: customerRepo,
		paymentRepo:  paymentRepo,
		ledger:       ledger,
		transactor:   transactor,
		cache:        cache,
		webhooks:     webhooks,
		audit:        audit,
		cacheTTL:     cacheTTL,
		log:          log,
	}
}

// ProcessPayment settles a payment from req.Caller to a merchant, splitting
// off the platform fee.
func (s *SettlementServiceImpl) ProcessPayment(ctx context.Context, req ports.PaymentRequest) (*domain.Payment, error) {
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

	merchant, err := s.merchantRepo.GetByIDForUpdate(ctx, dbTx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}
	if !merchant.IsActive {
		return nil, apperror.ErrMerchantInactive()
	}

	if req.Amount < platform.MinPaymentAmount {
		return nil, apperror.ErrPaymentBelowMinimum()
	}
	if !domain.ValidPaymentID(req.PaymentID) {
		return nil, apperror.ErrInvalidPaymentID()
	}
	if req.Mint != platform.RecognizedAsset {
		return nil, apperror.ErrInvalidTokenMint()
	}

	// The platform rate applies; merchant.Fee is recorded but never charged.
	if uint64(merchant.Fee) != platform.FeeBps {
		s.log.Debug().
			Str("merchant_id", merchant.MerchantID).
			Uint16("merchant_fee_bps", merchant.Fee).
			Uint64("platform_fee_bps", platform.FeeBps).
			Msg("merchant fee differs from platform fee; platform fee charged")
	}
	fee, merchantAmount, err := domain.SplitFee(req.Amount, platform.FeeBps)
	if err != nil {
		return nil, apperror.ErrCalculation(err)
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		PaymentID:      req.PaymentID,
		Customer:       req.Caller,
		Merchant:       merchant.MerchantID,
		Amount:         req.Amount,
		FeeAmount:      fee,
		MerchantAmount: merchantAmount,
		Status:         domain.PaymentStatusCompleted,
		CreatedAt:      now,
	}

	if err := s.customerRepo.CreateIfAbsent(ctx, dbTx, req.Caller, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create customer: %w", err))
	}
	// The payments row references the customer, so it is inserted second.
	if err := s.paymentRepo.Create(ctx, dbTx, payment); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return nil, apperror.ErrPaymentAlreadyExists()
		}
		return nil, apperror.InternalError(fmt.Errorf("create payment: %w", err))
	}

	customer, err := s.customerRepo.GetForUpdate(ctx, dbTx, req.Caller)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock customer: %w", err))
	}
	if customer == nil {
		return nil, apperror.InternalError(fmt.Errorf("customer missing after create: %s", req.Caller))
	}

	if err := s.ledger.Transfer(ctx, dbTx, ports.TransferRequest{
		Mint:      platform.RecognizedAsset,
		From:      req.Caller,
		To:        merchant.SettlementDestination,
		Amount:    merchantAmount,
		Authority: req.Caller,
	}); err != nil {
		return nil, asAppError("transfer merchant share", err)
	}
	if err := s.ledger.Transfer(ctx, dbTx, ports.TransferRequest{
		Mint:      platform.RecognizedAsset,
		From:      req.Caller,
		To:        domain.RegistryAddress,
		Amount:    fee,
		Authority: req.Caller,
	}); err != nil {
		return nil, asAppError("transfer platform fee", err)
	}

	if err := customer.ApplyPayment(req.Amount); err != nil {
		return nil, apperror.ErrCalculation(err)
	}
	if err := s.customerRepo.Update(ctx, dbTx, customer); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update customer: %w", err))
	}

	if err := merchant.ApplyPayment(merchantAmount, fee); err != nil {
		return nil, apperror.ErrCalculation(err)
	}
	if err := s.merchantRepo.Update(ctx, dbTx, merchant); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update merchant: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.afterCommit(ctx, payment, domain.WebhookEventPaymentCompleted, req.Caller, req.ClientIP)

	s.log.Info().
		Str("payment_id", payment.PaymentID).
		Str("merchant_id", payment.Merchant).
		Str("customer", payment.Customer).
		Uint64("amount", payment.Amount).
		Uint64("fee", payment.FeeAmount).
		Msg("payment processed successfully")

	return payment, nil
}

// RefundPayment returns a completed payment in full to its customer. The
// merchant share comes back from the settlement destination, signed by
// req.Caller; the fee comes back from the treasury, signed by the registry.
func (s *SettlementServiceImpl) RefundPayment(ctx context.Context, req ports.RefundRequest) (*domain.Payment, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	payment, err := s.paymentRepo.GetByIDForUpdate(ctx, dbTx, req.PaymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}

	merchant, err := s.merchantRepo.GetByIDForUpdate(ctx, dbTx, payment.Merchant)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	if !merchant.IsAuthority(req.Caller) {
		return nil, apperror.ErrRefundNotAuthorized()
	}
	if payment.Customer != req.Customer {
		return nil, apperror.ErrRefundNotAuthorized()
	}
	if !payment.IsRefundable() {
		return nil, apperror.ErrPaymentAlreadyRefunded()
	}

	platform, err := s.platformRepo.GetForShare(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock platform: %w", err))
	}
	if platform == nil {
		return nil, apperror.ErrNotFound("platform")
	}

	if err := s.ledger.Transfer(ctx, dbTx, ports.TransferRequest{
		Mint:      platform.RecognizedAsset,
		From:      merchant.SettlementDestination,
		To:        payment.Customer,
		Amount:    payment.MerchantAmount,
		Authority: req.Caller,
	}); err != nil {
		return nil, asAppError("return merchant share", err)
	}
	if err := s.ledger.Transfer(ctx, dbTx, ports.TransferRequest{
		Mint:      platform.RecognizedAsset,
		From:      domain.RegistryAddress,
		To:        payment.Customer,
		Amount:    payment.FeeAmount,
		Authority: domain.RegistryAddress,
	}); err != nil {
		return nil, asAppError("return platform fee", err)
	}

	refundedAt := time.Now().UTC()
	if err := s.paymentRepo.MarkRefunded(ctx, dbTx, payment.PaymentID, refundedAt); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark refunded: %w", err))
	}
	payment.MarkRefunded(refundedAt)

	merchant.ReverseRefund(payment.MerchantAmount, payment.FeeAmount)
	if err := s.merchantRepo.Update(ctx, dbTx, merchant); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update merchant: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.afterCommit(ctx, payment, domain.WebhookEventPaymentRefunded, req.Caller, req.ClientIP)

	s.log.Info().
		Str("payment_id", payment.PaymentID).
		Str("merchant_id", payment.Merchant).
		Uint64("amount", payment.Amount).
		Msg("payment refunded")

	return payment, nil
}

// afterCommit runs the best-effort side effects of a settled payment.
func (s *SettlementServiceImpl) afterCommit(ctx context.Context, payment *domain.Payment, event domain.WebhookEvent, actor, clientIP string) {
	// Overwrite unconditionally: a refunded record is terminal and must win
	// over any completed copy a concurrent read is filling.
	if err := s.cache.Set(ctx, payment, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("payment_id", payment.PaymentID).Msg("failed to cache payment in redis")
	}

	if err := s.webhooks.Enqueue(ctx, event, payment); err != nil {
		s.log.Warn().Err(err).Str("payment_id", payment.PaymentID).Msg("failed to enqueue webhook")
	}

	action := domain.AuditActionPayment
	if event == domain.WebhookEventPaymentRefunded {
		action = domain.AuditActionRefund
	}
	s.audit.Log(ctx, auditEntry(actor, action, "payment", payment.PaymentID, clientIP,
		map[string]any{
			"merchant_id":     payment.Merchant,
			"amount":          payment.Amount,
			"fee_amount":      payment.FeeAmount,
			"merchant_amount": payment.MerchantAmount,
		}))
}
