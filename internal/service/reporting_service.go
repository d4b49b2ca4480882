package service

import (
	"context"
	"time"

	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"
	"settlement-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// maxPageSize caps ListPayments pages.
const maxPageSize = 100

// reportingService implements ports.ReportingService.
type reportingService struct {
	paymentRepo  ports.PaymentRepository
	merchantRepo ports.MerchantRepository
	customerRepo ports.CustomerRepository
	platformRepo ports.PlatformRepository
	ledger       ports.AssetLedger
	cache        ports.PaymentCache
	cacheTTL     time.Duration
	loads        singleflight.Group
	log          zerolog.Logger
}

// NewReportingService creates a new reporting service.
func NewReportingService(
	paymentRepo ports.PaymentRepository,
	merchantRepo ports.MerchantRepository,
	customerRepo ports.CustomerRepository,
	platformRepo ports.PlatformRepository,
	ledger ports.AssetLedger,
	cache ports.PaymentCache,
	cacheTTL time.Duration,
	log zerolog.Logger,
) ports.ReportingService {
	return &reportingService{
		paymentRepo:  paymentRepo,
		merchantRepo: merchantRepo,
		customerRepo: customerRepo,
		platformRepo: platformRepo,
		ledger:       ledger,
		cache:        cache,
		cacheTTL:     cacheTTL,
		log:          log,
	}
}

// GetPayment reads through the Redis cache. Cache errors fall back to the
// database.
func (s *reportingService) GetPayment(ctx context.Context, caller, paymentID string) (*domain.Payment, error) {
	payment, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if caller == "" || caller != payment.Customer {
		merchant, err := s.merchantRepo.GetByID(ctx, payment.Merchant)
		if err != nil {
			return nil, apperror.InternalError(err)
		}
		if merchant == nil || !merchant.IsAuthority(caller) {
			return nil, apperror.ErrUnauthorized()
		}
	}
	return payment, nil
}

func (s *reportingService) loadPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	cached, err := s.cache.Get(ctx, paymentID)
	if err != nil {
		s.log.Warn().Err(err).Str("payment_id", paymentID).Msg("payment cache read failed")
	}
	if cached != nil {
		return cached, nil
	}

	// Concurrent misses for one id share a single database read, which must
	// outlive whichever caller started it.
	v, err, _ := s.loads.Do(paymentID, func() (interface{}, error) {
		ctx := context.WithoutCancel(ctx)
		payment, err := s.paymentRepo.GetByID(ctx, paymentID)
		if err != nil {
			return nil, apperror.InternalError(err)
		}
		if payment == nil {
			return nil, apperror.ErrNotFound("payment")
		}
		// A refund that committed after the read has already written the
		// refunded record; NX keeps this stale copy from replacing it.
		if _, err := s.cache.SetIfAbsent(ctx, payment, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("payment_id", paymentID).Msg("payment cache fill failed")
		}
		return payment, nil
	})
	if err != nil {
		return nil, err
	}
	payment := *v.(*domain.Payment)
	return &payment, nil
}

// ListPayments returns a page of a merchant's payments, newest first.
func (s *reportingService) ListPayments(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		params.PageSize = 20
	}

	payments, total, err := s.paymentRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return payments, total, nil
}

// GetMerchantStats aggregates a merchant's payment history.
func (s *reportingService) GetMerchantStats(ctx context.Context, merchantID string) (*ports.PaymentStats, error) {
	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	stats, err := s.paymentRepo.GetStats(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return stats, nil
}

func (s *reportingService) GetCustomer(ctx context.Context, caller, customer string) (*domain.Customer, error) {
	if caller == "" || caller != customer {
		return nil, apperror.ErrUnauthorized()
	}
	c, err := s.customerRepo.Get(ctx, customer)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if c == nil {
		return nil, apperror.ErrNotFound("customer")
	}
	return c, nil
}

// GetBalance returns owner's balance of the platform's recognized asset.
func (s *reportingService) GetBalance(ctx context.Context, owner string) (uint64, string, error) {
	platform, err := s.platformRepo.Get(ctx)
	if err != nil {
		return 0, "", apperror.InternalError(err)
	}
	if platform == nil {
		return 0, "", apperror.ErrNotFound("platform")
	}

	balance, err := s.ledger.Balance(ctx, owner, platform.RecognizedAsset)
	if err != nil {
		return 0, "", asAppError("read balance", err)
	}
	return balance, platform.RecognizedAsset, nil
}
