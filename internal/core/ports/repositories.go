//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks
//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks
//go:generate mockgen -source=health.go -destination=mocks/mock_health.go -package=mocks

package ports

import (
	"context"
	"errors"
	"time"

	"settlement-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrConflict is returned by Create methods when the record's unique key
// already exists. Nothing is written in that case.
var ErrConflict = errors.New("record already exists")

// PlatformRepository persists the singleton platform configuration.
type PlatformRepository interface {
	// Create fails with ErrConflict when a platform already exists.
	Create(ctx context.Context, tx pgx.Tx, platform *domain.Platform) error
	Get(ctx context.Context) (*domain.Platform, error)
	// GetForShare reads the platform inside tx, blocking concurrent updates
	// until tx finishes.
	GetForShare(ctx context.Context, tx pgx.Tx) (*domain.Platform, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx) (*domain.Platform, error)
	Update(ctx context.Context, tx pgx.Tx, platform *domain.Platform) error
}

// MerchantRepository persists merchant registrations and aggregates.
type MerchantRepository interface {
	// Create fails with ErrConflict on a duplicate merchant id.
	Create(ctx context.Context, tx pgx.Tx, merchant *domain.Merchant) error
	GetByID(ctx context.Context, merchantID string) (*domain.Merchant, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, merchantID string) (*domain.Merchant, error)
	// Update writes aggregates and the active flag.
	Update(ctx context.Context, tx pgx.Tx, merchant *domain.Merchant) error
	ListByAuthority(ctx context.Context, authority string) ([]domain.Merchant, error)
}

// CustomerRepository persists per-payer statistics.
type CustomerRepository interface {
	// CreateIfAbsent inserts a zeroed record unless one exists. It is a single
	// statement, so two first payments cannot both create the customer.
	CreateIfAbsent(ctx context.Context, tx pgx.Tx, customer string, createdAt time.Time) error
	Get(ctx context.Context, customer string) (*domain.Customer, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, customer string) (*domain.Customer, error)
	Update(ctx context.Context, tx pgx.Tx, customer *domain.Customer) error
}

// PaymentRepository persists payment records.
type PaymentRepository interface {
	// Create is the payment id uniqueness gate; it fails with ErrConflict
	// when the id was ever used.
	Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	GetByID(ctx context.Context, paymentID string) (*domain.Payment, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, paymentID string) (*domain.Payment, error)
	MarkRefunded(ctx context.Context, tx pgx.Tx, paymentID string, refundedAt time.Time) error
	// Reporting queries
	List(ctx context.Context, params PaymentListParams) ([]domain.Payment, int64, error)
	GetStats(ctx context.Context, merchantID string) (*PaymentStats, error)
}

// PaymentListParams holds filter + pagination for listing payments.
type PaymentListParams struct {
	MerchantID string
	Customer   *string
	Status     *domain.PaymentStatus
	Page       int
	PageSize   int
}

// PaymentStats holds aggregated payment statistics for one merchant.
type PaymentStats struct {
	TotalPayments   int64
	Completed       int64
	Refunded        int64
	GrossVolume     uint64 // sum of amount over completed payments
	MerchantVolume  uint64 // sum of merchant_amount over completed payments
	FeesCollected   uint64 // sum of fee_amount over completed payments
	RefundedVolume  uint64 // sum of amount over refunded payments
	UniqueCustomers int64
}

// AssetRepository persists the assets the ledger knows about.
type AssetRepository interface {
	Upsert(ctx context.Context, asset *domain.Asset) error
	GetByMint(ctx context.Context, mint string) (*domain.Asset, error)
}

// TokenAccountRepository persists sealed balances of the transfer substrate.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type TokenAccountRepository interface {
	// Create fails with ErrConflict when owner already has an account for mint.
	Create(ctx context.Context, tx pgx.Tx, account *domain.TokenAccount) error
	GetByOwner(ctx context.Context, owner, mint string) (*domain.TokenAccount, error)
	GetByOwnerForUpdate(ctx context.Context, tx pgx.Tx, owner, mint string) (*domain.TokenAccount, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, encryptedBalance string) error
}

// AccountRepository persists API accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByAddress(ctx context.Context, address string) (*domain.Account, error)
	GetByAccessKey(ctx context.Context, accessKey string) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
}

// AuditRepository persists audit records.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// WebhookRepository persists merchant endpoints and delivery attempts.
type WebhookRepository interface {
	UpsertEndpoint(ctx context.Context, endpoint *domain.WebhookEndpoint) error
	GetEndpoint(ctx context.Context, merchantID string) (*domain.WebhookEndpoint, error)
	CreateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error
	UpdateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error
	ListDeliveries(ctx context.Context, paymentID string) ([]domain.WebhookDelivery, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
