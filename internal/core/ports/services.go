package ports

import (
	"context"
	"net/http"
	"time"

	"settlement-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(accountID uuid.UUID, address string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID uuid.UUID
	Address   string
}

// PaymentCache is the Redis read-through cache for payment records.
type PaymentCache interface {
	Get(ctx context.Context, paymentID string) (*domain.Payment, error) // nil on miss
	Set(ctx context.Context, payment *domain.Payment, ttl time.Duration) error
	// SetIfAbsent stores payment only when no entry exists and reports
	// whether it did. Read-path fills use it so they never replace a
	// newer record written after a state change.
	SetIfAbsent(ctx context.Context, payment *domain.Payment, ttl time.Duration) (bool, error)
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, accountID string, nonce string, ttl time.Duration) (bool, error)
}

// RateLimitStore counts requests in fixed windows.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// HTTPClient abstracts outbound HTTP for webhook delivery.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// --- Transfer substrate ---

// TransferRequest moves Amount of Mint between the token accounts of two
// owners. Authority is the signer; it must own the source account.
type TransferRequest struct {
	Mint      string
	From      string
	To        string
	Amount    uint64
	Authority string
}

// AssetLedger is the fungible-asset transfer substrate. Every mutating call
// runs inside the caller's transaction so settlement effects commit or roll
// back together with the transfers.
type AssetLedger interface {
	// OpenAccount returns owner's account for mint, creating it if absent.
	OpenAccount(ctx context.Context, tx pgx.Tx, owner, mint string) (*domain.TokenAccount, error)
	Transfer(ctx context.Context, tx pgx.Tx, req TransferRequest) error
	Mint(ctx context.Context, tx pgx.Tx, owner, mint string, amount uint64) (uint64, error)
	// BalanceForUpdate locks owner's account and returns its balance (0 if absent).
	BalanceForUpdate(ctx context.Context, tx pgx.Tx, owner, mint string) (uint64, error)
	Balance(ctx context.Context, owner, mint string) (uint64, error)
}

// --- Service Ports (Business Logic) ---

// PlatformService covers the platform registry and fee treasury.
type PlatformService interface {
	Initialize(ctx context.Context, req InitializePlatformRequest) (*domain.Platform, error)
	Update(ctx context.Context, req UpdatePlatformRequest) (*domain.Platform, error)
	Get(ctx context.Context) (*domain.Platform, error)
	ClaimFees(ctx context.Context, caller string) (*ClaimResult, error)
	TreasuryBalance(ctx context.Context) (uint64, error)
	Mint(ctx context.Context, req MintRequest) (uint64, error)
}

// InitializePlatformRequest holds validated input for platform setup.
type InitializePlatformRequest struct {
	Caller           string
	FeeBps           uint64
	MinPaymentAmount uint64
	RecognizedAsset  string
	ClientIP         string
}

// UpdatePlatformRequest changes the fields that are set.
type UpdatePlatformRequest struct {
	Caller           string
	FeeBps           *uint64
	MinPaymentAmount *uint64
	IsActive         *bool
	ClientIP         string
}

// ClaimResult reports a completed treasury claim.
type ClaimResult struct {
	Amount      uint64
	Destination string
	ClaimedAt   time.Time
}

// MintRequest credits a token account with the recognized asset.
type MintRequest struct {
	Caller string
	Owner  string
	Amount uint64
}

// MerchantService covers the merchant directory.
type MerchantService interface {
	Register(ctx context.Context, req RegisterMerchantRequest) (*domain.Merchant, error)
	SetActive(ctx context.Context, caller, merchantID string, active bool) (*domain.Merchant, error)
	Get(ctx context.Context, merchantID string) (*domain.Merchant, error)
	ListByAuthority(ctx context.Context, authority string) ([]domain.Merchant, error)
}

// RegisterMerchantRequest holds validated input for merchant registration.
type RegisterMerchantRequest struct {
	Caller                string
	MerchantID            string
	FeeBps                uint64
	SettlementDestination string
	ClientIP              string
}

// SettlementService moves funds for payments and refunds.
type SettlementService interface {
	ProcessPayment(ctx context.Context, req PaymentRequest) (*domain.Payment, error)
	RefundPayment(ctx context.Context, req RefundRequest) (*domain.Payment, error)
}

// PaymentRequest holds validated input for payment processing. Caller is the
// paying customer.
type PaymentRequest struct {
	Caller     string
	MerchantID string
	PaymentID  string
	Amount     uint64
	Mint       string
	ClientIP   string
}

// RefundRequest holds validated input for refund processing. Caller must be
// the merchant authority; Customer must name the original payer.
type RefundRequest struct {
	Caller    string
	PaymentID string
	Customer  string
	ClientIP  string
}

// AuthService defines account and authentication business logic.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// RegisterRequest holds input for account registration.
type RegisterRequest struct {
	Username string
	Password string
}

// RegisterResponse holds the registration result shown once.
type RegisterResponse struct {
	AccountID uuid.UUID
	Address   string
	AccessKey string
	SecretKey string // Plaintext, shown only at registration
}

// ReportingService defines read-side queries. A payment is visible to its
// customer and its merchant's authority; customer aggregates only to the
// customer.
type ReportingService interface {
	GetPayment(ctx context.Context, caller, paymentID string) (*domain.Payment, error)
	ListPayments(ctx context.Context, params PaymentListParams) ([]domain.Payment, int64, error)
	GetMerchantStats(ctx context.Context, merchantID string) (*PaymentStats, error)
	GetCustomer(ctx context.Context, caller, customer string) (*domain.Customer, error)
	GetBalance(ctx context.Context, owner string) (uint64, string, error) // balance, mint, error
}

// WebhookService defines webhook configuration and async delivery.
type WebhookService interface {
	Configure(ctx context.Context, caller, merchantID, url string) (*WebhookConfigResult, error)
	Enqueue(ctx context.Context, event domain.WebhookEvent, payment *domain.Payment) error
	Deliveries(ctx context.Context, caller, merchantID, paymentID string) ([]domain.WebhookDelivery, error)
}

// WebhookConfigResult holds the signing secret, shown only once.
type WebhookConfigResult struct {
	MerchantID string
	URL        string
	Secret     string
}

// AuditService records audit events without blocking the caller.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
