package dto

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50,safe_id"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// LoginRequest is the request body for account login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration. The
// secret key is only ever returned here.
type RegisterResponse struct {
	AccountID string `json:"account_id"`
	Address   string `json:"address"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// InitializePlatformRequest is the request body for one-time platform setup.
// Bounds are enforced by the service so that callers get the platform error codes.
type InitializePlatformRequest struct {
	FeeBps           uint64 `json:"fee_bps"`
	MinPaymentAmount uint64 `json:"min_payment_amount"`
	RecognizedAsset  string `json:"recognized_asset" sanitize:"-"`
}

// UpdatePlatformRequest changes only the fields that are present.
type UpdatePlatformRequest struct {
	FeeBps           *uint64 `json:"fee_bps,omitempty"`
	MinPaymentAmount *uint64 `json:"min_payment_amount,omitempty"`
	IsActive         *bool   `json:"is_active,omitempty"`
}

// MintRequest is the request body for the development faucet.
type MintRequest struct {
	Owner  string `json:"owner" binding:"required,max=64,safe_id"`
	Amount uint64 `json:"amount" binding:"required,gt=0"`
}

// PlatformResponse describes the registry configuration.
type PlatformResponse struct {
	Authority               string `json:"authority"`
	Treasury                string `json:"treasury"`
	RecognizedAsset         string `json:"recognized_asset"`
	FeeBps                  uint64 `json:"fee_bps"`
	MinPaymentAmount        uint64 `json:"min_payment_amount"`
	MinPaymentAmountDisplay string `json:"min_payment_amount_display"`
	IsActive                bool   `json:"is_active"`
}

// TreasuryResponse reports the fees currently held by the treasury.
type TreasuryResponse struct {
	Balance        uint64 `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
}

// ClaimResponse reports a completed fee claim.
type ClaimResponse struct {
	Amount        uint64 `json:"amount"`
	AmountDisplay string `json:"amount_display"`
	Destination   string `json:"destination"`
	ClaimedAt     string `json:"claimed_at"`
}

// MintResponse reports the owner's balance after a faucet credit.
type MintResponse struct {
	Owner          string `json:"owner"`
	Balance        uint64 `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
}

// RegisterMerchantRequest is the request body for merchant registration.
// The merchant id is any 1 to 64 byte string and is checked by the service.
type RegisterMerchantRequest struct {
	MerchantID            string `json:"merchant_id" sanitize:"-"`
	FeeBps                uint64 `json:"fee_bps"`
	SettlementDestination string `json:"settlement_destination" binding:"required,max=64,safe_id"`
}

// SetStatusRequest toggles a merchant on or off.
type SetStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// WebhookRequest is the request body for webhook configuration.
type WebhookRequest struct {
	URL string `json:"url" binding:"required,max=500,safe_url"`
}

// WebhookResponse carries the signing secret, shown only once.
type WebhookResponse struct {
	MerchantID string `json:"merchant_id"`
	URL        string `json:"url"`
	Secret     string `json:"secret"`
}

// WebhookDeliveryResponse describes one delivery attempt.
type WebhookDeliveryResponse struct {
	ID          string  `json:"id"`
	Event       string  `json:"event"`
	WebhookURL  string  `json:"webhook_url"`
	Attempt     int     `json:"attempt"`
	Status      string  `json:"status"`
	HTTPStatus  *int    `json:"http_status,omitempty"`
	LastError   *string `json:"last_error,omitempty"`
	NextRetryAt *string `json:"next_retry_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// MerchantResponse describes a merchant and its running aggregates.
type MerchantResponse struct {
	MerchantID            string `json:"merchant_id"`
	Authority             string `json:"authority"`
	SettlementDestination string `json:"settlement_destination"`
	Fee                   uint16 `json:"fee"`
	Volume                uint64 `json:"volume"`
	VolumeDisplay         string `json:"volume_display"`
	TotalFees             uint64 `json:"total_fees"`
	TotalFeesDisplay      string `json:"total_fees_display"`
	TransactionCount      uint64 `json:"transaction_count"`
	CreatedAt             string `json:"created_at"`
	IsActive              bool   `json:"is_active"`
}

// MerchantStatsResponse summarises a merchant's payment history.
type MerchantStatsResponse struct {
	TotalPayments         int64  `json:"total_payments"`
	Completed             int64  `json:"completed"`
	Refunded              int64  `json:"refunded"`
	GrossVolume           uint64 `json:"gross_volume"`
	GrossVolumeDisplay    string `json:"gross_volume_display"`
	MerchantVolume        uint64 `json:"merchant_volume"`
	MerchantVolumeDisplay string `json:"merchant_volume_display"`
	FeesCollected         uint64 `json:"fees_collected"`
	FeesCollectedDisplay  string `json:"fees_collected_display"`
	RefundedVolume        uint64 `json:"refunded_volume"`
	UniqueCustomers       int64  `json:"unique_customers"`
}

// PaymentRequest is the request body for payment processing. The paying
// customer is the signing account.
type PaymentRequest struct {
	MerchantID string `json:"merchant_id" sanitize:"-"`
	PaymentID  string `json:"payment_id" sanitize:"-"`
	Amount     uint64 `json:"amount"`
	Mint       string `json:"mint" sanitize:"-"`
}

// RefundRequest is the request body for a full refund. Customer must name
// the original payer.
type RefundRequest struct {
	Customer string `json:"customer" binding:"required,max=64,safe_id"`
}

// PaymentResponse describes one settled payment.
type PaymentResponse struct {
	PaymentID             string  `json:"payment_id"`
	Customer              string  `json:"customer"`
	Merchant              string  `json:"merchant"`
	Amount                uint64  `json:"amount"`
	AmountDisplay         string  `json:"amount_display"`
	FeeAmount             uint64  `json:"fee_amount"`
	MerchantAmount        uint64  `json:"merchant_amount"`
	MerchantAmountDisplay string  `json:"merchant_amount_display"`
	Status                string  `json:"status"`
	CreatedAt             string  `json:"created_at"`
	RefundedAt            *string `json:"refunded_at,omitempty"`
}

// CustomerResponse describes a payer's lifetime statistics.
type CustomerResponse struct {
	Customer          string `json:"customer"`
	TotalSpent        uint64 `json:"total_spent"`
	TotalSpentDisplay string `json:"total_spent_display"`
	TransactionCount  uint64 `json:"transaction_count"`
	CreatedAt         string `json:"created_at"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	Address        string `json:"address"`
	Mint           string `json:"mint"`
	Balance        uint64 `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
}
