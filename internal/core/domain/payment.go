package domain

import "time"

// MaxPaymentIDLen is the byte limit for a caller-chosen payment id.
const MaxPaymentIDLen = 64

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Payment is a settled payment. FeeAmount + MerchantAmount == Amount always.
type Payment struct {
	PaymentID      string        `json:"payment_id"`
	Customer       string        `json:"customer"`
	Merchant       string        `json:"merchant"`
	Amount         uint64        `json:"amount"`
	FeeAmount      uint64        `json:"fee_amount"`
	MerchantAmount uint64        `json:"merchant_amount"`
	Status         PaymentStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	RefundedAt     *time.Time    `json:"refunded_at,omitempty"`
}

// ValidPaymentID reports whether id is 1..64 bytes.
func ValidPaymentID(id string) bool {
	return len(id) > 0 && len(id) <= MaxPaymentIDLen
}

// IsRefundable returns true while the payment has not been refunded.
func (p *Payment) IsRefundable() bool {
	return p.Status == PaymentStatusCompleted
}

// MarkRefunded moves the payment to its terminal state.
func (p *Payment) MarkRefunded(at time.Time) {
	p.Status = PaymentStatusRefunded
	p.RefundedAt = &at
}

// PaymentCacheKey is the cache key for a payment record.
func PaymentCacheKey(paymentID string) string {
	return "payment:" + paymentID
}
