package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent names a settlement event delivered to merchants.
type WebhookEvent string

const (
	WebhookEventPaymentCompleted WebhookEvent = "payment.completed"
	WebhookEventPaymentRefunded  WebhookEvent = "payment.refunded"
)

// WebhookStatus represents the delivery state of a webhook.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "PENDING"
	WebhookStatusDelivered WebhookStatus = "DELIVERED"
	WebhookStatusFailed    WebhookStatus = "FAILED"
)

// WebhookEndpoint is where a merchant receives settlement events.
type WebhookEndpoint struct {
	MerchantID string    `json:"merchant_id"`
	URL        string    `json:"url"`
	SecretEnc  string    `json:"-"` // Encrypted signing secret
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// WebhookDelivery records each webhook delivery attempt.
type WebhookDelivery struct {
	ID          uuid.UUID     `json:"id"`
	PaymentID   string        `json:"payment_id"`
	MerchantID  string        `json:"merchant_id"`
	Event       WebhookEvent  `json:"event"`
	WebhookURL  string        `json:"webhook_url"`
	Payload     string        `json:"payload"` // JSON string
	HTTPStatus  *int          `json:"http_status"`
	Attempt     int           `json:"attempt"`
	Status      WebhookStatus `json:"status"`
	NextRetryAt *time.Time    `json:"next_retry_at"`
	LastError   *string       `json:"last_error"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
