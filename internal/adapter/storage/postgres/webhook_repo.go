package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// WebhookRepo implements ports.WebhookRepository.
type WebhookRepo struct {
	pool Pool
}

// NewWebhookRepo creates a PostgreSQL-backed WebhookRepository.
func NewWebhookRepo(pool Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

// UpsertEndpoint stores a merchant's webhook URL and sealed secret.
func (r *WebhookRepo) UpsertEndpoint(ctx context.Context, ep *domain.WebhookEndpoint) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_endpoints (merchant_id, url, secret_enc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (merchant_id) DO UPDATE SET url = EXCLUDED.url, secret_enc = EXCLUDED.secret_enc, updated_at = EXCLUDED.updated_at`,
		ep.MerchantID, ep.URL, ep.SecretEnc, ep.CreatedAt, ep.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert webhook endpoint: %w", err)
	}
	return nil
}

// GetEndpoint returns nil when the merchant has no webhook configured.
func (r *WebhookRepo) GetEndpoint(ctx context.Context, merchantID string) (*domain.WebhookEndpoint, error) {
	ep := &domain.WebhookEndpoint{}
	err := r.pool.QueryRow(ctx,
		`SELECT merchant_id, url, secret_enc, created_at, updated_at
		 FROM webhook_endpoints WHERE merchant_id = $1`, merchantID,
	).Scan(&ep.MerchantID, &ep.URL, &ep.SecretEnc, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook endpoint: %w", err)
	}
	return ep, nil
}

// CreateDelivery records the first attempt of a delivery.
func (r *WebhookRepo) CreateDelivery(ctx context.Context, d *domain.WebhookDelivery) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_deliveries
		 (id, payment_id, merchant_id, event, webhook_url, payload, http_status, attempt, status, next_retry_at, last_error, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		d.ID, d.PaymentID, d.MerchantID, string(d.Event), d.WebhookURL,
		d.Payload, d.HTTPStatus, d.Attempt, string(d.Status),
		d.NextRetryAt, d.LastError, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

// UpdateDelivery stores the outcome of the latest attempt.
func (r *WebhookRepo) UpdateDelivery(ctx context.Context, d *domain.WebhookDelivery) error {
	d.UpdatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`UPDATE webhook_deliveries
		 SET http_status=$1, attempt=$2, status=$3, next_retry_at=$4, last_error=$5, updated_at=$6
		 WHERE id=$7`,
		d.HTTPStatus, d.Attempt, string(d.Status),
		d.NextRetryAt, d.LastError, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns every delivery for a payment, newest first.
func (r *WebhookRepo) ListDeliveries(ctx context.Context, paymentID string) ([]domain.WebhookDelivery, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, payment_id, merchant_id, event, webhook_url, payload,
		 http_status, attempt, status, next_retry_at, last_error,
		 created_at, updated_at
		 FROM webhook_deliveries
		 WHERE payment_id=$1
		 ORDER BY created_at DESC`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.WebhookDelivery
	for rows.Next() {
		var d domain.WebhookDelivery
		var event, status string
		if err := rows.Scan(
			&d.ID, &d.PaymentID, &d.MerchantID, &event, &d.WebhookURL, &d.Payload,
			&d.HTTPStatus, &d.Attempt, &status, &d.NextRetryAt, &d.LastError,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		d.Event = domain.WebhookEvent(event)
		d.Status = domain.WebhookStatus(status)
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
