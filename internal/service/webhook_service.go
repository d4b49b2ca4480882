package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"
	"settlement-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Headers set on every webhook delivery.
const (
	HeaderWebhookEvent     = "X-Webhook-Event"
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
)

// WebhookPayload is the JSON body POSTed to a merchant endpoint.
type WebhookPayload struct {
	Event     domain.WebhookEvent `json:"event"`
	Data      WebhookPayloadData  `json:"data"`
	Timestamp int64               `json:"timestamp"`
}

// WebhookPayloadData holds the payment details in the webhook. Amounts are in
// base units; the *_display fields carry the same value in whole tokens.
type WebhookPayloadData struct {
	PaymentID             string               `json:"payment_id"`
	MerchantID            string               `json:"merchant_id"`
	Customer              string               `json:"customer"`
	Amount                uint64               `json:"amount"`
	AmountDisplay         string               `json:"amount_display"`
	FeeAmount             uint64               `json:"fee_amount"`
	MerchantAmount        uint64               `json:"merchant_amount"`
	MerchantAmountDisplay string               `json:"merchant_amount_display"`
	Status                domain.PaymentStatus `json:"status"`
	CreatedAt             time.Time            `json:"created_at"`
	RefundedAt            *time.Time           `json:"refunded_at,omitempty"`
}

// WebhookServiceImpl implements ports.WebhookService.
type WebhookServiceImpl struct {
	webhookRepo    ports.WebhookRepository
	merchantRepo   ports.MerchantRepository
	encSvc         ports.EncryptionService
	sigSvc         ports.SignatureService
	httpClient     ports.HTTPClient
	retryIntervals []time.Duration
	log            zerolog.Logger
	wg             sync.WaitGroup
}

// NewWebhookService creates a new webhook service. A delivery is tried once
// and then once more after each of retryIntervals.
func NewWebhookService(
	webhookRepo ports.WebhookRepository,
	merchantRepo ports.MerchantRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	httpClient ports.HTTPClient,
	retryIntervals []time.Duration,
	log zerolog.Logger,
) *WebhookServiceImpl {
	return &WebhookServiceImpl{
		webhookRepo:    webhookRepo,
		merchantRepo:   merchantRepo,
		encSvc:         encSvc,
		sigSvc:         sigSvc,
		httpClient:     httpClient,
		retryIntervals: retryIntervals,
		log:            log,
	}
}

// Configure sets the merchant's endpoint and issues a new signing secret.
// Only the merchant authority may call it.
func (s *WebhookServiceImpl) Configure(ctx context.Context, caller, merchantID, url string) (*ports.WebhookConfigResult, error) {
	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}
	if !merchant.IsAuthority(caller) {
		return nil, apperror.ErrUnauthorized()
	}

	secret, err := generateRandomHex(32)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate webhook secret: %w", err))
	}
	secretEnc, err := s.encSvc.Encrypt(secret)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt webhook secret: %w", err))
	}

	now := time.Now().UTC()
	if err := s.webhookRepo.UpsertEndpoint(ctx, &domain.WebhookEndpoint{
		MerchantID: merchantID,
		URL:        url,
		SecretEnc:  secretEnc,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("upsert webhook endpoint: %w", err))
	}

	return &ports.WebhookConfigResult{MerchantID: merchantID, URL: url, Secret: secret}, nil
}

// Deliveries returns the delivery attempts recorded for one of the merchant's
// payments. Only the merchant authority may read them.
func (s *WebhookServiceImpl) Deliveries(ctx context.Context, caller, merchantID, paymentID string) ([]domain.WebhookDelivery, error) {
	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}
	if !merchant.IsAuthority(caller) {
		return nil, apperror.ErrUnauthorized()
	}

	all, err := s.webhookRepo.ListDeliveries(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list webhook deliveries: %w", err))
	}
	deliveries := make([]domain.WebhookDelivery, 0, len(all))
	for _, d := range all {
		if d.MerchantID == merchantID {
			deliveries = append(deliveries, d)
		}
	}
	return deliveries, nil
}

// Enqueue records a delivery for payment's merchant and sends it in the
// background. Merchants without an endpoint are skipped.
func (s *WebhookServiceImpl) Enqueue(ctx context.Context, event domain.WebhookEvent, payment *domain.Payment) error {
	endpoint, err := s.webhookRepo.GetEndpoint(ctx, payment.Merchant)
	if err != nil {
		return fmt.Errorf("fetch webhook endpoint: %w", err)
	}
	if endpoint == nil {
		s.log.Debug().Str("merchant_id", payment.Merchant).Msg("webhook: no endpoint configured, skipping")
		return nil
	}

	secret, err := s.encSvc.Decrypt(endpoint.SecretEnc)
	if err != nil {
		return fmt.Errorf("decrypt webhook secret: %w", err)
	}

	body, err := json.Marshal(buildPayload(event, payment))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	now := time.Now().UTC()
	delivery := &domain.WebhookDelivery{
		ID:         uuid.New(),
		PaymentID:  payment.PaymentID,
		MerchantID: payment.Merchant,
		Event:      event,
		WebhookURL: endpoint.URL,
		Payload:    string(body),
		Status:     domain.WebhookStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.webhookRepo.CreateDelivery(ctx, delivery); err != nil {
		return fmt.Errorf("record webhook delivery: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliverWithRetries(context.WithoutCancel(ctx), delivery, secret)
	}()
	return nil
}

// Wait blocks until all in-flight deliveries have finished.
func (s *WebhookServiceImpl) Wait() {
	s.wg.Wait()
}

func buildPayload(event domain.WebhookEvent, p *domain.Payment) WebhookPayload {
	return WebhookPayload{
		Event: event,
		Data: WebhookPayloadData{
			PaymentID:             p.PaymentID,
			MerchantID:            p.Merchant,
			Customer:              p.Customer,
			Amount:                p.Amount,
			AmountDisplay:         domain.FormatUnits(p.Amount, domain.RecognizedAssetDecimals),
			FeeAmount:             p.FeeAmount,
			MerchantAmount:        p.MerchantAmount,
			MerchantAmountDisplay: domain.FormatUnits(p.MerchantAmount, domain.RecognizedAssetDecimals),
			Status:                p.Status,
			CreatedAt:             p.CreatedAt,
			RefundedAt:            p.RefundedAt,
		},
		Timestamp: time.Now().Unix(),
	}
}

func (s *WebhookServiceImpl) deliverWithRetries(ctx context.Context, d *domain.WebhookDelivery, secret string) {
	attempts := len(s.retryIntervals) + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(s.retryIntervals[attempt-2])
		}

		status, err := s.send(ctx, d, secret)
		d.Attempt = attempt
		d.HTTPStatus = nil
		if status != 0 {
			d.HTTPStatus = &status
		}

		if err == nil {
			d.Status = domain.WebhookStatusDelivered
			d.LastError = nil
			d.NextRetryAt = nil
			s.record(ctx, d)
			s.log.Info().Str("payment_id", d.PaymentID).Int("attempt", attempt).Int("status", status).Msg("webhook: delivered successfully")
			return
		}

		msg := err.Error()
		d.LastError = &msg
		if attempt < attempts {
			next := time.Now().UTC().Add(s.retryIntervals[attempt-1])
			d.NextRetryAt = &next
		} else {
			d.Status = domain.WebhookStatusFailed
			d.NextRetryAt = nil
		}
		s.record(ctx, d)
		s.log.Warn().Err(err).Str("payment_id", d.PaymentID).Int("attempt", attempt).Msg("webhook: delivery failed")
	}

	s.log.Error().Str("payment_id", d.PaymentID).Msg("webhook: all retry attempts exhausted")
}

// send performs one POST and returns the response status, 0 if none arrived.
func (s *WebhookServiceImpl) send(ctx context.Context, d *domain.WebhookDelivery, secret string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader([]byte(d.Payload)))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderWebhookEvent, string(d.Event))
	req.Header.Set(HeaderWebhookTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set(HeaderWebhookSignature, s.sigSvc.Sign(secret, d.Payload))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (s *WebhookServiceImpl) record(ctx context.Context, d *domain.WebhookDelivery) {
	if err := s.webhookRepo.UpdateDelivery(ctx, d); err != nil {
		s.log.Warn().Err(err).Str("delivery_id", d.ID.String()).Msg("webhook: failed to update delivery")
	}
}
