package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"settlement-ledger/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// PaymentCache implements ports.PaymentCache. Entries are JSON encoded
// payments under domain.PaymentCacheKey.
type PaymentCache struct {
	client goredis.UniversalClient
}

// NewPaymentCache creates a Redis-backed payment cache.
func NewPaymentCache(client goredis.UniversalClient) *PaymentCache {
	return &PaymentCache{client: client}
}

// Get returns nil, nil on a cache miss.
func (c *PaymentCache) Get(ctx context.Context, paymentID string) (*domain.Payment, error) {
	raw, err := c.client.Get(ctx, domain.PaymentCacheKey(paymentID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis payment get: %w", err)
	}

	var p domain.Payment
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode cached payment: %w", err)
	}
	return &p, nil
}

// Set stores a payment with TTL.
func (c *PaymentCache) Set(ctx context.Context, payment *domain.Payment, ttl time.Duration) error {
	raw, err := json.Marshal(payment)
	if err != nil {
		return fmt.Errorf("encode payment: %w", err)
	}
	if err := c.client.Set(ctx, domain.PaymentCacheKey(payment.PaymentID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis payment set: %w", err)
	}
	return nil
}

// SetIfAbsent stores a payment with TTL using SET NX.
func (c *PaymentCache) SetIfAbsent(ctx context.Context, payment *domain.Payment, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(payment)
	if err != nil {
		return false, fmt.Errorf("encode payment: %w", err)
	}
	result, err := c.client.SetArgs(ctx, domain.PaymentCacheKey(payment.PaymentID), raw, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis payment setnx: %w", err)
	}
	return result == "OK", nil
}
