package memory

import (
	"context"
	"testing"
	"time"

	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CommitPublishes(t *testing.T) {
	ctx := context.Background()
	s := New()
	merchants := NewMerchantRepo(s)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, merchants.Create(ctx, tx, &domain.Merchant{MerchantID: "m1", Authority: "acct_a", IsActive: true}))

	before, err := merchants.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, before, "uncommitted writes must not be visible")

	require.NoError(t, tx.Commit(ctx))

	after, err := merchants.GetByID(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, "acct_a", after.Authority)
}

func TestStore_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	s := New()
	payments := NewPaymentRepo(s)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, payments.Create(ctx, tx, &domain.Payment{PaymentID: "p1", Merchant: "m1", Status: domain.PaymentStatusCompleted}))
	require.NoError(t, tx.Rollback(ctx))

	got, err := payments.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// the writer lock is released, so a new transaction can start
	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	assert.NoError(t, tx2.Rollback(ctx))
}

func TestStore_RollbackAfterCommitIsNoop(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.Error(t, tx.Rollback(ctx))

	_, err = NewPlatformRepo(s).GetForShare(ctx, tx)
	assert.Error(t, err, "closed transactions are rejected")
}

func TestStore_Uniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	platforms := NewPlatformRepo(s)
	require.NoError(t, platforms.Create(ctx, tx, &domain.Platform{Authority: "acct_a"}))
	assert.ErrorIs(t, platforms.Create(ctx, tx, &domain.Platform{Authority: "acct_b"}), ports.ErrConflict)

	payments := NewPaymentRepo(s)
	require.NoError(t, payments.Create(ctx, tx, &domain.Payment{PaymentID: "p1"}))
	assert.ErrorIs(t, payments.Create(ctx, tx, &domain.Payment{PaymentID: "p1"}), ports.ErrConflict)

	tokens := NewTokenAccountRepo(s)
	require.NoError(t, tokens.Create(ctx, tx, &domain.TokenAccount{ID: uuid.New(), Owner: "acct_a", Mint: "usdc"}))
	assert.ErrorIs(t, tokens.Create(ctx, tx, &domain.TokenAccount{ID: uuid.New(), Owner: "acct_a", Mint: "usdc"}), ports.ErrConflict)
}

func TestPaymentRepo_MarkRefundedOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	payments := NewPaymentRepo(s)
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	require.NoError(t, payments.Create(ctx, tx, &domain.Payment{PaymentID: "p1", Status: domain.PaymentStatusCompleted}))
	require.NoError(t, payments.MarkRefunded(ctx, tx, "p1", time.Now()))
	assert.Error(t, payments.MarkRefunded(ctx, tx, "p1", time.Now()))

	p, err := payments.GetByIDForUpdate(ctx, tx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, p.Status)
	assert.NotNil(t, p.RefundedAt)
}

func TestPaymentRepo_ListAndStats(t *testing.T) {
	ctx := context.Background()
	s := New()
	payments := NewPaymentRepo(s)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, payments.Create(ctx, tx, &domain.Payment{
			PaymentID: id, Merchant: "m1", Customer: "acct_" + id,
			Amount: 100, FeeAmount: 1, MerchantAmount: 99,
			Status:    domain.PaymentStatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, payments.Create(ctx, tx, &domain.Payment{PaymentID: "other", Merchant: "m2", Status: domain.PaymentStatusCompleted}))
	require.NoError(t, payments.MarkRefunded(ctx, tx, "b", base))
	require.NoError(t, tx.Commit(ctx))

	list, total, err := payments.List(ctx, ports.PaymentListParams{MerchantID: "m1", Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].PaymentID)
	assert.Equal(t, "b", list[1].PaymentID)

	refunded := domain.PaymentStatusRefunded
	list, total, err = payments.List(ctx, ports.PaymentListParams{MerchantID: "m1", Status: &refunded, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "b", list[0].PaymentID)

	list, _, err = payments.List(ctx, ports.PaymentListParams{MerchantID: "m1", Page: 5, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, list)

	stats, err := payments.GetStats(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalPayments)
	assert.Equal(t, int64(2), stats.Completed)
	assert.Equal(t, int64(1), stats.Refunded)
	assert.Equal(t, uint64(200), stats.GrossVolume)
	assert.Equal(t, uint64(100), stats.RefundedVolume)
	assert.Equal(t, int64(3), stats.UniqueCustomers)
}

func TestSupportRepos(t *testing.T) {
	ctx := context.Background()
	s := New()

	assets := NewAssetRepo(s)
	require.NoError(t, assets.Upsert(ctx, &domain.Asset{Mint: "usdc", Symbol: "USDC", Decimals: 6}))
	require.NoError(t, assets.Upsert(ctx, &domain.Asset{Mint: "usdc", Symbol: "USDC", Decimals: 9}))
	a, err := assets.GetByMint(ctx, "usdc")
	require.NoError(t, err)
	assert.Equal(t, uint8(9), a.Decimals)

	accounts := NewAccountRepo(s)
	acct := &domain.Account{ID: uuid.New(), Address: "acct_1", Username: "alice", AccessKey: "ak_1"}
	require.NoError(t, accounts.Create(ctx, acct))
	assert.Error(t, accounts.Create(ctx, &domain.Account{ID: uuid.New(), Address: "acct_2", Username: "alice", AccessKey: "ak_2"}))
	got, err := accounts.GetByAccessKey(ctx, "ak_1")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)

	require.NoError(t, NewAuditRepo(s).Create(ctx, &domain.AuditLog{Action: domain.AuditActionLogin}))
	assert.Len(t, s.AuditLogs(), 1)

	webhooks := NewWebhookRepo(s)
	require.NoError(t, webhooks.UpsertEndpoint(ctx, &domain.WebhookEndpoint{MerchantID: "m1", URL: "https://a"}))
	require.NoError(t, webhooks.UpsertEndpoint(ctx, &domain.WebhookEndpoint{MerchantID: "m1", URL: "https://b"}))
	ep, err := webhooks.GetEndpoint(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "https://b", ep.URL)

	assert.Equal(t, "memory", s.Name())
	assert.NoError(t, s.Ping(ctx))
}
