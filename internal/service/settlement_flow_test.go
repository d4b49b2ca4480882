package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"settlement-ledger/internal/adapter/storage/memory"
	redisStore "settlement-ledger/internal/adapter/storage/redis"
	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	flowMint      = "usdc-mint"
	flowAdmin     = "acct_admin"
	flowCustomer  = "acct_customer"
	flowShopOwner = "acct_shop_owner"
	flowMerchant  = "shop"
)

// ledgerHarness wires the real services over the in-memory store and an
// embedded Redis.
type ledgerHarness struct {
	store      *memory.Store
	ledger     *TokenLedger
	platform   *PlatformServiceImpl
	merchants  *MerchantServiceImpl
	settlement *SettlementServiceImpl
	reporting  ports.ReportingService
	audit      *AuditServiceImpl
	webhooks   *WebhookServiceImpl
	redis      *miniredis.Miniredis
}

func newLedgerHarness(t *testing.T) *ledgerHarness {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	enc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	store := memory.New()
	assets := memory.NewAssetRepo(store)
	require.NoError(t, assets.Upsert(ctx, &domain.Asset{Mint: flowMint, Symbol: "USDC", Decimals: 6}))
	require.NoError(t, assets.Upsert(ctx, &domain.Asset{Mint: "nine-decimals", Symbol: "NINE", Decimals: 9}))

	log := zerolog.Nop()
	platformRepo := memory.NewPlatformRepo(store)
	merchantRepo := memory.NewMerchantRepo(store)
	customerRepo := memory.NewCustomerRepo(store)
	paymentRepo := memory.NewPaymentRepo(store)
	cache := redisStore.NewPaymentCache(client)

	h := &ledgerHarness{store: store, redis: mr}
	h.ledger = NewTokenLedger(memory.NewTokenAccountRepo(store), enc, log)
	h.audit = NewAuditService(memory.NewAuditRepo(store), log)
	h.webhooks = NewWebhookService(memory.NewWebhookRepo(store), merchantRepo, enc, NewHMACSignatureService(),
		http.DefaultClient, nil, log)
	h.platform = NewPlatformService(platformRepo, assets, h.ledger, store, h.audit, log)
	h.merchants = NewMerchantService(merchantRepo, platformRepo, store, h.audit, log)
	h.settlement = NewSettlementService(platformRepo, merchantRepo, customerRepo, paymentRepo,
		h.ledger, store, cache, h.webhooks, h.audit, time.Minute, log)
	h.reporting = NewReportingService(paymentRepo, merchantRepo, customerRepo, platformRepo,
		h.ledger, cache, time.Minute, log)
	return h
}

// bootstrap initializes a 250 bps platform, registers the shop and funds the customer.
func (h *ledgerHarness) bootstrap(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	_, err := h.platform.Initialize(ctx, ports.InitializePlatformRequest{
		Caller: flowAdmin, FeeBps: 250, MinPaymentAmount: 1_000, RecognizedAsset: flowMint,
	})
	require.NoError(t, err)

	_, err = h.merchants.Register(ctx, ports.RegisterMerchantRequest{
		Caller: flowShopOwner, MerchantID: flowMerchant, FeeBps: 100, SettlementDestination: flowShopOwner,
	})
	require.NoError(t, err)

	_, err = h.platform.Mint(ctx, ports.MintRequest{Caller: flowAdmin, Owner: flowCustomer, Amount: 5_000_000})
	require.NoError(t, err)
}

func (h *ledgerHarness) balance(t *testing.T, owner string) uint64 {
	t.Helper()
	bal, err := h.ledger.Balance(context.Background(), owner, flowMint)
	require.NoError(t, err)
	return bal
}

func (h *ledgerHarness) pay(paymentID string, amount uint64) (*domain.Payment, error) {
	return h.settlement.ProcessPayment(context.Background(), ports.PaymentRequest{
		Caller: flowCustomer, MerchantID: flowMerchant, PaymentID: paymentID, Amount: amount, Mint: flowMint,
	})
}

func (h *ledgerHarness) refund(caller, paymentID, customer string) (*domain.Payment, error) {
	return h.settlement.RefundPayment(context.Background(), ports.RefundRequest{
		Caller: caller, PaymentID: paymentID, Customer: customer,
	})
}

func TestSettlementFlow_PaymentSplitsFee(t *testing.T) {
	h := newLedgerHarness(t)
	h.bootstrap(t)
	ctx := context.Background()

	payment, err := h.pay("order-1", 1_000_000)
	require.NoError(t, err)

	assert.Equal(t, uint64(25_000), payment.FeeAmount)
	assert.Equal(t, uint64(975_000), payment.MerchantAmount)
	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)

	assert.Equal(t, uint64(4_000_000), h.balance(t, flowCustomer))
	assert.Equal(t, uint64(975_000), h.balance(t, flowShopOwner))
	assert.Equal(t, uint64(25_000), h.balance(t, domain.RegistryAddress))

	merchant, err := h.merchants.Get(ctx, flowMerchant)
	require.NoError(t, err)
	assert.Equal(t, uint64(975_000), merchant.Volume)
	assert.Equal(t, uint64(25_000), merchant.TotalFees)
	assert.Equal(t, uint64(1), merchant.TransactionCount)

	customer, err := h.reporting.GetCustomer(ctx, flowCustomer, flowCustomer)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), customer.TotalSpent)
	assert.Equal(t, uint64(1), customer.TransactionCount)

	treasury, err := h.platform.TreasuryBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(25_000), treasury)
}

func TestSettlementFlow_MerchantFeeIsNotApplied(t *testing.T) {
	h := newLedgerHarness(t)
	h.bootstrap(t)

	// The shop registered with 100 bps; the platform's 250 bps is charged.
	payment, err := h.pay("order-1", 400_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), payment.FeeAmount)
}

func TestSettlementFlow_FloorRounding(t *testing.T) {
	h := newLedgerHarness(t)
	h.bootstrap(t)

	payment, err := h.pay("order-odd", 1_039)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), payment.FeeAmount)
	assert.Equal(t, uint64(1_014), payment.MerchantAmount)
}

func TestSettlementFlow_DuplicatePaymentID(t *testing.T) {
	h := newLedgerHarness(t)
	h.bootstrap(t)

	_, err := h.pay("order-1", 1_000_000)
	require.NoError(t, err)

	_, err = h.pay("order-1", 2_000_000)
	assertAppError(t, err, "PAY_003")

	assert.Equal(t, uint64(4_000_000), h.balance(t, flowCustomer))
	assert.Equal(t, uint64(25_000), h.balance(t, domain.RegistryAddress))

	merchant, err := h.merchants.Get(context.Background(), flowMerchant)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), merchant.TransactionCount)
}

func TestSettlementFlow_RejectionsHaveNoEffect(t *testing.T) {
	tests := []struct {
		name     string
		prepare  func(t *testing.T, h *ledgerHarness)
		req      ports.PaymentRequest
		wantCode string
	}{
		{
			name:     "below minimum",
			req:      ports.PaymentRequest{Caller: flowCustomer, MerchantID: flowMerchant, PaymentID: "p", Amount: 999, Mint: flowMint},
			wantCode: "PAY_008",
		},
		{
			name:     "wrong mint",
			req:      ports.PaymentRequest{Caller: flowCustomer, MerchantID: flowMerchant, PaymentID: "p", Amount: 5_000, Mint: "other"},
			wantCode: "PAY_005",
		},
		{
			name:     "empty payment id",
			req:      ports.PaymentRequest{Caller: flowCustomer, MerchantID: flowMerchant, PaymentID: "", Amount: 5_000, Mint: flowMint},
			wantCode: "PAY_009",
		},
		{
			name:     "unknown merchant",
			req:      ports.PaymentRequest{Caller: flowCustomer, MerchantID: "ghost", PaymentID: "p", Amount: 5_000, Mint: flowMint},
			wantCode: "PAY_004",
		},
		{
			name:     "unfunded customer",
			req:      ports.PaymentRequest{Caller: "acct_broke", MerchantID: flowMerchant, PaymentID: "p", Amount: 5_000, Mint: flowMint},
			wantCode: "PAY_001",
		},
		{
			name:     "more than balance",
			req:      ports.PaymentRequest{Caller: flowCustomer, MerchantID: flowMerchant, PaymentID: "p", Amount: 5_000_001, Mint: flowMint},
			wantCode: "PAY_001",
		},
		{
			name: "inactive merchant",
			prepare: func(t *testing.T, h *ledgerHarness) {
				_, err := h.merchants.SetActive(context.Background(), flowShopOwner, flowMerchant, false)
				require.NoError(t, err)
			},
			req:      ports.PaymentRequest{Caller: flowCustomer, MerchantID: flowMerchant, PaymentID: "p", Amount: 5_000, Mint: flowMint},
			wantCode: "MER_003",
		},
		{
			name: "inactive platform",
			prepare: func(t *testing.T, h *ledgerHarness) {
				off := false
				_, err := h.platform.Update(context.Background(), ports.UpdatePlatformRequest{Caller: flowAdmin, IsActive: &off})
				require.NoError(t, err)
			},
			req:      ports.PaymentRequest{Caller: flowCustomer, MerchantID: flowMerchant, PaymentID: "p", Amount: 5_000, Mint: flowMint},
			wantCode: "PLT_004",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newLedgerHarness(t)
			h.bootstrap(t)
			if tt.prepare != nil {
				tt.prepare(t, h)
			}
			ctx := context.Background()

			_, err := h.settlement.ProcessPayment(ctx, tt.req)
			assertAppError(t, err, tt.wantCode)

			assert.Equal(t, uint64(5_000_000), h.balance(t, flowCustomer))
			assert.Equal(t, uint64(0), h.balance(t, flowShopOwner))
			assert.Equal(t, uint64(0), h.balance(t, domain.RegistryAddress))

			_, err = h.reporting.GetPayment(ctx, tt.req.Caller, "p")
			assertAppError(t, err, "PAY_004")
			_, err = h.reporting.GetCustomer(ctx, tt.req.Caller, tt.req.Caller)
			assertAppError(t, err, "PAY_004")
		})
	}
}

func TestSettlementFlow_RefundRestoresBalances(t *testing.T) {
	h := newLedgerHarness(t)
	h.bootstrap(t)
	ctx := context.Background()

	_, err := h.pay("order-1", 1_000_000)
	require.NoError(t, err)

	cached, err := h.reporting.GetPayment(ctx, flowCustomer, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, cached.Status)
	assert.True(t, h.redis.Exists(domain.PaymentCacheKey("order-1")))

	refunded, err := h.refund(flowShopOwner, "order-1", flowCustomer)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundedAt)
	require.True(t, h.redis.Exists(domain.PaymentCacheKey("order-1")))

	cached, err = h.reporting.GetPayment(ctx, flowShopOwner, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, cached.Status)

	assert.Equal(t, uint64(5_000_000), h.balance(t, flowCustomer))
	assert.Equal(t, uint64(0), h.balance(t, flowShopOwner))
	assert.Equal(t, uint64(0), h.balance(t, domain.RegistryAddress))

	merchant, err := h.merchants.Get(ctx, flowMerchant)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), merchant.Volume)
	assert.Equal(t, uint64(0), merchant.TotalFees)
	assert.Equal(t, uint64(0), merchant.TransactionCount)

	// Customer stats are lifetime totals and survive the refund.
	customer, err := h.reporting.GetCustomer(ctx, flowCustomer, flowCustomer)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), customer.TotalSpent)

	stored, err := h.reporting.GetPayment(ctx, flowCustomer, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, stored.Status)
	_, err = h.reporting.GetPayment(ctx, flowAdmin, "order-1")
	assertAppError(t, err, "PLT_005")

	_, err = h.refund(flowShopOwner, "order-1", flowCustomer)
	assertAppError(t, err, "PAY_006")
	assert.Equal(t, uint64(5_000_000), h.balance(t, flowCustomer))

	// A refunded id still cannot be reused.
	_, err = h.pay("order-1", 1_000_000)
	assertAppError(t, err, "PAY_003")
}

func TestSettlementFlow_RefundAuthorization(t *testing.T) {
	h := newLedgerHarness(t)
	h.bootstrap(t)

	_, err := h.pay("order-1", 1_000_000)
	require.NoError(t, err)

	_, err = h.refund(flowCustomer, "order-1", flowCustomer)
	assertAppError(t, err, "PAY_007")

	_, err = h.refund(flowShopOwner, "order-1", "acct_someone_else")
	assertAppError(t, err, "PAY_007")

	_, err = h.refund(flowShopOwner, "order-404", flowCustomer)
	assertAppError(t, err, "PAY_004")

	assert.Equal(t, uint64(4_000_000), h.balance(t, flowCustomer))
}

func TestSettlementFlow_RefundAfterClaimIsAtomic(t *testing.T) {
	h := newLedgerHarness(t)
	h.bootstrap(t)
	ctx := context.Background()

	_, err := h.pay("order-1", 1_000_000)
	require.NoError(t, err)
	_, err = h.platform.ClaimFees(ctx, flowAdmin)
	require.NoError(t, err)

	// The treasury can no longer return the fee, so nothing is returned.
	_, err = h.refund(flowShopOwner, "order-1", flowCustomer)
	assertAppError(t, err, "PAY_001")

	assert.Equal(t, uint64(975_000), h.balance(t, flowShopOwner))
	assert.Equal(t, uint64(4_000_000), h.balance(t, flowCustomer))

	p, err := h.reporting.GetPayment(ctx, flowShopOwner, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)
}

func TestSettlementFlow_ClaimFees(t *testing.T) {
	h := newLedgerHarness(t)
	h.bootstrap(t)
	ctx := context.Background()

	_, err := h.platform.ClaimFees(ctx, flowAdmin)
	assertAppError(t, err, "PLT_006")

	for _, id := range []string{"a", "b", "c"} {
		_, err := h.pay(id, 1_000_000)
		require.NoError(t, err)
	}

	_, err = h.platform.ClaimFees(ctx, flowShopOwner)
	assertAppError(t, err, "PLT_005")

	res, err := h.platform.ClaimFees(ctx, flowAdmin)
	require.NoError(t, err)
	assert.Equal(t, uint64(75_000), res.Amount)
	assert.Equal(t, flowAdmin, res.Destination)
	assert.Equal(t, uint64(75_000), h.balance(t, flowAdmin))
	assert.Equal(t, uint64(0), h.balance(t, domain.RegistryAddress))

	_, err = h.platform.ClaimFees(ctx, flowAdmin)
	assertAppError(t, err, "PLT_006")
}

func TestSettlementFlow_PlatformSetup(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	_, err := h.platform.Get(ctx)
	assertAppError(t, err, "PAY_004")

	_, err = h.merchants.Register(ctx, ports.RegisterMerchantRequest{
		Caller: flowShopOwner, MerchantID: flowMerchant, SettlementDestination: flowShopOwner,
	})
	assertAppError(t, err, "PAY_004")

	_, err = h.platform.Initialize(ctx, ports.InitializePlatformRequest{
		Caller: flowAdmin, FeeBps: 250, MinPaymentAmount: 1, RecognizedAsset: "nine-decimals",
	})
	assertAppError(t, err, "PLT_003")

	p, err := h.platform.Initialize(ctx, ports.InitializePlatformRequest{
		Caller: flowAdmin, FeeBps: 1000, MinPaymentAmount: 1, RecognizedAsset: flowMint,
	})
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.Equal(t, flowAdmin, p.Authority)

	_, err = h.platform.Initialize(ctx, ports.InitializePlatformRequest{
		Caller: "acct_usurper", FeeBps: 0, MinPaymentAmount: 1, RecognizedAsset: flowMint,
	})
	assertAppError(t, err, "PLT_007")

	got, err := h.platform.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, flowAdmin, got.Authority)
	assert.Equal(t, uint64(1000), got.FeeBps)
}

func TestSettlementFlow_MerchantRegistration(t *testing.T) {
	h := newLedgerHarness(t)
	h.bootstrap(t)
	ctx := context.Background()

	_, err := h.merchants.Register(ctx, ports.RegisterMerchantRequest{
		Caller: "acct_b", MerchantID: flowMerchant, SettlementDestination: "acct_b",
	})
	assertAppError(t, err, "MER_004")

	_, err = h.merchants.Register(ctx, ports.RegisterMerchantRequest{
		Caller: "acct_b", MerchantID: "greedy", FeeBps: 1001, SettlementDestination: "acct_b",
	})
	assertAppError(t, err, "MER_002")

	m, err := h.merchants.Register(ctx, ports.RegisterMerchantRequest{
		Caller: "acct_b", MerchantID: "second", FeeBps: 1000, SettlementDestination: "acct_b",
	})
	require.NoError(t, err)
	assert.True(t, m.IsActive)
	assert.Equal(t, uint16(1000), m.Fee)

	list, err := h.merchants.ListByAuthority(ctx, "acct_b")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].MerchantID)

	_, err = h.merchants.SetActive(ctx, flowShopOwner, "second", false)
	assertAppError(t, err, "PLT_005")
}

func TestSettlementFlow_AuditTrail(t *testing.T) {
	h := newLedgerHarness(t)
	h.bootstrap(t)

	_, err := h.pay("order-1", 1_000_000)
	require.NoError(t, err)
	_, err = h.refund(flowShopOwner, "order-1", flowCustomer)
	require.NoError(t, err)
	h.audit.Wait()

	actions := map[domain.AuditAction]string{}
	for _, entry := range h.store.AuditLogs() {
		actions[entry.Action] = entry.Actor
	}
	assert.Equal(t, flowAdmin, actions[domain.AuditActionPlatformInitialized])
	assert.Equal(t, flowShopOwner, actions[domain.AuditActionMerchantRegistered])
	assert.Equal(t, flowCustomer, actions[domain.AuditActionPayment])
	assert.Equal(t, flowShopOwner, actions[domain.AuditActionRefund])
}
