package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	httpHandler "settlement-ledger/internal/adapter/http/handler"
	"settlement-ledger/internal/adapter/http/middleware"
	"settlement-ledger/internal/adapter/storage/memory"
	redisStore "settlement-ledger/internal/adapter/storage/redis"
	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"
	"settlement-ledger/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	apiMint     = "usdc-mint"
	apiPassword = "StrongPass123!"
)

// testApp runs the full HTTP stack over the in-memory store and miniredis.
type testApp struct {
	server *httptest.Server
	sig    *service.HMACSignatureService
	nonce  atomic.Int64
}

// principal is a registered account with both credential kinds.
type principal struct {
	address   string
	accessKey string
	secretKey string
	token     string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	encSvc, err := service.NewAESEncryptionService("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashServiceWithParams(service.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8})
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", time.Hour, "test-issuer")

	store := memory.New()
	assetRepo := memory.NewAssetRepo(store)
	require.NoError(t, assetRepo.Upsert(ctx, &domain.Asset{Mint: apiMint, Symbol: "USDC", Decimals: domain.RecognizedAssetDecimals}))

	accountRepo := memory.NewAccountRepo(store)
	platformRepo := memory.NewPlatformRepo(store)
	merchantRepo := memory.NewMerchantRepo(store)
	customerRepo := memory.NewCustomerRepo(store)
	paymentRepo := memory.NewPaymentRepo(store)
	cache := redisStore.NewPaymentCache(rdb)

	ledger := service.NewTokenLedger(memory.NewTokenAccountRepo(store), encSvc, log)
	auditSvc := service.NewAuditService(memory.NewAuditRepo(store), log)
	webhookSvc := service.NewWebhookService(memory.NewWebhookRepo(store), merchantRepo, encSvc, sigSvc, http.DefaultClient, nil, log)
	t.Cleanup(func() {
		webhookSvc.Wait()
		auditSvc.Wait()
	})

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        service.NewAuthService(accountRepo, hashSvc, encSvc, tokenSvc),
		PlatformSvc:    service.NewPlatformService(platformRepo, assetRepo, ledger, store, auditSvc, log),
		MerchantSvc:    service.NewMerchantService(merchantRepo, platformRepo, store, auditSvc, log),
		SettlementSvc:  service.NewSettlementService(platformRepo, merchantRepo, customerRepo, paymentRepo, ledger, store, cache, webhookSvc, auditSvc, time.Minute, log),
		ReportingSvc:   service.NewReportingService(paymentRepo, merchantRepo, customerRepo, platformRepo, ledger, cache, time.Minute, log),
		WebhookSvc:     webhookSvc,
		AuditSvc:       auditSvc,
		AccountRepo:    accountRepo,
		EncSvc:         encSvc,
		SigSvc:         sigSvc,
		NonceStore:     redisStore.NewNonceStore(rdb),
		TokenSvc:       tokenSvc,
		RateLimitStore: redisStore.NewRateLimitStore(rdb),
		RateLimitRules: middleware.DefaultRateLimitRules(middleware.RateLimitRule{Limit: 1000, Window: time.Minute}),
		HealthCheckers: []ports.HealthChecker{store, redisStore.NewHealthCheck(rdb)},
		MaxBodyBytes:   1 << 20,
		Mode:           gin.TestMode,
		Logger:         log,
	})

	app := &testApp{server: httptest.NewServer(router), sig: sigSvc}
	t.Cleanup(app.server.Close)
	return app
}

// do sends a request. A signer switches on HMAC signing; a bearer token is
// attached whenever the principal has one.
func (a *testApp) do(t *testing.T, method, path string, body interface{}, p *principal, sign bool) (int, map[string]interface{}) {
	t.Helper()

	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, a.server.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	if p != nil && sign {
		ts := time.Now().Unix()
		nonce := fmt.Sprintf("nonce-%d", a.nonce.Add(1))
		canonical := a.sig.BuildCanonicalString(method, path, ts, nonce, string(raw))
		req.Header.Set(middleware.HeaderAccessKey, p.accessKey)
		req.Header.Set(middleware.HeaderSignature, a.sig.Sign(p.secretKey, canonical))
		req.Header.Set(middleware.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(middleware.HeaderNonce, nonce)
	} else if p != nil && p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]interface{}
	if len(respBody) > 0 {
		require.NoError(t, json.Unmarshal(respBody, &decoded), "body: %s", respBody)
	}
	return resp.StatusCode, decoded
}

func data(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "no data object in %v", body)
	return d
}

func (a *testApp) register(t *testing.T, username string) *principal {
	t.Helper()
	status, body := a.do(t, http.MethodPost, "/api/v1/accounts/register",
		map[string]string{"username": username, "password": apiPassword}, nil, false)
	require.Equal(t, http.StatusCreated, status, "register: %v", body)
	d := data(t, body)

	p := &principal{
		address:   d["address"].(string),
		accessKey: d["access_key"].(string),
		secretKey: d["secret_key"].(string),
	}

	status, body = a.do(t, http.MethodPost, "/api/v1/accounts/login",
		map[string]string{"username": username, "password": apiPassword}, nil, false)
	require.Equal(t, http.StatusOK, status, "login: %v", body)
	p.token = data(t, body)["token"].(string)
	return p
}

// bootstrap sets up a 250 bps platform, a "shop" merchant and a funded customer.
func (a *testApp) bootstrap(t *testing.T, funds uint64) (admin, owner, customer *principal) {
	t.Helper()
	admin = a.register(t, "admin")
	owner = a.register(t, "shop_owner")
	customer = a.register(t, "customer")

	status, body := a.do(t, http.MethodPost, "/api/v1/platform", map[string]interface{}{
		"fee_bps":            250,
		"min_payment_amount": 1000,
		"recognized_asset":   apiMint,
	}, admin, true)
	require.Equal(t, http.StatusCreated, status, "init platform: %v", body)

	status, body = a.do(t, http.MethodPost, "/api/v1/merchants", map[string]interface{}{
		"merchant_id":            "shop",
		"fee_bps":                100,
		"settlement_destination": owner.address,
	}, owner, true)
	require.Equal(t, http.StatusCreated, status, "register merchant: %v", body)

	status, body = a.do(t, http.MethodPost, "/api/v1/platform/mint", map[string]interface{}{
		"owner":  customer.address,
		"amount": funds,
	}, admin, true)
	require.Equal(t, http.StatusOK, status, "mint: %v", body)
	return admin, owner, customer
}

func (a *testApp) balance(t *testing.T, p *principal) float64 {
	t.Helper()
	status, body := a.do(t, http.MethodGet, "/api/v1/accounts/me/balance", nil, p, false)
	require.Equal(t, http.StatusOK, status, "balance: %v", body)
	return data(t, body)["balance"].(float64)
}

func TestAPI_HealthCheck(t *testing.T) {
	app := newTestApp(t)

	status, body := app.do(t, http.MethodGet, "/health", nil, nil, false)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestAPI_PaymentRefundAndClaim(t *testing.T) {
	app := newTestApp(t)
	admin, owner, customer := app.bootstrap(t, 5_000_000)

	status, body := app.do(t, http.MethodPost, "/api/v1/payments", map[string]interface{}{
		"merchant_id": "shop",
		"payment_id":  "order-001",
		"amount":      1_000_000,
		"mint":        apiMint,
	}, customer, true)
	require.Equal(t, http.StatusCreated, status, "payment: %v", body)
	pay := data(t, body)
	assert.Equal(t, float64(25_000), pay["fee_amount"])
	assert.Equal(t, float64(975_000), pay["merchant_amount"])
	assert.Equal(t, "1.000000", pay["amount_display"])

	assert.Equal(t, float64(4_000_000), app.balance(t, customer))
	assert.Equal(t, float64(975_000), app.balance(t, owner))

	status, body = app.do(t, http.MethodGet, "/api/v1/platform/treasury", nil, admin, false)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(25_000), data(t, body)["balance"])

	status, body = app.do(t, http.MethodGet, "/api/v1/merchants/shop", nil, owner, false)
	require.Equal(t, http.StatusOK, status)
	merchant := data(t, body)
	assert.Equal(t, float64(975_000), merchant["volume"])
	assert.Equal(t, float64(1), merchant["transaction_count"])

	// The same payment id is rejected.
	status, body = app.do(t, http.MethodPost, "/api/v1/payments", map[string]interface{}{
		"merchant_id": "shop",
		"payment_id":  "order-001",
		"amount":      1_000_000,
		"mint":        apiMint,
	}, customer, true)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "PAY_003", body["error_code"])

	// Only the merchant authority can refund.
	status, body = app.do(t, http.MethodPost, "/api/v1/payments/order-001/refund",
		map[string]string{"customer": customer.address}, customer, true)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PAY_007", body["error_code"])

	status, body = app.do(t, http.MethodPost, "/api/v1/payments/order-001/refund",
		map[string]string{"customer": customer.address}, owner, true)
	require.Equal(t, http.StatusOK, status, "refund: %v", body)
	assert.Equal(t, "REFUNDED", data(t, body)["status"])

	assert.Equal(t, float64(5_000_000), app.balance(t, customer))
	assert.Equal(t, float64(0), app.balance(t, owner))

	status, body = app.do(t, http.MethodGet, "/api/v1/payments/order-001", nil, customer, false)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "REFUNDED", data(t, body)["status"])

	// Payments are readable by their customer and merchant authority only.
	status, body = app.do(t, http.MethodGet, "/api/v1/payments/order-001", nil, owner, false)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "REFUNDED", data(t, body)["status"])

	status, body = app.do(t, http.MethodGet, "/api/v1/payments/order-001", nil, admin, false)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PLT_005", body["error_code"])

	status, body = app.do(t, http.MethodPost, "/api/v1/payments/order-001/refund",
		map[string]string{"customer": customer.address}, owner, true)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "PAY_006", body["error_code"])

	// A second payment leaves fees in the treasury for the authority to claim.
	status, _ = app.do(t, http.MethodPost, "/api/v1/payments", map[string]interface{}{
		"merchant_id": "shop",
		"payment_id":  "order-002",
		"amount":      2_000_000,
		"mint":        apiMint,
	}, customer, true)
	require.Equal(t, http.StatusCreated, status)

	status, body = app.do(t, http.MethodPost, "/api/v1/platform/claim", nil, owner, true)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PLT_005", body["error_code"])

	status, body = app.do(t, http.MethodPost, "/api/v1/platform/claim", nil, admin, true)
	require.Equal(t, http.StatusOK, status, "claim: %v", body)
	assert.Equal(t, float64(50_000), data(t, body)["amount"])
	assert.Equal(t, float64(50_000), app.balance(t, admin))

	status, body = app.do(t, http.MethodPost, "/api/v1/platform/claim", nil, admin, true)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "PLT_006", body["error_code"])

	status, body = app.do(t, http.MethodGet, "/api/v1/customers/"+customer.address, nil, customer, false)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), data(t, body)["transaction_count"])
	assert.Equal(t, float64(3_000_000), data(t, body)["total_spent"])

	status, body = app.do(t, http.MethodGet, "/api/v1/customers/"+customer.address, nil, owner, false)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PLT_005", body["error_code"])
}

func TestAPI_MerchantPaymentsAndStats(t *testing.T) {
	app := newTestApp(t)
	_, owner, customer := app.bootstrap(t, 5_000_000)

	for i := 1; i <= 3; i++ {
		status, body := app.do(t, http.MethodPost, "/api/v1/payments", map[string]interface{}{
			"merchant_id": "shop",
			"payment_id":  fmt.Sprintf("order-%d", i),
			"amount":      100_000,
			"mint":        apiMint,
		}, customer, true)
		require.Equal(t, http.StatusCreated, status, "payment %d: %v", i, body)
	}

	status, body := app.do(t, http.MethodGet, "/api/v1/merchants/shop/payments?page=1&page_size=2", nil, owner, false)
	require.Equal(t, http.StatusOK, status)
	items, ok := body["data"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 2)
	page := body["page"].(map[string]interface{})
	assert.Equal(t, float64(3), page["total"])

	status, body = app.do(t, http.MethodGet, "/api/v1/merchants/shop/stats", nil, owner, false)
	require.Equal(t, http.StatusOK, status)
	stats := data(t, body)
	assert.Equal(t, float64(3), stats["completed"])
	assert.Equal(t, float64(300_000), stats["gross_volume"])
	assert.Equal(t, float64(1), stats["unique_customers"])

	status, body = app.do(t, http.MethodGet, "/api/v1/merchants", nil, owner, false)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	// No endpoint is configured, so there is no delivery history.
	status, body = app.do(t, http.MethodGet, "/api/v1/merchants/shop/payments/order-1/webhooks", nil, owner, false)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["data"])

	status, body = app.do(t, http.MethodGet, "/api/v1/merchants/shop/payments/order-1/webhooks", nil, customer, false)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PLT_005", body["error_code"])
}

func TestAPI_PaymentRejections(t *testing.T) {
	app := newTestApp(t)
	_, _, customer := app.bootstrap(t, 5_000_000)

	tests := []struct {
		name   string
		body   map[string]interface{}
		status int
		code   string
	}{
		{"below minimum", map[string]interface{}{"merchant_id": "shop", "payment_id": "p1", "amount": 999, "mint": apiMint}, http.StatusUnprocessableEntity, "PAY_008"},
		{"wrong mint", map[string]interface{}{"merchant_id": "shop", "payment_id": "p2", "amount": 5000, "mint": "other-mint"}, http.StatusBadRequest, "PAY_005"},
		{"unknown merchant", map[string]interface{}{"merchant_id": "nobody", "payment_id": "p3", "amount": 5000, "mint": apiMint}, http.StatusNotFound, "PAY_004"},
		{"insufficient funds", map[string]interface{}{"merchant_id": "shop", "payment_id": "p4", "amount": 6_000_000, "mint": apiMint}, http.StatusPaymentRequired, "PAY_001"},
		{"empty payment id", map[string]interface{}{"merchant_id": "shop", "payment_id": "", "amount": 5000, "mint": apiMint}, http.StatusBadRequest, "PAY_009"},
		{"payment id too long", map[string]interface{}{"merchant_id": "shop", "payment_id": strings.Repeat("p", 65), "amount": 5000, "mint": apiMint}, http.StatusBadRequest, "PAY_009"},
		{"minimum checked before id", map[string]interface{}{"merchant_id": "shop", "payment_id": strings.Repeat("p", 65), "amount": 1, "mint": apiMint}, http.StatusUnprocessableEntity, "PAY_008"},
		{"missing mint", map[string]interface{}{"merchant_id": "shop", "payment_id": "p5", "amount": 5000}, http.StatusBadRequest, "PAY_005"},
		{"merchant id too long", map[string]interface{}{"merchant_id": strings.Repeat("m", 65), "payment_id": "p6", "amount": 5000, "mint": apiMint}, http.StatusNotFound, "PAY_004"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := app.do(t, http.MethodPost, "/api/v1/payments", tt.body, customer, true)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["error_code"])
		})
	}

	assert.Equal(t, float64(5_000_000), app.balance(t, customer))
}

func TestAPI_FreeFormIDs(t *testing.T) {
	app := newTestApp(t)
	_, owner, customer := app.bootstrap(t, 5_000_000)

	status, body := app.do(t, http.MethodPost, "/api/v1/payments", map[string]interface{}{
		"merchant_id": "shop",
		"payment_id":  "order #1 & co",
		"amount":      5000,
		"mint":        apiMint,
	}, customer, true)
	require.Equal(t, http.StatusCreated, status, "payment: %v", body)
	assert.Equal(t, "order #1 & co", data(t, body)["payment_id"])

	status, body = app.do(t, http.MethodPost, "/api/v1/merchants", map[string]interface{}{
		"merchant_id":            "shop & co",
		"settlement_destination": owner.address,
	}, owner, true)
	require.Equal(t, http.StatusCreated, status, "register merchant: %v", body)
	assert.Equal(t, "shop & co", data(t, body)["merchant_id"])
}

func TestAPI_MerchantIDRejections(t *testing.T) {
	app := newTestApp(t)
	_, owner, _ := app.bootstrap(t, 1_000_000)

	for name, id := range map[string]string{"empty": "", "too long": strings.Repeat("m", 65)} {
		t.Run(name, func(t *testing.T) {
			status, body := app.do(t, http.MethodPost, "/api/v1/merchants", map[string]interface{}{
				"merchant_id":            id,
				"settlement_destination": owner.address,
			}, owner, true)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "MER_001", body["error_code"])
		})
	}
}

func TestAPI_AuthenticationFailures(t *testing.T) {
	app := newTestApp(t)
	customer := app.register(t, "customer")

	status, _ := app.do(t, http.MethodPost, "/api/v1/payments", map[string]interface{}{}, nil, false)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = app.do(t, http.MethodGet, "/api/v1/accounts/me/balance", nil, nil, false)
	assert.Equal(t, http.StatusUnauthorized, status)

	forged := *customer
	forged.secretKey = "not-the-secret"
	status, body := app.do(t, http.MethodPost, "/api/v1/merchants", map[string]interface{}{
		"merchant_id":            "shop",
		"settlement_destination": customer.address,
	}, &forged, true)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "SEC_002", body["error_code"])

	status, body = app.do(t, http.MethodPost, "/api/v1/accounts/login",
		map[string]string{"username": "customer", "password": "wrong-password"}, nil, false)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "AUTH_001", body["error_code"])
}

func TestAPI_ReplayedNonceRejected(t *testing.T) {
	app := newTestApp(t)
	owner := app.register(t, "owner")

	raw := []byte(`{"merchant_id":"shop","settlement_destination":"` + owner.address + `"}`)
	ts := time.Now().Unix()
	canonical := app.sig.BuildCanonicalString(http.MethodPost, "/api/v1/merchants", ts, "fixed-nonce", string(raw))
	signature := app.sig.Sign(owner.secretKey, canonical)

	send := func() int {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, app.server.URL+"/api/v1/merchants", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.HeaderAccessKey, owner.accessKey)
		req.Header.Set(middleware.HeaderSignature, signature)
		req.Header.Set(middleware.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(middleware.HeaderNonce, "fixed-nonce")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	// The platform is not initialized, so the first call passes auth and is
	// rejected by the directory.
	assert.Equal(t, http.StatusNotFound, send())
	assert.Equal(t, http.StatusForbidden, send())
}

// TestAPI_ConcurrentPayments fires more payments than the customer can fund
// and checks that exactly the affordable ones settle.
func TestAPI_ConcurrentPayments(t *testing.T) {
	app := newTestApp(t)
	admin, owner, customer := app.bootstrap(t, 3_000_000)

	const (
		concurrency   = 40
		paymentAmount = 100_000
	)

	var wg sync.WaitGroup
	var succeeded, insufficient atomic.Int64
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			status, body := app.do(t, http.MethodPost, "/api/v1/payments", map[string]interface{}{
				"merchant_id": "shop",
				"payment_id":  fmt.Sprintf("concurrent-%d", idx),
				"amount":      paymentAmount,
				"mint":        apiMint,
			}, customer, true)
			switch {
			case status == http.StatusCreated:
				succeeded.Add(1)
			case body["error_code"] == "PAY_001":
				insufficient.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(30), succeeded.Load())
	assert.Equal(t, int64(10), insufficient.Load())
	assert.Equal(t, float64(0), app.balance(t, customer))
	assert.Equal(t, float64(30*97_500), app.balance(t, owner))

	status, body := app.do(t, http.MethodGet, "/api/v1/platform/treasury", nil, admin, false)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(30*2_500), data(t, body)["balance"])
}
