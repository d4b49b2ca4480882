package postgres

import (
	"context"
	"errors"
	"testing"

	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetRepo_UpsertAndGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAssetRepo(mock)
	a := &domain.Asset{Mint: "mint_usdc", Symbol: "USDC", Decimals: 6, CreatedAt: testTime()}

	mock.ExpectExec("INSERT INTO assets").
		WithArgs(a.Mint, a.Symbol, a.Decimals, a.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM assets WHERE mint").
		WithArgs(a.Mint).
		WillReturnRows(pgxmock.NewRows([]string{"mint", "symbol", "decimals", "created_at"}).
			AddRow(a.Mint, a.Symbol, a.Decimals, a.CreatedAt))

	require.NoError(t, repo.Upsert(context.Background(), a))
	got, err := repo.GetByMint(context.Background(), a.Mint)
	require.NoError(t, err)
	assert.Equal(t, a, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssetRepo_GetByMint_Unknown(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM assets").WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	got, err := NewAssetRepo(mock).GetByMint(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newTestTokenAccount() *domain.TokenAccount {
	return &domain.TokenAccount{
		ID:               uuid.New(),
		Owner:            "acct_customer",
		Mint:             "mint_usdc",
		EncryptedBalance: "sealed-balance",
		CreatedAt:        testTime(),
		UpdatedAt:        testTime(),
	}
}

func TestTokenAccountRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTokenAccountRepo(mock)
	a := newTestTokenAccount()
	tx := beginTx(t, mock)

	mock.ExpectExec("INSERT INTO token_accounts").
		WithArgs(a.ID, a.Owner, a.Mint, a.EncryptedBalance, a.CreatedAt, a.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO token_accounts").
		WithArgs(a.ID, a.Owner, a.Mint, a.EncryptedBalance, a.CreatedAt, a.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	assert.NoError(t, repo.Create(context.Background(), tx, a))
	assert.ErrorIs(t, repo.Create(context.Background(), tx, a), ports.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenAccountRepo_GetByOwnerForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTokenAccountRepo(mock)
	a := newTestTokenAccount()
	tx := beginTx(t, mock)

	mock.ExpectQuery("SELECT .+ FROM token_accounts WHERE owner = .+ FOR UPDATE").
		WithArgs(a.Owner, a.Mint).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner", "mint", "encrypted_balance", "created_at", "updated_at"}).
			AddRow(a.ID, a.Owner, a.Mint, a.EncryptedBalance, a.CreatedAt, a.UpdatedAt))

	got, err := repo.GetByOwnerForUpdate(context.Background(), tx, a.Owner, a.Mint)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestTokenAccountRepo_GetByOwner_Missing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM token_accounts").
		WithArgs("acct_nobody", "mint_usdc").
		WillReturnError(pgx.ErrNoRows)

	got, err := NewTokenAccountRepo(mock).GetByOwner(context.Background(), "acct_nobody", "mint_usdc")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestTokenAccountRepo_UpdateBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTokenAccountRepo(mock)
	id := uuid.New()
	tx := beginTx(t, mock)

	mock.ExpectExec("UPDATE token_accounts SET encrypted_balance").
		WithArgs("sealed-2", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE token_accounts SET encrypted_balance").
		WithArgs("sealed-3", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.NoError(t, repo.UpdateBalance(context.Background(), tx, id, "sealed-2"))
	assert.Error(t, repo.UpdateBalance(context.Background(), tx, id, "sealed-3"))
}

func newTestAccount() *domain.Account {
	return &domain.Account{
		ID:           uuid.New(),
		Address:      "acct_0123456789abcdef0123456789abcdef",
		Username:     "alice",
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$salt$hash",
		AccessKey:    "ak_0123456789abcdef",
		SecretKeyEnc: "sealed-secret",
		Status:       domain.AccountStatusActive,
		CreatedAt:    testTime(),
		UpdatedAt:    testTime(),
	}
}

func accountRow(a *domain.Account) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "address", "username", "password_hash", "access_key", "secret_key_enc", "status", "created_at", "updated_at"}).
		AddRow(a.ID, a.Address, a.Username, a.PasswordHash, a.AccessKey, a.SecretKeyEnc, a.Status, a.CreatedAt, a.UpdatedAt)
}

func TestAccountRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := newTestAccount()
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(a.ID, a.Address, a.Username, a.PasswordHash, a.AccessKey, a.SecretKeyEnc, a.Status, a.CreatedAt, a.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, NewAccountRepo(mock).Create(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Lookups(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount()

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE address").WithArgs(a.Address).WillReturnRows(accountRow(a))
	mock.ExpectQuery("SELECT .+ FROM accounts WHERE access_key").WithArgs(a.AccessKey).WillReturnRows(accountRow(a))
	mock.ExpectQuery("SELECT .+ FROM accounts WHERE username").WithArgs("bob").WillReturnError(pgx.ErrNoRows)

	byAddr, err := repo.GetByAddress(context.Background(), a.Address)
	require.NoError(t, err)
	assert.Equal(t, a.ID, byAddr.ID)

	byKey, err := repo.GetByAccessKey(context.Background(), a.AccessKey)
	require.NoError(t, err)
	assert.Equal(t, a.Username, byKey.Username)

	missing, err := repo.GetByUsername(context.Background(), "bob")
	assert.NoError(t, err)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	entry := &domain.AuditLog{
		ID:           uuid.New(),
		Actor:        "acct_authority",
		Action:       domain.AuditActionFeesClaimed,
		ResourceType: "platform",
		IPAddress:    "10.0.0.1",
		CreatedAt:    testTime(),
	}
	actor := entry.Actor

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, &actor, "FEES_CLAIMED", "platform", (*string)(nil), (*string)(nil), "10.0.0.1", entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, NewAuditRepo(mock).Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_Create_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	entry := &domain.AuditLog{ID: uuid.New(), Action: domain.AuditActionLogin}
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, (*string)(nil), "LOGIN", "", (*string)(nil), (*string)(nil), "", entry.CreatedAt).
		WillReturnError(errors.New("disk full"))

	err = NewAuditRepo(mock).Create(context.Background(), entry)
	assert.ErrorContains(t, err, "insert audit log: disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_Endpoint(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	ep := &domain.WebhookEndpoint{
		MerchantID: "coffee-shop",
		URL:        "https://shop.example.com/hooks",
		SecretEnc:  "sealed-whsec",
		CreatedAt:  testTime(),
		UpdatedAt:  testTime(),
	}

	mock.ExpectExec("INSERT INTO webhook_endpoints").
		WithArgs(ep.MerchantID, ep.URL, ep.SecretEnc, ep.CreatedAt, ep.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM webhook_endpoints").
		WithArgs(ep.MerchantID).
		WillReturnRows(pgxmock.NewRows([]string{"merchant_id", "url", "secret_enc", "created_at", "updated_at"}).
			AddRow(ep.MerchantID, ep.URL, ep.SecretEnc, ep.CreatedAt, ep.UpdatedAt))
	mock.ExpectQuery("SELECT .+ FROM webhook_endpoints").
		WithArgs("other").
		WillReturnError(pgx.ErrNoRows)

	require.NoError(t, repo.UpsertEndpoint(context.Background(), ep))

	got, err := repo.GetEndpoint(context.Background(), ep.MerchantID)
	require.NoError(t, err)
	assert.Equal(t, ep, got)

	none, err := repo.GetEndpoint(context.Background(), "other")
	assert.NoError(t, err)
	assert.Nil(t, none)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_Deliveries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	d := &domain.WebhookDelivery{
		ID:         uuid.New(),
		PaymentID:  "order-1",
		MerchantID: "coffee-shop",
		Event:      domain.WebhookEventPaymentCompleted,
		WebhookURL: "https://shop.example.com/hooks",
		Payload:    `{"event":"payment.completed"}`,
		Attempt:    1,
		Status:     domain.WebhookStatusPending,
		CreatedAt:  testTime(),
		UpdatedAt:  testTime(),
	}

	mock.ExpectExec("INSERT INTO webhook_deliveries").
		WithArgs(d.ID, d.PaymentID, d.MerchantID, "payment.completed", d.WebhookURL,
			d.Payload, d.HTTPStatus, 1, "PENDING", d.NextRetryAt, d.LastError, d.CreatedAt, d.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE webhook_deliveries").
		WithArgs(pgxmock.AnyArg(), 1, "DELIVERED", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), d.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("SELECT .+ FROM webhook_deliveries").
		WithArgs("order-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "payment_id", "merchant_id", "event", "webhook_url", "payload",
			"http_status", "attempt", "status", "next_retry_at", "last_error",
			"created_at", "updated_at",
		}).AddRow(d.ID, d.PaymentID, d.MerchantID, "payment.completed", d.WebhookURL, d.Payload,
			d.HTTPStatus, 1, "DELIVERED", d.NextRetryAt, d.LastError, d.CreatedAt, d.UpdatedAt))

	require.NoError(t, repo.CreateDelivery(context.Background(), d))

	status := 200
	d.HTTPStatus = &status
	d.Status = domain.WebhookStatusDelivered
	require.NoError(t, repo.UpdateDelivery(context.Background(), d))

	list, err := repo.ListDeliveries(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.WebhookStatusDelivered, list[0].Status)
	assert.Equal(t, domain.WebhookEventPaymentCompleted, list[0].Event)
	assert.NoError(t, mock.ExpectationsWereMet())
}
