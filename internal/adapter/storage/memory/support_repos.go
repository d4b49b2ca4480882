package memory

import (
	"context"
	"sort"

	"settlement-ledger/internal/core/domain"
)

// AssetRepo implements ports.AssetRepository.
type AssetRepo struct{ s *Store }

func NewAssetRepo(s *Store) *AssetRepo { return &AssetRepo{s: s} }

func (r *AssetRepo) Upsert(_ context.Context, a *domain.Asset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cur, ok := r.s.assets[a.Mint]; ok {
		cur.Symbol, cur.Decimals = a.Symbol, a.Decimals
		r.s.assets[a.Mint] = cur
		return nil
	}
	r.s.assets[a.Mint] = *a
	return nil
}

func (r *AssetRepo) GetByMint(_ context.Context, mint string) (*domain.Asset, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.assets[mint]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct{ s *Store }

func NewAccountRepo(s *Store) *AccountRepo { return &AccountRepo{s: s} }

func (r *AccountRepo) Create(_ context.Context, a *domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, cur := range r.s.accounts {
		if cur.Username == a.Username || cur.Address == a.Address || cur.AccessKey == a.AccessKey {
			return errDuplicateAccount
		}
	}
	r.s.accounts[a.ID] = *a
	return nil
}

func (r *AccountRepo) GetByAddress(_ context.Context, address string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Address == address }), nil
}

func (r *AccountRepo) GetByAccessKey(_ context.Context, accessKey string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.AccessKey == accessKey }), nil
}

func (r *AccountRepo) GetByUsername(_ context.Context, username string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Username == username }), nil
}

func (r *AccountRepo) find(match func(*domain.Account) bool) *domain.Account {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.accounts {
		if match(&a) {
			return &a
		}
	}
	return nil
}

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct{ s *Store }

func NewAuditRepo(s *Store) *AuditRepo { return &AuditRepo{s: s} }

func (r *AuditRepo) Create(_ context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audits = append(r.s.audits, *log)
	return nil
}

// WebhookRepo implements ports.WebhookRepository.
type WebhookRepo struct{ s *Store }

func NewWebhookRepo(s *Store) *WebhookRepo { return &WebhookRepo{s: s} }

func (r *WebhookRepo) UpsertEndpoint(_ context.Context, ep *domain.WebhookEndpoint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cur, ok := r.s.endpoints[ep.MerchantID]; ok {
		cur.URL, cur.SecretEnc, cur.UpdatedAt = ep.URL, ep.SecretEnc, ep.UpdatedAt
		r.s.endpoints[ep.MerchantID] = cur
		return nil
	}
	r.s.endpoints[ep.MerchantID] = *ep
	return nil
}

func (r *WebhookRepo) GetEndpoint(_ context.Context, merchantID string) (*domain.WebhookEndpoint, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ep, ok := r.s.endpoints[merchantID]
	if !ok {
		return nil, nil
	}
	return &ep, nil
}

func (r *WebhookRepo) CreateDelivery(_ context.Context, d *domain.WebhookDelivery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.deliveries[d.ID] = *d
	return nil
}

func (r *WebhookRepo) UpdateDelivery(_ context.Context, d *domain.WebhookDelivery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.deliveries[d.ID] = *d
	return nil
}

func (r *WebhookRepo) ListDeliveries(_ context.Context, paymentID string) ([]domain.WebhookDelivery, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.WebhookDelivery
	for _, d := range r.s.deliveries {
		if d.PaymentID == paymentID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
