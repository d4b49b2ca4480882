package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PlatformRepo implements ports.PlatformRepository.
type PlatformRepo struct{ s *Store }

func NewPlatformRepo(s *Store) *PlatformRepo { return &PlatformRepo{s: s} }

func (r *PlatformRepo) Create(_ context.Context, tx pgx.Tx, p *domain.Platform) error {
	l, err := work(tx)
	if err != nil {
		return err
	}
	if l.platform != nil {
		return ports.ErrConflict
	}
	cp := *p
	l.platform = &cp
	return nil
}

func (r *PlatformRepo) Get(_ context.Context) (*domain.Platform, error) {
	var out *domain.Platform
	r.s.read(func(l *ledger) {
		if l.platform != nil {
			cp := *l.platform
			out = &cp
		}
	})
	return out, nil
}

func (r *PlatformRepo) GetForShare(_ context.Context, tx pgx.Tx) (*domain.Platform, error) {
	return txPlatform(tx)
}

func (r *PlatformRepo) GetForUpdate(_ context.Context, tx pgx.Tx) (*domain.Platform, error) {
	return txPlatform(tx)
}

func (r *PlatformRepo) Update(_ context.Context, tx pgx.Tx, p *domain.Platform) error {
	l, err := work(tx)
	if err != nil {
		return err
	}
	if l.platform == nil {
		return fmt.Errorf("platform not initialized")
	}
	l.platform.FeeBps = p.FeeBps
	l.platform.MinPaymentAmount = p.MinPaymentAmount
	l.platform.IsActive = p.IsActive
	return nil
}

func txPlatform(tx pgx.Tx) (*domain.Platform, error) {
	l, err := work(tx)
	if err != nil {
		return nil, err
	}
	if l.platform == nil {
		return nil, nil
	}
	cp := *l.platform
	return &cp, nil
}

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct{ s *Store }

func NewMerchantRepo(s *Store) *MerchantRepo { return &MerchantRepo{s: s} }

func (r *MerchantRepo) Create(_ context.Context, tx pgx.Tx, m *domain.Merchant) error {
	l, err := work(tx)
	if err != nil {
		return err
	}
	if _, ok := l.merchants[m.MerchantID]; ok {
		return ports.ErrConflict
	}
	l.merchants[m.MerchantID] = *m
	return nil
}

func (r *MerchantRepo) GetByID(_ context.Context, merchantID string) (*domain.Merchant, error) {
	var out *domain.Merchant
	r.s.read(func(l *ledger) {
		if m, ok := l.merchants[merchantID]; ok {
			out = &m
		}
	})
	return out, nil
}

func (r *MerchantRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, merchantID string) (*domain.Merchant, error) {
	l, err := work(tx)
	if err != nil {
		return nil, err
	}
	m, ok := l.merchants[merchantID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *MerchantRepo) Update(_ context.Context, tx pgx.Tx, m *domain.Merchant) error {
	l, err := work(tx)
	if err != nil {
		return err
	}
	cur, ok := l.merchants[m.MerchantID]
	if !ok {
		return fmt.Errorf("merchant not found: %s", m.MerchantID)
	}
	cur.Volume, cur.TotalFees, cur.TransactionCount, cur.IsActive = m.Volume, m.TotalFees, m.TransactionCount, m.IsActive
	l.merchants[m.MerchantID] = cur
	return nil
}

func (r *MerchantRepo) ListByAuthority(_ context.Context, authority string) ([]domain.Merchant, error) {
	var out []domain.Merchant
	r.s.read(func(l *ledger) {
		for _, m := range l.merchants {
			if m.Authority == authority {
				out = append(out, m)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].MerchantID < out[j].MerchantID
	})
	return out, nil
}

// CustomerRepo implements ports.CustomerRepository.
type CustomerRepo struct{ s *Store }

func NewCustomerRepo(s *Store) *CustomerRepo { return &CustomerRepo{s: s} }

func (r *CustomerRepo) CreateIfAbsent(_ context.Context, tx pgx.Tx, customer string, createdAt time.Time) error {
	l, err := work(tx)
	if err != nil {
		return err
	}
	if _, ok := l.customers[customer]; !ok {
		l.customers[customer] = domain.Customer{Customer: customer, CreatedAt: createdAt}
	}
	return nil
}

func (r *CustomerRepo) Get(_ context.Context, customer string) (*domain.Customer, error) {
	var out *domain.Customer
	r.s.read(func(l *ledger) {
		if c, ok := l.customers[customer]; ok {
			out = &c
		}
	})
	return out, nil
}

func (r *CustomerRepo) GetForUpdate(_ context.Context, tx pgx.Tx, customer string) (*domain.Customer, error) {
	l, err := work(tx)
	if err != nil {
		return nil, err
	}
	c, ok := l.customers[customer]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *CustomerRepo) Update(_ context.Context, tx pgx.Tx, c *domain.Customer) error {
	l, err := work(tx)
	if err != nil {
		return err
	}
	cur, ok := l.customers[c.Customer]
	if !ok {
		return fmt.Errorf("customer not found: %s", c.Customer)
	}
	cur.TotalSpent, cur.TransactionCount = c.TotalSpent, c.TransactionCount
	l.customers[c.Customer] = cur
	return nil
}

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct{ s *Store }

func NewPaymentRepo(s *Store) *PaymentRepo { return &PaymentRepo{s: s} }

func (r *PaymentRepo) Create(_ context.Context, tx pgx.Tx, p *domain.Payment) error {
	l, err := work(tx)
	if err != nil {
		return err
	}
	if _, ok := l.payments[p.PaymentID]; ok {
		return ports.ErrConflict
	}
	l.payments[p.PaymentID] = *p
	return nil
}

func (r *PaymentRepo) GetByID(_ context.Context, paymentID string) (*domain.Payment, error) {
	var out *domain.Payment
	r.s.read(func(l *ledger) {
		if p, ok := l.payments[paymentID]; ok {
			out = &p
		}
	})
	return out, nil
}

func (r *PaymentRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, paymentID string) (*domain.Payment, error) {
	l, err := work(tx)
	if err != nil {
		return nil, err
	}
	p, ok := l.payments[paymentID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *PaymentRepo) MarkRefunded(_ context.Context, tx pgx.Tx, paymentID string, refundedAt time.Time) error {
	l, err := work(tx)
	if err != nil {
		return err
	}
	p, ok := l.payments[paymentID]
	if !ok || !p.IsRefundable() {
		return fmt.Errorf("payment not refundable: %s", paymentID)
	}
	p.MarkRefunded(refundedAt)
	l.payments[paymentID] = p
	return nil
}

func (r *PaymentRepo) List(_ context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	var matched []domain.Payment
	r.s.read(func(l *ledger) {
		for _, p := range l.payments {
			if p.Merchant != params.MerchantID {
				continue
			}
			if params.Customer != nil && p.Customer != *params.Customer {
				continue
			}
			if params.Status != nil && p.Status != *params.Status {
				continue
			}
			matched = append(matched, p)
		}
	})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].PaymentID < matched[j].PaymentID
	})

	total := int64(len(matched))
	start := (params.Page - 1) * params.PageSize
	if start < 0 || start >= len(matched) {
		return nil, total, nil
	}
	end := min(start+params.PageSize, len(matched))
	return matched[start:end], total, nil
}

func (r *PaymentRepo) GetStats(_ context.Context, merchantID string) (*ports.PaymentStats, error) {
	stats := &ports.PaymentStats{}
	customers := make(map[string]struct{})
	r.s.read(func(l *ledger) {
		for _, p := range l.payments {
			if p.Merchant != merchantID {
				continue
			}
			stats.TotalPayments++
			customers[p.Customer] = struct{}{}
			switch p.Status {
			case domain.PaymentStatusCompleted:
				stats.Completed++
				stats.GrossVolume += p.Amount
				stats.MerchantVolume += p.MerchantAmount
				stats.FeesCollected += p.FeeAmount
			case domain.PaymentStatusRefunded:
				stats.Refunded++
				stats.RefundedVolume += p.Amount
			}
		}
	})
	stats.UniqueCustomers = int64(len(customers))
	return stats, nil
}

// TokenAccountRepo implements ports.TokenAccountRepository.
type TokenAccountRepo struct{ s *Store }

func NewTokenAccountRepo(s *Store) *TokenAccountRepo { return &TokenAccountRepo{s: s} }

func tokenKey(owner, mint string) string { return owner + "|" + mint }

func (r *TokenAccountRepo) Create(_ context.Context, tx pgx.Tx, a *domain.TokenAccount) error {
	l, err := work(tx)
	if err != nil {
		return err
	}
	key := tokenKey(a.Owner, a.Mint)
	if _, ok := l.tokenAccounts[key]; ok {
		return ports.ErrConflict
	}
	l.tokenAccounts[key] = *a
	l.tokenIndex[a.ID] = key
	return nil
}

func (r *TokenAccountRepo) GetByOwner(_ context.Context, owner, mint string) (*domain.TokenAccount, error) {
	var out *domain.TokenAccount
	r.s.read(func(l *ledger) {
		if a, ok := l.tokenAccounts[tokenKey(owner, mint)]; ok {
			out = &a
		}
	})
	return out, nil
}

func (r *TokenAccountRepo) GetByOwnerForUpdate(_ context.Context, tx pgx.Tx, owner, mint string) (*domain.TokenAccount, error) {
	l, err := work(tx)
	if err != nil {
		return nil, err
	}
	a, ok := l.tokenAccounts[tokenKey(owner, mint)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *TokenAccountRepo) UpdateBalance(_ context.Context, tx pgx.Tx, accountID uuid.UUID, encryptedBalance string) error {
	l, err := work(tx)
	if err != nil {
		return err
	}
	key, ok := l.tokenIndex[accountID]
	if !ok {
		return fmt.Errorf("token account not found: %s", accountID)
	}
	a := l.tokenAccounts[key]
	a.EncryptedBalance = encryptedBalance
	a.UpdatedAt = time.Now().UTC()
	l.tokenAccounts[key] = a
	return nil
}
