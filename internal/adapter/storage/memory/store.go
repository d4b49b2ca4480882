// Package memory is an in-process implementation of the storage ports. It
// backs the memory storage driver and the end-to-end tests.
//
// Transactions are serialized: Begin takes the writer lock and hands out a
// private copy of the ledger tables, Commit publishes that copy and Rollback
// drops it. Tables written outside transactions (accounts, assets, audit and
// webhook records) live beside the ledger and are guarded by mu alone.
package memory

import (
	"context"
	"errors"
	"maps"
	"sync"

	"settlement-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	errForeignTx        = errors.New("memory: transaction was not started by this store")
	errDuplicateAccount = errors.New("memory: account already exists")
)

type ledger struct {
	platform      *domain.Platform
	merchants     map[string]domain.Merchant
	customers     map[string]domain.Customer
	payments      map[string]domain.Payment
	tokenAccounts map[string]domain.TokenAccount // keyed by owner + "|" + mint
	tokenIndex    map[uuid.UUID]string
}

func newLedger() *ledger {
	return &ledger{
		merchants:     make(map[string]domain.Merchant),
		customers:     make(map[string]domain.Customer),
		payments:      make(map[string]domain.Payment),
		tokenAccounts: make(map[string]domain.TokenAccount),
		tokenIndex:    make(map[uuid.UUID]string),
	}
}

func (l *ledger) clone() *ledger {
	c := &ledger{
		merchants:     maps.Clone(l.merchants),
		customers:     maps.Clone(l.customers),
		payments:      maps.Clone(l.payments),
		tokenAccounts: maps.Clone(l.tokenAccounts),
		tokenIndex:    maps.Clone(l.tokenIndex),
	}
	if l.platform != nil {
		p := *l.platform
		c.platform = &p
	}
	return c
}

// Store holds every table.
type Store struct {
	txMu sync.Mutex // held for the lifetime of a transaction

	mu         sync.RWMutex
	committed  *ledger
	assets     map[string]domain.Asset
	accounts   map[uuid.UUID]domain.Account
	audits     []domain.AuditLog
	endpoints  map[string]domain.WebhookEndpoint
	deliveries map[uuid.UUID]domain.WebhookDelivery
}

// New returns an empty store.
func New() *Store {
	return &Store{
		committed:  newLedger(),
		assets:     make(map[string]domain.Asset),
		accounts:   make(map[uuid.UUID]domain.Account),
		endpoints:  make(map[string]domain.WebhookEndpoint),
		deliveries: make(map[uuid.UUID]domain.WebhookDelivery),
	}
}

// read runs fn against the committed ledger.
func (s *Store) read(fn func(l *ledger)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.committed)
}

// Begin implements ports.DBTransactor.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.txMu.Lock()
	s.mu.RLock()
	work := s.committed.clone()
	s.mu.RUnlock()
	return &memTx{store: s, work: work}, nil
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "memory"
}

// AuditLogs returns a copy of every recorded audit entry.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditLog, len(s.audits))
	copy(out, s.audits)
	return out
}

// memTx satisfies pgx.Tx for the repositories in this package. Only Commit
// and Rollback are meaningful; the embedded interface is never called.
type memTx struct {
	pgx.Tx
	store *Store
	work  *ledger
	done  bool
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.mu.Lock()
	t.store.committed = t.work
	t.store.mu.Unlock()
	t.store.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.work = nil
	t.store.txMu.Unlock()
	return nil
}

// work extracts the private ledger copy from tx.
func work(tx pgx.Tx) (*ledger, error) {
	mt, ok := tx.(*memTx)
	if !ok || mt.done {
		return nil, errForeignTx
	}
	return mt.work, nil
}
