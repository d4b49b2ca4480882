package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"
	"settlement-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// TokenLedger implements ports.AssetLedger over sealed token account
// balances. Balances are decimal strings encrypted at rest.
type TokenLedger struct {
	accounts ports.TokenAccountRepository
	encSvc   ports.EncryptionService
	log      zerolog.Logger
}

// NewTokenLedger creates a new TokenLedger.
func NewTokenLedger(accounts ports.TokenAccountRepository, encSvc ports.EncryptionService, log zerolog.Logger) *TokenLedger {
	return &TokenLedger{accounts: accounts, encSvc: encSvc, log: log}
}

// OpenAccount locks owner's account for mint, creating a zero-balance one first if needed.
func (l *TokenLedger) OpenAccount(ctx context.Context, tx pgx.Tx, owner, mint string) (*domain.TokenAccount, error) {
	acct, err := l.accounts.GetByOwnerForUpdate(ctx, tx, owner, mint)
	if err != nil {
		return nil, fmt.Errorf("lock token account: %w", err)
	}
	if acct != nil {
		return acct, nil
	}

	zero, err := l.seal(0)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	acct = &domain.TokenAccount{
		ID:               uuid.New(),
		Owner:            owner,
		Mint:             mint,
		EncryptedBalance: zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := l.accounts.Create(ctx, tx, acct); err != nil && !errors.Is(err, ports.ErrConflict) {
		return nil, fmt.Errorf("create token account: %w", err)
	}

	// Re-read under lock; a concurrent transaction may have won the insert.
	acct, err = l.accounts.GetByOwnerForUpdate(ctx, tx, owner, mint)
	if err != nil {
		return nil, fmt.Errorf("lock token account: %w", err)
	}
	if acct == nil {
		return nil, fmt.Errorf("token account vanished: %s", owner)
	}
	return acct, nil
}

// Transfer moves req.Amount from req.From to req.To. The signer must own
// the source account. Accounts are locked in owner order.
func (l *TokenLedger) Transfer(ctx context.Context, tx pgx.Tx, req ports.TransferRequest) error {
	if req.Authority == "" || req.Authority != req.From {
		return apperror.ErrTransferUnauthorized()
	}
	if req.Amount == 0 || req.From == req.To {
		return nil
	}

	first, second := req.From, req.To
	if second < first {
		first, second = second, first
	}
	locked := make(map[string]*domain.TokenAccount, 2)
	for _, owner := range []string{first, second} {
		var acct *domain.TokenAccount
		var err error
		if owner == req.From {
			acct, err = l.accounts.GetByOwnerForUpdate(ctx, tx, owner, req.Mint)
		} else {
			acct, err = l.OpenAccount(ctx, tx, owner, req.Mint)
		}
		if err != nil {
			return fmt.Errorf("lock token account: %w", err)
		}
		locked[owner] = acct
	}

	src := locked[req.From]
	if src == nil {
		return apperror.ErrInsufficientFunds()
	}
	srcBal, err := l.open(src)
	if err != nil {
		return err
	}
	if srcBal < req.Amount {
		return apperror.ErrInsufficientFunds()
	}

	dst := locked[req.To]
	dstBal, err := l.open(dst)
	if err != nil {
		return err
	}
	newDst, err := domain.CheckedAdd(dstBal, req.Amount)
	if err != nil {
		return apperror.ErrCalculation(err)
	}

	if err := l.write(ctx, tx, src, srcBal-req.Amount); err != nil {
		return err
	}
	return l.write(ctx, tx, dst, newDst)
}

// Mint credits owner with amount and returns the new balance.
func (l *TokenLedger) Mint(ctx context.Context, tx pgx.Tx, owner, mint string, amount uint64) (uint64, error) {
	acct, err := l.OpenAccount(ctx, tx, owner, mint)
	if err != nil {
		return 0, err
	}
	bal, err := l.open(acct)
	if err != nil {
		return 0, err
	}
	newBal, err := domain.CheckedAdd(bal, amount)
	if err != nil {
		return 0, apperror.ErrCalculation(err)
	}
	if err := l.write(ctx, tx, acct, newBal); err != nil {
		return 0, err
	}
	return newBal, nil
}

// BalanceForUpdate locks and reads owner's balance. Missing accounts hold 0.
func (l *TokenLedger) BalanceForUpdate(ctx context.Context, tx pgx.Tx, owner, mint string) (uint64, error) {
	acct, err := l.accounts.GetByOwnerForUpdate(ctx, tx, owner, mint)
	if err != nil {
		return 0, fmt.Errorf("lock token account: %w", err)
	}
	if acct == nil {
		return 0, nil
	}
	return l.open(acct)
}

// Balance reads owner's committed balance without locking.
func (l *TokenLedger) Balance(ctx context.Context, owner, mint string) (uint64, error) {
	acct, err := l.accounts.GetByOwner(ctx, owner, mint)
	if err != nil {
		return 0, fmt.Errorf("get token account: %w", err)
	}
	if acct == nil {
		return 0, nil
	}
	return l.open(acct)
}

func (l *TokenLedger) open(acct *domain.TokenAccount) (uint64, error) {
	plain, err := l.encSvc.Decrypt(acct.EncryptedBalance)
	if err != nil {
		return 0, apperror.ErrEncryptionFailure(fmt.Errorf("decrypt balance: %w", err))
	}
	bal, err := strconv.ParseUint(plain, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance: %w", err)
	}
	return bal, nil
}

func (l *TokenLedger) seal(balance uint64) (string, error) {
	enc, err := l.encSvc.Encrypt(strconv.FormatUint(balance, 10))
	if err != nil {
		return "", apperror.ErrEncryptionFailure(fmt.Errorf("encrypt balance: %w", err))
	}
	return enc, nil
}

func (l *TokenLedger) write(ctx context.Context, tx pgx.Tx, acct *domain.TokenAccount, balance uint64) error {
	enc, err := l.seal(balance)
	if err != nil {
		return err
	}
	if err := l.accounts.UpdateBalance(ctx, tx, acct.ID, enc); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	acct.EncryptedBalance = enc
	return nil
}

// asAppError passes AppErrors through and wraps anything else as internal.
func asAppError(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
}
