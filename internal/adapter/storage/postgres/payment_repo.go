package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const paymentColumns = `payment_id, customer, merchant, amount, fee_amount, merchant_amount, status, created_at, refunded_at`

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a payment inside tx. The primary key on payment_id is the
// idempotency boundary: a reused id affects zero rows and yields ports.ErrConflict.
func (r *PaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	query := `INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (payment_id) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		p.PaymentID, p.Customer, p.Merchant,
		p.Amount, p.FeeAmount, p.MerchantAmount,
		p.Status, p.CreatedAt, p.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrConflict
	}
	return nil
}

// GetByID fetches a payment by id.
func (r *PaymentRepo) GetByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, paymentID))
}

// GetByIDForUpdate fetches a payment with pessimistic locking.
func (r *PaymentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, paymentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1 FOR UPDATE`
	return scanPayment(tx.QueryRow(ctx, query, paymentID))
}

// MarkRefunded moves a COMPLETED payment to REFUNDED. The status guard in the
// WHERE clause makes a second transition impossible.
func (r *PaymentRepo) MarkRefunded(ctx context.Context, tx pgx.Tx, paymentID string, refundedAt time.Time) error {
	query := `UPDATE payments SET status = $1, refunded_at = $2 WHERE payment_id = $3 AND status = $4`

	tag, err := tx.Exec(ctx, query,
		domain.PaymentStatusRefunded, refundedAt, paymentID, domain.PaymentStatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("mark payment refunded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment not refundable: %s", paymentID)
	}
	return nil
}

// List fetches a merchant's payments with filtering and pagination, newest first.
func (r *PaymentRepo) List(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("merchant = $%d", argIdx))
	args = append(args, params.MerchantID)
	argIdx++

	if params.Customer != nil {
		conditions = append(conditions, fmt.Sprintf("customer = $%d", argIdx))
		args = append(args, *params.Customer)
		argIdx++
	}
	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM payments %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM payments %s ORDER BY created_at DESC, payment_id LIMIT $%d OFFSET $%d`,
		paymentColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.PaymentID, &p.Customer, &p.Merchant,
			&p.Amount, &p.FeeAmount, &p.MerchantAmount,
			&p.Status, &p.CreatedAt, &p.RefundedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment rows: %w", err)
	}
	return payments, total, nil
}

// GetStats aggregates a merchant's payments.
func (r *PaymentRepo) GetStats(ctx context.Context, merchantID string) (*ports.PaymentStats, error) {
	query := `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed,
		COUNT(*) FILTER (WHERE status = 'REFUNDED') AS refunded,
		COALESCE(SUM(amount) FILTER (WHERE status = 'COMPLETED'), 0)::BIGINT AS gross_volume,
		COALESCE(SUM(merchant_amount) FILTER (WHERE status = 'COMPLETED'), 0)::BIGINT AS merchant_volume,
		COALESCE(SUM(fee_amount) FILTER (WHERE status = 'COMPLETED'), 0)::BIGINT AS fees_collected,
		COALESCE(SUM(amount) FILTER (WHERE status = 'REFUNDED'), 0)::BIGINT AS refunded_volume,
		COUNT(DISTINCT customer) AS unique_customers
		FROM payments WHERE merchant = $1`

	stats := &ports.PaymentStats{}
	err := r.pool.QueryRow(ctx, query, merchantID).Scan(
		&stats.TotalPayments, &stats.Completed, &stats.Refunded,
		&stats.GrossVolume, &stats.MerchantVolume, &stats.FeesCollected,
		&stats.RefundedVolume, &stats.UniqueCustomers,
	)
	if err != nil {
		return nil, fmt.Errorf("get payment stats: %w", err)
	}
	return stats, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.PaymentID, &p.Customer, &p.Merchant,
		&p.Amount, &p.FeeAmount, &p.MerchantAmount,
		&p.Status, &p.CreatedAt, &p.RefundedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}
