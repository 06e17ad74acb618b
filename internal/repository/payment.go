package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/freshcart-io/freshcart/internal/domain/payment"
)

const (
	paymentColumns = "id, purchaser_id, amount, card_last4, exp_month, exp_year, name, email, created_at"

	createPaymentSQL = `INSERT INTO payments (id, purchaser_id, amount, card_last4, exp_month, exp_year, name, email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	getPaymentsByIDSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE id = ANY($1)`
	deletePaymentSQL   = `DELETE FROM payments WHERE id = $1 RETURNING ` + paymentColumns
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create persists a new payment record and fills in its creation time.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	err := r.pool.QueryRow(ctx, createPaymentSQL,
		p.ID, p.PurchaserID, p.Amount, p.CardLast4, p.ExpMonth, p.ExpYear, p.Name, p.Email,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating payment %q: %w", p.ID, err)
	}
	return nil
}

// GetByIDs returns payments matching any of the given IDs.
func (r *PaymentRepository) GetByIDs(ctx context.Context, ids []string) ([]payment.Payment, error) {
	rows, err := r.pool.Query(ctx, getPaymentsByIDSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting payments by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanPayment)
}

// Delete removes a payment and returns the deleted record.
func (r *PaymentRepository) Delete(ctx context.Context, id string) (*payment.Payment, error) {
	rows, err := r.pool.Query(ctx, deletePaymentSQL, id)
	if err != nil {
		return nil, fmt.Errorf("deleting payment %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("deleting payment %q: %w", id, err)
	}
	return &p, nil
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p      payment.Payment
		amount decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.PurchaserID, &amount, &p.CardLast4,
		&p.ExpMonth, &p.ExpYear, &p.Name, &p.Email, &p.CreatedAt,
	)
	p.Amount = amount
	return p, err
}
