package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/freshcart-io/freshcart/internal/domain/order"
)

const (
	orderColumns = "id, purchaser_id, payment_id, status, lines, total, address, driver_id, created_at"

	createOrderSQL = `INSERT INTO orders (id, purchaser_id, payment_id, status, lines, total, address, driver_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	deleteOrderSQL  = `DELETE FROM orders WHERE id = $1 RETURNING ` + orderColumns
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Cart
// lines are serialized to JSON for storage in the JSONB column.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and fills in its creation time.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshaling order lines: %w", err)
	}

	err = r.pool.QueryRow(ctx, createOrderSQL,
		o.ID, o.PurchaserID, o.PaymentID, string(o.Status), lines, o.Total, o.Address, o.DriverID,
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders`
	var (
		conds []string
		args  []any
	)
	if f.PurchaserID != "" {
		args = append(args, f.PurchaserID)
		conds = append(conds, fmt.Sprintf("purchaser_id = $%d", len(args)))
	}
	if f.DriverID != "" {
		args = append(args, f.DriverID)
		conds = append(conds, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// Update applies the non-nil fields of upd and returns the updated order.
func (r *OrderRepository) Update(ctx context.Context, id string, upd order.Update) (*order.Order, error) {
	if upd.IsZero() {
		return r.GetByID(ctx, id)
	}

	var (
		sets []string
		args = []any{id}
	)
	if upd.Status != nil {
		args = append(args, string(*upd.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if upd.DriverID != nil {
		args = append(args, *upd.DriverID)
		sets = append(sets, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if upd.Address != nil {
		args = append(args, *upd.Address)
		sets = append(sets, fmt.Sprintf("address = $%d", len(args)))
	}

	sql := `UPDATE orders SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + orderColumns
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}
	return &o, nil
}

// Delete removes an order and returns the deleted record.
func (r *OrderRepository) Delete(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, deleteOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("deleting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("deleting order %q: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
		lines  []byte
		total  decimal.Decimal
	)
	err := row.Scan(
		&o.ID, &o.PurchaserID, &o.PaymentID, &status, &lines,
		&total, &o.Address, &o.DriverID, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return o, fmt.Errorf("unmarshaling order lines: %w", err)
	}
	o.Status = order.Status(status)
	o.Total = total
	return o, nil
}
