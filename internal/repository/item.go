package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/freshcart-io/freshcart/internal/domain/item"
)

const (
	itemColumns = "id, name, category, price, quantity, image"

	listItemsSQL    = `SELECT ` + itemColumns + ` FROM items ORDER BY id`
	getItemByIDSQL  = `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	getItemsByIDSQL = `SELECT ` + itemColumns + ` FROM items WHERE id = ANY($1)`

	// Conditional single-statement decrement: the WHERE clause makes the
	// update a compare-and-set on quantity, so concurrent checkouts of the
	// last unit serialize inside the database and cannot oversell.
	decrementStockSQL = `UPDATE items SET quantity = quantity - $2 WHERE id = $1 AND quantity >= $2`
	incrementStockSQL = `UPDATE items SET quantity = quantity + $2 WHERE id = $1`
	getQuantitySQL    = `SELECT quantity FROM items WHERE id = $1`

	upsertItemSQL = `INSERT INTO items (id, name, category, price, quantity, image)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, category = EXCLUDED.category,
			price = EXCLUDED.price, quantity = EXCLUDED.quantity,
			image = EXCLUDED.image`
)

var _ item.Repository = (*ItemRepository)(nil)

// ItemRepository implements item.Repository backed by PostgreSQL.
type ItemRepository struct {
	pool *pgxpool.Pool
}

// NewItemRepository returns an ItemRepository that uses the given pool.
func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{pool: pool}
}

// List returns the whole item catalog ordered by ID.
func (r *ItemRepository) List(ctx context.Context) ([]item.Item, error) {
	rows, err := r.pool.Query(ctx, listItemsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return pgx.CollectRows(rows, scanItem)
}

// GetByID returns a single item by its identifier.
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*item.Item, error) {
	rows, err := r.pool.Query(ctx, getItemByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting item %q: %w", id, err)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, item.ErrNotFound
		}
		return nil, fmt.Errorf("getting item %q: %w", id, err)
	}
	return &it, nil
}

// GetByIDs returns items matching any of the given IDs.
func (r *ItemRepository) GetByIDs(ctx context.Context, ids []string) ([]item.Item, error) {
	rows, err := r.pool.Query(ctx, getItemsByIDSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting items by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanItem)
}

// DecrementStock atomically subtracts qty from the item's quantity, failing
// when the item is missing or the result would be negative.
func (r *ItemRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	tag, err := r.pool.Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock for item %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No row updated: distinguish a missing item from insufficient stock.
	var have int
	err = r.pool.QueryRow(ctx, getQuantitySQL, id).Scan(&have)
	if errors.Is(err, pgx.ErrNoRows) {
		return item.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking stock for item %q: %w", id, err)
	}
	return &item.InsufficientStockError{ItemID: id, Want: qty, Have: have}
}

// IncrementStock adds qty back to the item's quantity.
func (r *ItemRepository) IncrementStock(ctx context.Context, id string, qty int) error {
	tag, err := r.pool.Exec(ctx, incrementStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("incrementing stock for item %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return item.ErrNotFound
	}
	return nil
}

// Upsert inserts or replaces an item record.
func (r *ItemRepository) Upsert(ctx context.Context, it *item.Item) error {
	_, err := r.pool.Exec(ctx, upsertItemSQL,
		it.ID, it.Name, it.Category, it.Price, it.Quantity, it.Image,
	)
	if err != nil {
		return fmt.Errorf("upserting item %q: %w", it.ID, err)
	}
	return nil
}

func scanItem(row pgx.CollectableRow) (item.Item, error) {
	var (
		it    item.Item
		price decimal.Decimal
	)
	err := row.Scan(&it.ID, &it.Name, &it.Category, &price, &it.Quantity, &it.Image)
	it.Price = price
	return it, err
}
