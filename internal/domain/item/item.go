package item

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the requested item does not exist.
var ErrNotFound = errors.New("item not found")

// InsufficientStockError indicates a stock decrement would drive the
// quantity on hand below zero.
type InsufficientStockError struct {
	ItemID string
	Want   int
	Have   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: want %d, have %d", e.ItemID, e.Want, e.Have)
}

// Item is a sellable inventory record. Quantity is mutated by every checkout
// and every restock; items are never deleted while referenced by an order.
type Item struct {
	ID       string
	Name     string
	Category string
	Price    decimal.Decimal
	Quantity int
	Image    string
}

// Repository defines persistence operations for items.
//
// DecrementStock must be atomic: concurrent decrements on the same item may
// never drive Quantity below zero. It returns ErrNotFound when the item does
// not exist and *InsufficientStockError when not enough stock remains.
// IncrementStock is its inverse, used for compensation and restocking.
type Repository interface {
	List(ctx context.Context) ([]Item, error)
	GetByID(ctx context.Context, id string) (*Item, error)
	GetByIDs(ctx context.Context, ids []string) ([]Item, error)
	DecrementStock(ctx context.Context, id string, qty int) error
	IncrementStock(ctx context.Context, id string, qty int) error
	Upsert(ctx context.Context, it *Item) error
}
