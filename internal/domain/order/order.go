package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo reports whether the move from s to next is legal.
// Orders advance pending → processing → delivered; cancellation is allowed
// from any non-terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusProcessing:
		return s == StatusPending
	case StatusDelivered:
		return s == StatusProcessing
	case StatusCancelled:
		return true
	}
	return false
}

// CartLine is one entry of a checkout cart: an item reference and the
// requested quantity.
type CartLine struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// Order is one purchase. It exclusively owns the payment it references and
// holds item references only; item lifecycles are shared across orders.
type Order struct {
	ID          string
	PurchaserID string
	PaymentID   string
	Status      Status
	Lines       []CartLine
	Total       decimal.Decimal
	Address     string
	DriverID    string
	CreatedAt   time.Time
}

// Update describes a partial order mutation. Nil fields are left unchanged.
type Update struct {
	Status   *Status
	DriverID *string
	Address  *string
}

// IsZero reports whether the update changes nothing.
func (u Update) IsZero() bool {
	return u.Status == nil && u.DriverID == nil && u.Address == nil
}

// Filter selects orders by an equality match. Empty fields match everything.
type Filter struct {
	PurchaserID string
	DriverID    string
}

// Repository defines persistence operations for orders. Delete returns the
// deleted record so the cascading payment delete can locate its target.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	Update(ctx context.Context, id string, upd Update) (*Order, error)
	Delete(ctx context.Context, id string) (*Order, error)
}
