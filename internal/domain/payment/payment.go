package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the requested payment record does not exist.
var ErrNotFound = errors.New("payment not found")

// Payment is an immutable record of a charge attempt. It stores masked card
// metadata only; no gateway authorization happens in this system. Each
// payment is owned exclusively by the order that references it.
type Payment struct {
	ID          string
	PurchaserID string
	Amount      decimal.Decimal
	CardLast4   string
	ExpMonth    string
	ExpYear     string
	Name        string
	Email       string
	CreatedAt   time.Time
}

// Repository defines persistence operations for payments. Delete returns the
// deleted record so callers can echo it back.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByIDs(ctx context.Context, ids []string) ([]Payment, error)
	Delete(ctx context.Context, id string) (*Payment, error)
}
