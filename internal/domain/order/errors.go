package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for checkout and lifecycle validation.
var (
	ErrNotFound         = errors.New("order not found")
	ErrEmptyCart        = errors.New("cart must contain at least one item")
	ErrMissingPurchaser = errors.New("purchaser id is required")
	ErrMissingID        = errors.New("order id is required")
	ErrInvalidPrice     = errors.New("price must be greater than zero")
)

// InvalidQuantityError indicates a cart line with a non-positive quantity.
type InvalidQuantityError struct {
	ItemID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for item %s", e.ItemID)
}

// MissingFieldError indicates a required checkout field was not provided.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// InvalidTransitionError indicates a status change the lifecycle state
// machine does not permit.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	if !e.To.Valid() {
		return fmt.Sprintf("unknown order status %q", e.To)
	}
	return fmt.Sprintf("order cannot transition from %s to %s", e.From, e.To)
}

// ConsistencyError indicates a compensating action failed after a prior step
// had already been applied, leaving the stores in a state that needs repair.
// This is the only error class treated as a data-integrity event rather than
// an ordinary request failure.
type ConsistencyError struct {
	// Op names the compensation that failed, e.g. "restock item i1".
	Op string
	// Cause is the failure that triggered compensation, nil for repair
	// errors with no triggering step (orphaned payment on delete).
	Cause error
	// Err is the compensation failure itself.
	Err error
}

func (e *ConsistencyError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("consistency: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("consistency: %s: %v (after: %v)", e.Op, e.Err, e.Cause)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }
