package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/freshcart-io/freshcart/internal/domain/item"
	"github.com/freshcart-io/freshcart/internal/domain/payment"
	"github.com/freshcart-io/freshcart/internal/domain/user"
)

// PaymentDetails is the card metadata submitted at checkout. Only masked
// data is retained; the card number is reduced to its last four digits.
type PaymentDetails struct {
	CardNumber string
	ExpMonth   string
	ExpYear    string
	Name       string
	Email      string
}

// PlaceOrderRequest holds the input for placing an order. PurchaserID is an
// explicit parameter; the service never reads identity from ambient state.
type PlaceOrderRequest struct {
	PurchaserID string
	Lines       []CartLine
	Price       decimal.Decimal
	Payment     PaymentDetails
	Address     string
}

func (r PlaceOrderRequest) validate() error {
	if r.PurchaserID == "" {
		return ErrMissingPurchaser
	}
	if len(r.Lines) == 0 {
		return ErrEmptyCart
	}
	for _, ln := range r.Lines {
		if ln.Quantity <= 0 {
			return &InvalidQuantityError{ItemID: ln.ItemID}
		}
	}
	if !r.Price.IsPositive() {
		return ErrInvalidPrice
	}
	switch {
	case r.Payment.CardNumber == "":
		return &MissingFieldError{Field: "cardNo"}
	case r.Payment.Name == "":
		return &MissingFieldError{Field: "name"}
	case r.Payment.Email == "":
		return &MissingFieldError{Field: "email"}
	case r.Address == "":
		return &MissingFieldError{Field: "address"}
	}
	return nil
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order   *Order
	Payment *payment.Payment
}

// EventPublisher emits order lifecycle events. Publishing is best-effort:
// the service logs failures and never fails a request over them.
type EventPublisher interface {
	OrderCreated(ctx context.Context, o *Order) error
	OrderStatusChanged(ctx context.Context, o *Order, prev Status) error
	OrderDeleted(ctx context.Context, orderID string) error
}

// Service orchestrates checkout across the item, payment, and order stores
// and owns the order lifecycle. Checkout is a compensating transaction:
// every applied step has an inverse that runs when a later step fails, so
// callers observe an all-or-nothing outcome.
type Service struct {
	items    item.Repository
	payments payment.Repository
	orders   Repository
	users    user.Repository
	events   EventPublisher
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithEvents attaches an order event publisher.
func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// NewService creates an order Service with the required store dependencies.
func NewService(
	items item.Repository,
	payments payment.Repository,
	orders Repository,
	users user.Repository,
	opts ...Option,
) *Service {
	s := &Service{
		items:    items,
		payments: payments,
		orders:   orders,
		users:    users,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder validates the cart, reserves stock line by line, records the
// payment, and creates the order. On any failure every decrement applied so
// far is reversed and a payment created for a failed order is deleted; no
// partial outcome is observable. A failed compensation is returned as
// *ConsistencyError.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	// Step 1: reserve stock. Each decrement is conditional at the store, so
	// concurrent checkouts of the last unit cannot both succeed.
	applied := make([]CartLine, 0, len(req.Lines))
	for _, ln := range req.Lines {
		if err := s.items.DecrementStock(ctx, ln.ItemID, ln.Quantity); err != nil {
			return nil, s.restock(ctx, applied, errors.Wrapf(err, "reserve stock for item %s", ln.ItemID))
		}
		applied = append(applied, ln)
	}

	// Step 2: record the payment.
	pay := &payment.Payment{
		ID:          uuid.New().String(),
		PurchaserID: req.PurchaserID,
		Amount:      req.Price,
		CardLast4:   maskCard(req.Payment.CardNumber),
		ExpMonth:    req.Payment.ExpMonth,
		ExpYear:     req.Payment.ExpYear,
		Name:        req.Payment.Name,
		Email:       req.Payment.Email,
	}
	if err := s.payments.Create(ctx, pay); err != nil {
		return nil, s.restock(ctx, applied, errors.Wrap(err, "create payment"))
	}

	// Step 3: record the order.
	o := &Order{
		ID:          uuid.New().String(),
		PurchaserID: req.PurchaserID,
		PaymentID:   pay.ID,
		Status:      StatusPending,
		Lines:       req.Lines,
		Total:       req.Price,
		Address:     req.Address,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		err = errors.Wrap(err, "create order")
		if _, delErr := s.payments.Delete(ctx, pay.ID); delErr != nil {
			zctx.From(ctx).Error("data integrity: payment compensation failed",
				zap.String("payment_id", pay.ID),
				zap.Error(delErr),
			)
			err = &ConsistencyError{Op: "delete payment " + pay.ID, Cause: err, Err: delErr}
		}
		return nil, s.restock(ctx, applied, err)
	}

	s.publish(ctx, "order.created", func(p EventPublisher) error {
		return p.OrderCreated(ctx, o)
	})

	return &PlaceOrderResult{Order: o, Payment: pay}, nil
}

// restock reverses applied decrements in inverse order and returns cause.
// If a compensating increment itself fails, the remaining stock leak is
// unrecoverable here: it is logged as a data-integrity event and reported
// as *ConsistencyError instead of cause.
func (s *Service) restock(ctx context.Context, applied []CartLine, cause error) error {
	for i := len(applied) - 1; i >= 0; i-- {
		ln := applied[i]
		if err := s.items.IncrementStock(ctx, ln.ItemID, ln.Quantity); err != nil {
			zctx.From(ctx).Error("data integrity: stock compensation failed",
				zap.String("item_id", ln.ItemID),
				zap.Int("quantity", ln.Quantity),
				zap.Error(err),
			)
			return &ConsistencyError{Op: "restock item " + ln.ItemID, Cause: cause, Err: err}
		}
	}
	return cause
}

// UpdateOrder applies a partial update. Status changes are validated against
// the lifecycle state machine before being written.
func (s *Service) UpdateOrder(ctx context.Context, id string, upd Update) (*Order, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	if upd.IsZero() {
		return s.orders.GetByID(ctx, id)
	}

	var prev Status
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return nil, &InvalidTransitionError{To: *upd.Status}
		}
		cur, err := s.orders.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !cur.Status.CanTransitionTo(*upd.Status) {
			return nil, &InvalidTransitionError{From: cur.Status, To: *upd.Status}
		}
		prev = cur.Status
	}

	o, err := s.orders.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}

	if upd.Status != nil {
		s.publish(ctx, "order.status_changed", func(p EventPublisher) error {
			return p.OrderStatusChanged(ctx, o, prev)
		})
	}
	return o, nil
}

// DeleteOrder removes the order and cascades to its owned payment, returning
// the deleted payment as confirmation. A payment delete failing after the
// order is already gone leaves an orphaned payment record; that is surfaced
// as *ConsistencyError, never swallowed.
func (s *Service) DeleteOrder(ctx context.Context, id string) (*payment.Payment, error) {
	if id == "" {
		return nil, ErrMissingID
	}

	o, err := s.orders.Delete(ctx, id)
	if err != nil {
		return nil, err
	}

	pay, err := s.payments.Delete(ctx, o.PaymentID)
	if err != nil {
		zctx.From(ctx).Error("data integrity: orphaned payment after order delete",
			zap.String("order_id", o.ID),
			zap.String("payment_id", o.PaymentID),
			zap.Error(err),
		)
		return nil, &ConsistencyError{Op: "delete payment " + o.PaymentID, Err: err}
	}

	s.publish(ctx, "order.deleted", func(p EventPublisher) error {
		return p.OrderDeleted(ctx, o.ID)
	})
	return pay, nil
}

func (s *Service) publish(ctx context.Context, kind string, fn func(EventPublisher) error) {
	if s.events == nil {
		return
	}
	if err := fn(s.events); err != nil {
		zctx.From(ctx).Warn("publish event", zap.String("event", kind), zap.Error(err))
	}
}

// maskCard keeps the last four digits of a card number.
func maskCard(cardNo string) string {
	if len(cardNo) <= 4 {
		return cardNo
	}
	return cardNo[len(cardNo)-4:]
}
