package order

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshcart-io/freshcart/internal/domain/item"
	"github.com/freshcart-io/freshcart/internal/domain/payment"
	"github.com/freshcart-io/freshcart/internal/domain/user"
)

// --- Mock implementations ---

// mockItemRepo guards stock with a mutex so the conditional decrement has
// the same atomicity the real store provides.
type mockItemRepo struct {
	mu     sync.Mutex
	stock  map[string]*item.Item
	incErr error
	decErr error
}

func newItemRepo(items ...item.Item) *mockItemRepo {
	stock := make(map[string]*item.Item, len(items))
	for i := range items {
		stock[items[i].ID] = &items[i]
	}
	return &mockItemRepo{stock: stock}
}

func (m *mockItemRepo) List(_ context.Context) ([]item.Item, error) { return nil, nil }

func (m *mockItemRepo) GetByID(_ context.Context, id string) (*item.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.stock[id]
	if !ok {
		return nil, item.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *mockItemRepo) GetByIDs(_ context.Context, ids []string) ([]item.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []item.Item
	for _, id := range ids {
		if it, ok := m.stock[id]; ok {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *mockItemRepo) DecrementStock(_ context.Context, id string, qty int) error {
	if m.decErr != nil {
		return m.decErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.stock[id]
	if !ok {
		return item.ErrNotFound
	}
	if it.Quantity < qty {
		return &item.InsufficientStockError{ItemID: id, Want: qty, Have: it.Quantity}
	}
	it.Quantity -= qty
	return nil
}

func (m *mockItemRepo) IncrementStock(_ context.Context, id string, qty int) error {
	if m.incErr != nil {
		return m.incErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.stock[id]
	if !ok {
		return item.ErrNotFound
	}
	it.Quantity += qty
	return nil
}

func (m *mockItemRepo) Upsert(_ context.Context, _ *item.Item) error { return nil }

func (m *mockItemRepo) quantity(t *testing.T, id string) int {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.stock[id]
	require.True(t, ok, "item %s missing", id)
	return it.Quantity
}

type mockPaymentRepo struct {
	mu        sync.Mutex
	byID      map[string]*payment.Payment
	createErr error
	deleteErr error
}

func newPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{byID: make(map[string]*payment.Payment)}
}

func (m *mockPaymentRepo) Create(_ context.Context, p *payment.Payment) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *mockPaymentRepo) GetByIDs(_ context.Context, ids []string) ([]payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []payment.Payment
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockPaymentRepo) Delete(_ context.Context, id string) (*payment.Payment, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	delete(m.byID, id)
	return p, nil
}

func (m *mockPaymentRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type mockOrderRepo struct {
	mu        sync.Mutex
	byID      map[string]*Order
	createErr error
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{byID: make(map[string]*Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context, f Filter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.byID {
		if f.PurchaserID != "" && o.PurchaserID != f.PurchaserID {
			continue
		}
		if f.DriverID != "" && o.DriverID != f.DriverID {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) Update(_ context.Context, id string, upd Update) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Status != nil {
		o.Status = *upd.Status
	}
	if upd.DriverID != nil {
		o.DriverID = *upd.DriverID
	}
	if upd.Address != nil {
		o.Address = *upd.Address
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) Delete(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.byID, id)
	return o, nil
}

type mockUserRepo struct {
	byID map[string]user.User
}

func (m *mockUserRepo) GetByIDs(_ context.Context, ids []string) ([]user.User, error) {
	var out []user.User
	for _, id := range ids {
		if u, ok := m.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) Upsert(_ context.Context, _ *user.User) error { return nil }

// --- Helpers ---

func newTestItem(id string, price string, qty int) item.Item {
	return item.Item{
		ID:       id,
		Name:     "Item " + id,
		Category: "test",
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
	}
}

func validRequest(lines ...CartLine) PlaceOrderRequest {
	return PlaceOrderRequest{
		PurchaserID: "u1",
		Lines:       lines,
		Price:       decimal.RequireFromString("50.00"),
		Payment: PaymentDetails{
			CardNumber: "4111111111111111",
			ExpMonth:   "09",
			ExpYear:    "28",
			Name:       "Alice Carter",
			Email:      "alice@example.com",
		},
		Address: "12 Rose St",
	}
}

type fixture struct {
	items    *mockItemRepo
	payments *mockPaymentRepo
	orders   *mockOrderRepo
	users    *mockUserRepo
	svc      *Service
}

func newFixture(items ...item.Item) *fixture {
	f := &fixture{
		items:    newItemRepo(items...),
		payments: newPaymentRepo(),
		orders:   newOrderRepo(),
		users:    &mockUserRepo{byID: map[string]user.User{}},
	}
	f.svc = NewService(f.items, f.payments, f.orders, f.users)
	return f
}

// --- PlaceOrder validation ---

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture()
	_, err := f.svc.PlaceOrder(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrder_MissingPurchaser(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5))
	req := validRequest(CartLine{ItemID: "i1", Quantity: 1})
	req.PurchaserID = ""
	_, err := f.svc.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, ErrMissingPurchaser)
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5))
	_, err := f.svc.PlaceOrder(context.Background(), validRequest(CartLine{ItemID: "i1", Quantity: 0}))

	var qtyErr *InvalidQuantityError
	require.ErrorAs(t, err, &qtyErr)
	assert.Equal(t, "i1", qtyErr.ItemID)
	assert.Equal(t, 5, f.items.quantity(t, "i1"))
}

func TestPlaceOrder_MissingPaymentField(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5))
	req := validRequest(CartLine{ItemID: "i1", Quantity: 1})
	req.Payment.Email = ""

	_, err := f.svc.PlaceOrder(context.Background(), req)

	var fieldErr *MissingFieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "email", fieldErr.Field)
	assert.Equal(t, 5, f.items.quantity(t, "i1"))
	assert.Equal(t, 0, f.payments.count())
}

// --- PlaceOrder success ---

func TestPlaceOrder_Success(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5))
	result, err := f.svc.PlaceOrder(context.Background(), validRequest(CartLine{ItemID: "i1", Quantity: 1}))
	require.NoError(t, err)

	assert.Equal(t, 4, f.items.quantity(t, "i1"))
	assert.Equal(t, StatusPending, result.Order.Status)
	assert.Equal(t, result.Payment.ID, result.Order.PaymentID)
	assert.True(t, decimal.RequireFromString("50.00").Equal(result.Payment.Amount))
	assert.Equal(t, "1111", result.Payment.CardLast4)
	assert.Equal(t, "12 Rose St", result.Order.Address)
	assert.Equal(t, 1, f.payments.count())

	stored, err := f.orders.GetByID(context.Background(), result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Order.Lines, stored.Lines)
	assert.Equal(t, result.Order.Address, stored.Address)
}

func TestPlaceOrder_DecrementsByRequestedQuantity(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5), newTestItem("i2", "4.00", 10))
	_, err := f.svc.PlaceOrder(context.Background(), validRequest(
		CartLine{ItemID: "i1", Quantity: 2},
		CartLine{ItemID: "i2", Quantity: 3},
	))
	require.NoError(t, err)

	assert.Equal(t, 3, f.items.quantity(t, "i1"))
	assert.Equal(t, 7, f.items.quantity(t, "i2"))
}

// --- PlaceOrder failure and rollback ---

func TestPlaceOrder_ItemNotFound(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5))
	_, err := f.svc.PlaceOrder(context.Background(), validRequest(
		CartLine{ItemID: "i1", Quantity: 1},
		CartLine{ItemID: "missing", Quantity: 1},
	))

	require.ErrorIs(t, err, item.ErrNotFound)
	assert.Equal(t, 5, f.items.quantity(t, "i1"), "applied decrement must be rolled back")
	assert.Equal(t, 0, f.payments.count())
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	f := newFixture(newTestItem("itemA", "10.00", 5), newTestItem("itemB", "20.00", 0))
	req := validRequest(
		CartLine{ItemID: "itemA", Quantity: 1},
		CartLine{ItemID: "itemB", Quantity: 1},
	)
	req.Price = decimal.RequireFromString("100.00")

	_, err := f.svc.PlaceOrder(context.Background(), req)

	var stockErr *item.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "itemB", stockErr.ItemID)
	assert.Equal(t, 5, f.items.quantity(t, "itemA"), "no partial decrement may survive")
	assert.Equal(t, 0, f.items.quantity(t, "itemB"))
	assert.Equal(t, 0, f.payments.count())
	assert.Empty(t, f.orders.byID)
}

func TestPlaceOrder_PaymentCreateFails_RestocksItems(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5))
	f.payments.createErr = errors.New("db write failed")

	_, err := f.svc.PlaceOrder(context.Background(), validRequest(CartLine{ItemID: "i1", Quantity: 2}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create payment")
	assert.Equal(t, 5, f.items.quantity(t, "i1"))
	assert.Empty(t, f.orders.byID)
}

func TestPlaceOrder_OrderCreateFails_DeletesPaymentAndRestocks(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5))
	f.orders.createErr = errors.New("db write failed")

	_, err := f.svc.PlaceOrder(context.Background(), validRequest(CartLine{ItemID: "i1", Quantity: 1}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Equal(t, 5, f.items.quantity(t, "i1"))
	assert.Equal(t, 0, f.payments.count(), "payment must be compensated away")
}

func TestPlaceOrder_RestockFails_ReturnsConsistencyError(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5), newTestItem("i2", "10.00", 0))
	f.items.incErr = errors.New("store unreachable")

	_, err := f.svc.PlaceOrder(context.Background(), validRequest(
		CartLine{ItemID: "i1", Quantity: 1},
		CartLine{ItemID: "i2", Quantity: 1},
	))

	var consErr *ConsistencyError
	require.ErrorAs(t, err, &consErr)
	assert.ErrorAs(t, consErr.Cause, new(*item.InsufficientStockError))
}

func TestPlaceOrder_PaymentCompensationFails_ReturnsConsistencyError(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5))
	f.orders.createErr = errors.New("db write failed")
	f.payments.deleteErr = errors.New("store unreachable")

	_, err := f.svc.PlaceOrder(context.Background(), validRequest(CartLine{ItemID: "i1", Quantity: 1}))

	var consErr *ConsistencyError
	require.ErrorAs(t, err, &consErr)
	assert.Contains(t, consErr.Op, "delete payment")
}

// --- Concurrency ---

func TestPlaceOrder_ConcurrentLastUnit(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 1))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(context.Background(), validRequest(CartLine{ItemID: "i1", Quantity: 1}))
			results[i] = err
		}(i)
	}
	wg.Wait()

	var successes, stockFailures int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		var stockErr *item.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		stockFailures++
	}
	assert.Equal(t, 1, successes, "exactly one checkout may win the last unit")
	assert.Equal(t, 1, stockFailures)
	assert.Equal(t, 0, f.items.quantity(t, "i1"))
	assert.Equal(t, 1, f.payments.count())
}

// --- UpdateOrder ---

func seedOrder(t *testing.T, f *fixture, status Status) *Order {
	t.Helper()
	o := &Order{
		ID:          "o1",
		PurchaserID: "u1",
		PaymentID:   "p1",
		Status:      status,
		Lines:       []CartLine{{ItemID: "i1", Quantity: 1}},
		Total:       decimal.RequireFromString("50.00"),
		Address:     "12 Rose St",
	}
	require.NoError(t, f.orders.Create(context.Background(), o))
	return o
}

func TestUpdateOrder_LegalTransition(t *testing.T) {
	f := newFixture()
	seedOrder(t, f, StatusPending)

	st := StatusProcessing
	o, err := f.svc.UpdateOrder(context.Background(), "o1", Update{Status: &st})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, o.Status)
}

func TestUpdateOrder_IllegalTransition(t *testing.T) {
	f := newFixture()
	seedOrder(t, f, StatusDelivered)

	st := StatusProcessing
	_, err := f.svc.UpdateOrder(context.Background(), "o1", Update{Status: &st})

	var transErr *InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, StatusDelivered, transErr.From)
}

func TestUpdateOrder_UnknownStatus(t *testing.T) {
	f := newFixture()
	seedOrder(t, f, StatusPending)

	st := Status("shipped")
	_, err := f.svc.UpdateOrder(context.Background(), "o1", Update{Status: &st})

	var transErr *InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
}

func TestUpdateOrder_AssignDriver(t *testing.T) {
	f := newFixture()
	seedOrder(t, f, StatusPending)

	driver := "u-drv"
	o, err := f.svc.UpdateOrder(context.Background(), "o1", Update{DriverID: &driver})
	require.NoError(t, err)
	assert.Equal(t, "u-drv", o.DriverID)
	assert.Equal(t, StatusPending, o.Status, "status untouched by partial update")
}

func TestUpdateOrder_EmptyUpdateIsNoOp(t *testing.T) {
	f := newFixture()
	seedOrder(t, f, StatusProcessing)

	o, err := f.svc.UpdateOrder(context.Background(), "o1", Update{})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, o.Status)
}

func TestUpdateOrder_MissingID(t *testing.T) {
	f := newFixture()
	_, err := f.svc.UpdateOrder(context.Background(), "", Update{})
	require.ErrorIs(t, err, ErrMissingID)
}

func TestUpdateOrder_NotFound(t *testing.T) {
	f := newFixture()
	st := StatusCancelled
	_, err := f.svc.UpdateOrder(context.Background(), "nope", Update{Status: &st})
	require.ErrorIs(t, err, ErrNotFound)
}

// --- DeleteOrder ---

func TestDeleteOrder_CascadesToPayment(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5))
	result, err := f.svc.PlaceOrder(context.Background(), validRequest(CartLine{ItemID: "i1", Quantity: 1}))
	require.NoError(t, err)

	pay, err := f.svc.DeleteOrder(context.Background(), result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Payment.ID, pay.ID)
	assert.Equal(t, 0, f.payments.count())
	assert.Empty(t, f.orders.byID)
}

func TestDeleteOrder_TwiceReturnsNotFound(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5))
	result, err := f.svc.PlaceOrder(context.Background(), validRequest(CartLine{ItemID: "i1", Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.DeleteOrder(context.Background(), result.Order.ID)
	require.NoError(t, err)

	_, err = f.svc.DeleteOrder(context.Background(), result.Order.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteOrder_OrphanedPaymentIsConsistencyError(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5))
	result, err := f.svc.PlaceOrder(context.Background(), validRequest(CartLine{ItemID: "i1", Quantity: 1}))
	require.NoError(t, err)

	f.payments.deleteErr = errors.New("store unreachable")
	_, err = f.svc.DeleteOrder(context.Background(), result.Order.ID)

	var consErr *ConsistencyError
	require.ErrorAs(t, err, &consErr)
	assert.Nil(t, consErr.Cause)
}

// --- Events ---

type recordingPublisher struct {
	mu      sync.Mutex
	created []string
	status  []string
	deleted []string
	err     error
}

func (p *recordingPublisher) OrderCreated(_ context.Context, o *Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, o.ID)
	return p.err
}

func (p *recordingPublisher) OrderStatusChanged(_ context.Context, o *Order, _ Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = append(p.status, o.ID)
	return p.err
}

func (p *recordingPublisher) OrderDeleted(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
	return p.err
}

func TestPlaceOrder_PublishesCreatedEvent(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5))
	pub := &recordingPublisher{}
	f.svc = NewService(f.items, f.payments, f.orders, f.users, WithEvents(pub))

	result, err := f.svc.PlaceOrder(context.Background(), validRequest(CartLine{ItemID: "i1", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, []string{result.Order.ID}, pub.created)
}

func TestPlaceOrder_PublishFailureDoesNotFailOrder(t *testing.T) {
	f := newFixture(newTestItem("i1", "10.00", 5))
	pub := &recordingPublisher{err: errors.New("broker down")}
	f.svc = NewService(f.items, f.payments, f.orders, f.users, WithEvents(pub))

	_, err := f.svc.PlaceOrder(context.Background(), validRequest(CartLine{ItemID: "i1", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, 4, f.items.quantity(t, "i1"))
}
