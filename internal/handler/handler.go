// Package handler exposes the order service over HTTP. Routes are mounted
// on a chi router; domain errors are mapped to a structured {code, kind,
// message} body so clients can branch on the failure class instead of
// parsing messages.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/freshcart-io/freshcart/internal/domain/item"
	"github.com/freshcart-io/freshcart/internal/domain/order"
	"github.com/freshcart-io/freshcart/internal/domain/payment"
	"github.com/freshcart-io/freshcart/internal/domain/user"
)

// userIDHeader carries the authenticated user's identity, injected by the
// session layer in front of this service. It replaces the ambient session
// state the legacy system read inside controllers.
const userIDHeader = "X-User-ID"

// Handler serves the order and item routes.
type Handler struct {
	items  item.Repository
	orders *order.Service
}

// New constructs a Handler with the required dependencies.
func New(items item.Repository, orders *order.Service) *Handler {
	return &Handler{items: items, orders: orders}
}

// Routes builds the HTTP route tree.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/items", h.listItems)
	r.Route("/order", func(r chi.Router) {
		r.Post("/create", h.createOrder)
		r.Get("/all", h.listAllOrders)
		r.Get("/my", h.listMyOrders)
		r.Get("/driver", h.listDriverOrders)
		r.Put("/{id}", h.updateOrder)
		r.Delete("/{id}", h.deleteOrder)
	})
	return r
}

// errorPayload is the error response body. Kind is machine-checkable.
type errorPayload struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error onto an HTTP status and error kind.
// Consistency errors are checked first: they may wrap other classes but must
// never be downgraded to an ordinary client error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		kind   = "internal"
	)

	var (
		consErr  *order.ConsistencyError
		stockErr *item.InsufficientStockError
		qtyErr   *order.InvalidQuantityError
		fieldErr *order.MissingFieldError
		transErr *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &consErr):
		kind = "consistency"
	case errors.As(err, &stockErr):
		status, kind = http.StatusConflict, "insufficient_stock"
	case errors.As(err, &transErr):
		status, kind = http.StatusUnprocessableEntity, "invalid_transition"
	case errors.As(err, &qtyErr), errors.As(err, &fieldErr),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrMissingPurchaser),
		errors.Is(err, order.ErrMissingID),
		errors.Is(err, order.ErrInvalidPrice):
		status, kind = http.StatusBadRequest, "validation"
	case errors.Is(err, item.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	}

	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed", zap.String("kind", kind), zap.Error(err))
	}
	writeJSON(w, status, errorPayload{Code: status, Kind: kind, Message: err.Error()})
}

// --- Response payloads ---

type itemPayload struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Image    string  `json:"image,omitempty"`
}

func toItemPayload(it item.Item) itemPayload {
	return itemPayload{
		ID:       it.ID,
		Name:     it.Name,
		Category: it.Category,
		Price:    it.Price.InexactFloat64(),
		Quantity: it.Quantity,
		Image:    it.Image,
	}
}

type paymentPayload struct {
	ID          string    `json:"id"`
	PurchaserID string    `json:"purchaserId"`
	Amount      float64   `json:"amount"`
	CardLast4   string    `json:"cardLast4"`
	ExpMonth    string    `json:"mm"`
	ExpYear     string    `json:"yy"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toPaymentPayload(p *payment.Payment) paymentPayload {
	return paymentPayload{
		ID:          p.ID,
		PurchaserID: p.PurchaserID,
		Amount:      p.Amount.InexactFloat64(),
		CardLast4:   p.CardLast4,
		ExpMonth:    p.ExpMonth,
		ExpYear:     p.ExpYear,
		Name:        p.Name,
		Email:       p.Email,
		CreatedAt:   p.CreatedAt,
	}
}

type userPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type orderPayload struct {
	ID          string           `json:"id"`
	PurchaserID string           `json:"purchaserId"`
	PaymentID   string           `json:"paymentId"`
	Status      string           `json:"status"`
	Items       []order.CartLine `json:"items"`
	Total       float64          `json:"total"`
	Address     string           `json:"address"`
	DriverID    string           `json:"driverId,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

func toOrderPayload(o *order.Order) orderPayload {
	return orderPayload{
		ID:          o.ID,
		PurchaserID: o.PurchaserID,
		PaymentID:   o.PaymentID,
		Status:      string(o.Status),
		Items:       o.Lines,
		Total:       o.Total.InexactFloat64(),
		Address:     o.Address,
		DriverID:    o.DriverID,
		CreatedAt:   o.CreatedAt,
	}
}

type orderViewPayload struct {
	Order     orderPayload    `json:"order"`
	Items     []itemPayload   `json:"items"`
	Payment   *paymentPayload `json:"payment,omitempty"`
	Purchaser *userPayload    `json:"purchaser,omitempty"`
	Driver    *userPayload    `json:"driver,omitempty"`
}

func toViewPayload(v order.View) orderViewPayload {
	out := orderViewPayload{
		Order: toOrderPayload(&v.Order),
		Items: make([]itemPayload, 0, len(v.Items)),
	}
	for _, it := range v.Items {
		out.Items = append(out.Items, toItemPayload(it))
	}
	if v.Payment != nil {
		p := toPaymentPayload(v.Payment)
		out.Payment = &p
	}
	if v.Purchaser != nil {
		out.Purchaser = &userPayload{ID: v.Purchaser.ID, Name: v.Purchaser.Name, Email: v.Purchaser.Email, Role: string(v.Purchaser.Role)}
	}
	if v.Driver != nil {
		out.Driver = &userPayload{ID: v.Driver.ID, Name: v.Driver.Name, Email: v.Driver.Email, Role: string(v.Driver.Role)}
	}
	return out
}
