package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/freshcart-io/freshcart/internal/domain/order"
)

// createOrderRequest mirrors the checkout form fields. Cart lines carry an
// explicit quantity per item.
type createOrderRequest struct {
	Items   []order.CartLine `json:"items"`
	Price   decimal.Decimal  `json:"price"`
	Email   string           `json:"email"`
	CardNo  string           `json:"cardNo"`
	ExpMM   string           `json:"mm"`
	ExpYY   string           `json:"yy"`
	Name    string           `json:"name"`
	Address string           `json:"address"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Code: http.StatusBadRequest, Kind: "validation", Message: "invalid request body",
		})
		return
	}

	result, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		PurchaserID: r.Header.Get(userIDHeader),
		Lines:       req.Items,
		Price:       req.Price,
		Payment: order.PaymentDetails{
			CardNumber: req.CardNo,
			ExpMonth:   req.ExpMM,
			ExpYear:    req.ExpYY,
			Name:       req.Name,
			Email:      req.Email,
		},
		Address: req.Address,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Order   orderPayload   `json:"order"`
		Payment paymentPayload `json:"payment"`
	}{
		Order:   toOrderPayload(result.Order),
		Payment: toPaymentPayload(result.Payment),
	})
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, order.Filter{})
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	purchaserID := r.Header.Get(userIDHeader)
	if purchaserID == "" {
		writeError(w, r, order.ErrMissingPurchaser)
		return
	}
	h.listOrders(w, r, order.Filter{PurchaserID: purchaserID})
}

func (h *Handler) listDriverOrders(w http.ResponseWriter, r *http.Request) {
	driverID := r.Header.Get(userIDHeader)
	if driverID == "" {
		writeError(w, r, order.ErrMissingPurchaser)
		return
	}
	h.listOrders(w, r, order.Filter{DriverID: driverID})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, f order.Filter) {
	views, err := h.orders.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload := make([]orderViewPayload, 0, len(views))
	for _, v := range views {
		payload = append(payload, toViewPayload(v))
	}
	writeJSON(w, http.StatusOK, payload)
}

// updateOrder applies a partial update. The body is decoded with jx so only
// fields actually present in the JSON object are touched; an absent field
// and an empty field are different things for a partial update.
func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	upd, err := decodeOrderUpdate(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Code: http.StatusBadRequest, Kind: "validation", Message: "invalid request body",
		})
		return
	}

	o, err := h.orders.UpdateOrder(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Message string       `json:"message"`
		Order   orderPayload `json:"order"`
	}{
		Message: "order updated",
		Order:   toOrderPayload(o),
	})
}

func decodeOrderUpdate(body []byte) (order.Update, error) {
	var upd order.Update
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			if err != nil {
				return err
			}
			st := order.Status(s)
			upd.Status = &st
		case "driverId":
			s, err := d.Str()
			if err != nil {
				return err
			}
			upd.DriverID = &s
		case "address":
			s, err := d.Str()
			if err != nil {
				return err
			}
			upd.Address = &s
		default:
			return d.Skip()
		}
		return nil
	})
	return upd, err
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	pay, err := h.orders.DeleteOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Message string         `json:"message"`
		Payment paymentPayload `json:"payment"`
	}{
		Message: "order deleted",
		Payment: toPaymentPayload(pay),
	})
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload := make([]itemPayload, 0, len(items))
	for _, it := range items {
		payload = append(payload, toItemPayload(it))
	}
	writeJSON(w, http.StatusOK, payload)
}
