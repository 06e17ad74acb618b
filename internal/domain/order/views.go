package order

import (
	"context"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/freshcart-io/freshcart/internal/domain/item"
	"github.com/freshcart-io/freshcart/internal/domain/payment"
	"github.com/freshcart-io/freshcart/internal/domain/user"
)

// View is an order joined with the records it references, assembled for
// display. A reference that no longer resolves leaves its field nil or
// absent from Items; it is not an error.
type View struct {
	Order     Order
	Items     []item.Item
	Payment   *payment.Payment
	Purchaser *user.User
	Driver    *user.User
}

// ListOrders returns joined views of orders matching the filter. Related
// items, payments, and users are batch-fetched concurrently, one query per
// store, then attached in memory.
func (s *Service) ListOrders(ctx context.Context, f Filter) ([]View, error) {
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if len(orders) == 0 {
		return []View{}, nil
	}

	itemIDs := make(map[string]struct{})
	payIDs := make([]string, 0, len(orders))
	userIDs := make(map[string]struct{})
	for _, o := range orders {
		for _, ln := range o.Lines {
			itemIDs[ln.ItemID] = struct{}{}
		}
		payIDs = append(payIDs, o.PaymentID)
		userIDs[o.PurchaserID] = struct{}{}
		if o.DriverID != "" {
			userIDs[o.DriverID] = struct{}{}
		}
	}

	var (
		items []item.Item
		pays  []payment.Payment
		users []user.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		items, err = s.items.GetByIDs(gctx, keys(itemIDs))
		return errors.Wrap(err, "fetch items")
	})
	g.Go(func() (err error) {
		pays, err = s.payments.GetByIDs(gctx, payIDs)
		return errors.Wrap(err, "fetch payments")
	})
	g.Go(func() (err error) {
		users, err = s.users.GetByIDs(gctx, keys(userIDs))
		return errors.Wrap(err, "fetch users")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	itemByID := make(map[string]item.Item, len(items))
	for _, it := range items {
		itemByID[it.ID] = it
	}
	payByID := make(map[string]payment.Payment, len(pays))
	for _, p := range pays {
		payByID[p.ID] = p
	}
	userByID := make(map[string]user.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	views := make([]View, 0, len(orders))
	for _, o := range orders {
		v := View{Order: o}
		for _, ln := range o.Lines {
			if it, ok := itemByID[ln.ItemID]; ok {
				v.Items = append(v.Items, it)
			}
		}
		if p, ok := payByID[o.PaymentID]; ok {
			v.Payment = &p
		}
		if u, ok := userByID[o.PurchaserID]; ok {
			v.Purchaser = &u
		}
		if u, ok := userByID[o.DriverID]; ok {
			v.Driver = &u
		}
		views = append(views, v)
	}
	return views, nil
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
