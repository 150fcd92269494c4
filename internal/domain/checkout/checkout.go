// Package checkout ties the cart, the order-creation boundary, and the
// payment session machine into one flow: create the order, open a
// payment session for the tax-inclusive total, route provider events,
// and clear the cart only once payment verification succeeds.
package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/pawmart/cart-engine/internal/domain/cart"
	"github.com/pawmart/cart-engine/internal/domain/order"
	"github.com/pawmart/cart-engine/internal/domain/payment"
)

// ErrEmptyCart is returned when checkout is attempted with no lines.
var ErrEmptyCart = errors.New("cart is empty")

// BeginRequest is the checkout input collected by the UI.
type BeginRequest struct {
	UserID          string
	ShippingAddress order.Address
	BillingAddress  order.Address
	ShippingMethod  string
}

// BeginResult is handed back to the UI so it can open the provider's
// payment surface.
type BeginResult struct {
	Order   *order.Confirmation
	Session payment.View
}

// Service drives one checkout surface. The payment machine's
// OnSucceeded hook must be wired to empty the same store (see New).
type Service struct {
	store   *cart.Store
	orders  order.Service
	machine *payment.Machine
	lg      *zap.Logger
}

// New creates a checkout service over one cart store. The caller
// constructs the payment machine with hooks that clear this store on
// success; New verifies nothing about the wiring.
func New(store *cart.Store, orders order.Service, machine *payment.Machine, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		store:   store,
		orders:  orders,
		machine: machine,
		lg:      lg,
	}
}

// Begin creates the order from the current cart and opens a payment
// session for the confirmed total (taxes included, not the cart
// subtotal). Order creation is one shot: failure is surfaced, never
// retried here.
func (s *Service) Begin(ctx context.Context, req BeginRequest) (*BeginResult, error) {
	snap := s.store.Snapshot()
	if snap.IsEmpty() {
		return nil, ErrEmptyCart
	}

	conf, err := s.orders.Create(ctx, order.CreateRequest{
		UserID:          req.UserID,
		Lines:           snap.Lines,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		ShippingMethod:  req.ShippingMethod,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	view, err := s.machine.Begin(ctx, conf.OrderID, conf.Total, conf.Currency)
	if err != nil {
		return nil, errors.Wrap(err, "begin payment session")
	}

	s.lg.Info("Checkout started",
		zap.String("order_id", conf.OrderID),
		zap.String("provider_order_id", view.ProviderOrderID),
	)
	return &BeginResult{Order: conf, Session: view}, nil
}

// HandleEvent routes a provider callback into the payment machine and
// reports terminal outcomes to the order service. The cart is cleared
// by the machine's OnSucceeded hook; every non-success outcome leaves
// the cart intact so the user can retry.
func (s *Service) HandleEvent(ctx context.Context, ev payment.Event) (payment.Status, error) {
	view, viewErr := s.machine.Current()

	status, err := s.machine.HandleEvent(ctx, ev)

	// Best-effort status report; the user's recovery path never blocks
	// on it.
	if viewErr == nil && status.Terminal() {
		if upErr := s.orders.UpdateStatus(ctx, view.OrderID, orderStatusFor(status)); upErr != nil {
			s.lg.Warn("Order status update failed",
				zap.String("order_id", view.OrderID),
				zap.Error(upErr),
			)
		}
	}
	return status, err
}

// orderStatusFor maps a terminal payment status to the order status
// reported to the order service.
func orderStatusFor(st payment.Status) order.OrderStatus {
	switch st {
	case payment.StatusSucceeded:
		return order.StatusPaid
	case payment.StatusTimedOut:
		return order.StatusExpired
	case payment.StatusCancelled:
		return order.StatusCancelled
	default:
		return order.StatusFailed
	}
}

// SessionState returns the active payment session for rendering.
func (s *Service) SessionState() (payment.View, error) {
	return s.machine.Current()
}
