// Package engine binds one cart store, background synchronizer, and
// checkout flow per UI session, and manages the set of live sessions.
// The UI dispatches intents into an Engine and renders the snapshots
// and session views it returns.
package engine

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/pawmart/cart-engine/internal/domain/cart"
	"github.com/pawmart/cart-engine/internal/domain/checkout"
	"github.com/pawmart/cart-engine/internal/domain/order"
	"github.com/pawmart/cart-engine/internal/domain/payment"
	"github.com/pawmart/cart-engine/internal/domain/product"
)

// ErrNotSignedIn is returned for operations that require an owned cart.
var ErrNotSignedIn = errors.New("not signed in")

// Engine is the cart/checkout engine for a single UI session.
type Engine struct {
	products product.Repository
	remote   cart.RemoteCart
	store    *cart.Store
	syncer   *cart.Synchronizer
	checkout *checkout.Service
	lg       *zap.Logger

	mu          sync.Mutex
	userID      string
	lastSummary *cart.Summary
}

// newEngine wires one engine instance. The payment machine's success
// hook empties this engine's cart, locally and server-side; the merge
// summary is retained for the UI to collect as a toast.
func newEngine(deps Deps, lg *zap.Logger, opts []payment.Option) *Engine {
	e := &Engine{
		products: deps.Products,
		remote:   deps.RemoteCarts,
		store:    cart.NewStore(),
		lg:       lg,
	}

	merger := cart.NewMerger(deps.Products, deps.RemoteCarts)
	e.syncer = cart.NewSynchronizer(e.store, merger, lg, func(s cart.Summary) {
		e.mu.Lock()
		e.lastSummary = &s
		e.mu.Unlock()
	})

	machine := payment.NewMachine(deps.PaymentProvider, payment.Hooks{
		OnSucceeded: e.completePurchase,
	}, lg, opts...)
	e.checkout = checkout.New(e.store, deps.Orders, machine, lg)

	return e
}

// Cart returns a read-only snapshot of the cart.
func (e *Engine) Cart() cart.Snapshot {
	return e.store.Snapshot()
}

// AddItem looks up the product and adds qty units to the cart, clamped
// to the stock observed at add time.
func (e *Engine) AddItem(ctx context.Context, productID string, qty int) (cart.AddResult, error) {
	p, err := e.products.GetByID(ctx, productID)
	if err != nil {
		return cart.AddResult{}, errors.Wrap(err, "look up product")
	}
	return e.store.AddLine(*p, qty)
}

// SetQuantity sets the quantity of an existing line; zero removes it,
// server-side too for a signed-in session.
func (e *Engine) SetQuantity(ctx context.Context, productID string, qty int) error {
	if err := e.store.SetQuantity(productID, qty); err != nil {
		return err
	}
	if qty == 0 {
		e.dropRemoteLine(ctx, productID)
	}
	return nil
}

// RemoveItem removes a line from the cart, and from the server-held
// owned cart for a signed-in session.
func (e *Engine) RemoveItem(ctx context.Context, productID string) error {
	if err := e.store.RemoveLine(productID); err != nil {
		return err
	}
	e.dropRemoteLine(ctx, productID)
	return nil
}

// dropRemoteLine removes productID from the owned cart so the next
// login does not resurrect it. Best-effort: the local removal already
// happened and stays.
func (e *Engine) dropRemoteLine(ctx context.Context, productID string) {
	e.mu.Lock()
	userID := e.userID
	e.mu.Unlock()
	if userID == "" {
		return
	}

	if err := e.remote.RemoveItem(ctx, userID, productID); err != nil {
		e.lg.Warn("Owned cart line removal failed",
			zap.String("user_id", userID),
			zap.String("product_id", productID),
			zap.Error(err),
		)
	}
}

// completePurchase empties the cart after a verified payment: the local
// store and, for a signed-in session, the server-held owned cart, so
// purchased lines do not resurface at the next login.
func (e *Engine) completePurchase(ctx context.Context) {
	e.store.Clear()

	e.mu.Lock()
	userID := e.userID
	e.mu.Unlock()
	if userID == "" {
		return
	}

	if err := e.remote.Clear(ctx, userID); err != nil {
		e.lg.Warn("Owned cart clear failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// ClearCart empties the cart.
func (e *Engine) ClearCart() {
	e.store.Clear()
}

// SignIn transitions the cart from anonymous to owned and kicks off
// the background merge of any anonymous lines into the user's owned
// cart. The transition happens at most once per login: signing in
// again with the same user is a no-op and a different user is rejected
// until SignOut.
func (e *Engine) SignIn(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id required")
	}

	e.mu.Lock()
	switch e.userID {
	case "":
		e.userID = userID
	case userID:
		e.mu.Unlock()
		return nil
	default:
		e.mu.Unlock()
		return errors.Errorf("session already owned by another user")
	}
	e.lastSummary = nil
	e.mu.Unlock()

	e.store.SetOwner(userID)
	// Runs in the background; login never waits on stock or cart
	// round-trips.
	e.syncer.Start(ctx, userID)
	return nil
}

// SignOut cancels any in-flight sync and resets to a fresh empty
// anonymous cart. The server-held owned cart is left untouched.
func (e *Engine) SignOut() {
	e.mu.Lock()
	e.userID = ""
	e.lastSummary = nil
	e.mu.Unlock()

	e.syncer.Cancel()
	e.store.ResetAnonymous()
}

// CollectSummary returns and clears the latest merge summary, if one
// arrived since the last call. The UI renders it as a single toast.
func (e *Engine) CollectSummary() (cart.Summary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastSummary == nil {
		return cart.Summary{}, false
	}
	s := *e.lastSummary
	e.lastSummary = nil
	return s, true
}

// BeginCheckout creates the order and opens a payment session.
func (e *Engine) BeginCheckout(ctx context.Context, shipping, billing order.Address, method string) (*checkout.BeginResult, error) {
	e.mu.Lock()
	userID := e.userID
	e.mu.Unlock()
	if userID == "" {
		return nil, ErrNotSignedIn
	}

	return e.checkout.Begin(ctx, checkout.BeginRequest{
		UserID:          userID,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		ShippingMethod:  method,
	})
}

// HandlePaymentEvent routes a provider callback into the session
// machine.
func (e *Engine) HandlePaymentEvent(ctx context.Context, ev payment.Event) (payment.Status, error) {
	return e.checkout.HandleEvent(ctx, ev)
}

// PaymentState returns the active payment session for rendering.
func (e *Engine) PaymentState() (payment.View, error) {
	return e.checkout.SessionState()
}
