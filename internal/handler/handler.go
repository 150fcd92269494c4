// Package handler exposes the cart/checkout engine over JSON HTTP.
// Handlers are thin: decode the intent, dispatch into the session's
// engine, encode the snapshot or session view it returns.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/pawmart/cart-engine/internal/domain/cart"
	"github.com/pawmart/cart-engine/internal/domain/payment"
	"github.com/pawmart/cart-engine/internal/domain/product"
	"github.com/pawmart/cart-engine/internal/engine"
)

// sessionHeader carries the UI session identifier. The storefront
// issues it once per browser session.
const sessionHeader = "X-Session-ID"

// Handler serves the engine API.
type Handler struct {
	sessions *engine.Manager
	products product.Repository
}

// New constructs a Handler.
func New(sessions *engine.Manager, products product.Repository) *Handler {
	return &Handler{
		sessions: sessions,
		products: products,
	}
}

// Register installs all API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)

	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("POST /api/cart/items", h.AddItem)
	mux.HandleFunc("PUT /api/cart/items/{productID}", h.SetQuantity)
	mux.HandleFunc("DELETE /api/cart/items/{productID}", h.RemoveItem)

	mux.HandleFunc("POST /api/session/login", h.Login)
	mux.HandleFunc("POST /api/session/logout", h.Logout)
	mux.HandleFunc("GET /api/sync/summary", h.SyncSummary)

	mux.HandleFunc("POST /api/checkout", h.BeginCheckout)
	mux.HandleFunc("GET /api/payment/session", h.PaymentState)
	mux.HandleFunc("POST /api/payment/callback", h.PaymentCallback)
	mux.HandleFunc("POST /api/payment/failure", h.PaymentFailure)
	mux.HandleFunc("POST /api/payment/cancel", h.PaymentCancel)
}

// session resolves the engine for the request's session ID. A missing
// header is a client error.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing "+sessionHeader+" header")
		return nil, false
	}
	return h.sessions.Get(id), true
}

// decode reads a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeJSON encodes the jx document built by f.
func writeJSON(w http.ResponseWriter, status int, f func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	f(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Float64(d.InexactFloat64())
}

func encodeSnapshot(e *jx.Encoder, snap cart.Snapshot) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range snap.Lines {
					encodeLine(e, l)
				}
			})
		})
		e.Field("total", func(e *jx.Encoder) { encodeDecimal(e, snap.Total) })
		e.Field("owned", func(e *jx.Encoder) { e.Bool(!snap.Ownership.Anonymous()) })
		if !snap.Ownership.Anonymous() {
			e.Field("userId", func(e *jx.Encoder) { e.Str(snap.Ownership.UserID) })
		}
		e.Field("syncStatus", func(e *jx.Encoder) { e.Str(string(snap.SyncStatus)) })
		if snap.LastError != "" {
			e.Field("lastError", func(e *jx.Encoder) { e.Str(snap.LastError) })
		}
	})
}

func encodeLine(e *jx.Encoder, l cart.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("productId", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
		e.Field("unitPrice", func(e *jx.Encoder) { encodeDecimal(e, l.UnitPrice) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(l.Currency) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("image", func(e *jx.Encoder) { e.Str(l.Image.Thumbnail) })
	})
}

func encodeSessionView(e *jx.Encoder, v payment.View) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Str(v.OrderID) })
		e.Field("providerOrderId", func(e *jx.Encoder) { e.Str(v.ProviderOrderID) })
		e.Field("amount", func(e *jx.Encoder) { encodeDecimal(e, v.Amount) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(v.Currency) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(v.Status)) })
		e.Field("expiresAt", func(e *jx.Encoder) { e.Str(v.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00")) })
	})
}
