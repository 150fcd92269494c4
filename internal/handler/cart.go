package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/pawmart/cart-engine/internal/domain/cart"
	"github.com/pawmart/cart-engine/internal/domain/product"
)

// ListProducts returns the catalog with live stock.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
					e.Field("price", func(e *jx.Encoder) { encodeDecimal(e, p.Price) })
					e.Field("currency", func(e *jx.Encoder) { e.Str(p.Currency) })
					e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
					e.Field("stock", func(e *jx.Encoder) { e.Int(p.Stock) })
					e.Field("active", func(e *jx.Encoder) { e.Bool(p.Active) })
				})
			}
		})
	})
}

// GetCart returns the session's cart snapshot.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSnapshot(e, eng.Cart())
	})
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// AddItem adds units of a product to the cart, clamped to live stock.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := eng.AddItem(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		writeCartError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("added", func(e *jx.Encoder) { e.Int(res.Added) })
			e.Field("clamped", func(e *jx.Encoder) { e.Bool(res.Clamped) })
			e.Field("cart", func(e *jx.Encoder) { encodeSnapshot(e, eng.Cart()) })
		})
	})
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// SetQuantity sets a line's quantity; zero removes the line.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}

	var req setQuantityRequest
	if !decode(w, r, &req) {
		return
	}

	if err := eng.SetQuantity(r.Context(), r.PathValue("productID"), req.Quantity); err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSnapshot(e, eng.Cart())
	})
}

// RemoveItem deletes a line from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := eng.RemoveItem(r.Context(), r.PathValue("productID")); err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSnapshot(e, eng.Cart())
	})
}

type loginRequest struct {
	UserID string `json:"userId"`
}

// Login transitions the session's cart to owned and starts the
// background merge. The response returns immediately; merge progress
// is visible via syncStatus and the sync summary endpoint.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	// The merge outlives this request; it is tied to the server
	// lifecycle, not the HTTP request context.
	if err := eng.SignIn(context.WithoutCancel(r.Context()), req.UserID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSnapshot(e, eng.Cart())
	})
}

// Logout cancels any in-flight sync and resets to a fresh anonymous
// cart.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}
	eng.SignOut()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSnapshot(e, eng.Cart())
	})
}

// SyncSummary returns and clears the latest merge summary, for a
// single toast notification.
func (h *Handler) SyncSummary(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}

	summary, present := eng.CollectSummary()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("present", func(e *jx.Encoder) { e.Bool(present) })
			if present {
				e.Field("synced", func(e *jx.Encoder) { e.Int(summary.Synced) })
				e.Field("failed", func(e *jx.Encoder) { e.Int(summary.Failed) })
			}
		})
	})
}

// writeCartError maps cart mutation errors to distinguishable
// responses.
func writeCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusUnprocessableEntity, "product not found")
	case errors.Is(err, cart.ErrOutOfStock):
		writeError(w, http.StatusConflict, "product out of stock")
	case errors.Is(err, cart.ErrInactiveProduct):
		writeError(w, http.StatusUnprocessableEntity, "product is not available")
	case errors.Is(err, cart.ErrLineNotFound):
		writeError(w, http.StatusNotFound, "cart line not found")
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "quantity must be greater than 0")
	default:
		writeError(w, http.StatusInternalServerError, "cart operation failed")
	}
}
