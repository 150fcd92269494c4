package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/pawmart/cart-engine/internal/domain/checkout"
	"github.com/pawmart/cart-engine/internal/domain/order"
	"github.com/pawmart/cart-engine/internal/domain/payment"
	"github.com/pawmart/cart-engine/internal/engine"
)

type addressJSON struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

func (a addressJSON) toDomain() order.Address {
	return order.Address{
		Name:       a.Name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

type checkoutRequest struct {
	ShippingAddress addressJSON `json:"shippingAddress"`
	BillingAddress  addressJSON `json:"billingAddress"`
	ShippingMethod  string      `json:"shippingMethod"`
}

// BeginCheckout creates the order and opens a payment session for the
// tax-inclusive total.
func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := eng.BeginCheckout(r.Context(),
		req.ShippingAddress.toDomain(),
		req.BillingAddress.toDomain(),
		req.ShippingMethod,
	)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNotSignedIn):
			writeError(w, http.StatusUnauthorized, "sign in before checkout")
		case errors.Is(err, checkout.ErrEmptyCart):
			writeError(w, http.StatusBadRequest, "cart is empty")
		default:
			writeError(w, http.StatusBadGateway, "could not start checkout")
		}
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orderId", func(e *jx.Encoder) { e.Str(res.Order.OrderID) })
			e.Field("total", func(e *jx.Encoder) { encodeDecimal(e, res.Order.Total) })
			e.Field("currency", func(e *jx.Encoder) { e.Str(res.Order.Currency) })
			e.Field("taxes", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, t := range res.Order.Taxes {
						e.Obj(func(e *jx.Encoder) {
							e.Field("name", func(e *jx.Encoder) { e.Str(t.Name) })
							e.Field("amount", func(e *jx.Encoder) { encodeDecimal(e, t.Amount) })
						})
					}
				})
			})
			e.Field("session", func(e *jx.Encoder) { encodeSessionView(e, res.Session) })
		})
	})
}

// PaymentState returns the active payment session.
func (h *Handler) PaymentState(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}

	view, err := eng.PaymentState()
	if err != nil {
		writeError(w, http.StatusNotFound, "no active payment session")
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSessionView(e, view)
	})
}

type paymentCallbackRequest struct {
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

// PaymentCallback handles the provider's success callback: the session
// moves to verifying and settles on the verification result.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req paymentCallbackRequest
	if !decode(w, r, &req) {
		return
	}
	h.handleEvent(w, r, payment.Success{
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
}

type paymentFailureRequest struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// PaymentFailure handles a provider-reported payment failure.
func (h *Handler) PaymentFailure(w http.ResponseWriter, r *http.Request) {
	var req paymentFailureRequest
	if !decode(w, r, &req) {
		return
	}
	h.handleEvent(w, r, payment.Failure{Code: req.Code, Reason: req.Reason})
}

// PaymentCancel handles an explicit user dismissal of the payment UI.
func (h *Handler) PaymentCancel(w http.ResponseWriter, r *http.Request) {
	h.handleEvent(w, r, payment.Dismissed{})
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request, ev payment.Event) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}

	status, err := eng.HandlePaymentEvent(r.Context(), ev)
	// An error alongside a terminal status is a settled non-success
	// outcome (cancelled, expired, verification mismatch), not a
	// processing failure.
	if err != nil && !status.Terminal() {
		switch {
		case errors.Is(err, payment.ErrNoActiveSession):
			writeError(w, http.StatusNotFound, "no active payment session")
		case errors.Is(err, payment.ErrSessionTerminal):
			writeError(w, http.StatusConflict, "payment session already settled")
		default:
			writeError(w, http.StatusBadGateway, "payment processing failed")
		}
		return
	}

	// Distinguishable outcomes per taxonomy entry so the UI can give
	// different retry guidance for timeout, cancel, and verification
	// failure.
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("status", func(e *jx.Encoder) { e.Str(string(status)) })
			e.Field("message", func(e *jx.Encoder) { e.Str(outcomeMessage(status, err)) })
		})
	})
}

func outcomeMessage(st payment.Status, err error) string {
	switch st {
	case payment.StatusSucceeded:
		return "payment confirmed"
	case payment.StatusCancelled:
		return "payment cancelled; your cart is unchanged"
	case payment.StatusTimedOut:
		return "payment session expired; please try again"
	case payment.StatusFailed:
		if errors.Is(err, payment.ErrVerificationMismatch) {
			return "payment could not be verified; if you were charged, it will be reconciled"
		}
		return "payment failed; please try again"
	default:
		return string(st)
	}
}
