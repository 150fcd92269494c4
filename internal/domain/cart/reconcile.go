package cart

// Reason classifies the disposition of a reconciled quantity.
type Reason string

const (
	// ReasonFull means the full requested quantity was granted.
	ReasonFull Reason = "full"
	// ReasonPartialStock means only part of the request fit the
	// remaining stock.
	ReasonPartialStock Reason = "partial_stock"
	// ReasonOutOfStock means no units could be granted.
	ReasonOutOfStock Reason = "out_of_stock"
	// ReasonProductUnavailable means the product lookup itself failed;
	// distinct from zero stock.
	ReasonProductUnavailable Reason = "product_unavailable"
)

// Outcome is the transient per-line result of a reconciliation. It is
// collected into merge summaries and never persisted.
type Outcome struct {
	ProductID string
	Requested int
	Granted   int
	// Remaining is the stock headroom observed at reconcile time. Only
	// meaningful for ReasonPartialStock.
	Remaining int
	Reason    Reason
}

// Reconcile computes the admissible quantity delta for one product:
// given the requested quantity, the quantity already present on the
// server-held cart, and live stock, it grants at most what fits the
// remaining headroom. Pure and deterministic, no I/O.
func Reconcile(productID string, requested, serverQty, liveStock int) Outcome {
	remaining := liveStock - serverQty
	if remaining < 0 {
		remaining = 0
	}

	granted := requested
	if granted > remaining {
		granted = remaining
	}

	out := Outcome{
		ProductID: productID,
		Requested: requested,
		Granted:   granted,
		Remaining: remaining,
	}
	switch {
	case remaining == 0:
		out.Reason = ReasonOutOfStock
	case granted == requested:
		out.Reason = ReasonFull
	default:
		out.Reason = ReasonPartialStock
	}
	return out
}

// Unavailable builds the outcome for a product whose availability
// lookup failed. Nothing is granted.
func Unavailable(productID string, requested int) Outcome {
	return Outcome{
		ProductID: productID,
		Requested: requested,
		Reason:    ReasonProductUnavailable,
	}
}
