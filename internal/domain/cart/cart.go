// Package cart implements the cart ownership and consistency engine:
// the in-process cart store, the stock-aware quantity reconciler, the
// anonymous-to-owned merge orchestrator, and the background
// synchronizer that runs merges off the interactive path.
package cart

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/pawmart/cart-engine/internal/domain/product"
)

// Sentinel errors for cart mutations.
var (
	ErrOutOfStock      = errors.New("product out of stock")
	ErrInactiveProduct = errors.New("product is not active")
	ErrLineNotFound    = errors.New("cart line not found")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Line is a single cart line. Quantity is always >= 1: a line that
// would reach zero is removed instead of persisted at zero.
type Line struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Currency  string
	Quantity  int
	Image     product.Image
}

// Subtotal returns UnitPrice * Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Ownership identifies whether a cart is held anonymously client-side
// or tied to an authenticated user on the server.
type Ownership struct {
	UserID string
}

// Anonymous reports whether the cart has no owning user.
func (o Ownership) Anonymous() bool {
	return o.UserID == ""
}

// SyncStatus indicates whether a background synchronization pass is
// currently running against this cart.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
)

// Snapshot is a read-only copy of the cart handed to the UI. Mutating a
// snapshot has no effect on the store.
type Snapshot struct {
	Lines      []Line
	Total      decimal.Decimal
	Ownership  Ownership
	SyncStatus SyncStatus
	LastError  string
}

// IsEmpty reports whether the snapshot contains no lines.
func (s Snapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// computeTotal sums unit price * quantity across lines. Totals are
// always recomputed from scratch, never incrementally adjusted.
func computeTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
