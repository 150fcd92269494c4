package cart

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/pawmart/cart-engine/internal/domain/product"
)

// Store is the authoritative in-process representation of one cart.
// All mutations are serialized through its entry points; callers only
// dispatch intents and read snapshots. The store never calls remote
// services itself — merging owned carts is the orchestrator's job.
type Store struct {
	mu         sync.Mutex
	lines      []Line // insertion order, ProductID unique
	total      decimal.Decimal
	ownership  Ownership
	syncStatus SyncStatus
	lastError  string
}

// NewStore creates an empty anonymous cart.
func NewStore() *Store {
	return &Store{
		total:      decimal.Zero,
		syncStatus: SyncIdle,
	}
}

// AddResult reports what AddLine did with the requested quantity.
type AddResult struct {
	// Added is the number of units actually placed in the cart.
	Added int
	// Clamped is true when stock limited the addition below the request.
	Clamped bool
}

// AddLine adds qty units of p to the cart, clamped to the stock
// observed at add time. If a line for the product already exists the
// quantities merge (ProductID is unique within a cart); when the
// existing quantity already equals stock the call is a no-op and
// ErrOutOfStock is returned. A new line is only created when stock is
// positive and the product is active.
func (s *Store) AddLine(p product.Product, qty int) (AddResult, error) {
	if qty <= 0 {
		return AddResult{}, ErrInvalidQuantity
	}
	if !p.Active {
		return AddResult{}, ErrInactiveProduct
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(p.ID); i >= 0 {
		existing := s.lines[i].Quantity
		if existing >= p.Stock {
			return AddResult{}, ErrOutOfStock
		}
		newQty := existing + qty
		clamped := false
		if newQty > p.Stock {
			newQty = p.Stock
			clamped = true
		}
		s.lines[i].Quantity = newQty
		s.recompute()
		return AddResult{Added: newQty - existing, Clamped: clamped}, nil
	}

	if p.Stock <= 0 {
		return AddResult{}, ErrOutOfStock
	}
	added := qty
	clamped := false
	if added > p.Stock {
		added = p.Stock
		clamped = true
	}
	s.lines = append(s.lines, Line{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Currency:  p.Currency,
		Quantity:  added,
		Image:     p.Image,
	})
	s.recompute()
	return AddResult{Added: added, Clamped: clamped}, nil
}

// SetQuantity sets the quantity of an existing line. Setting zero
// removes the line.
func (s *Store) SetQuantity(productID string, qty int) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	if qty == 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
	} else {
		s.lines[i].Quantity = qty
	}
	s.recompute()
	return nil
}

// RemoveLine removes the line for productID, if present.
func (s *Store) RemoveLine(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	s.recompute()
	return nil
}

// Clear removes all lines. Ownership is unchanged.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.recompute()
}

// Snapshot returns a read-only copy of the cart state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]Line, len(s.lines))
	copy(lines, s.lines)
	return Snapshot{
		Lines:      lines,
		Total:      s.total,
		Ownership:  s.ownership,
		SyncStatus: s.syncStatus,
		LastError:  s.lastError,
	}
}

// Ownership returns the current ownership of the cart.
func (s *Store) Ownership() Ownership {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownership
}

// SetOwner marks the cart as owned by userID. The anonymous-to-owned
// transition happens exactly once per login; callers guard against
// re-triggering.
func (s *Store) SetOwner(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownership = Ownership{UserID: userID}
}

// ResetAnonymous replaces the cart with a fresh empty anonymous cart.
// Used on logout; the server-held owned cart is left untouched.
func (s *Store) ResetAnonymous() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.ownership = Ownership{}
	s.syncStatus = SyncIdle
	s.lastError = ""
	s.recompute()
}

// Replace overwrites the cart lines with an authoritative server view.
// Used by the synchronizer's final refresh; incremental patching would
// compound local drift.
func (s *Store) Replace(lines []Line) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Quantity >= 1 {
			s.lines = append(s.lines, l)
		}
	}
	s.recompute()
}

// SetSyncStatus updates the sync status and, when leaving the syncing
// state, records the last error (empty string clears it).
func (s *Store) SetSyncStatus(st SyncStatus, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncStatus = st
	s.lastError = lastError
}

// recompute refreshes the cached total. Callers must hold s.mu.
func (s *Store) recompute() {
	s.total = computeTotal(s.lines)
}

// indexOf returns the index of the line for productID, or -1.
// Callers must hold s.mu.
func (s *Store) indexOf(productID string) int {
	for i := range s.lines {
		if s.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}
