package cart

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/pawmart/cart-engine/internal/domain/product"
)

// ErrDuplicateAttempt is returned when a merge is invoked again with an
// idempotency key that already completed.
var ErrDuplicateAttempt = errors.New("merge attempt already applied")

// RemoteCart is the server-held cart tied to an authenticated user.
// Removals and the post-purchase clear propagate through it so the
// owned cart does not resurrect lines the user already dropped or
// bought.
type RemoteCart interface {
	Fetch(ctx context.Context, userID string) ([]Line, error)
	AddItem(ctx context.Context, userID, productID string, qty int) error
	RemoveItem(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// MergeResult aggregates the per-line outcomes of one merge attempt and
// the authoritative owned cart fetched after all additions.
type MergeResult struct {
	Outcomes []Outcome
	// Lines is the final server-held cart, to replace the local view.
	Lines []Line
}

// Synced counts lines whose granted quantity was applied in full or in
// part; Failed counts lines that yielded nothing.
func (r *MergeResult) Synced() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Granted > 0 {
			n++
		}
	}
	return n
}

func (r *MergeResult) Failed() int {
	return len(r.Outcomes) - r.Synced()
}

// Merger drives the one-time transfer of an anonymous cart into the
// owned cart at login, reconciling each line against live stock and the
// quantities already held server-side.
type Merger struct {
	stock  product.StockOracle
	remote RemoteCart

	mu      sync.Mutex
	applied map[string]struct{} // completed idempotency keys
}

// NewMerger creates a Merger over the given collaborators.
func NewMerger(stock product.StockOracle, remote RemoteCart) *Merger {
	return &Merger{
		stock:   stock,
		remote:  remote,
		applied: make(map[string]struct{}),
	}
}

// Merge reconciles every anonymous line into userID's owned cart and
// returns the collected outcomes plus the final server cart.
//
// Per-line failures are recovered locally: one product being
// unavailable never aborts the batch. The whole attempt fails only
// when the owned cart cannot be fetched (before or after the
// additions); in that case the caller must preserve the anonymous cart
// so a retry is possible.
//
// key identifies the attempt: a duplicate invocation with a key that
// already completed short-circuits with ErrDuplicateAttempt instead of
// re-applying the additions. A failed attempt releases its key.
func (m *Merger) Merge(ctx context.Context, key, userID string, lines []Line) (*MergeResult, error) {
	if !m.begin(key) {
		return nil, ErrDuplicateAttempt
	}

	res, err := m.run(ctx, userID, lines)
	if err != nil {
		m.release(key)
		return nil, err
	}
	return res, nil
}

func (m *Merger) run(ctx context.Context, userID string, lines []Line) (*MergeResult, error) {
	owned, err := m.remote.Fetch(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch owned cart")
	}

	ownedQty := make(map[string]int, len(owned))
	for _, l := range owned {
		ownedQty[l.ProductID] = l.Quantity
	}

	// Per-line reconciliation and addition run concurrently: lines are
	// independent per product (ProductID is unique within a cart). The
	// group funcs never return an error — partial failure is normal
	// here, not exceptional.
	outcomes := make([]Outcome, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	for i, line := range lines {
		g.Go(func() error {
			outcomes[i] = m.mergeLine(gctx, userID, line, ownedQty[line.ProductID])
			return nil
		})
	}
	_ = g.Wait()

	// Authoritative refresh strictly after all additions have joined.
	final, err := m.remote.Fetch(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "refresh owned cart")
	}

	return &MergeResult{Outcomes: outcomes, Lines: final}, nil
}

// mergeLine reconciles one anonymous line against live stock and adds
// the granted units to the owned cart.
func (m *Merger) mergeLine(ctx context.Context, userID string, line Line, serverQty int) Outcome {
	avail, err := m.stock.GetAvailability(ctx, line.ProductID)
	if err != nil {
		return Unavailable(line.ProductID, line.Quantity)
	}
	if !avail.Active {
		return Unavailable(line.ProductID, line.Quantity)
	}

	out := Reconcile(line.ProductID, line.Quantity, serverQty, avail.Stock)
	if out.Granted == 0 {
		return out
	}

	if err := m.remote.AddItem(ctx, userID, line.ProductID, out.Granted); err != nil {
		// The addition itself failed; report the line as unavailable so
		// the summary counts it as failed.
		return Unavailable(line.ProductID, line.Quantity)
	}
	return out
}

// begin claims key. It returns false when the key already completed.
func (m *Merger) begin(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.applied[key]; ok {
		return false
	}
	m.applied[key] = struct{}{}
	return true
}

// release forgets key so a retry of a failed attempt can run again.
func (m *Merger) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.applied, key)
}
