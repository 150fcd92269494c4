package cart

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawmart/cart-engine/internal/domain/product"
)

// --- Helpers ---

func testProduct(id string, price string, stock int) product.Product {
	return product.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		Currency: "INR",
		Category: "test",
		Stock:    stock,
		Active:   true,
	}
}

// --- Tests ---

func TestStore_AddLine(t *testing.T) {
	s := NewStore()
	p := testProduct("p1", "10.00", 5)

	res, err := s.AddLine(p, 3)
	require.NoError(t, err)
	assert.Equal(t, AddResult{Added: 3}, res)

	snap := s.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 3, snap.Lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("30.00").Equal(snap.Total))
}

func TestStore_AddLine_ClampsToStock(t *testing.T) {
	s := NewStore()
	p := testProduct("p1", "10.00", 2)

	res, err := s.AddLine(p, 5)
	require.NoError(t, err)
	assert.Equal(t, AddResult{Added: 2, Clamped: true}, res)

	snap := s.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 2, snap.Lines[0].Quantity)
}

func TestStore_AddLine_MergesExistingLine(t *testing.T) {
	s := NewStore()
	p := testProduct("p1", "10.00", 10)

	_, err := s.AddLine(p, 2)
	require.NoError(t, err)
	res, err := s.AddLine(p, 3)
	require.NoError(t, err)
	assert.Equal(t, AddResult{Added: 3}, res)

	snap := s.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 5, snap.Lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("50.00").Equal(snap.Total))
}

func TestStore_AddLine_MergeClampsToStock(t *testing.T) {
	s := NewStore()
	p := testProduct("p1", "10.00", 4)

	_, err := s.AddLine(p, 3)
	require.NoError(t, err)

	res, err := s.AddLine(p, 5)
	require.NoError(t, err)
	assert.Equal(t, AddResult{Added: 1, Clamped: true}, res)
	assert.Equal(t, 4, s.Snapshot().Lines[0].Quantity)
}

func TestStore_AddLine_AtStockCapIsNoOp(t *testing.T) {
	s := NewStore()
	p := testProduct("p1", "10.00", 2)

	_, err := s.AddLine(p, 2)
	require.NoError(t, err)

	_, err = s.AddLine(p, 1)
	require.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 2, s.Snapshot().Lines[0].Quantity)
}

func TestStore_AddLine_ZeroStock(t *testing.T) {
	s := NewStore()
	p := testProduct("p1", "10.00", 0)

	_, err := s.AddLine(p, 1)
	require.ErrorIs(t, err, ErrOutOfStock)
	assert.True(t, s.Snapshot().IsEmpty())
}

func TestStore_AddLine_InactiveProduct(t *testing.T) {
	s := NewStore()
	p := testProduct("p1", "10.00", 5)
	p.Active = false

	_, err := s.AddLine(p, 1)
	require.ErrorIs(t, err, ErrInactiveProduct)
	assert.True(t, s.Snapshot().IsEmpty())
}

func TestStore_AddLine_InvalidQuantity(t *testing.T) {
	s := NewStore()
	p := testProduct("p1", "10.00", 5)

	_, err := s.AddLine(p, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = s.AddLine(p, -1)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestStore_SetQuantity(t *testing.T) {
	s := NewStore()
	_, err := s.AddLine(testProduct("p1", "10.00", 10), 2)
	require.NoError(t, err)

	require.NoError(t, s.SetQuantity("p1", 7))

	snap := s.Snapshot()
	assert.Equal(t, 7, snap.Lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("70.00").Equal(snap.Total))
}

func TestStore_SetQuantity_ZeroRemovesLine(t *testing.T) {
	s := NewStore()
	_, err := s.AddLine(testProduct("p1", "10.00", 10), 2)
	require.NoError(t, err)

	require.NoError(t, s.SetQuantity("p1", 0))

	snap := s.Snapshot()
	assert.True(t, snap.IsEmpty())
	assert.True(t, decimal.Zero.Equal(snap.Total))
}

func TestStore_SetQuantity_UnknownLine(t *testing.T) {
	s := NewStore()

	err := s.SetQuantity("missing", 1)
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestStore_RemoveLine(t *testing.T) {
	s := NewStore()
	_, err := s.AddLine(testProduct("p1", "10.00", 10), 1)
	require.NoError(t, err)
	_, err = s.AddLine(testProduct("p2", "20.00", 10), 1)
	require.NoError(t, err)

	require.NoError(t, s.RemoveLine("p1"))

	snap := s.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "p2", snap.Lines[0].ProductID)
	assert.True(t, decimal.RequireFromString("20.00").Equal(snap.Total))

	require.ErrorIs(t, s.RemoveLine("p1"), ErrLineNotFound)
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()
	_, err := s.AddLine(testProduct("p1", "10.00", 10), 3)
	require.NoError(t, err)
	s.SetOwner("user-1")

	s.Clear()

	snap := s.Snapshot()
	assert.True(t, snap.IsEmpty())
	assert.True(t, decimal.Zero.Equal(snap.Total))
	assert.Equal(t, "user-1", snap.Ownership.UserID)
}

func TestStore_OwnershipLifecycle(t *testing.T) {
	s := NewStore()
	assert.True(t, s.Ownership().Anonymous())

	s.SetOwner("user-1")
	assert.False(t, s.Ownership().Anonymous())
	assert.Equal(t, "user-1", s.Ownership().UserID)

	_, err := s.AddLine(testProduct("p1", "10.00", 10), 1)
	require.NoError(t, err)

	s.ResetAnonymous()
	assert.True(t, s.Ownership().Anonymous())
	assert.True(t, s.Snapshot().IsEmpty())
}

func TestStore_Replace(t *testing.T) {
	s := NewStore()
	_, err := s.AddLine(testProduct("p1", "10.00", 10), 2)
	require.NoError(t, err)

	s.Replace([]Line{
		{ProductID: "p2", Name: "Server A", UnitPrice: decimal.RequireFromString("5.00"), Quantity: 4},
		{ProductID: "p3", Name: "Server B", UnitPrice: decimal.RequireFromString("1.50"), Quantity: 0},
	})

	snap := s.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "p2", snap.Lines[0].ProductID)
	assert.True(t, decimal.RequireFromString("20.00").Equal(snap.Total))
}

func TestStore_SyncStatus(t *testing.T) {
	s := NewStore()
	assert.Equal(t, SyncIdle, s.Snapshot().SyncStatus)

	s.SetSyncStatus(SyncSyncing, "")
	assert.Equal(t, SyncSyncing, s.Snapshot().SyncStatus)

	s.SetSyncStatus(SyncIdle, "stock service unreachable")
	snap := s.Snapshot()
	assert.Equal(t, SyncIdle, snap.SyncStatus)
	assert.Equal(t, "stock service unreachable", snap.LastError)
}

func TestStore_SnapshotIsDetached(t *testing.T) {
	s := NewStore()
	_, err := s.AddLine(testProduct("p1", "10.00", 10), 2)
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Lines[0].Quantity = 99

	assert.Equal(t, 2, s.Snapshot().Lines[0].Quantity)
}

// The cached total always equals the recomputed sum of line subtotals,
// no matter what sequence of mutations produced the cart.
func TestStore_TotalConsistentAcrossRandomMutations(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	products := []product.Product{
		testProduct("p1", "3.50", 20),
		testProduct("p2", "12.00", 20),
		testProduct("p3", "0.99", 20),
		testProduct("p4", "149.00", 20),
	}

	s := NewStore()
	for i := 0; i < 500; i++ {
		p := products[rng.Intn(len(products))]
		switch rng.Intn(4) {
		case 0:
			_, _ = s.AddLine(p, 1+rng.Intn(5))
		case 1:
			_ = s.SetQuantity(p.ID, rng.Intn(6))
		case 2:
			_ = s.RemoveLine(p.ID)
		case 3:
			if rng.Intn(10) == 0 {
				s.Clear()
			}
		}

		snap := s.Snapshot()
		want := decimal.Zero
		for _, l := range snap.Lines {
			require.GreaterOrEqual(t, l.Quantity, 1)
			want = want.Add(l.Subtotal())
		}
		require.True(t, want.Equal(snap.Total),
			"total %s != recomputed %s after %d mutations", snap.Total, want, i+1)
	}
}
