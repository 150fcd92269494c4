package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mock implementations ---

// gatedRemoteCart blocks every Fetch until the gate channel is closed,
// so tests can hold a sync pass in flight.
type gatedRemoteCart struct {
	inner *mockRemoteCart
	gate  chan struct{}
}

func (g *gatedRemoteCart) Fetch(ctx context.Context, userID string) ([]Line, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.Fetch(ctx, userID)
}

func (g *gatedRemoteCart) AddItem(ctx context.Context, userID, productID string, qty int) error {
	return g.inner.AddItem(ctx, userID, productID, qty)
}

func (g *gatedRemoteCart) RemoveItem(ctx context.Context, userID, productID string) error {
	return g.inner.RemoveItem(ctx, userID, productID)
}

func (g *gatedRemoteCart) Clear(ctx context.Context, userID string) error {
	return g.inner.Clear(ctx, userID)
}

// --- Helpers ---

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sync pass did not settle in time")
	}
}

func newSyncFixture(t *testing.T) (*Store, *mockStockOracle, *mockRemoteCart) {
	t.Helper()
	store := NewStore()
	stock := newStockOracle()
	remote := newRemoteCart()
	return store, stock, remote
}

// --- Tests ---

func TestSynchronizer_EmptyCartAdoptsOwnedCart(t *testing.T) {
	store, stock, remote := newSyncFixture(t)
	stock.set("p1", 10, true)
	remote.seed("user-1", "p1", 2)

	summaries := 0
	syncer := NewSynchronizer(store, NewMerger(stock, remote), zap.NewNop(), func(Summary) {
		summaries++
	})

	done := syncer.Start(context.Background(), "user-1")
	waitDone(t, done)

	// Logging in with an empty anonymous cart still runs the pass: the
	// fetch-and-replace pulls down the server-held cart, which is how a
	// second device sees what the user already owns.
	snap := store.Snapshot()
	assert.Equal(t, SyncIdle, snap.SyncStatus)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "p1", snap.Lines[0].ProductID)
	assert.Equal(t, 2, snap.Lines[0].Quantity)

	// Nothing was merged, so no toast.
	assert.Equal(t, 0, summaries)
}

func TestSynchronizer_SuccessfulPassReplacesCart(t *testing.T) {
	store, stock, remote := newSyncFixture(t)
	stock.set("p1", 10, true)
	stock.set("p2", 10, true)
	remote.seed("user-1", "p2", 1)

	_, err := store.AddLine(testProduct("p1", "10.00", 10), 2)
	require.NoError(t, err)

	var got Summary
	syncer := NewSynchronizer(store, NewMerger(stock, remote), zap.NewNop(), func(s Summary) {
		got = s
	})

	done := syncer.Start(context.Background(), "user-1")
	waitDone(t, done)

	snap := store.Snapshot()
	assert.Equal(t, SyncIdle, snap.SyncStatus)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, Summary{Synced: 1, Failed: 0}, got)

	// Local view now mirrors the server cart: the merged line plus the
	// one that was already owned.
	require.Len(t, snap.Lines, 2)
	byID := make(map[string]int)
	for _, l := range snap.Lines {
		byID[l.ProductID] = l.Quantity
	}
	assert.Equal(t, 2, byID["p1"])
	assert.Equal(t, 1, byID["p2"])
}

func TestSynchronizer_TotalFailureRecordsLastError(t *testing.T) {
	store, stock, remote := newSyncFixture(t)
	stock.set("p1", 10, true)
	remote.fetchErr = []error{errors.New("cart service down")}

	_, err := store.AddLine(testProduct("p1", "10.00", 10), 2)
	require.NoError(t, err)

	syncer := NewSynchronizer(store, NewMerger(stock, remote), zap.NewNop(), nil)
	done := syncer.Start(context.Background(), "user-1")
	waitDone(t, done)

	snap := store.Snapshot()
	assert.Equal(t, SyncIdle, snap.SyncStatus)
	assert.Contains(t, snap.LastError, "cart service down")
	// The anonymous lines survive so the pass can be retried.
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "p1", snap.Lines[0].ProductID)
}

func TestSynchronizer_CancelDiscardsInFlightResult(t *testing.T) {
	store, stock, remote := newSyncFixture(t)
	stock.set("p1", 10, true)
	gated := &gatedRemoteCart{inner: remote, gate: make(chan struct{})}

	_, err := store.AddLine(testProduct("p1", "10.00", 10), 2)
	require.NoError(t, err)
	before := store.Snapshot()

	syncer := NewSynchronizer(store, NewMerger(stock, gated), zap.NewNop(), func(Summary) {
		t.Error("summary emitted for a cancelled pass")
	})

	done := syncer.Start(context.Background(), "user-1")
	syncer.Cancel()
	close(gated.gate)
	waitDone(t, done)

	// Nothing from the stale pass reached the store.
	snap := store.Snapshot()
	assert.Equal(t, before.Lines, snap.Lines)
	assert.True(t, before.Total.Equal(snap.Total))
}

func TestSynchronizer_SecondStartSupersedesFirst(t *testing.T) {
	store, stock, remote := newSyncFixture(t)
	stock.set("p1", 10, true)
	gated := &gatedRemoteCart{inner: remote, gate: make(chan struct{})}

	_, err := store.AddLine(testProduct("p1", "10.00", 10), 2)
	require.NoError(t, err)

	syncer := NewSynchronizer(store, NewMerger(stock, gated), zap.NewNop(), nil)

	first := syncer.Start(context.Background(), "user-1")

	// A newer pass bumps the generation, so the first result must be
	// discarded even though its context was never cancelled directly.
	second := syncer.Start(context.Background(), "user-1")

	close(gated.gate)
	waitDone(t, first)
	waitDone(t, second)

	assert.Equal(t, SyncIdle, store.Snapshot().SyncStatus)
}

func TestSynchronizer_SetsStatusWhileSyncing(t *testing.T) {
	store, stock, remote := newSyncFixture(t)
	stock.set("p1", 10, true)
	gated := &gatedRemoteCart{inner: remote, gate: make(chan struct{})}

	_, err := store.AddLine(testProduct("p1", "10.00", 10), 2)
	require.NoError(t, err)

	syncer := NewSynchronizer(store, NewMerger(stock, gated), zap.NewNop(), nil)
	done := syncer.Start(context.Background(), "user-1")

	assert.Equal(t, SyncSyncing, store.Snapshot().SyncStatus)

	close(gated.gate)
	waitDone(t, done)
	assert.Equal(t, SyncIdle, store.Snapshot().SyncStatus)
}

func TestSynchronizer_StartCancelRaceLeavesIdle(t *testing.T) {
	// A logout racing a login must never leave the freshly reset
	// anonymous cart marked syncing: the status flip happens inside
	// Start's generation critical section, so whichever side runs last
	// settles on idle.
	for range 50 {
		store, stock, remote := newSyncFixture(t)
		stock.set("p1", 10, true)

		_, err := store.AddLine(testProduct("p1", "10.00", 10), 1)
		require.NoError(t, err)

		syncer := NewSynchronizer(store, NewMerger(stock, remote), zap.NewNop(), nil)

		var wg sync.WaitGroup
		var done <-chan struct{}
		wg.Add(2)
		go func() {
			defer wg.Done()
			done = syncer.Start(context.Background(), "user-1")
		}()
		go func() {
			defer wg.Done()
			syncer.Cancel()
			store.ResetAnonymous()
		}()
		wg.Wait()
		waitDone(t, done)

		assert.Equal(t, SyncIdle, store.Snapshot().SyncStatus)
	}
}

func TestSynchronizer_StartDoesNotBlockCaller(t *testing.T) {
	store, stock, remote := newSyncFixture(t)
	stock.set("p1", 10, true)
	gated := &gatedRemoteCart{inner: remote, gate: make(chan struct{})}

	_, err := store.AddLine(testProduct("p1", "10.00", 10), 2)
	require.NoError(t, err)

	syncer := NewSynchronizer(store, NewMerger(stock, gated), zap.NewNop(), nil)

	start := time.Now()
	done := syncer.Start(context.Background(), "user-1")
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "Start must return before the pass completes")

	// The cart stays interactive while the pass is in flight.
	_, err = store.AddLine(testProduct("p9", "1.00", 10), 1)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("21.00").Equal(store.Snapshot().Total))

	close(gated.gate)
	waitDone(t, done)
}
