package cart

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Summary is the user-visible result of a background sync pass. It is
// emitted once per pass, never per item.
type Summary struct {
	Synced int
	Failed int
}

// Synchronizer executes merge passes off the interactive path so that
// logging in never waits on network round-trips to stock or cart
// services. Sync is background-best-effort: total failure records a
// last error on the cart and nothing else.
type Synchronizer struct {
	store     *Store
	merger    *Merger
	lg        *zap.Logger
	onSummary func(Summary)

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
}

// NewSynchronizer creates a Synchronizer bound to one cart store.
// onSummary may be nil.
func NewSynchronizer(store *Store, merger *Merger, lg *zap.Logger, onSummary func(Summary)) *Synchronizer {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Synchronizer{
		store:     store,
		merger:    merger,
		lg:        lg,
		onSummary: onSummary,
	}
}

// Start launches a merge of the current anonymous lines into userID's
// owned cart and returns immediately. The returned channel closes when
// the pass has fully settled, which tests and shutdown paths can join.
// An empty anonymous cart still runs the pass: the fetch-and-replace
// adopts the server-held owned cart, which is how a second device sees
// what the user already owns.
//
// A pass started under a previous login generation whose result
// arrives after Cancel is discarded wholesale: a stale sync must never
// write to the store, not even partially.
func (s *Synchronizer) Start(ctx context.Context, userID string) <-chan struct{} {
	done := make(chan struct{})

	snap := s.store.Snapshot()

	s.mu.Lock()
	s.generation++
	gen := s.generation
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	// The status flip happens inside the critical section: a Cancel plus
	// cart reset racing this Start must not be overwritten afterwards,
	// leaving a fresh anonymous cart marked syncing.
	s.store.SetSyncStatus(SyncSyncing, "")
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		key := uuid.New().String()
		res, err := s.merger.Merge(runCtx, key, userID, snap.Lines)

		if !s.current(gen) || runCtx.Err() != nil {
			s.lg.Info("Discarding stale sync result",
				zap.String("user_id", userID),
				zap.Uint64("generation", gen),
			)
			return
		}

		if err != nil {
			s.store.SetSyncStatus(SyncIdle, err.Error())
			s.lg.Warn("Cart sync failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return
		}

		// Authoritative overwrite: the server view replaces the local
		// one, and the anonymous lines are discarded with it.
		s.store.Replace(res.Lines)
		s.store.SetSyncStatus(SyncIdle, "")

		if len(res.Outcomes) == 0 {
			// Nothing to merge; the pass only adopted the owned cart,
			// which is not worth a toast.
			s.lg.Info("Owned cart adopted",
				zap.String("user_id", userID),
				zap.Int("lines", len(res.Lines)),
			)
			return
		}

		summary := Summary{Synced: res.Synced(), Failed: res.Failed()}
		s.lg.Info("Cart sync completed",
			zap.String("user_id", userID),
			zap.Int("synced", summary.Synced),
			zap.Int("failed", summary.Failed),
		)
		if s.onSummary != nil {
			s.onSummary(summary)
		}
	}()

	return done
}

// Cancel aborts any in-flight pass and invalidates its generation so a
// late result cannot be applied to the wrong user's cart after a rapid
// logout/login sequence.
func (s *Synchronizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// current reports whether gen is still the active generation.
func (s *Synchronizer) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}
