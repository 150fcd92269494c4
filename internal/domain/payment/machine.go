package payment

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultWatchdogTimeout bounds how long a session may sit in
// AwaitingPayment before it expires.
const DefaultWatchdogTimeout = 5 * time.Minute

// Hooks let the host react to session transitions. All hooks are
// optional.
type Hooks struct {
	// AcquireLock runs when a session enters AwaitingPayment (the UI
	// typically locks scrolling behind the payment modal).
	AcquireLock func()
	// ReleaseLock runs exactly once per session on any terminal
	// transition. This is a guaranteed-cleanup obligation.
	ReleaseLock func()
	// OnSucceeded runs after verification confirms the payment; the
	// checkout flow clears the cart here, both locally and in the
	// server-held owned cart.
	OnSucceeded func(ctx context.Context)
}

// Machine drives payment sessions for one checkout surface. It owns
// the session for its lifetime and enforces the at-most-one
// non-terminal session invariant.
type Machine struct {
	provider Provider
	hooks    Hooks
	lg       *zap.Logger
	timeout  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	current *Session
}

// Option configures a Machine.
type Option func(*Machine)

// WithWatchdogTimeout overrides the AwaitingPayment deadline.
func WithWatchdogTimeout(d time.Duration) Option {
	return func(m *Machine) { m.timeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates a payment session machine.
func NewMachine(provider Provider, hooks Hooks, lg *zap.Logger, opts ...Option) *Machine {
	if lg == nil {
		lg = zap.NewNop()
	}
	m := &Machine{
		provider: provider,
		hooks:    hooks,
		lg:       lg,
		timeout:  DefaultWatchdogTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin creates a payment intent for the order total (taxes included)
// and moves the new session to AwaitingPayment with the watchdog
// running. Amount is in major units; the provider sees minor units.
//
// If a non-terminal session already exists it is superseded: cancelled
// provider-side first, never just dropped.
func (m *Machine) Begin(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (View, error) {
	m.supersede(ctx)

	s := &Session{
		OrderID:   orderID,
		Amount:    amount,
		Currency:  currency,
		Status:    StatusCreated,
		CreatedAt: m.now(),
	}

	providerOrderID, err := m.provider.CreateIntent(ctx, minorUnits(amount), currency, orderID)
	if err != nil {
		return View{}, errors.Wrap(err, "create payment intent")
	}
	s.ProviderOrderID = providerOrderID

	m.mu.Lock()
	s.Status = StatusAwaitingPayment
	s.ExpiresAt = m.now().Add(m.timeout)
	s.watchdog = time.AfterFunc(m.timeout, func() { m.expire(s) })
	m.current = s
	m.mu.Unlock()

	if m.hooks.AcquireLock != nil {
		m.hooks.AcquireLock()
	}

	m.lg.Info("Payment session awaiting confirmation",
		zap.String("order_id", orderID),
		zap.String("provider_order_id", providerOrderID),
	)
	return viewOf(s), nil
}

// HandleEvent applies a provider callback to the active session and
// returns the resulting status.
func (m *Machine) HandleEvent(ctx context.Context, ev Event) (Status, error) {
	switch e := ev.(type) {
	case Success:
		return m.handleSuccess(ctx, e)
	case Failure:
		return m.handleFailure(e)
	case Dismissed:
		return m.handleDismissed(ctx)
	default:
		return "", errors.Errorf("unknown payment event %T", ev)
	}
}

// Current returns a view of the active session.
func (m *Machine) Current() (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return View{}, ErrNoActiveSession
	}
	return viewOf(m.current), nil
}

// handleSuccess moves AwaitingPayment to Verifying (stopping the
// watchdog so a late fire is a no-op), verifies the payment with the
// provider, and settles the session.
func (m *Machine) handleSuccess(ctx context.Context, e Success) (Status, error) {
	m.mu.Lock()
	s := m.current
	if s == nil {
		m.mu.Unlock()
		return "", ErrNoActiveSession
	}
	if s.Status != StatusAwaitingPayment {
		st := s.Status
		m.mu.Unlock()
		if st.Terminal() {
			return st, terminalErr(st)
		}
		return st, errors.Errorf("unexpected success callback in state %q", st)
	}
	s.Status = StatusVerifying
	s.PaymentID = e.PaymentID
	m.stopWatchdog(s)
	m.mu.Unlock()

	ok, err := m.provider.Verify(ctx, s.ProviderOrderID, e.PaymentID, e.Signature)
	if err != nil {
		// Verification could not complete; the payment may have
		// succeeded provider-side, so the cart must stay intact for a
		// retry. Failed, not Succeeded.
		st, _ := m.settle(s, StatusFailed)
		return st, errors.Wrap(err, "verify payment")
	}
	if !ok {
		st, _ := m.settle(s, StatusFailed)
		return st, ErrVerificationMismatch
	}

	st, applied := m.settle(s, StatusSucceeded)
	if !applied {
		// The session was superseded or expired while verification was
		// in flight. The earlier terminal outcome stands and the cart
		// stays intact.
		return st, terminalErr(st)
	}
	if m.hooks.OnSucceeded != nil {
		m.hooks.OnSucceeded(ctx)
	}
	m.lg.Info("Payment verified",
		zap.String("order_id", s.OrderID),
		zap.String("payment_id", e.PaymentID),
	)
	return StatusSucceeded, nil
}

// handleFailure settles the session as Failed on a provider-reported
// payment failure. The cart is left untouched.
func (m *Machine) handleFailure(e Failure) (Status, error) {
	m.mu.Lock()
	s := m.current
	if s == nil {
		m.mu.Unlock()
		return "", ErrNoActiveSession
	}
	if s.Status.Terminal() {
		st := s.Status
		m.mu.Unlock()
		return st, terminalErr(st)
	}
	m.stopWatchdog(s)
	m.mu.Unlock()

	st, _ := m.settle(s, StatusFailed)
	m.lg.Warn("Payment failed",
		zap.String("order_id", s.OrderID),
		zap.String("code", e.Code),
		zap.String("reason", e.Reason),
	)
	return st, nil
}

// handleDismissed settles the session as Cancelled when the user
// closes the payment UI, and notifies the backend so user-abandon is
// distinguishable from silent expiry.
func (m *Machine) handleDismissed(ctx context.Context) (Status, error) {
	m.mu.Lock()
	s := m.current
	if s == nil {
		m.mu.Unlock()
		return "", ErrNoActiveSession
	}
	if s.Status != StatusAwaitingPayment {
		st := s.Status
		m.mu.Unlock()
		if st.Terminal() {
			return st, terminalErr(st)
		}
		return st, errors.Errorf("unexpected dismissal in state %q", st)
	}
	m.stopWatchdog(s)
	m.mu.Unlock()

	st, applied := m.settle(s, StatusCancelled)
	if !applied {
		return st, terminalErr(st)
	}

	// Best-effort: cleanup must not block the user's recovery path.
	if err := m.provider.NotifyCancelled(ctx, s.ProviderOrderID); err != nil {
		m.lg.Warn("Cancel notification failed",
			zap.String("provider_order_id", s.ProviderOrderID),
			zap.Error(err),
		)
	}
	return StatusCancelled, ErrUserCancelled
}

// expire is the watchdog callback. Firing after the session left
// AwaitingPayment is a no-op: the callback may race the timer stop.
func (m *Machine) expire(s *Session) {
	m.mu.Lock()
	if s.Status != StatusAwaitingPayment {
		m.mu.Unlock()
		return
	}
	s.Status = StatusTimedOut
	s.watchdog = nil
	m.mu.Unlock()

	m.releaseOnce(s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.provider.NotifyTimeout(ctx, s.ProviderOrderID); err != nil {
		m.lg.Warn("Timeout notification failed",
			zap.String("provider_order_id", s.ProviderOrderID),
			zap.Error(err),
		)
	}
	m.lg.Info("Payment session timed out",
		zap.String("order_id", s.OrderID),
		zap.String("provider_order_id", s.ProviderOrderID),
	)
}

// settle moves s to a terminal status and runs the release hook
// exactly once. A session that already settled (for example via the
// watchdog or a supersede) is left as-is; the status it actually
// carries is returned so callers report the real outcome, and applied
// tells whether this call performed the transition.
func (m *Machine) settle(s *Session, st Status) (final Status, applied bool) {
	m.mu.Lock()
	if s.Status.Terminal() {
		final = s.Status
		m.mu.Unlock()
		return final, false
	}
	s.Status = st
	m.stopWatchdog(s)
	m.mu.Unlock()

	m.releaseOnce(s)
	return st, true
}

// releaseOnce runs the UI-lock release hook, guaranteed once per
// session regardless of which terminal transition got there first.
func (m *Machine) releaseOnce(s *Session) {
	s.release.Do(func() {
		if m.hooks.ReleaseLock != nil {
			m.hooks.ReleaseLock()
		}
	})
}

// supersede cancels any existing non-terminal session provider-side
// before a new one is created for the same checkout surface.
func (m *Machine) supersede(ctx context.Context) {
	m.mu.Lock()
	prev := m.current
	if prev == nil || prev.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	m.stopWatchdog(prev)
	m.mu.Unlock()

	if _, applied := m.settle(prev, StatusCancelled); !applied {
		return
	}

	if err := m.provider.NotifyCancelled(ctx, prev.ProviderOrderID); err != nil {
		m.lg.Warn("Supersede cancel notification failed",
			zap.String("provider_order_id", prev.ProviderOrderID),
			zap.Error(err),
		)
	}
	m.lg.Info("Superseded prior payment session",
		zap.String("order_id", prev.OrderID),
		zap.String("provider_order_id", prev.ProviderOrderID),
	)
}

// terminalErr maps a settled status to the sentinel reported for a
// late event against it.
func terminalErr(st Status) error {
	switch st {
	case StatusTimedOut:
		return ErrSessionExpired
	case StatusCancelled:
		return ErrUserCancelled
	default:
		return ErrSessionTerminal
	}
}

// stopWatchdog stops the session timer if set. Callers must hold m.mu.
func (m *Machine) stopWatchdog(s *Session) {
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
}

func viewOf(s *Session) View {
	return View{
		OrderID:         s.OrderID,
		ProviderOrderID: s.ProviderOrderID,
		Amount:          s.Amount,
		Currency:        s.Currency,
		Status:          s.Status,
		CreatedAt:       s.CreatedAt,
		ExpiresAt:       s.ExpiresAt,
	}
}
