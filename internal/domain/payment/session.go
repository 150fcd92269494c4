// Package payment models one checkout attempt against an external
// payment provider: intent creation, awaiting the provider callback,
// verification, and the terminal outcomes, including a watchdog timer
// bounding an unconfirmed session.
package payment

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for the payment session lifecycle.
var (
	ErrNoActiveSession      = errors.New("no active payment session")
	ErrSessionTerminal      = errors.New("payment session already settled")
	ErrSessionExpired       = errors.New("payment session expired")
	ErrUserCancelled        = errors.New("payment cancelled by user")
	ErrVerificationMismatch = errors.New("payment verification mismatch")
)

// Status is the finite state of a payment session.
type Status string

const (
	StatusCreated         Status = "created"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusVerifying       Status = "verifying"
	StatusSucceeded       Status = "succeeded"
	StatusFailed          Status = "failed"
	StatusTimedOut        Status = "timed_out"
	StatusCancelled       Status = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// Session is one payment attempt for an order. At most one non-terminal
// session exists per order at any time; beginning a new one supersedes
// the prior after cancelling it provider-side.
type Session struct {
	OrderID         string
	ProviderOrderID string
	// Amount is in major currency units. Conversion to minor units
	// happens exactly once, at the provider boundary.
	Amount    decimal.Decimal
	Currency  string
	Status    Status
	PaymentID string
	CreatedAt time.Time
	ExpiresAt time.Time

	// release runs the UI-lock release hook exactly once per session.
	release sync.Once
	// watchdog bounds the time spent awaiting the provider callback.
	watchdog *time.Timer
}

// View is a read-only copy of a session for rendering.
type View struct {
	OrderID         string
	ProviderOrderID string
	Amount          decimal.Decimal
	Currency        string
	Status          Status
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Event is a provider callback, modelled as a tagged union rather than
// an untyped payload.
type Event interface {
	isEvent()
}

// Success carries the provider's payment confirmation.
type Success struct {
	PaymentID string
	Signature string
}

// Failure carries a provider-reported payment failure.
type Failure struct {
	Code   string
	Reason string
}

// Dismissed means the user explicitly closed the payment UI.
type Dismissed struct{}

func (Success) isEvent()   {}
func (Failure) isEvent()   {}
func (Dismissed) isEvent() {}

// Provider is the external payment provider boundary. Amounts cross it
// in minor currency units.
type Provider interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency, orderID string) (providerOrderID string, err error)
	Verify(ctx context.Context, providerOrderID, paymentID, signature string) (bool, error)
	NotifyTimeout(ctx context.Context, providerOrderID string) error
	NotifyCancelled(ctx context.Context, providerOrderID string) error
}

// minorUnits converts a major-unit amount to provider minor units.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
