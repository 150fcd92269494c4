// Package order defines the order-creation collaborator boundary. The
// engine hands cart lines and addresses to an external order service
// and receives back the priced order; order management itself lives
// outside this engine.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pawmart/cart-engine/internal/domain/cart"
)

// Address is a shipping or billing address.
type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// TaxLine is one component of the order's tax breakdown.
type TaxLine struct {
	Name   string
	Amount decimal.Decimal
}

// Confirmation is what the order service returns for a created order.
// Total includes taxes; the payment intent is created for this amount,
// not the cart subtotal.
type Confirmation struct {
	OrderID   string
	Total     decimal.Decimal
	Currency  string
	Taxes     []TaxLine
	CreatedAt time.Time
}

// CreateRequest is the input handed to the order service.
type CreateRequest struct {
	UserID          string
	Lines           []cart.Line
	ShippingAddress Address
	BillingAddress  Address
	ShippingMethod  string
}

// OrderStatus values reported back at terminal payment transitions.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusFailed    OrderStatus = "payment_failed"
	StatusExpired   OrderStatus = "payment_expired"
	StatusCancelled OrderStatus = "cancelled"
)

// Service creates orders and records payment outcomes. Create is a
// single request/response; no retry is performed by the engine —
// failure is surfaced to the caller.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Confirmation, error)
	UpdateStatus(ctx context.Context, orderID string, status OrderStatus) error
}
