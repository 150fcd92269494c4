package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Currency string
	Category string
	Stock    int
	Active   bool
	Image    Image
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string
	Mobile    string
	Tablet    string
	Desktop   string
}

// Availability is the live stock view for a single product.
type Availability struct {
	ProductID string
	Stock     int
	Active    bool
}

// StockOracle exposes current availability per product. The cart engine
// only ever reads from it; stock is decremented elsewhere.
type StockOracle interface {
	GetAvailability(ctx context.Context, productID string) (Availability, error)
}

// Repository defines read operations for the product catalog.
type Repository interface {
	StockOracle

	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}
