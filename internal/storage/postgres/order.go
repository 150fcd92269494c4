package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pawmart/cart-engine/internal/domain/order"
)

var _ order.Service = (*OrderService)(nil)

// OrderConfig holds pricing knobs applied at order creation.
type OrderConfig struct {
	// TaxRate is the GST percentage applied on the subtotal, e.g. 18.
	TaxRate decimal.Decimal
	// ShippingFees maps shipping method name to its flat fee.
	ShippingFees map[string]decimal.Decimal
}

// OrderService implements order.Service backed by PostgreSQL. It
// prices the order (subtotal + GST + shipping) and persists it; the
// confirmed total is what the payment intent is created for.
type OrderService struct {
	pool *pgxpool.Pool
	cfg  OrderConfig
}

// NewOrderService returns an OrderService over the given pool.
func NewOrderService(pool *pgxpool.Pool, cfg OrderConfig) *OrderService {
	return &OrderService{pool: pool, cfg: cfg}
}

type orderLineJSON struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Create prices and persists a new order and returns the confirmation
// with the tax breakdown.
func (s *OrderService) Create(ctx context.Context, req order.CreateRequest) (*order.Confirmation, error) {
	if len(req.Lines) == 0 {
		return nil, errors.New("order requires at least one line")
	}

	subtotal := decimal.Zero
	currency := req.Lines[0].Currency
	lines := make([]orderLineJSON, len(req.Lines))
	for i, l := range req.Lines {
		subtotal = subtotal.Add(l.Subtotal())
		lines[i] = orderLineJSON{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}

	taxes := []order.TaxLine{}
	total := subtotal
	if s.cfg.TaxRate.IsPositive() {
		gst := subtotal.Mul(s.cfg.TaxRate).Div(decimal.NewFromInt(100)).Round(2)
		taxes = append(taxes, order.TaxLine{Name: "GST", Amount: gst})
		total = total.Add(gst)
	}
	if fee, ok := s.cfg.ShippingFees[req.ShippingMethod]; ok && fee.IsPositive() {
		taxes = append(taxes, order.TaxLine{Name: "Shipping", Amount: fee})
		total = total.Add(fee)
	}
	total = total.Round(2)

	conf := &order.Confirmation{
		OrderID:   uuid.New().String(),
		Total:     total,
		Currency:  currency,
		Taxes:     taxes,
		CreatedAt: time.Now(),
	}

	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return nil, errors.Wrap(err, "marshal order lines")
	}
	taxesJSON, err := json.Marshal(taxes)
	if err != nil {
		return nil, errors.Wrap(err, "marshal tax breakdown")
	}
	shippingJSON, err := json.Marshal(req.ShippingAddress)
	if err != nil {
		return nil, errors.Wrap(err, "marshal shipping address")
	}
	billingJSON, err := json.Marshal(req.BillingAddress)
	if err != nil {
		return nil, errors.Wrap(err, "marshal billing address")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO orders (id, user_id, lines, subtotal, taxes, total, currency,
		                    shipping_address, billing_address, shipping_method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		conf.OrderID, req.UserID, linesJSON, subtotal, taxesJSON, total, currency,
		shippingJSON, billingJSON, req.ShippingMethod, string(order.StatusPending), conf.CreatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "create order %q", conf.OrderID)
	}

	return conf, nil
}

// UpdateStatus records a terminal payment outcome on the order.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, status order.OrderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		orderID, string(status))
	if err != nil {
		return errors.Wrapf(err, "update order %q", orderID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("order %q not found", orderID)
	}
	return nil
}
