package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pawmart/cart-engine/internal/domain/cart"
)

var _ cart.RemoteCart = (*CartRepository)(nil)

// CartRepository implements cart.RemoteCart: the server-persisted cart
// tied to a user identity.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository over the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Fetch returns the user's owned cart lines joined with the current
// catalog data, in insertion order.
func (r *CartRepository) Fetch(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ci.product_id, p.name, p.price, p.currency, ci.quantity,
		       p.image_thumbnail, p.image_mobile, p.image_tablet, p.image_desktop
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.added_at`, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch cart for user %q", userID)
	}
	defer rows.Close()

	var lines []cart.Line
	for rows.Next() {
		var l cart.Line
		if err := rows.Scan(
			&l.ProductID, &l.Name, &l.UnitPrice, &l.Currency, &l.Quantity,
			&l.Image.Thumbnail, &l.Image.Mobile, &l.Image.Tablet, &l.Image.Desktop,
		); err != nil {
			return nil, errors.Wrap(err, "scan cart line")
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// AddItem adds qty units of a product to the user's owned cart,
// incrementing the existing line when one exists.
func (r *CartRepository) AddItem(ctx context.Context, userID, productID string, qty int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		userID, productID, qty)
	if err != nil {
		return errors.Wrapf(err, "add %q to cart for user %q", productID, userID)
	}
	return nil
}

// RemoveItem deletes a line from the user's owned cart.
func (r *CartRepository) RemoveItem(ctx context.Context, userID, productID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`,
		userID, productID)
	if err != nil {
		return errors.Wrapf(err, "remove %q from cart for user %q", productID, userID)
	}
	return nil
}

// Clear deletes all lines of the user's owned cart. Called after a
// paid order, not on logout.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return errors.Wrapf(err, "clear cart for user %q", userID)
	}
	return nil
}
