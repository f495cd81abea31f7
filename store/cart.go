package store

import (
	"context"

	"github.com/lib/pq"

	"storefront/model"
)

// PostgresCartStore keeps carts in the carts/cart_items tables.
type PostgresCartStore struct {
	q querier
}

func NewPostgresCartStore(s *PostgresStore) *PostgresCartStore {
	return &PostgresCartStore{q: s.DB}
}

// AddToCart adds qty to the line for productID, creating cart and line as needed.
func (c *PostgresCartStore) AddToCart(ctx context.Context, userID string, productID int64, qty int) error {
	if qty <= 0 {
		return model.ErrInvalidQuantity
	}
	// ensure cart exists
	if _, err := c.q.ExecContext(ctx, `INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return storageErr(err)
	}
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1,$2,$3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, userID, productID, qty)
	return storageErr(err)
}

func (c *PostgresCartStore) SetCartQuantity(ctx context.Context, userID string, productID int64, qty int) error {
	if qty <= 0 {
		return model.ErrInvalidQuantity
	}
	res, err := c.q.ExecContext(ctx, `UPDATE cart_items SET quantity=$3 WHERE cart_id=$1 AND product_id=$2`, userID, productID, qty)
	if err != nil {
		return storageErr(err)
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return model.ErrCartItemNotFound
	}
	return nil
}

func (c *PostgresCartStore) RemoveFromCart(ctx context.Context, userID string, productID int64) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id=$1 AND product_id=$2`, userID, productID)
	if err != nil {
		return storageErr(err)
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return model.ErrCartItemNotFound
	}
	return nil
}

func (c *PostgresCartStore) GetCart(ctx context.Context, userID string) ([]model.CartLine, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT product_id, quantity FROM cart_items WHERE cart_id=$1 ORDER BY added_at, product_id`, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()
	out := []model.CartLine{}
	for rows.Next() {
		var l model.CartLine
		if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
			return nil, storageErr(err)
		}
		out = append(out, l)
	}
	return out, storageErr(rows.Err())
}

// ClearCart removes the cart; cart_items go with it.
func (c *PostgresCartStore) ClearCart(ctx context.Context, userID string) error {
	_, err := c.q.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	return storageErr(err)
}

// Both halves see the same snapshot and touch disjoint rows.
const removeOrderedSQL = `
	WITH ordered AS (
		SELECT * FROM unnest($2::bigint[], $3::bigint[]) AS o (product_id, quantity)
	), gone AS (
		DELETE FROM cart_items c USING ordered o
		WHERE c.cart_id = $1 AND c.product_id = o.product_id AND c.quantity <= o.quantity
	)
	UPDATE cart_items c SET quantity = c.quantity - o.quantity
	FROM ordered o
	WHERE c.cart_id = $1 AND c.product_id = o.product_id AND c.quantity > o.quantity
`

func (c *PostgresCartStore) RemoveOrdered(ctx context.Context, userID string, ordered []model.CartLine) error {
	if len(ordered) == 0 {
		return nil
	}
	ids := make([]int64, len(ordered))
	qtys := make([]int64, len(ordered))
	for i, l := range ordered {
		ids[i], qtys[i] = l.ProductID, int64(l.Quantity)
	}
	_, err := c.q.ExecContext(ctx, removeOrderedSQL, userID, pq.Array(ids), pq.Array(qtys))
	return storageErr(err)
}
