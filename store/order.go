package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"storefront/model"
)

const orderColumns = `id, user_id, total_amount, customer_name, customer_email, customer_address, customer_city, customer_postal_code, customer_phone, payment_method, status, estimated_delivery_at, created_at, updated_at`

func scanOrder(row scanner) (model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount,
		&o.Customer.Name, &o.Customer.Email, &o.Customer.Address, &o.Customer.City, &o.Customer.PostalCode, &o.Customer.Phone,
		&o.PaymentMethod, &o.Status, &o.EstimatedDeliveryAt, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// CreateOrder inserts the order header and its lines, filling in ID and timestamps.
func (t *pgTx) CreateOrder(ctx context.Context, o *model.Order) error {
	if err := o.CheckTotal(); err != nil {
		return err
	}
	c := o.Customer
	err := t.q.QueryRowContext(ctx, `INSERT INTO orders (user_id, total_amount, customer_name, customer_email, customer_address, customer_city, customer_postal_code, customer_phone, payment_method, status, estimated_delivery_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at, updated_at`,
		o.UserID, o.TotalAmount, c.Name, c.Email, c.Address, c.City, c.PostalCode, c.Phone, string(o.PaymentMethod), string(o.Status), o.EstimatedDeliveryAt,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return storageErr(err)
	}

	stmt, err := t.q.PrepareContext(ctx, `INSERT INTO order_items (order_id, position, product_id, name, unit_price, quantity, image) VALUES ($1,$2,$3,$4,$5,$6,$7)`)
	if err != nil {
		return storageErr(err)
	}
	defer stmt.Close()

	for i, it := range o.Items {
		if _, err := stmt.ExecContext(ctx, o.ID, i, it.ProductID, it.Name, it.UnitPrice, it.Quantity, it.Image); err != nil {
			return storageErr(err)
		}
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, orderID int64) (model.Order, error) {
	o, err := scanOrder(t.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, model.ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, storageErr(err)
	}
	if err := loadItems(ctx, t.q, []*model.Order{&o}); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (t *pgTx) SetOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) (model.Order, error) {
	o, err := scanOrder(t.q.QueryRowContext(ctx, `UPDATE orders SET status = $1, updated_at = now() WHERE id = $2 RETURNING `+orderColumns, string(status), orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, model.ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, storageErr(err)
	}
	if err := loadItems(ctx, t.q, []*model.Order{&o}); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderID int64) (model.Order, error) {
	o, err := scanOrder(s.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, model.ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, storageErr(err)
	}
	if err := loadItems(ctx, s.DB, []*model.Order{&o}); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// ListOrdersByUser returns the user's orders, newest first.
func (s *PostgresStore) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, storageErr(err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ptrs := make([]*model.Order, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := loadItems(ctx, s.DB, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

// loadItems fills Items for every order with one query, keeping line order.
func loadItems(ctx context.Context, q querier, orders []*model.Order) error {
	ids := make([]int64, len(orders))
	byID := make(map[int64]*model.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		o.Items = []model.OrderLine{}
		byID[o.ID] = o
	}

	rows, err := q.QueryContext(ctx, `SELECT order_id, product_id, name, unit_price, quantity, image FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`, pq.Array(ids))
	if err != nil {
		return storageErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID int64
			it      model.OrderLine
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.UnitPrice, &it.Quantity, &it.Image); err != nil {
			return storageErr(err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return storageErr(rows.Err())
}
