package store

import (
	"context"
	"database/sql"
	"errors"

	"storefront/model"
)

// pgTx is the Postgres unit of work.
type pgTx struct {
	q querier
}

func (t *pgTx) GetProduct(ctx context.Context, productID int64) (model.Product, error) {
	return getProduct(ctx, t.q, productID)
}

// The WHERE clause makes the check and the decrement a single row update;
// a concurrent reservation of the same row waits and re-evaluates it.
const reserveSQL = `UPDATE products SET stock = stock - $1, is_available = stock - $1 > 0, updated_at = now() WHERE id = $2 AND is_available AND stock >= $1 RETURNING ` + productColumns

const releaseSQL = `UPDATE products SET stock = stock + $1, is_available = stock + $1 > 0, updated_at = now() WHERE id = $2 RETURNING ` + productColumns

// Reserve decrements stock only if enough is available and returns the product after the update.
func (t *pgTx) Reserve(ctx context.Context, productID int64, qty int) (model.Product, error) {
	return reserve(ctx, t.q, productID, qty)
}

// Release undoes a reservation.
func (t *pgTx) Release(ctx context.Context, productID int64, qty int) (model.Product, error) {
	return adjust(ctx, t.q, releaseSQL, productID, qty)
}

func reserve(ctx context.Context, q querier, productID int64, qty int) (model.Product, error) {
	if qty <= 0 {
		return model.Product{}, model.ErrInvalidQuantity
	}
	p, err := scanProduct(q.QueryRowContext(ctx, reserveSQL, qty, productID))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, storageErr(err)
	}

	// nothing updated: find out why
	cur, err := getProduct(ctx, q, productID)
	if err != nil {
		return model.Product{}, err
	}
	// a competing checkout that took the last units leaves stock 0 and the
	// product unavailable; that is still a stock shortfall for this line
	if cur.Stock < qty {
		return model.Product{}, model.InsufficientStock(cur, qty)
	}
	return model.Product{}, &model.LineError{ProductID: cur.ID, Name: cur.Name, Requested: qty, Available: cur.Stock, Err: model.ErrProductUnavailable}
}

func adjust(ctx context.Context, q querier, query string, productID int64, qty int) (model.Product, error) {
	if qty <= 0 {
		return model.Product{}, model.ErrInvalidQuantity
	}
	p, err := scanProduct(q.QueryRowContext(ctx, query, qty, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, &model.LineError{ProductID: productID, Err: model.ErrProductNotFound}
	}
	if err != nil {
		return model.Product{}, storageErr(err)
	}
	return p, nil
}

// Reserve outside a unit of work; each call is its own transaction.
func (s *PostgresStore) Reserve(ctx context.Context, productID int64, qty int) (model.Product, error) {
	return reserve(ctx, s.DB, productID, qty)
}

func (s *PostgresStore) Release(ctx context.Context, productID int64, qty int) (model.Product, error) {
	return adjust(ctx, s.DB, releaseSQL, productID, qty)
}

// Restock is the administrative increment.
func (s *PostgresStore) Restock(ctx context.Context, productID int64, qty int) (model.Product, error) {
	return adjust(ctx, s.DB, releaseSQL, productID, qty)
}

// UpdateStock sets the absolute stock for a product (admin operation).
func (s *PostgresStore) UpdateStock(ctx context.Context, productID int64, newStock int) (model.Product, error) {
	if newStock < 0 {
		return model.Product{}, model.ErrNegativeStock
	}
	p, err := scanProduct(s.DB.QueryRowContext(ctx,
		`UPDATE products SET stock = $1, is_available = $2, updated_at = now() WHERE id = $3 RETURNING `+productColumns,
		newStock, model.Availability(newStock), productID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, &model.LineError{ProductID: productID, Err: model.ErrProductNotFound}
	}
	if err != nil {
		return model.Product{}, storageErr(err)
	}
	return p, nil
}
