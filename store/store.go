package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"storefront/model"
)

// PostgresStore is a Store backed by Postgres. Stock is guarded by
// conditional UPDATEs, so it stays correct across service instances.
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	DB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := DB.Ping(); err != nil {
		_ = DB.Close()
		return nil, err
	}
	return &PostgresStore{DB: DB}, nil
}

func (s *PostgresStore) Close() error { return s.DB.Close() }

// Migrate executes the schema script.
func (s *PostgresStore) Migrate(ctx context.Context, schema string) error {
	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// storageErr maps driver errors onto the model taxonomy.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %w", model.ErrConflict, err)
		}
	}
	return fmt.Errorf("%w: %w", model.ErrStorageFailure, err)
}

// WithTx runs fn in a database transaction and commits only if fn succeeds.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err)
	}
	// ensure rollback on any early return
	rolledBack := false
	defer func() {
		if !rolledBack {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		rolledBack = true
		return storageErr(err)
	}
	rolledBack = true
	return nil
}

const productColumns = `id, name, description, category, image, price, stock, is_available, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (model.Product, error) {
	var (
		p           model.Product
		description sql.NullString
		image       sql.NullString
	)
	err := row.Scan(&p.ID, &p.Name, &description, &p.Category, &image, &p.Price, &p.Stock, &p.Available, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Product{}, err
	}
	p.Description = description.String
	p.Image = image.String
	return p, nil
}

func getProduct(ctx context.Context, q querier, productID int64) (model.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, &model.LineError{ProductID: productID, Err: model.ErrProductNotFound}
	}
	if err != nil {
		return model.Product{}, storageErr(err)
	}
	return p, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, productID int64) (model.Product, error) {
	return getProduct(ctx, s.DB, productID)
}

// CreateProduct inserts a product and returns its id. Availability follows stock.
func (s *PostgresStore) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO products (name, description, category, image, price, stock, is_available) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.Name, nullString(p.Description), p.Category, nullString(p.Image), p.Price, p.Stock, model.Availability(p.Stock),
	).Scan(&id)
	if err != nil {
		return 0, storageErr(err)
	}
	return id, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()
	out := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, storageErr(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
