package store

import (
	"context"

	"storefront/model"
	"storefront/outbox"
)

// ProductReader is the read side of the inventory ledger.
type ProductReader interface {
	GetProduct(ctx context.Context, productID int64) (model.Product, error)
}

// Ledger is the inventory ledger. Reserve is a linearizable
// check-and-decrement; Release is its compensating increment.
type Ledger interface {
	ProductReader
	Reserve(ctx context.Context, productID int64, qty int) (model.Product, error)
	Release(ctx context.Context, productID int64, qty int) (model.Product, error)
}

// Tx is one unit of work. Every write made through it is committed or
// discarded together.
type Tx interface {
	Ledger
	CreateOrder(ctx context.Context, o *model.Order) error
	// LockOrder loads an order and holds it against concurrent status changes until the unit of work ends.
	LockOrder(ctx context.Context, orderID int64) (model.Order, error)
	SetOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) (model.Order, error)
	AppendEvent(ctx context.Context, ev outbox.Event) error
}

type Store interface {
	ProductReader

	CreateProduct(ctx context.Context, p model.Product) (int64, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	UpdateStock(ctx context.Context, productID int64, newStock int) (model.Product, error)
	Restock(ctx context.Context, productID int64, qty int) (model.Product, error)

	GetOrder(ctx context.Context, orderID int64) (model.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)

	// WithTx runs fn inside a unit of work. fn must only touch the store
	// through the Tx it is given. A non-nil error from fn discards every write.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// CartStore stages per-user cart lines. It is never authoritative for stock.
type CartStore interface {
	AddToCart(ctx context.Context, userID string, productID int64, qty int) error
	SetCartQuantity(ctx context.Context, userID string, productID int64, qty int) error
	RemoveFromCart(ctx context.Context, userID string, productID int64) error
	GetCart(ctx context.Context, userID string) ([]model.CartLine, error)
	ClearCart(ctx context.Context, userID string) error
	// RemoveOrdered subtracts the ordered quantities and drops lines that
	// reach zero. Lines added after the order was taken stay in the cart.
	RemoveOrdered(ctx context.Context, userID string, ordered []model.CartLine) error
}
