package service

import (
	"context"

	"storefront/model"
)

type ServiceInterface interface {
	CreateProduct(ctx context.Context, p model.Product) (int64, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, productID int64) (model.Product, error)
	UpdateStock(ctx context.Context, productID int64, newStock int) (model.Product, error)
	Restock(ctx context.Context, productID int64, qty int) (model.Product, error)

	AddToCart(ctx context.Context, userID string, productID int64, qty int) error
	UpdateCartItem(ctx context.Context, userID string, productID int64, qty int) error
	RemoveFromCart(ctx context.Context, userID string, productID int64) error
	ClearCart(ctx context.Context, userID string) error
	GetCart(ctx context.Context, userID string) (Cart, error)

	PlaceOrder(ctx context.Context, userID string, req CheckoutRequest) (model.Order, error)
	GetOrder(ctx context.Context, userID string, orderID int64) (model.Order, error)
	GetOrderAdmin(ctx context.Context, orderID int64) (model.Order, error)
	ListOrders(ctx context.Context, userID string) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) (model.Order, error)
}
