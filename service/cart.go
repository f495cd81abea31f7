package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"storefront/model"
)

// Cart is the user's cart joined with live product data.
type Cart struct {
	Items []model.CartItem `json:"items"`
	Total decimal.Decimal  `json:"total"`
}

// AddToCart stages qty more units of a product. The product must be on sale
// and have enough stock for what is already in the cart plus qty. Stock is
// not held; checkout checks it again.
func (s *Service) AddToCart(ctx context.Context, userID string, productID int64, qty int) error {
	if userID == "" {
		return model.ErrMissingUser
	}
	if qty <= 0 {
		return model.ErrInvalidQuantity
	}
	p, err := s.purchasable(ctx, productID, qty)
	if err != nil {
		return err
	}

	lines, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	inCart := 0
	for _, l := range lines {
		if l.ProductID == productID {
			inCart = l.Quantity
		}
	}
	if inCart+qty > p.Stock {
		return model.InsufficientStock(p, inCart+qty)
	}
	return s.carts.AddToCart(ctx, userID, productID, qty)
}

// UpdateCartItem sets the quantity of a line already in the cart.
func (s *Service) UpdateCartItem(ctx context.Context, userID string, productID int64, qty int) error {
	if userID == "" {
		return model.ErrMissingUser
	}
	if qty <= 0 {
		return model.ErrInvalidQuantity
	}
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if qty > p.Stock {
		return model.InsufficientStock(p, qty)
	}
	return s.carts.SetCartQuantity(ctx, userID, productID, qty)
}

func (s *Service) RemoveFromCart(ctx context.Context, userID string, productID int64) error {
	if userID == "" {
		return model.ErrMissingUser
	}
	return s.carts.RemoveFromCart(ctx, userID, productID)
}

func (s *Service) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return model.ErrMissingUser
	}
	return s.carts.ClearCart(ctx, userID)
}

// GetCart prices the cart at current catalog prices. Lines whose product is
// gone or off sale are left out of both items and total.
func (s *Service) GetCart(ctx context.Context, userID string) (Cart, error) {
	if userID == "" {
		return Cart{}, model.ErrMissingUser
	}
	lines, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	out := Cart{Items: make([]model.CartItem, 0, len(lines)), Total: decimal.Zero}
	for _, l := range lines {
		p, err := s.store.GetProduct(ctx, l.ProductID)
		if errors.Is(err, model.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return Cart{}, err
		}
		if !p.Available {
			continue
		}
		out.Items = append(out.Items, model.CartItem{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			Price:     p.Price,
			Stock:     p.Stock,
			Quantity:  l.Quantity,
		})
		out.Total = out.Total.Add(p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return out, nil
}

func (s *Service) purchasable(ctx context.Context, productID int64, qty int) (model.Product, error) {
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return model.Product{}, err
	}
	if !p.Available {
		return model.Product{}, &model.LineError{ProductID: p.ID, Name: p.Name, Requested: qty, Available: p.Stock, Err: model.ErrProductUnavailable}
	}
	return p, nil
}
