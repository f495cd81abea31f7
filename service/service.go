package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"storefront/model"
	"storefront/outbox"
	"storefront/store"
)

// Options tunes checkout behaviour.
type Options struct {
	// DeliveryETA is added to the creation time to estimate delivery.
	DeliveryETA time.Duration
	// InitialStatus is pending unless orders are accepted on creation.
	InitialStatus model.OrderStatus
	// MaxAttempts bounds retries of a unit of work that hit a transient conflict.
	MaxAttempts int
}

func DefaultOptions() Options {
	return Options{DeliveryETA: 45 * time.Minute, InitialStatus: model.StatusPending, MaxAttempts: 3}
}

type Service struct {
	log       *slog.Logger
	store     store.Store
	carts     store.CartStore
	validator Validator
	opts      Options
	tracer    trace.Tracer
	now       func() time.Time
}

func NewService(log *slog.Logger, s store.Store, carts store.CartStore, opts Options) *Service {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.InitialStatus == "" {
		opts.InitialStatus = model.StatusPending
	}
	return &Service{
		log:       log,
		store:     s,
		carts:     carts,
		validator: NewValidator(s),
		opts:      opts,
		tracer:    otel.Tracer("storefront/service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" || p.Price.IsNegative() || p.Stock < 0 {
		return 0, model.ErrInvalidProduct
	}
	id, err := s.store.CreateProduct(ctx, p)
	if err != nil {
		return 0, err
	}
	s.log.Info("product created", "product_id", id, "stock", p.Stock)
	return id, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, productID int64) (model.Product, error) {
	return s.store.GetProduct(ctx, productID)
}

func (s *Service) UpdateStock(ctx context.Context, productID int64, newStock int) (model.Product, error) {
	if newStock < 0 {
		return model.Product{}, model.ErrNegativeStock
	}
	p, err := s.store.UpdateStock(ctx, productID, newStock)
	if err != nil {
		return model.Product{}, err
	}
	s.log.Info("stock set", "product_id", productID, "stock", p.Stock, "is_available", p.Available)
	return p, nil
}

func (s *Service) Restock(ctx context.Context, productID int64, qty int) (model.Product, error) {
	if qty <= 0 {
		return model.Product{}, model.ErrInvalidQuantity
	}
	p, err := s.store.Restock(ctx, productID, qty)
	if err != nil {
		return model.Product{}, err
	}
	s.log.Info("product restocked", "product_id", productID, "added", qty, "stock", p.Stock)
	return p, nil
}

// GetOrder returns the order only if userID owns it; anything else reads as not found.
func (s *Service) GetOrder(ctx context.Context, userID string, orderID int64) (model.Order, error) {
	if userID == "" {
		return model.Order{}, model.ErrMissingUser
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if o.UserID != userID {
		return model.Order{}, model.ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) GetOrderAdmin(ctx context.Context, orderID int64) (model.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

// ListOrders returns the user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	if userID == "" {
		return nil, model.ErrMissingUser
	}
	return s.store.ListOrdersByUser(ctx, userID)
}

type statusChanged struct {
	OrderID int64             `json:"order_id"`
	UserID  string            `json:"user_id"`
	From    model.OrderStatus `json:"from"`
	To      model.OrderStatus `json:"to"`
}

// UpdateOrderStatus moves an order to status. The order row is locked for the
// check so two admins cannot both leave a terminal state.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (model.Order, error) {
	next, err := model.ParseOrderStatus(status)
	if err != nil {
		return model.Order{}, err
	}

	var updated model.Order
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		cur, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := cur.Status.Transition(next); err != nil {
			return err
		}
		updated, err = tx.SetOrderStatus(ctx, orderID, next)
		if err != nil {
			return err
		}
		ev, err := outbox.NewEvent(ctx, "order", strconv.FormatInt(orderID, 10), outbox.TypeOrderStatusChanged,
			statusChanged{OrderID: orderID, UserID: cur.UserID, From: cur.Status, To: next})
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		return model.Order{}, err
	}
	s.log.Info("order status updated", "order_id", orderID, "status", next)
	return updated, nil
}
